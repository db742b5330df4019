package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// SubjectLookup resolves an access token to the user it was issued to;
// CognitoProvider satisfies it.
type SubjectLookup interface {
	SubjectForAccessToken(ctx context.Context, accessToken string) (string, error)
}

// Callers authenticates gateway callers by their access token. Successful lookups
// are remembered for ttl so a burst of uploads costs one provider round trip.
type Callers struct {
	lookup SubjectLookup
	known  *gocache.Cache
}

// NewCallers caches resolved subjects for ttl; a non-positive ttl disables caching.
func NewCallers(lookup SubjectLookup, ttl time.Duration) *Callers {
	c := &Callers{lookup: lookup}
	if ttl > 0 {
		c.known = gocache.New(ttl, 2*ttl)
	}
	return c
}

// Subject returns the user id owning accessToken. Failures are never cached.
func (c *Callers) Subject(ctx context.Context, accessToken string) (string, error) {
	if accessToken == "" {
		return "", ErrUnauthenticated
	}
	if c.lookup == nil {
		return "", ErrProviderUnavailable
	}

	key := tokenKey(accessToken)
	if c.known != nil {
		if v, ok := c.known.Get(key); ok {
			return v.(string), nil
		}
	}

	sub, err := c.lookup.SubjectForAccessToken(ctx, accessToken)
	if err != nil {
		return "", err
	}
	if c.known != nil {
		c.known.SetDefault(key, sub)
	}
	return sub, nil
}

// tokens are keyed by digest so raw credentials never sit in the cache.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
