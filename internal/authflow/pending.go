package authflow

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// PendingRegistry remembers identifiers whose accounts await a confirmation code.
type PendingRegistry interface {
	Add(identifier, email string)
	Lookup(identifier string) (email string, ok bool)
	Remove(identifier string)
}

// PendingCache is a PendingRegistry whose entries expire after a fixed TTL.
type PendingCache struct {
	c *gocache.Cache
}

// NewPendingCache keeps pending identifiers for ttl.
func NewPendingCache(ttl time.Duration) *PendingCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &PendingCache{c: gocache.New(ttl, 10*time.Minute)}
}

func pendingKey(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// Add records identifier as awaiting verification.
func (p *PendingCache) Add(identifier, email string) {
	if strings.TrimSpace(identifier) == "" {
		return
	}
	p.c.SetDefault(pendingKey(identifier), email)
}

// Lookup reports whether identifier is pending and the email it registered with.
func (p *PendingCache) Lookup(identifier string) (string, bool) {
	v, ok := p.c.Get(pendingKey(identifier))
	if !ok {
		return "", false
	}
	email, _ := v.(string)
	return email, true
}

// Remove forgets identifier once verified.
func (p *PendingCache) Remove(identifier string) {
	p.c.Delete(pendingKey(identifier))
}
