package authflow

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Registry hands out one Controller per identifier, each driving its own
// Authenticator, so flows for different users never share an in-flight flag.
type Registry struct {
	flows   *gocache.Cache
	newAuth func() Authenticator
	opts    Options
}

// NewRegistry keeps idle controllers for ttl. newAuth is called once per new flow.
func NewRegistry(newAuth func() Authenticator, opts Options, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if opts.Pending == nil {
		opts.Pending = NewPendingCache(24 * time.Hour)
	}
	if opts.Validator == nil {
		opts.Validator = NewValidator()
	}
	return &Registry{
		flows:   gocache.New(ttl, time.Minute),
		newAuth: newAuth,
		opts:    opts,
	}
}

// For returns the controller for identifier, creating it on first use. Each lookup
// extends the controller's lifetime.
func (r *Registry) For(identifier string) *Controller {
	key := strings.ToLower(strings.TrimSpace(identifier))
	if v, ok := r.flows.Get(key); ok {
		ctrl := v.(*Controller)
		r.flows.SetDefault(key, ctrl)
		return ctrl
	}

	ctrl := NewController(r.newAuth(), r.opts)
	if err := r.flows.Add(key, ctrl, gocache.DefaultExpiration); err != nil {
		// lost a race with a concurrent request for the same identifier
		if v, ok := r.flows.Get(key); ok {
			return v.(*Controller)
		}
	}
	return ctrl
}

// Pending exposes the shared pending-verification registry.
func (r *Registry) Pending() PendingRegistry {
	return r.opts.Pending
}
