package upload

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Registry hands out one Coordinator per owner, so a running upload only blocks
// further uploads from the same user.
type Registry struct {
	coordinators *gocache.Cache
	permits      Permitter
	opts         Options
}

// NewRegistry keeps idle coordinators for ttl.
func NewRegistry(permits Permitter, opts Options, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry{
		coordinators: gocache.New(ttl, time.Minute),
		permits:      permits,
		opts:         opts,
	}
}

// For returns the coordinator for ownerID, creating it on first use. Each lookup
// extends the coordinator's lifetime.
func (r *Registry) For(ownerID string) *Coordinator {
	key := strings.TrimSpace(ownerID)
	if v, ok := r.coordinators.Get(key); ok {
		coord := v.(*Coordinator)
		r.coordinators.SetDefault(key, coord)
		return coord
	}

	coord := NewCoordinator(r.permits, Owner(key), r.opts)
	if err := r.coordinators.Add(key, coord, gocache.DefaultExpiration); err != nil {
		if v, ok := r.coordinators.Get(key); ok {
			return v.(*Coordinator)
		}
	}
	return coord
}

// NewJob creates an idle job owned by ownerID.
func (r *Registry) NewJob(ownerID string, kind MediaKind, localRef, caption string) (*Job, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, &StateError{Reason: "job has no owner"}
	}
	return r.For(ownerID).NewJob(kind, localRef, caption)
}

// Run executes job on its owner's coordinator.
func (r *Registry) Run(ctx context.Context, job *Job) (Receipt, error) {
	if job == nil {
		return Receipt{}, &StateError{Reason: "job is not idle"}
	}
	return r.For(job.OwnerID).Run(ctx, job)
}
