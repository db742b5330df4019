package repositories

import (
	"context"
	"errors"

	"github.com/recipereels/backend/internal/models"
)

var (
	// ErrNotFound is returned when no reel is indexed under the requested key.
	ErrNotFound = errors.New("reel not found")
	// ErrConflict is returned when a reel is already indexed under the object key.
	ErrConflict = errors.New("reel already indexed")
)

// ReelRepository exposes data access for indexed reels.
type ReelRepository interface {
	Create(ctx context.Context, reel models.Reel) error
	FindByKey(ctx context.Context, objectKey string) (models.Reel, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]models.Reel, error)
}
