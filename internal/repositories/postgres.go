package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recipereels/backend/internal/db"
	"github.com/recipereels/backend/internal/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	uniqueViolation = "23505"

	reelColumns = `id, owner_id, object_key, location, caption, media_kind, size_bytes, created_at`
)

// PostgresReelRepository keeps the reel index in PostgreSQL.
type PostgresReelRepository struct {
	pool db.Pool
}

// NewPostgresReelRepository constructs a reel repository backed by PostgreSQL.
func NewPostgresReelRepository(pool db.Pool) *PostgresReelRepository {
	return &PostgresReelRepository{pool: pool}
}

func (r *PostgresReelRepository) withConn(ctx context.Context, fn func(conn *pgxpool.Conn) error) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()
	return fn(conn)
}

// Create stores a new reel. A second reel for the same object key is a conflict.
func (r *PostgresReelRepository) Create(ctx context.Context, reel models.Reel) error {
	return r.withConn(ctx, func(conn *pgxpool.Conn) error {
		_, err := conn.Exec(ctx, `INSERT INTO reels (`+reelColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			reel.ID, reel.OwnerID, reel.ObjectKey, reel.Location, reel.Caption, reel.MediaKind, reel.Size, reel.CreatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return ErrConflict
			}
			return fmt.Errorf("insert reel: %w", err)
		}
		return nil
	})
}

// FindByKey fetches the reel indexed for an object key.
func (r *PostgresReelRepository) FindByKey(ctx context.Context, objectKey string) (models.Reel, error) {
	var reel models.Reel
	err := r.withConn(ctx, func(conn *pgxpool.Conn) error {
		row := conn.QueryRow(ctx, `SELECT `+reelColumns+` FROM reels WHERE object_key = $1`, objectKey)
		found, err := scanReel(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("select reel by key: %w", err)
		}
		reel = found
		return nil
	})
	return reel, err
}

// ListByOwner returns the owner's reels, newest first. limit is clamped to
// [1, 200] with 50 used when unset.
func (r *PostgresReelRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]models.Reel, error) {
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	var reels []models.Reel
	err := r.withConn(ctx, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+reelColumns+` FROM reels
        WHERE owner_id = $1
        ORDER BY created_at DESC, id
        LIMIT $2`, ownerID, limit)
		if err != nil {
			return fmt.Errorf("query reels: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			reel, err := scanReel(rows)
			if err != nil {
				return fmt.Errorf("scan reel: %w", err)
			}
			reels = append(reels, reel)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate reels: %w", err)
		}
		return nil
	})
	return reels, err
}

func scanReel(row pgx.Row) (models.Reel, error) {
	var reel models.Reel
	err := row.Scan(&reel.ID, &reel.OwnerID, &reel.ObjectKey, &reel.Location, &reel.Caption, &reel.MediaKind, &reel.Size, &reel.CreatedAt)
	return reel, err
}

var _ ReelRepository = (*PostgresReelRepository)(nil)
