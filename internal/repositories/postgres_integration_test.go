package repositories

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recipereels/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresReelRepository_CreateFindAndList(t *testing.T) {
	if testPool == nil {
		t.Skip("integration database not started (-short)")
	}
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresReelRepository(testPool)

	base := time.Now().UTC().Truncate(time.Millisecond)
	older := newReel("user-1", "user-1/reels/older.jpg", base.Add(-time.Hour))
	newer := newReel("user-1", "user-1/reels/newer.mp4", base)
	newer.MediaKind = models.MediaKindVideo
	other := newReel("user-2", "user-2/reels/other.jpg", base)

	for _, reel := range []models.Reel{older, newer, other} {
		if err := repo.Create(ctx, reel); err != nil {
			t.Fatalf("create reel %s: %v", reel.ObjectKey, err)
		}
	}

	dup := newReel("user-1", older.ObjectKey, base)
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate key, got %v", err)
	}

	found, err := repo.FindByKey(ctx, newer.ObjectKey)
	if err != nil {
		t.Fatalf("find reel: %v", err)
	}
	if found.ID != newer.ID || found.MediaKind != models.MediaKindVideo || found.Caption != newer.Caption {
		t.Fatalf("unexpected reel %+v", found)
	}
	if !found.CreatedAt.Equal(newer.CreatedAt) {
		t.Fatalf("expected created_at %v got %v", newer.CreatedAt, found.CreatedAt)
	}

	if _, err := repo.FindByKey(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	reels, err := repo.ListByOwner(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("list reels: %v", err)
	}
	if len(reels) != 2 || reels[0].ID != newer.ID || reels[1].ID != older.ID {
		t.Fatalf("unexpected owner listing %+v", reels)
	}

	limited, err := repo.ListByOwner(ctx, "user-1", 1)
	if err != nil {
		t.Fatalf("list reels with limit: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != newer.ID {
		t.Fatalf("expected only the newest reel, got %+v", limited)
	}

	none, err := repo.ListByOwner(ctx, "nobody", 0)
	if err != nil {
		t.Fatalf("list reels for unknown owner: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no reels, got %+v", none)
	}
}

func newReel(owner, key string, created time.Time) models.Reel {
	return models.Reel{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		ObjectKey: key,
		Location:  "https://cdn.example.com/" + key,
		Caption:   "Shakshuka",
		MediaKind: models.MediaKindImage,
		Size:      1024,
		CreatedAt: created,
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE reels CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}
