package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recipereels/backend/internal/config"
	"github.com/recipereels/backend/internal/localstore"
	"github.com/recipereels/backend/internal/upload"
)

type fakePool struct{}

func (fakePool) Acquire(context.Context) (*pgxpool.Conn, error) {
	return nil, errors.New("not implemented")
}

func (fakePool) Ping(context.Context) error {
	return errors.New("database unavailable")
}

func (fakePool) Close() {}

type fakeObjects struct{}

func (fakeObjects) Save(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("not implemented")
}

func testAWSConfig() aws.Config {
	return aws.Config{
		Region: "us-east-2",
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "test", SecretAccessKey: "test"}, nil
		}),
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Identity:     config.IdentityConfig{ClientID: "client-id"},
		ObjectStore:  config.ObjectStoreConfig{Bucket: "test-bucket", Endpoint: "http://localhost:9000", Region: "us-east-1"},
		Upload:       config.UploadConfig{ProcessEndpoint: "http://localhost:8081/api/v1/reels/process", HTTPTimeout: time.Second, MaxMediaBytes: 3 << 20},
		LocalStore:   config.LocalStoreConfig{Path: filepath.Join(t.TempDir(), "device.store"), Key: "passphrase"},
		Verification: config.VerificationConfig{DisplayDelay: time.Millisecond, PendingTTL: time.Hour},
		AuthRateLimit: config.RateLimitConfig{
			Requests: 10,
			Window:   time.Minute,
			Burst:    5,
		},
	}
}

func TestBuildDependencies(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps, err := buildDependencies(testAWSConfig(), testConfig(t), logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if deps.Flows == nil {
		t.Fatal("expected auth flow registry to be configured")
	}
	if deps.Device == nil {
		t.Fatal("expected device store to be configured")
	}
	if deps.Uploads == nil {
		t.Fatal("expected upload registry to be configured")
	}
	if deps.Callers == nil {
		t.Fatal("expected caller verification to be configured")
	}
	if deps.MaxUploadBody != maxNotifyBody(3<<20) {
		t.Fatalf("expected upload body limit %d got %d", maxNotifyBody(3<<20), deps.MaxUploadBody)
	}
	if deps.AuthLimiter == nil {
		t.Fatal("expected auth rate limiter to be configured")
	}

	first := deps.Flows.For("Chef_Ana")
	if first == nil {
		t.Fatal("expected a controller for a new identifier")
	}
	if deps.Flows.For("chef_ana") != first {
		t.Fatal("expected identifiers to share a controller regardless of case")
	}
	if deps.Flows.For("someone_else") == first {
		t.Fatal("expected distinct identifiers to get distinct controllers")
	}

	jobA, err := deps.Uploads.NewJob("user-a", upload.MediaImage, "a.jpg", "")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	jobB, err := deps.Uploads.NewJob("user-b", upload.MediaImage, "b.jpg", "")
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if jobA.OwnerID != "user-a" || jobB.OwnerID != "user-b" {
		t.Fatalf("expected jobs scoped to their owners got %q and %q", jobA.OwnerID, jobB.OwnerID)
	}
}

func TestBuildDependenciesRequiresLocalStoreKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.LocalStore.Key = ""

	_, err := buildDependencies(testAWSConfig(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if !errors.Is(err, localstore.ErrNoPassphrase) {
		t.Fatalf("expected ErrNoPassphrase, got %v", err)
	}
}

func TestBuildDependenciesRequiresClientID(t *testing.T) {
	cfg := testConfig(t)
	cfg.Identity.ClientID = ""

	if _, err := buildDependencies(testAWSConfig(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatal("expected an error without a client id")
	}
}

func TestBuildProcessorDependencies(t *testing.T) {
	cfg := testConfig(t)

	deps := buildProcessorDependencies(fakePool{}, fakeObjects{}, cfg)
	if deps.Processor == nil {
		t.Fatal("expected processor to be configured")
	}
	if deps.Reels == nil {
		t.Fatal("expected reel lister to be configured")
	}
	if want := int64(4<<20) + notifyEnvelopeBytes; deps.MaxBody != want {
		t.Fatalf("expected max body %d, got %d", want, deps.MaxBody)
	}
	check, ok := deps.Checks["database"]
	if !ok {
		t.Fatal("expected a database health check")
	}
	if err := check(context.Background()); err == nil {
		t.Fatal("expected the database check to surface the ping error")
	}
}

func TestMaxNotifyBodyUnlimited(t *testing.T) {
	if got := maxNotifyBody(0); got != 0 {
		t.Fatalf("expected no limit, got %d", got)
	}
}
