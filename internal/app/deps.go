package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/recipereels/backend/internal/authflow"
	"github.com/recipereels/backend/internal/config"
	"github.com/recipereels/backend/internal/db"
	"github.com/recipereels/backend/internal/handlers"
	"github.com/recipereels/backend/internal/identity"
	"github.com/recipereels/backend/internal/localstore"
	"github.com/recipereels/backend/internal/middleware"
	"github.com/recipereels/backend/internal/processor"
	"github.com/recipereels/backend/internal/repositories"
	"github.com/recipereels/backend/internal/storage"
	"github.com/recipereels/backend/internal/upload"
)

const (
	authFlowTTL    = 30 * time.Minute
	uploadTTL      = 30 * time.Minute
	callerTTL      = 5 * time.Minute
	rateLimiterTTL = 10 * time.Minute
	// JSON framing around the base64 media in a notify body.
	notifyEnvelopeBytes = 64 << 10
)

// buildDependencies wires together concrete implementations used by the device
// gateway handlers.
func buildDependencies(awsCfg aws.Config, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, error) {
	provider, err := identity.NewCognitoProvider(awsCfg, cfg.Identity)
	if err != nil {
		return handlers.Dependencies{}, err
	}

	flows := authflow.NewRegistry(func() authflow.Authenticator {
		return identity.NewSession(provider).WithLogger(logger)
	}, authflow.Options{
		DisplayDelay: cfg.Verification.DisplayDelay,
		Pending:      authflow.NewPendingCache(cfg.Verification.PendingTTL),
	}, authFlowTTL)

	local, err := localstore.Open(cfg.LocalStore.Path, cfg.LocalStore.Key)
	if err != nil {
		return handlers.Dependencies{}, fmt.Errorf("open local store: %w", err)
	}

	objects, err := storage.NewS3Storage(awsCfg, cfg.ObjectStore)
	if err != nil {
		return handlers.Dependencies{}, err
	}

	uploads := upload.NewRegistry(objects, upload.Options{
		HTTPClient:      &http.Client{Timeout: cfg.Upload.HTTPTimeout},
		ProcessEndpoint: cfg.Upload.ProcessEndpoint,
		MaxMediaBytes:   cfg.Upload.MaxMediaBytes,
		MediaRoot:       cfg.Upload.MediaRoot,
		OnStatus: func(job upload.Job) {
			logger.Debug("upload status changed", "job_id", job.ID, "owner_id", job.OwnerID, "key", job.DestinationKey, "status", job.Status.String())
		},
	}, uploadTTL)

	return handlers.Dependencies{
		Flows:         flows,
		Device:        local,
		Callers:       identity.NewCallers(provider, callerTTL),
		Uploads:       uploads,
		MaxUploadBody: maxNotifyBody(cfg.Upload.MaxMediaBytes),
		AuthLimiter:   middleware.NewIPRateLimiter(cfg.AuthRateLimit.Requests, cfg.AuthRateLimit.Window, cfg.AuthRateLimit.Burst, rateLimiterTTL),
	}, nil
}

// buildProcessorDependencies wires the processing function onto the reel index and
// the object store.
func buildProcessorDependencies(pool db.Pool, objects processor.ObjectStore, cfg config.Config) handlers.ProcessorDependencies {
	reels := repositories.NewPostgresReelRepository(pool)
	return handlers.ProcessorDependencies{
		Processor: processor.New(objects, reels, cfg.Upload.MaxMediaBytes),
		Reels:     reels,
		MaxBody:   maxNotifyBody(cfg.Upload.MaxMediaBytes),
		Checks: map[string]handlers.HealthCheck{
			"database": pool.Ping,
		},
	}
}

// maxNotifyBody bounds a notify body carrying maxMedia bytes as base64.
func maxNotifyBody(maxMedia int64) int64 {
	if maxMedia <= 0 {
		return 0
	}
	return (maxMedia+2)/3*4 + notifyEnvelopeBytes
}
