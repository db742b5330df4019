package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/recipereels/backend/internal/cloud"
	"github.com/recipereels/backend/internal/config"
	"github.com/recipereels/backend/internal/db"
	"github.com/recipereels/backend/internal/handlers"
	"github.com/recipereels/backend/internal/httpserver"
	"github.com/recipereels/backend/internal/logging"
	"github.com/recipereels/backend/internal/metrics"
	"github.com/recipereels/backend/internal/middleware"
	"github.com/recipereels/backend/internal/storage"
)

// Run bootstraps the Recipe Reels backend with the given command line.
func Run(ctx context.Context, args []string) error {
	root := newRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "recipereels",
		Short:         "Recipe Reels device gateway, processing function and migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the device gateway (auth flows and uploads)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "process",
		Short: "Run the processing function that stores and indexes reels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return process(cmd.Context())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:       "migrate [up|status]",
		Short:     "Apply or list reel index migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) > 0 {
				command = args[0]
			}
			return runMigrations(cmd.Context(), command)
		},
	})

	return root
}

func bootstrap() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := metrics.Register(nil); err != nil {
		return config.Config{}, nil, fmt.Errorf("register metrics: %w", err)
	}
	return cfg, logger, nil
}

func serve(ctx context.Context) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}

	awsCfg, err := cloud.Load(ctx, cfg.AWS)
	if err != nil {
		return err
	}

	deps, err := buildDependencies(awsCfg, cfg, logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps)
	handler := middleware.RequestLogger(logger)(mux)

	// an upload response waits for the transfer and the notify call
	srv := httpserver.New(cfg.AppPort, handler, cfg.Upload.HTTPTimeout*2)

	logger.Info("starting device gateway", "port", cfg.AppPort, "process_endpoint", cfg.Upload.ProcessEndpoint)
	return httpserver.Run(ctx, srv, logger)
}

func process(ctx context.Context) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}

	awsCfg, err := cloud.Load(ctx, cfg.AWS)
	if err != nil {
		return err
	}

	objects, err := storage.NewS3Storage(awsCfg, cfg.ObjectStore)
	if err != nil {
		return err
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	deps := buildProcessorDependencies(pool, objects, cfg)

	mux := http.NewServeMux()
	handlers.RegisterProcessorRoutes(mux, deps)
	handler := middleware.RequestLogger(logger)(mux)

	srv := httpserver.New(cfg.ProcessorPort, handler, cfg.Upload.HTTPTimeout)

	logger.Info("starting processing function", "port", cfg.ProcessorPort, "bucket", cfg.ObjectStore.Bucket)
	return httpserver.Run(ctx, srv, logger)
}
