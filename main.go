package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cyderes/activity-ingestion-service/internal/archive"
	"github.com/cyderes/activity-ingestion-service/internal/auth"
	"github.com/cyderes/activity-ingestion-service/internal/config"
	"github.com/cyderes/activity-ingestion-service/internal/ingesterr"
	"github.com/cyderes/activity-ingestion-service/internal/ingestion"
	"github.com/cyderes/activity-ingestion-service/internal/jobconfig"
	"github.com/cyderes/activity-ingestion-service/internal/logger"
	"github.com/cyderes/activity-ingestion-service/internal/models"
	"github.com/cyderes/activity-ingestion-service/internal/objstore"
	"github.com/cyderes/activity-ingestion-service/internal/server"
	"github.com/cyderes/activity-ingestion-service/internal/storage"
	"github.com/cyderes/activity-ingestion-service/internal/strava"
	"github.com/cyderes/activity-ingestion-service/internal/warehouse"
)

var version = "0.1.0"

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := config.NewViper()

	root := &cobra.Command{
		Use:          "activity-ingest",
		Short:        "Ingest Strava activities into BigQuery",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-encoding", "json", "log encoding (json, console)")
	_ = v.BindPFlag(config.KeyLogLevel, root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag(config.KeyLogEncoding, root.PersistentFlags().Lookup("log-encoding"))

	root.AddCommand(newRunCommand(v), newServeCommand(v), newVersionCommand())
	return root
}

func newRunCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a single ingestion run",
		Long: `Execute a single ingestion run. The trigger payload is the base64 encoding
of "load_new" (incremental, the default) or "load_all" (full reload).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := models.ParseTrigger(v.GetString(config.KeyTriggerPayload))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, v)
			if err != nil {
				return err
			}
			defer a.Close()

			_, err = a.service.Run(ctx, mode)
			return err
		},
	}
	cmd.Flags().String("payload", "", "base64 trigger payload (defaults to TRIGGER_PAYLOAD)")
	_ = v.BindPFlag(config.KeyTriggerPayload, cmd.Flags().Lookup("payload"))
	return cmd
}

func newServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve push triggers, run status and metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, v)
			if err != nil {
				return err
			}
			defer a.Close()

			httpServer := server.NewServer(a.cfg.Server, a.service, a.logger)

			errCh := make(chan error, 1)
			go func() {
				if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				a.logger.Info("shutdown signal received, gracefully shutting down")
			case err := <-errCh:
				a.logger.Error("HTTP server error", zap.Error(err))
				return err
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("HTTP server shutdown error", zap.Error(err))
				return err
			}
			a.logger.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().Int("port", 8080, "HTTP listen port (defaults to SERVER_PORT)")
	_ = v.BindPFlag(config.KeyServerPort, cmd.Flags().Lookup("port"))
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "activity-ingest v%s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// app holds the wired components of one process.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	objects objstore.Store
	ledger  storage.Storage
	service *ingestion.Service
}

func newApp(ctx context.Context, v *viper.Viper) (*app, error) {
	log, logErr := logger.New(config.LogConfig{
		Level:    v.GetString(config.KeyLogLevel),
		Encoding: v.GetString(config.KeyLogEncoding),
	})
	if logErr != nil {
		log, _ = logger.New(config.LogConfig{})
		log.Error("invalid log settings", zap.Error(logErr))
		_ = log.Sync()
		return nil, fmt.Errorf("failed to build logger: %w", logErr)
	}
	return buildApp(ctx, v, log)
}

// buildApp wires the process around log. Startup failures are logged with
// their kind and details before they are returned.
func buildApp(ctx context.Context, v *viper.Viper, log *zap.Logger) (*app, error) {
	cfg, err := config.FromViper(v)
	if err != nil {
		logStartupFailure(log, "failed to load configuration", err)
		_ = log.Sync()
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	objects, err := objstore.New(ctx, cfg.ObjectStore)
	if err != nil {
		logStartupFailure(log, "failed to initialize object store", err)
		return nil, err
	}

	ledger, err := storage.NewStorage(ctx, cfg.Storage)
	if err != nil {
		objects.Close()
		logStartupFailure(log, "failed to initialize storage", err)
		return nil, err
	}

	client := strava.NewClient(cfg.Source, log)
	service := ingestion.NewService(cfg.Ingestion, ingestion.Dependencies{
		Configs:   jobconfig.NewStore(objects, cfg.ObjectStore.ConfigFile, log),
		Refresher: auth.NewRefresher(cfg.Source, client.HTTPClient(), log),
		Fetcher: strava.NewFetcher(client, strava.FetcherOptions{
			PageSize: cfg.Source.PageSize,
			MaxPages: cfg.Source.MaxPages,
		}, log),
		Loader:   warehouse.NewBigQueryLoader(cfg.Warehouse, cfg.Ingestion.JobName, log),
		Archiver: archive.NewArchiver(objects, cfg.Ingestion.JobName, cfg.Archive, log),
		Ledger:   ledger,
	}, log)

	log.Info("initialized ingestion service",
		zap.String("job", cfg.Ingestion.JobName),
		zap.String("object_store", cfg.ObjectStore.Type),
		zap.String("bucket", cfg.ObjectStore.Bucket),
		zap.String("config_file", cfg.ObjectStore.ConfigFile),
		zap.String("storage", cfg.Storage.Type),
		zap.String("cursor_policy", cfg.Ingestion.CursorPolicy))

	return &app{
		cfg:     cfg,
		logger:  log,
		objects: objects,
		ledger:  ledger,
		service: service,
	}, nil
}

func logStartupFailure(log *zap.Logger, msg string, err error) {
	fields := []zap.Field{zap.Error(err), zap.String("error_kind", string(ingesterr.KindOf(err)))}
	if details := ingesterr.DetailsOf(err); len(details) > 0 {
		fields = append(fields, zap.Any("details", details))
	}
	log.Error(msg, fields...)
}

// Close releases the ledger and object store and flushes the logger.
func (a *app) Close() {
	if err := a.ledger.Close(); err != nil {
		a.logger.Warn("failed to close storage", zap.Error(err))
	}
	if err := a.objects.Close(); err != nil {
		a.logger.Warn("failed to close object store", zap.Error(err))
	}
	_ = a.logger.Sync()
}
