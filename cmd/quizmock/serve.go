package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/comfortablynumb/quizmock/internal/config"
	"github.com/comfortablynumb/quizmock/internal/integration"
	"github.com/comfortablynumb/quizmock/internal/loader"
	"github.com/comfortablynumb/quizmock/internal/models"
	"github.com/comfortablynumb/quizmock/internal/observability"
	"github.com/comfortablynumb/quizmock/internal/proxy"
	"github.com/comfortablynumb/quizmock/internal/recorder"
	"github.com/comfortablynumb/quizmock/internal/server"
	"github.com/comfortablynumb/quizmock/internal/store"
	"github.com/comfortablynumb/quizmock/internal/validator"
	"github.com/comfortablynumb/quizmock/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	servePort              int
	serveManifest          string
	serveProxyTarget       string
	serveProxyPreserveHost bool
	serveProxyTimeout      int
	serveDBPath            string
	serveWatch             bool
	serveRecord            bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the mocked backend over HTTP and WebSocket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cmd.Flags().Changed("db") {
			cfg.DBPath = serveDBPath
		}

		base, err := observability.NewZap(cfg.LogLevel, cfg.Environment != config.EnvProduction)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		log := observability.NewLogger(base, cfg.DebugLogging)
		defer log.Sync()

		shutdownTracing, err := observability.InitTracing("quizmock", cfg.OTLPEndpoint)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				log.L().Warn("Failed to flush traces", zap.Error(err))
			}
		}()

		manifest, err := loadManifest(serveManifest)
		if err != nil {
			return err
		}
		v, err := validator.NewValidator()
		if err != nil {
			return err
		}
		result := v.Validate(manifest)
		if !result.Valid {
			validator.PrintValidationResult(os.Stderr, result)
			return fmt.Errorf("manifest has %d errors", len(result.Errors))
		}
		for _, w := range result.Warnings {
			log.L().Warn("Manifest warning", zap.String("warning", w))
		}

		backend, err := proxy.NewTransport(proxy.Config{
			Target:       serveProxyTarget,
			PreserveHost: serveProxyPreserveHost,
			Timeout:      time.Duration(serveProxyTimeout) * time.Second,
		}, log)
		if err != nil {
			return err
		}

		rec := recorder.NewRecorder(backend)
		if serveRecord {
			rec.Start()
		}

		st, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck // cleanup operation

		integ, err := integration.New(cfg, st,
			integration.WithManifest(manifest),
			integration.WithFallback(rec),
			integration.WithLogger(log),
		)
		if err != nil {
			return err
		}
		defer func() {
			if err := integ.Close(); err != nil {
				log.L().Warn("Failed to close integration", zap.Error(err))
			}
		}()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := integ.Initialize(ctx); err != nil {
			return err
		}

		if serveManifest != "" && serveWatch {
			w, err := watcher.NewWatcher(serveManifest, func() error {
				return reloadManifest(ctx, integ, v, serveManifest)
			}, log)
			if err != nil {
				return err
			}
			defer w.Close() //nolint:errcheck // cleanup operation
			if err := w.Start(); err != nil {
				return err
			}
		}

		srv := server.New(integ, server.Options{Port: servePort, Log: log, Recorder: rec})
		log.L().Info("Starting quizmock",
			zap.String("environment", cfg.Environment),
			zap.String("mode", integ.Config().Mode),
			zap.Bool("enabled", integ.Config().Enabled),
			zap.String("proxy_target", serveProxyTarget),
			zap.String("db", cfg.DBPath))

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.L().Info("Shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

// reloadManifest swaps in the manifest file only when it validates
func reloadManifest(ctx context.Context, integ *integration.Integration, v *validator.Validator, path string) error {
	manifest, err := loadManifest(path)
	if err != nil {
		return err
	}
	if result := v.Validate(manifest); !result.Valid {
		return fmt.Errorf("manifest has %d errors: %s", len(result.Errors), strings.Join(result.Errors, "; "))
	}
	return integ.Reload(ctx, manifest)
}

// loadManifest reads the manifest file, or the built-in manifest when path is empty
func loadManifest(path string) (*models.Manifest, error) {
	if path == "" {
		return loader.Default()
	}
	return loader.NewLoader(path).Load()
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", getEnvInt("PORT", 8083), "HTTP server port")
	serveCmd.Flags().StringVar(&serveManifest, "manifest", getEnvString("MOCK_MANIFEST", ""), "Manifest YAML file (built-in manifest when empty)")
	serveCmd.Flags().StringVar(&serveProxyTarget, "proxy-target", getEnvString("PROXY_TARGET", ""), "Real backend for requests that are not mocked (e.g., 'http://api.example.com')")
	serveCmd.Flags().BoolVar(&serveProxyPreserveHost, "proxy-preserve-host", getEnvBool("PROXY_PRESERVE_HOST", false), "Preserve the original Host header when proxying")
	serveCmd.Flags().IntVar(&serveProxyTimeout, "proxy-timeout", getEnvInt("PROXY_TIMEOUT", 30), "Proxy request timeout in seconds")
	serveCmd.Flags().StringVar(&serveDBPath, "db", getEnvString("MOCK_DB_PATH", "quizmock.db"), "SQLite file for saved settings and the request log")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", getEnvBool("MOCK_WATCH", true), "Reload the manifest file when it changes")
	serveCmd.Flags().BoolVar(&serveRecord, "record", getEnvBool("MOCK_RECORD", false), "Record real backend responses from startup (export via /__mock/recording/manifest)")
	rootCmd.AddCommand(serveCmd)
}
