package manager

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	api "github.com/oshokin/update-manager/internal/api/http/manager"
	"github.com/oshokin/update-manager/internal/config"
	"github.com/oshokin/update-manager/internal/logger"
	"github.com/oshokin/update-manager/internal/metrics"
	repository "github.com/oshokin/update-manager/internal/repository/status"
	"github.com/oshokin/update-manager/internal/runner"
)

// Options controls the update-manager process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the HTTP server.
	ListenAddress string
	// StateFile specifies the path to persist the update record JSON.
	StateFile string
}

// HTTP server hardening knobs.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 15 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Run starts the sidecar and blocks until the context is canceled or the
// server stops. Configuration is loaded first; command-line overrides win
// over file settings.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "update-manager")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	applyLogSettings(settings)

	if opts.StateFile != "" {
		settings.StateFile = opts.StateFile
	}

	listenAddress := settings.ListenAddress
	if opts.ListenAddress != "" {
		listenAddress = opts.ListenAddress
	}

	if settings.Secret == "" {
		logger.Warnf(ctx, "%s is not set, all update requests will be rejected", config.EnvSecret)
	}

	if err = metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// Initialize the record repository and the orchestrator. The record is
	// reconciled to idle before the listener starts accepting traffic.
	orchestrator, err := newOrchestrator(ctx, repository.NewFileRepository(settings.StateFile), runner.New(), settings)
	if err != nil {
		return fmt.Errorf("initialise orchestrator: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)

	server := &http.Server{
		Addr:              listenAddress,
		Handler:           api.NewServer(orchestrator, settings.Secret).Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.InfoKV(ctx, "Update manager listening",
		"listen_address", listenAddress,
		"state_file", settings.StateFile,
		"project_dir", settings.ProjectDir)

	// Done channel is closed after Shutdown finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WarnKV(ctx, "Forced shutdown", "error", err)
			_ = server.Close()
		}

		close(done)
	}()

	if err = server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve HTTP: %w", err)
	}

	<-done
	logger.Info(ctx, "HTTP server stopped")

	return nil
}

// applyLogSettings configures the global logger from the loaded settings.
func applyLogSettings(settings *config.Config) {
	if level, ok := logger.ParseLogLevel(settings.LogLevel); ok {
		logger.SetLevel(level)
	}

	if settings.LogFile != "" {
		// nil level: the file logger follows the package-wide atomic level.
		logger.SetLogger(logger.NewWithFile(nil, logger.FileRotation{Path: settings.LogFile}))
	}
}
