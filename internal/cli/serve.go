package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Trojanku/claude-teams-dashboard/internal/bridge"
	"github.com/Trojanku/claude-teams-dashboard/internal/config"
	"github.com/Trojanku/claude-teams-dashboard/internal/httpapi"
	"github.com/Trojanku/claude-teams-dashboard/internal/hub"
	"github.com/Trojanku/claude-teams-dashboard/internal/liveness"
	"github.com/Trojanku/claude-teams-dashboard/internal/otel"
	"github.com/Trojanku/claude-teams-dashboard/internal/store"
	"github.com/Trojanku/claude-teams-dashboard/internal/watcher"
	"github.com/Trojanku/claude-teams-dashboard/pkg/models"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		mockData   bool
		teamsDir   string
		tasksDir   string
		corsOrigin string
		logLevel   string
		enableOtel bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("port") {
				cfg.Port = port
			}
			if flags.Changed("mock") {
				cfg.MockData = mockData
			}
			if flags.Changed("teams-dir") {
				cfg.TeamsDir = teamsDir
			}
			if flags.Changed("tasks-dir") {
				cfg.TasksDir = tasksDir
			}
			if flags.Changed("cors-origin") {
				cfg.CORSOrigin = corsOrigin
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("otel") {
				cfg.EnableOtel = enableOtel
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	cmd.Flags().IntVar(&port, "port", 3001, "Port to listen on")
	cmd.Flags().BoolVar(&mockData, "mock", false, "Serve the generated fixture dataset instead of reading from disk")
	cmd.Flags().StringVar(&teamsDir, "teams-dir", "", "Directory holding team config files")
	cmd.Flags().StringVar(&tasksDir, "tasks-dir", "", "Directory holding task files")
	cmd.Flags().StringVar(&corsOrigin, "cors-origin", "", "Allowed cross-origin caller")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	cmd.Flags().BoolVar(&enableOtel, "otel", true, "Enable OpenTelemetry metrics")

	return cmd
}

// serve runs the server in the foreground until ctx is cancelled.
func serve(ctx context.Context, cfg config.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	var st store.Store
	if cfg.MockData {
		st = store.NewMockStore()
	} else {
		st = store.NewFileStore(cfg.TeamsDir, cfg.TasksDir,
			store.WithProber(liveness.New()),
			store.WithLogger(logger),
		)
	}

	srvOpts := httpapi.ServerOptions{
		Addr:       fmt.Sprintf(":%d", cfg.Port),
		CORSOrigin: cfg.CORSOrigin,
		MockData:   cfg.MockData,
	}
	if cfg.EnableOtel {
		metricsHandler, err := otel.InitMeterProvider(ctx, "teams-dashboard")
		if err != nil {
			logger.Warn("otel init failed, metrics disabled", "error", err)
		} else {
			srvOpts.MetricsHandler = metricsHandler
			srvOpts.UseOtelHTTP = true
			_ = otel.InitMetricsWithTaskCount(ctx, func() (pending, inProgress, completed, deleted int64) {
				tasks, _ := st.ListAllTasks(context.Background())
				for _, t := range tasks {
					switch t.Status {
					case models.TaskPending:
						pending++
					case models.TaskInProgress:
						inProgress++
					case models.TaskCompleted:
						completed++
					case models.TaskDeleted:
						deleted++
					}
				}
				return pending, inProgress, completed, deleted
			})
		}
	}

	h := hub.NewHub(st,
		hub.WithLogger(logger),
		hub.WithAllowedOrigin(cfg.CORSOrigin),
	)
	app := httpapi.NewApp(st, h, srvOpts)

	// The watcher only runs against the real filesystem; in mock mode state
	// never changes behind the server's back.
	if !cfg.MockData {
		w := watcher.New(cfg.TeamsDir, cfg.TasksDir, watcher.WithLogger(logger))
		if err := w.Start(); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		defer func() { _ = w.Stop() }()
		go bridge.New(st, h, logger).Run(ctx, w.Events())
	}

	logger.Info("dashboard server starting",
		"addr", srvOpts.Addr,
		"mock", cfg.MockData,
		"teamsDir", cfg.TeamsDir,
		"tasksDir", cfg.TasksDir,
		"corsOrigin", cfg.CORSOrigin)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = app.Server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
