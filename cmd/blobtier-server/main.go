package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tendant/blobtier/pkg/blobtier/api"
	"github.com/tendant/blobtier/pkg/blobtier/config"
)

// ServerConfig holds the process-level settings. Storage and lifecycle
// settings are read by config.WithEnv under EnvPrefix.
type ServerConfig struct {
	Port            string        `env:"PORT" env-default:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" env-default:"info"`
	EnvPrefix       string        `env:"BLOBTIER_ENV_PREFIX" env-default:"BLOBTIER_"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" env-default:"60s"`
	// SweepInterval runs the availability check periodically when positive.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" env-default:"0s"`
}

func main() {
	var serverConfig ServerConfig
	if err := cleanenv.ReadEnv(&serverConfig); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}
	setupLogger(serverConfig.LogLevel)

	cfg, err := config.Load(config.WithEnv(serverConfig.EnvPrefix))
	if err != nil {
		slog.Error("Failed to load blobtier configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := cfg.Build(ctx)
	if err != nil {
		slog.Error("Failed to build runtime", "err", err)
		os.Exit(1)
	}
	defer rt.Close()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverConfig.Port),
		Handler: newRouter(rt, serverConfig),
	}

	go func() {
		slog.Info("blobtier server starting",
			"port", serverConfig.Port,
			"environment", cfg.Environment,
			"hot_storage", cfg.HotStorage.Type,
			"cold_storage", cfg.ColdStorage.Type,
			"database", cfg.DatabaseType,
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "err", err)
			stop()
		}
	}()

	if serverConfig.SweepInterval > 0 {
		go runSweeps(ctx, rt, serverConfig.SweepInterval)
	}

	<-ctx.Done()
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
	}
	slog.Info("Server exiting")
}

func setupLogger(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l})))
}

func newRouter(rt *config.Runtime, serverConfig ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(serverConfig.RequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.PlainText(w, r, http.StatusText(http.StatusOK))
	})
	if rt.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{}))
	}

	api.Mount(r, rt.Hot, rt.Service)
	return r
}

// runSweeps calls the availability check every interval until ctx is done.
func runSweeps(ctx context.Context, rt *config.Runtime, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rt.Service.CheckAvailability(ctx); err != nil {
				slog.Error("Availability check failed", "err", err)
			}
		}
	}
}
