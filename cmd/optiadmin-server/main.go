package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"optiadmin/internal/auth"
	"optiadmin/internal/config"
	"optiadmin/internal/jobs"
	"optiadmin/internal/metrics"
	"optiadmin/internal/service/scheduling"
	"optiadmin/internal/store/postgres"
	"optiadmin/internal/transport/httpapi"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "optiadmin-server"),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		log.Error("OPTIADMIN_JWT_SECRET is required")
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "optiadmin-server"),
	)
	slog.SetDefault(log)

	log.Info("starting", slog.String("http_addr", cfg.HTTPAddr), slog.String("log_level", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		os.Exit(1)
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}()

	if err := postgres.Migrate(ctx, db); err != nil {
		log.Error("migrations failed", slog.Any("err", err))
		os.Exit(1)
	}

	schedulingRepo := postgres.NewSchedulingRepo(db)
	customerRepo := postgres.NewCustomerRepo(db)
	statusRepo := postgres.NewStatusRepo(db)
	adminRepo := postgres.NewAdminRepo(db)

	schedulingSvc := scheduling.NewService(schedulingRepo, customerRepo, statusRepo, cfg.Policy, scheduling.SystemClock())
	authSvc := auth.NewService(adminRepo, cfg.JWTSecret, cfg.TokenTTL)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New("optiadmin-server")
	}

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Scheduling:     httpapi.NewSchedulingHandler(schedulingSvc, log, m),
		Auth:           httpapi.NewAuthHandler(authSvc, log),
		AuthMiddleware: authSvc.Middleware,
		Metrics:        m,
		RequestTimeout: cfg.RequestTimeout,
		Log:            log,
	})

	sweeper := jobs.NewSweeper(schedulingRepo, schedulingSvc, log, cfg.NoShowGrace, scheduling.SystemClock())
	cronRunner := cron.New()
	if err := sweeper.Register(cronRunner, cfg.SweepSchedule); err != nil {
		log.Error("cron registration failed", slog.Any("err", err), slog.String("schedule", cfg.SweepSchedule))
		os.Exit(1)
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("http server started", slog.String("http_addr", cfg.HTTPAddr))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdown(log, srv, cfg.ShutdownTimeout)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped with error", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func shutdown(log *slog.Logger, srv *http.Server, timeout time.Duration) {
	log.Info("shutting down http server", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("graceful shutdown timed out; forcing close", slog.Any("err", err))
		_ = srv.Close()
		return
	}
	log.Info("http server stopped")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
