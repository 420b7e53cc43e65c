package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nursedesk/internal/api"
	"nursedesk/internal/cache"
	"nursedesk/internal/config"
	"nursedesk/internal/database"
	"nursedesk/internal/events"
	"nursedesk/internal/metrics"
	"nursedesk/internal/models"
	"nursedesk/internal/pgstore"
	"nursedesk/internal/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// backend is implemented by both the SQLite and PostgreSQL stores.
type backend interface {
	service.Store
	SyncRoster(ctx context.Context, people []models.Person) (int, error)
	ProvisionSlot(ctx context.Context, date, clock, actor string, at time.Time) (*models.Slot, error)
	Ping(ctx context.Context) error
	Close() error
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "json" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// openStore opens the configured store. The SQLite handle is also returned for backups.
func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (backend, *database.DB, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		store, err := pgstore.Open(ctx, cfg.Database.DSN, cfg.Database.MaxConns, cfg.Database.MinConns, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		db, err := database.NewDB(cfg.Database.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	}
}

func runServer(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	store, db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	logger.Info().Str("driver", cfg.Database.Driver).Msg("Store opened")

	if cfg.Roster.Path != "" {
		err := config.WatchRoster(ctx, cfg.Roster.Path, cfg.RosterWatchInterval(), func(r *config.Roster) {
			added, err := store.SyncRoster(ctx, r.Persons())
			if err != nil {
				logger.Error().Err(err).Msg("Roster sync failed")
				return
			}
			logger.Info().Int("added", added).Int("total", len(r.People)).Msg("Roster synced")
		})
		if err != nil {
			return fmt.Errorf("load roster: %w", err)
		}
	}

	var people service.PersonStore
	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		people = cache.NewPersonCache(store, rdb, cfg.PersonCacheTTL(), logger)
	}

	bus := events.NewEventBus(logger)
	metrics.Subscribe(bus)
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
	}

	svcs := service.New(store, bus, service.Options{
		Calendar:          service.Calendar{Location: loc},
		People:            people,
		EmergencySlotTime: cfg.Booking.EmergencySlotTime,
	}, logger)

	if db != nil && cfg.Backup.Enabled {
		go database.NewBackupService(db, cfg.Backup, cfg.BackupInterval(), logger).Start(ctx)
	}

	checks := []api.Check{{Name: "store", Ping: store.Ping}}
	if rdb != nil {
		checks = append(checks, api.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	go serveUntilDone(ctx, "health", &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Monitoring.HealthCheckPort),
		Handler: api.HealthHandler(checks...),
	}, 3*time.Second, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.NewHTTPServer(svcs, cfg.RateLimit, logger).Router(),
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	}
	logger.Info().Str("addr", srv.Addr).Msg("NurseDesk API started")
	if err := serveUntilDone(ctx, "api", srv, cfg.ShutdownTimeout(), logger); err != nil {
		return err
	}
	logger.Info().Msg("NurseDesk API stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	_ = serveUntilDone(ctx, "metrics", &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}, 3*time.Second, logger)
}

// serveUntilDone runs srv until ctx is cancelled, then shuts it down gracefully.
func serveUntilDone(ctx context.Context, name string, srv *http.Server, grace time.Duration, logger *zerolog.Logger) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Str("server", name).Msg("HTTP server error")
		return err
	}
	return nil
}
