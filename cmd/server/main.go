package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/diewo77/ejaar/internal/backend"
	"github.com/diewo77/ejaar/internal/config"
	"github.com/diewo77/ejaar/internal/db"
	"github.com/diewo77/ejaar/internal/logging"
	"github.com/diewo77/ejaar/internal/session"
)

var (
	migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")
	seedOnlyFlag    = flag.Bool("seed-only", false, "Run DB seed and exit")
)

func main() {
	flag.Parse()

	// Load environment variables from .env file
	_ = godotenv.Load()

	// Load configuration from environment
	cfg := config.Load()
	log := logging.New(cfg.App.LogLevel, cfg.App.LogFormat, os.Stderr)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	dbConn, err := db.Open(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}

	// Handle migrate-only flag
	if *migrateOnlyFlag {
		if err := migrate(cfg, dbConn); err != nil {
			log.WithError(err).Fatal("migration failed")
		}
		log.Info("migrations completed successfully")
		return
	}

	// Handle seed-only flag
	if *seedOnlyFlag {
		if err := db.Seed(dbConn); err != nil {
			log.WithError(err).Fatal("seeding failed")
		}
		log.Info("seeding completed successfully")
		return
	}

	// Run migrations on startup if enabled
	if cfg.App.Migrations {
		if err := migrate(cfg, dbConn); err != nil {
			log.WithError(err).Fatal("migration failed")
		}
		log.Info("migrations completed")
	}

	// Seed default data (profiles, permissions)
	if err := db.Seed(dbConn); err != nil {
		log.WithError(err).Fatal("seeding failed")
	}

	be, err := backend.New(cfg.Backend.BaseURL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithRateLimit(cfg.Backend.RateLimit, cfg.Backend.Burst),
		backend.WithLogger(log),
	)
	if err != nil {
		log.WithError(err).Fatal("invalid backend configuration")
	}

	app, err := NewApp(cfg, dbConn, be, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build application")
	}

	janitor, err := newJanitor(cfg, app, log)
	if err != nil {
		log.WithError(err).Fatal("failed to schedule jobs")
	}
	janitor.Start()

	// Create server with config timeouts
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.WithFields(logrus.Fields{"port": cfg.Server.Port, "dev": cfg.App.Dev, "backend": cfg.Backend.BaseURL}).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("error during shutdown")
	}
	janitor.Stop(ctx)
	log.Info("server stopped gracefully")
}

// migrate applies the SQL migrations on postgres and AutoMigrate on sqlite.
func migrate(cfg *config.Config, dbConn *gorm.DB) error {
	if cfg.Database.Driver == "postgres" {
		return db.MigrateSQL(dbConn, cfg.Database.URL())
	}
	return db.Migrate(dbConn)
}

// newJanitor schedules the session purge and the login limiter cleanup.
func newJanitor(cfg *config.Config, app *App, log *logrus.Logger) (*session.Janitor, error) {
	j := session.NewJanitor(log)
	if err := j.Add(cfg.Session.PurgeSchedule, "session-purge", session.PurgeJob(app.sessions, log)); err != nil {
		return nil, err
	}
	err := j.Add("@every 10m", "login-limiter-cleanup", func(context.Context) error {
		if n := app.limiter.Cleanup(); n > 0 {
			log.WithField("removed", n).Debug("login limiter cleaned")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return j, nil
}
