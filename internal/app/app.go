// Package app assembles the pieces shared by the API and worker binaries.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/herd-api/internal/config"
	"github.com/jwalitptl/herd-api/internal/email"
	"github.com/jwalitptl/herd-api/internal/repository"
	"github.com/jwalitptl/herd-api/internal/repository/memory"
	"github.com/jwalitptl/herd-api/internal/repository/postgres"
	"github.com/jwalitptl/herd-api/pkg/clock"
	"github.com/jwalitptl/herd-api/pkg/logger"
	"github.com/jwalitptl/herd-api/pkg/metrics"
)

const MetricsNamespace = "herd"

// Stores groups the repositories for one backing store. DB is nil for the
// in-memory driver.
type Stores struct {
	Alerts          repository.AlertRepository
	Animals         repository.AnimalRepository
	Services        repository.ServiceRepository
	PregnancyChecks repository.PregnancyCheckRepository
	Users           repository.UserRepository
	DB              *sqlx.DB
}

// OpenStores connects to the configured driver and applies migrations when
// asked to.
func OpenStores(ctx context.Context, cfg config.DatabaseConfig, m *metrics.Metrics, log *logger.Logger) (*Stores, error) {
	switch cfg.Driver {
	case "memory":
		log.Warn("using in-memory store, data is lost on exit")
		s := memory.NewStore()
		return &Stores{
			Alerts:          s.Alerts(),
			Animals:         s.Animals(),
			Services:        s.Services(),
			PregnancyChecks: s.PregnancyChecks(),
			Users:           s.Users(),
		}, nil
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.MigrateOnStart {
			if err := postgres.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		base := postgres.NewBaseRepository(db, m)
		return &Stores{
			Alerts:          postgres.NewAlertRepository(base),
			Animals:         postgres.NewAnimalRepository(base),
			Services:        postgres.NewServiceRepository(base),
			PregnancyChecks: postgres.NewPregnancyCheckRepository(base),
			Users:           postgres.NewUserRepository(base),
			DB:              db,
		}, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func (s *Stores) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func NewLogger(cfg config.LogConfig) *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Level),
		Format: cfg.Format,
		Output: os.Stdout,
	})
}

// NewSender returns an SMTP sender, or a logging one when no relay is set.
func NewSender(cfg config.EmailConfig, log *logger.Logger) email.Sender {
	if cfg.Host == "" || cfg.FromAddress == "" {
		log.Warn("email relay not configured, emails will only be logged")
		return email.NewLogSender(log)
	}
	return email.NewSMTPSender(email.Config{
		Host:             cfg.Host,
		Port:             cfg.Port,
		Username:         cfg.Username,
		Password:         cfg.Password,
		FromAddress:      cfg.FromAddress,
		FromName:         cfg.FromName,
		UseSSL:           cfg.UseSSL,
		SendTimeout:      cfg.SendTimeout,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
	}, log)
}

// NewClock returns the clock that decides "today" for reminders and expiry.
func NewClock(cfg config.SchedulerConfig, log *logger.Logger) *clock.Zoned {
	clk := clock.NewZoned(cfg.TimeZone)
	if clk.Degraded() {
		log.Warn("time zone unavailable, using UTC calendar dates", "time_zone", cfg.TimeZone)
	}
	return clk
}
