package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/herd-api/internal/app"
	"github.com/jwalitptl/herd-api/internal/config"
	"github.com/jwalitptl/herd-api/internal/email"
	"github.com/jwalitptl/herd-api/internal/handler/health"
	promhandler "github.com/jwalitptl/herd-api/internal/handler/prometheus"
	"github.com/jwalitptl/herd-api/internal/service/alert"
	"github.com/jwalitptl/herd-api/internal/worker"
	"github.com/jwalitptl/herd-api/pkg/logger"
	"github.com/jwalitptl/herd-api/pkg/messaging/redis"
	"github.com/jwalitptl/herd-api/pkg/metrics"
)

// deps holds everything a worker command needs. close releases it in
// reverse order of acquisition.
type deps struct {
	cfg       *config.Config
	log       *logger.Logger
	registry  *prometheus.Registry
	stores    *app.Stores
	scheduler *worker.ReminderScheduler
	sweeper   *worker.ExpirySweeper
	closers   []func() error
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.log.Warn("Failed to close resource", "error", err.Error())
		}
	}
}

func setup(ctx context.Context, configPath string) (*deps, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	d := &deps{cfg: cfg, log: app.NewLogger(cfg.Log), registry: prometheus.NewRegistry()}
	d.registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(app.MetricsNamespace, d.registry)

	d.stores, err = app.OpenStores(ctx, cfg.Database, m, d.log)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, d.stores.Close)

	clk := app.NewClock(cfg.Scheduler, d.log)
	d.scheduler = worker.NewReminderScheduler(
		d.stores.Alerts,
		email.NewRecipientResolver(d.stores.Users, cfg.Email.RecipientCacheTTL),
		app.NewSender(cfg.Email, d.log),
		clk,
		worker.ReminderSchedulerConfig{
			PollInterval: cfg.Scheduler.PollInterval,
			Concurrency:  cfg.Scheduler.Concurrency,
			DefaultTo:    cfg.Email.DefaultTo,
			LockKey:      cfg.Scheduler.LockKey,
			LockTTL:      cfg.Scheduler.LockTTL,
		},
		d.log,
		m,
	)
	d.sweeper = worker.NewExpirySweeper(
		alert.NewEngine(d.stores.Alerts, clk, d.log, m),
		clk,
		cfg.Scheduler.ExpiryInterval,
		d.log,
	)

	if cfg.Redis.Enabled() {
		broker, err := redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig(), d.log.Zerolog())
		if err != nil {
			d.log.Error(err, "Redis unavailable, running without cycle lock")
		} else {
			d.closers = append(d.closers, broker.Close)
			d.scheduler.WithLocker(broker).WithPublisher(broker)
		}
	}

	return d, nil
}

func runCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the reminder scheduler and expiry sweeper until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer d.close()

			srv := healthServer(d)
			go func() {
				d.log.Info("Starting worker health server", "port", d.cfg.Worker.HealthPort)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					d.log.Error(err, "Worker health server failed")
				}
			}()

			var wg sync.WaitGroup
			if d.cfg.Scheduler.Enabled {
				wg.Add(1)
				go func() {
					defer wg.Done()
					d.scheduler.Start(ctx)
				}()
			} else {
				d.log.Warn("Reminder scheduler disabled, only expiring alerts")
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				d.sweeper.Start(ctx)
			}()

			<-ctx.Done()
			d.log.Info("Shutting down worker...")
			wg.Wait()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func onceCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single reminder cycle, print its report and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer d.close()

			expired, err := d.sweeper.Sweep(ctx)
			if err != nil {
				return err
			}
			d.log.Info("Expired past-due alerts", "count", expired)

			report, err := d.scheduler.RunOnce(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

func healthServer(d *deps) *http.Server {
	var pinger health.Pinger
	if d.stores.DB != nil {
		pinger = d.stores.DB
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	health.NewHandler(pinger).RegisterRoutes(engine)
	engine.GET("/metrics", promhandler.New(d.registry).Handler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", d.cfg.Worker.HealthPort),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
