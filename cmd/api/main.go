package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/herd-api/internal/app"
	"github.com/jwalitptl/herd-api/internal/config"
	"github.com/jwalitptl/herd-api/internal/email"
	alertHandler "github.com/jwalitptl/herd-api/internal/handler/alert"
	animalHandler "github.com/jwalitptl/herd-api/internal/handler/animal"
	breedingHandler "github.com/jwalitptl/herd-api/internal/handler/breeding"
	"github.com/jwalitptl/herd-api/internal/handler/health"
	promhandler "github.com/jwalitptl/herd-api/internal/handler/prometheus"
	"github.com/jwalitptl/herd-api/internal/middleware"
	"github.com/jwalitptl/herd-api/internal/router"
	alertService "github.com/jwalitptl/herd-api/internal/service/alert"
	animalService "github.com/jwalitptl/herd-api/internal/service/animal"
	breedingService "github.com/jwalitptl/herd-api/internal/service/breeding"
	"github.com/jwalitptl/herd-api/pkg/auth"
	"github.com/jwalitptl/herd-api/pkg/metrics"

	_ "time/tzdata"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := app.NewLogger(cfg.Log)
	if err := cfg.ValidateAPI(); err != nil {
		log.Fatal(err, "invalid configuration")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(app.MetricsNamespace, registry)

	// Initialize stores
	ctx := context.Background()
	stores, err := app.OpenStores(ctx, cfg.Database, m, log)
	if err != nil {
		log.Fatal(err, "failed to open store")
	}
	defer stores.Close()

	clk := app.NewClock(cfg.Scheduler, log)
	sender := app.NewSender(cfg.Email, log)
	resolver := email.NewRecipientResolver(stores.Users, cfg.Email.RecipientCacheTTL)

	// Initialize services
	alertSvc := alertService.NewService(stores.Alerts, stores.Animals, sender, resolver, clk, log, m)
	breedingSvc := breedingService.NewService(stores.Animals, stores.Services, stores.PregnancyChecks, alertSvc, log)
	animalSvc := animalService.NewService(stores.Animals, log)

	// Initialize handlers
	if err := middleware.RegisterValidators(); err != nil {
		log.Fatal(err, "failed to register validators")
	}
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)

	var pinger health.Pinger
	if stores.DB != nil {
		pinger = stores.DB
	}

	r := router.NewRouter(
		middleware.NewAuthMiddleware(jwtSvc),
		health.NewHandler(pinger),
		promhandler.New(registry),
		log,
		router.RouterConfig{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
		},
		alertHandler.NewHandler(alertSvc),
		breedingHandler.NewHandler(breedingSvc),
		animalHandler.NewHandler(animalSvc),
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting server", "port", cfg.Server.Port, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "server forced to shutdown")
	}

	log.Info("server exited properly")
}
