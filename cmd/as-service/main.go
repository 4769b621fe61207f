package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"as-service/internal/auth"
	"as-service/internal/cache"
	"as-service/internal/config"
	"as-service/internal/db"
	"as-service/internal/events"
	httphandler "as-service/internal/http"
	"as-service/internal/http/middleware"
	"as-service/internal/logger"
	"as-service/internal/repository"
	"as-service/internal/service"
)

func main() {
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "failed to parse flags: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Environment)

	database, err := db.New(cfg, appLogger)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to connect database")
	}
	if cfg.MigrateOnly {
		appLogger.Info().Msg("migrations applied")
		return
	}

	redisClient := cache.NewRedisClient(cfg.Redis, appLogger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	dashboardCache := cache.NewDashboardCache(redisClient, cfg.Redis.DashboardCacheTTL, appLogger)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQP.URL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, appLogger)
		if err != nil {
			appLogger.Warn().Err(err).Msg("event publishing disabled")
		} else {
			defer amqpPublisher.Close()
			publisher = amqpPublisher
		}
	}

	loc := cfg.Location()
	repos := repository.NewRepositories(database)

	intakeService := service.NewIntakeService(repos, dashboardCache, publisher, appLogger)
	transitionService := service.NewTransitionService(repos, dashboardCache, publisher, appLogger, service.TransitionOptions{
		Strict:   cfg.Workflow.StrictTransitions,
		Location: loc,
	})
	costService := service.NewCostService(repos, publisher, appLogger)
	projectionService := service.NewProjectionService(repos, transitionService, costService, dashboardCache, appLogger)
	masterService := service.NewMasterService(repos, appLogger)
	dashboardService := service.NewDashboardService(repos.Ticket, dashboardCache, appLogger, loc, nil)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)

	handler := httphandler.NewHandler(
		intakeService,
		transitionService,
		costService,
		projectionService,
		masterService,
		dashboardService,
		appLogger,
	)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment, appLogger)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info().Str("addr", addr).Bool("strict_transitions", cfg.Workflow.StrictTransitions).Msg("starting as service")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error().Err(err).Msg("server forced to shutdown")
	}
	appLogger.Info().Msg("server stopped")
}
