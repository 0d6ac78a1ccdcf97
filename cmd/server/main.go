package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-backoffice/config"
	"marketplace-backoffice/internal/api"
	"marketplace-backoffice/internal/auth"
	"marketplace-backoffice/internal/broker"
	"marketplace-backoffice/internal/rbac"
	"marketplace-backoffice/internal/redisclient"
	"marketplace-backoffice/internal/service"
	"marketplace-backoffice/internal/store"
	"marketplace-backoffice/internal/util"
	"marketplace-backoffice/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("starting marketplace back-office", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL, cfg.Database.MaxOpenConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("database connected")

	ctx := context.Background()
	if err := db.Migrate(ctx, logger); err != nil {
		logger.Fatal("failed to apply migrations", zap.Error(err))
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("redis connected")

	salesProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSales)
	defer salesProducer.Close()
	rolesProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRoles)
	defer rolesProducer.Close()
	logger.Info("kafka producers initialized")

	eventPublisher := broker.NewEventPublisher(salesProducer, rolesProducer)

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	resolver := rbac.NewResolver(db, redisClient, cfg.Redis.PermissionCacheTTL)

	services := api.Services{
		Users:      service.NewUserService(db, tokens),
		Roles:      service.NewRoleService(db, eventPublisher),
		Products:   service.NewProductService(db),
		Sales:      service.NewSaleService(db, eventPublisher, redisClient, cfg.Business.IdempotencyTTL),
		Deliveries: service.NewDeliveryService(db, eventPublisher, redisClient, cfg.Business.DeliveryLockTTL),
		Addresses:  service.NewAddressService(db),
		States:     service.NewStateService(db),
	}

	err = services.Users.EnsureOwner(ctx,
		cfg.Auth.BootstrapOwnerName, cfg.Auth.BootstrapOwnerEmail, cfg.Auth.BootstrapOwnerPassword)
	if err != nil {
		logger.Fatal("failed to bootstrap owner account", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	roleConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicRoles, cfg.Kafka.ConsumerGroup)
	cacheWorker := worker.NewPermissionCacheWorker(roleConsumer, db, resolver)
	go func() {
		if err := cacheWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("permission cache worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(services, api.NewGate(tokens, resolver), db)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := cacheWorker.Stop(); err != nil {
		logger.Warn("error stopping worker", zap.Error(err))
	}

	logger.Info("server exited")
}
