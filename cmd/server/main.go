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

	"go.uber.org/zap"

	"water-anomaly-monitor/internal/analytics"
	"water-anomaly-monitor/internal/cache"
	"water-anomaly-monitor/internal/collector"
	"water-anomaly-monitor/internal/config"
	"water-anomaly-monitor/internal/generator"
	"water-anomaly-monitor/internal/handlers"
	"water-anomaly-monitor/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting water sensor anomaly service...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Артефакты модели обязательны: без них сервис не стартует
	scorer, err := analytics.LoadScorer(ctx, analytics.NewArtifactFetcher(cfg.AWSRegion), cfg.ScalerPath, cfg.ModelPath)
	if err != nil {
		log.Fatal("Failed to load model artifacts",
			zap.String("scaler", cfg.ScalerPath),
			zap.String("model", cfg.ModelPath),
			zap.Error(err))
	}
	log.Info("Model artifacts loaded", zap.String("scaler", cfg.ScalerPath), zap.String("model", cfg.ModelPath))

	gen, err := generator.NewGenerator(generator.DefaultTable, cfg.StartDate, cfg.RandomSeed)
	if err != nil {
		log.Fatal("Invalid feature statistics", zap.Error(err))
	}

	opts := []collector.Option{collector.WithLogger(log.Named("collector"))}
	var mirror handlers.Mirror

	// Инициализация Redis
	if cfg.RedisEnabled() {
		redisCache, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ReadingsRetention)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer redisCache.Close()

		opts = append(opts, collector.WithSink(redisCache))
		mirror = redisCache
		log.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
	}

	coll := collector.NewCollector(gen, scorer, cfg.CollectInterval, opts...)
	coll.Start(ctx)

	handler := handlers.NewHandler(coll, mirror, log.Named("http"))

	// HTTP сервер
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handlers.NewRouter(handler, cfg.CORSAllowedOrigins),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server error", zap.Error(err))
		}
	}()

	// Ожидание сигнала завершения
	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	select {
	case <-coll.Done():
	case <-shutdownCtx.Done():
	}

	log.Info("Server stopped gracefully")
}
