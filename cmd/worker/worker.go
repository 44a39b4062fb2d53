package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fitcoach/config"
	"fitcoach/internal/cache"
	"fitcoach/internal/queue"
	"fitcoach/internal/repository"
	"fitcoach/pkg/logger"
	"fitcoach/pkg/otel"
	"fitcoach/storage"
	"fitcoach/storage/database"
)

func main() {
	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	cfg := config.Cfg

	if cfg.OTelEnabled {
		shutdown, err := otel.InitOpenTelemetry(ctx, otel.Config{
			ServiceName:    cfg.ServiceName + "-worker",
			ServiceVersion: cfg.Version,
			Environment:    cfg.Environment,
			OTLPEndpoint:   cfg.OTelEndpoint,
			SampleRatio:    cfg.OTelSampleRatio,
		})
		if err != nil {
			logger.Logger.Fatal("Failed to initialize OpenTelemetry", zap.Error(err))
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
			}
		}()
	}

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	// 完成事件在主库提交后发出，读主库避免副本延迟
	profiles := repository.NewProfileRepository(database.DB()).FromPrimary()
	completed := queue.NewOnboardingCompletedHandler(profiles, cache.Profiles, cache.MessageDeduper{})

	consumers := max(1, cfg.WorkerConsumers)
	logger.Logger.Info("Worker service starting",
		zap.String("service", cfg.ServiceName+"-worker"),
		zap.String("environment", cfg.Environment),
		zap.Int("consumers", consumers),
	)

	// 任一消费者退出时取消其余消费者
	g, gctx := errgroup.WithContext(ctx)
	for i := range consumers {
		g.Go(func() error {
			return queue.StartOnboardingCompletedConsumer(gctx, completed, i)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Logger.Error("Worker stopped with error", zap.Error(err))
	}

	logger.Logger.Info("Worker service shutting down gracefully")
}
