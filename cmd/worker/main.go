package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/datacloud-project/orchestrator/internal/queue"
	"github.com/datacloud-project/orchestrator/internal/queue/tasks"
	"github.com/datacloud-project/orchestrator/internal/repository"
	"github.com/datacloud-project/orchestrator/pkg/config"
	"github.com/datacloud-project/orchestrator/pkg/database"
	"github.com/datacloud-project/orchestrator/pkg/logger"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}
	_ = rdb.Close()

	db, err := database.Open(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer func() { _ = database.Close(db) }()

	deploymentRepo := repository.NewDeploymentRepository(db)
	resourceRepo := repository.NewResourceRepository(db)
	handler := tasks.NewDeploymentTaskHandler(deploymentRepo, resourceRepo)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword},
		asynq.Config{Concurrency: cfg.AsynqConcurrency},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeDeploymentCreate, handler.HandleCreate)
	mux.HandleFunc(queue.TypeDeploymentDelete, handler.HandleDelete)

	errCh := make(chan error, 1)
	go func() {
		log.Info("worker starting", zap.Int("concurrency", cfg.AsynqConcurrency))
		if err := srv.Run(mux); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("worker stopped with error", zap.Error(err))
	}

	srv.Shutdown()
}
