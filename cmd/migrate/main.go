package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

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

	db, err := database.Open(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer func() { _ = database.Close(db) }()

	if err := runMigrations(db); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	fmt.Fprintln(os.Stdout, "migrations completed")
}
