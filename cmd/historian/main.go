// cmd/historian is an asynchronous historian service that pops match actions from
// a Redis queue and persists them to PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/examarena/internal/cache"
	"github.com/jason-s-yu/examarena/internal/config"
	"github.com/jason-s-yu/examarena/internal/database"
	"github.com/jason-s-yu/examarena/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.ConnectDB(ctx); err != nil {
		logger.Fatalf("database connection failed: %v", err)
	}
	defer database.Close()
	if err := database.Migrate(ctx); err != nil {
		logger.Fatalf("migration failed: %v", err)
	}

	rdb, err := cache.ConnectRedis()
	if err != nil {
		logger.Fatalf("redis connection failed: %v", err)
	}
	defer rdb.Close()

	pub := cache.NewPublisher(rdb)
	hcfg := historian.DefaultConfig()
	hcfg.QueueName = pub.QueueName
	hcfg.Channel = pub.Channel
	hcfg.BatchSize = cfg.HistorianBatchSize
	hcfg.FlushInterval = cfg.HistorianFlush
	hcfg.AbandonAfter = cfg.MatchAbandonAfter

	svc := historian.New(rdb, database.HistorianStore{}, hcfg, logger)
	if err := svc.Run(ctx); err != nil {
		logger.Errorf("historian stopped: %v", err)
		os.Exit(1)
	}
	logger.Info("historian shutdown complete")
}
