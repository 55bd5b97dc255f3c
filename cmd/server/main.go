// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/examarena/internal/auth"
	"github.com/jason-s-yu/examarena/internal/cache"
	"github.com/jason-s-yu/examarena/internal/config"
	"github.com/jason-s-yu/examarena/internal/database"
	"github.com/jason-s-yu/examarena/internal/game"
	"github.com/jason-s-yu/examarena/internal/handlers"
	"github.com/jason-s-yu/examarena/internal/matchmaking"
	"github.com/jason-s-yu/examarena/internal/tasks"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	logger := cfg.NewLogger()

	if err := auth.Init(); err != nil {
		logger.Fatalf("auth init failed: %v", err)
	}
	if err := auth.ConfigureHashing(cfg.Argon2MemoryKiB, cfg.Argon2Iterations); err != nil {
		logger.Fatalf("invalid password hashing settings: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.ConnectDB(ctx); err != nil {
		logger.Fatalf("database connection failed: %v", err)
	}
	defer database.Close()
	if err := database.Migrate(ctx); err != nil {
		logger.Fatalf("migration failed: %v", err)
	}

	// Redis carries the action log to the historian. Without it matches still run.
	var actions game.ActionSink
	if rdb, err := cache.ConnectRedis(); err != nil {
		logger.Warnf("redis unavailable, match actions will not be recorded: %v", err)
	} else {
		defer rdb.Close()
		actions = cache.NewPublisher(rdb)
	}

	var provider tasks.Provider = database.TaskProvider{}
	if cfg.TaskBankFile != "" {
		bank, err := tasks.LoadBank(cfg.TaskBankFile)
		if err != nil {
			logger.Fatalf("failed to load task bank: %v", err)
		}
		provider = bank
		logger.Infof("serving tasks from %s", cfg.TaskBankFile)
	}

	queue := matchmaking.NewQueue()
	queue.MaxRatingGap = cfg.MaxRatingGap

	matchCfg := game.DefaultMatchConfig()
	matchCfg.Duration = cfg.MatchSeconds
	matchCfg.K = cfg.EloK
	matchCfg.ForfeitAfter = cfg.DisconnectForfeit
	matchCfg.JoinTimeout = cfg.MatchJoinTimeout

	trainingCfg := game.DefaultTrainingConfig()
	trainingCfg.LapSeconds = cfg.TrainingSeconds
	trainingCfg.Grace = cfg.TrainingGrace

	hub := game.NewHub(game.NewDirectory(), queue, database.NewStore(), provider, actions, game.HubConfig{
		Match:    matchCfg,
		Training: trainingCfg,
	}, logger)

	accounts := &database.Accounts{DefaultRating: cfg.DefaultRating}
	srv := handlers.NewServer(hub, provider, accounts, logger, cfg.AllowedOrigins)

	addr := "localhost:" + cfg.Port
	if cfg.IsProduction() {
		// bind to all hosts in production mode
		addr = ":" + cfg.Port
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handlers.NewRouter(srv, cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		matches, trainings, conns := hub.Dir.Counts()
		logger.WithFields(logrus.Fields{
			"matches":     matches,
			"trainings":   trainings,
			"connections": conns,
		}).Info("shutting down")
		// http.Server.Shutdown does not touch hijacked websocket connections.
		srv.CloseConnections()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("server stopped: %v", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
