package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainsight/chainsight/internal/config"
	"github.com/chainsight/chainsight/internal/database"
	"github.com/chainsight/chainsight/internal/dataset"
	"github.com/chainsight/chainsight/internal/engine"
	"github.com/chainsight/chainsight/internal/modules/agent"
	"github.com/chainsight/chainsight/internal/modules/analytics"
	"github.com/chainsight/chainsight/internal/scheduler"
	"github.com/chainsight/chainsight/internal/server"
	fixtures "github.com/chainsight/chainsight/internal/testing"
	"github.com/chainsight/chainsight/pkg/logger"
)

// TTL for persisted analytics aggregates.
const cacheTTL = 6 * time.Hour

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{Level: "info"})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting ChainSight")

	// Initialize databases
	ordersDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "orders.db"),
		Profile: database.ProfileStandard,
		Name:    "orders",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize orders database")
	}
	defer ordersDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize cache database")
	}
	defer cacheDB.Close()

	// Run migrations
	if err := ordersDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate orders database")
	}
	if err := cacheDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate cache database")
	}

	repo := dataset.NewRepository(ordersDB, log)

	// A fresh dev environment gets a synthetic dataset so every endpoint
	// works out of the box.
	if cfg.DevMode {
		if err := seedIfEmpty(repo, log); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed dev dataset")
		}
	}

	// Initialize the analytics engine and train models
	cache := analytics.NewCache(cacheDB, cacheTTL, log)
	eng, err := engine.New(cfg, repo, cache, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize engine")
	}

	trainCtx, cancelTrain := context.WithTimeout(context.Background(), 10*time.Minute)
	if err := eng.TrainAll(trainCtx); err != nil {
		cancelTrain()
		log.Fatal().Err(err).Msg("Failed to train models")
	}
	cancelTrain()

	// Initialize the agent; without planner credentials it runs on the
	// rule-based fallback
	var planner agent.Planner
	if cfg.Planner.Configured() {
		planner = agent.NewOpenAIPlanner(cfg.Planner, log)
		log.Info().Str("model", cfg.Planner.Model).Msg("Remote planner configured")
	} else {
		log.Info().Msg("No planner configured, agent uses rule-based answers")
	}
	ag := agent.New(agent.NewRegistry(eng, log), planner, log)

	// Initialize scheduler and background jobs
	sched := scheduler.New(log)
	retrain := scheduler.NewRetrainJob(eng)
	if err := sched.AddJob(cfg.RetrainSchedule, retrain); err != nil {
		log.Fatal().Err(err).Msg("Failed to register retrain job")
	}
	if err := sched.AddJob("@hourly", scheduler.NewCachePurgeJob(cache)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cache purge job")
	}
	if err := sched.AddJob("0 30 3 * * *", scheduler.NewCheckpointJob(ordersDB, cacheDB)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register checkpoint job")
	}
	sched.Start()
	defer sched.Stop()

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:      cfg.Port,
		Log:       log,
		Engine:    eng,
		Agent:     ag,
		Scheduler: sched,
		Retrain:   retrain,
		DBs:       []*database.DB{ordersDB, cacheDB},
		Config:    cfg,
		DevMode:   cfg.DevMode,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// seedIfEmpty inserts a synthetic order history into an empty database.
func seedIfEmpty(repo *dataset.Repository, log zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	count, err := repo.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	records := fixtures.GenerateOrders(2000, time.Now().UnixNano())
	if err := repo.InsertBatch(ctx, records); err != nil {
		return err
	}

	log.Info().Int("records", len(records)).Msg("Seeded synthetic dev dataset")
	return nil
}
