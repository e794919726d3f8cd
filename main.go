package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/JustinHardison/ai-trading-system-sub004/config"
	"github.com/JustinHardison/ai-trading-system-sub004/internal/api"
	"github.com/JustinHardison/ai-trading-system-sub004/internal/database"
	"github.com/JustinHardison/ai-trading-system-sub004/internal/engine"
	"github.com/JustinHardison/ai-trading-system-sub004/internal/events"
	"github.com/JustinHardison/ai-trading-system-sub004/internal/feed"
	"github.com/JustinHardison/ai-trading-system-sub004/internal/runner"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := newLogger(cfg.LoggingConfig)
	logger.Info().Msg("Structured logging initialized")

	// Initialize event bus
	eventBus := events.NewEventBus()
	logger.Info().Msg("Event bus initialized")

	// Initialize PostgreSQL persistence
	var db *database.DB
	var thresholdRepo *database.ThresholdRepository
	var decisionRepo *database.DecisionRepository
	if cfg.DatabaseConfig.Enabled {
		db, err = database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		})
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.RunMigrations(migrateCtx); err != nil {
			cancel()
			log.Fatalf("Failed to run migrations: %v", err)
		}
		cancel()

		thresholdRepo = database.NewThresholdRepository(db)
		decisionRepo = database.NewDecisionRepository(db)
	} else {
		logger.Warn().Msg("Database disabled, decisions and thresholds will not be persisted")
	}

	// Initialize Redis for the context feed and shared threshold state
	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		})
	}
	redisThresholds := database.NewRedisThresholdStateRepository(redisClient)

	// Initialize the decision engine
	eng := engine.New(cfg, logger)

	// Restore adaptive threshold state: the database is the source of truth,
	// the Redis mirror covers database-less deployments
	restoreCtx, cancelRestore := context.WithTimeout(context.Background(), 10*time.Second)
	restoreThresholds(restoreCtx, eng, thresholdRepo, redisThresholds, cfg, logger)
	cancelRestore()

	// Persist and broadcast every threshold adjustment
	eng.Thresholds().OnAdjust(func(class engine.InstrumentClass, old, updated, winRate float64) {
		eventBus.PublishThresholdAdjusted(string(class), old, updated, winRate)
		persistThresholds(eng, thresholdRepo, redisThresholds, cfg, logger)
	})

	// Drop the persisted mirrors on operator reset; otherwise a restart or a
	// standby instance restores the discarded learned threshold
	eng.Thresholds().OnReset(func(class engine.InstrumentClass) {
		resetCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if thresholdRepo != nil {
			if err := thresholdRepo.DeleteState(resetCtx, class); err != nil {
				logger.Error().Err(err).Str("class", string(class)).Msg("Failed to delete persisted threshold state")
			}
		}
		if err := redisThresholds.DeleteState(resetCtx, class); err != nil {
			logger.Error().Err(err).Str("class", string(class)).Msg("Failed to delete Redis threshold state")
		}
	})

	// Journal and broadcast every finalized decision
	eng.OnDecision(func(d engine.Decision) {
		eventBus.PublishDecision(d.ID, d.Instrument, string(d.Action), d.Reason, d.QualityScore, d.Confidence)
		if d.BudgetForced {
			eventBus.PublishBudgetViolation(d.Instrument, string(d.Action), d.Reason)
		}
		if cfg.EngineConfig.JournalDecisions && decisionRepo != nil {
			journalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := decisionRepo.SaveDecision(journalCtx, &d); err != nil {
				logger.Error().Err(err).Str("decision_id", d.ID).Msg("Failed to journal decision")
			}
		}
	})

	// Mirror every recorded outcome
	eng.OnOutcome(func(class engine.InstrumentClass, win bool, profitFactor float64) {
		eventBus.PublishTradeClosed(string(class), win, profitFactor)
		if thresholdRepo != nil {
			outcomeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			outcome := engine.Outcome{Win: win, ProfitFactor: profitFactor, ClosedAt: time.Now()}
			if err := thresholdRepo.RecordOutcome(outcomeCtx, class, outcome); err != nil {
				logger.Error().Err(err).Msg("Failed to record trade outcome")
			}
		}
	})

	// Shutdown on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The decision loop needs the Redis context feed; without it the process
	// serves the operator API over restored state only
	run := runner.New(cfg.EngineConfig, eng, nil, nil, eventBus, logger)
	if redisClient != nil {
		provider := feed.NewRedisContextProvider(redisClient, logger)
		applier := feed.NewRedisDecisionApplier(redisClient, logger)
		run = runner.New(cfg.EngineConfig, eng, provider, applier, eventBus, logger)

		go func() {
			if err := run.Run(ctx); err != nil && err != context.Canceled {
				logger.Error().Err(err).Msg("Runner exited with error")
			}
		}()
	} else {
		logger.Warn().Msg("Redis disabled, decision loop not started (operator API only)")
	}

	// Operator API server
	if cfg.ServerConfig.Enabled {
		server := api.NewServer(api.ServerConfig{
			Port:            cfg.ServerConfig.Port,
			Host:            cfg.ServerConfig.Host,
			AllowedOrigins:  api.ParseOrigins(cfg.ServerConfig.AllowedOrigins),
			ProductionMode:  cfg.LoggingConfig.Level != "debug",
			ReadTimeout:     time.Duration(cfg.ServerConfig.ReadTimeout) * time.Second,
			WriteTimeout:    time.Duration(cfg.ServerConfig.WriteTimeout) * time.Second,
			ShutdownTimeout: time.Duration(cfg.ServerConfig.ShutdownTimeout) * time.Second,
		}, run, decisionRepo, redisThresholds, eventBus, logger)

		go func() {
			if err := server.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("API server exited with error")
			}
		}()
	}

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received")

	// Final threshold snapshot so learned state survives the restart
	persistThresholds(eng, thresholdRepo, redisThresholds, cfg, logger)
	logger.Info().Msg("Shutdown complete")
}

// newLogger builds the process logger from configuration
func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// restoreThresholds loads persisted threshold state into the controller
func restoreThresholds(
	ctx context.Context,
	eng *engine.Engine,
	repo *database.ThresholdRepository,
	redisRepo *database.RedisThresholdStateRepository,
	cfg *config.Config,
	logger zerolog.Logger,
) {
	if !cfg.EngineConfig.PersistThresholds {
		return
	}

	if repo != nil {
		snapshot, err := repo.LoadSnapshot(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to load threshold state from database")
		} else if len(snapshot) > 0 {
			eng.Thresholds().Restore(snapshot)
			logger.Info().Int("classes", len(snapshot)).Msg("Threshold state restored from database")
			return
		}
	}

	snapshot, err := redisRepo.LoadSnapshot(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load threshold state from Redis")
		return
	}
	if len(snapshot) > 0 {
		eng.Thresholds().Restore(snapshot)
		logger.Info().Int("classes", len(snapshot)).Msg("Threshold state restored from Redis")
	}
}

// persistThresholds writes the current controller snapshot everywhere enabled
func persistThresholds(
	eng *engine.Engine,
	repo *database.ThresholdRepository,
	redisRepo *database.RedisThresholdStateRepository,
	cfg *config.Config,
	logger zerolog.Logger,
) {
	if !cfg.EngineConfig.PersistThresholds {
		return
	}

	snapshot := eng.Thresholds().Snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if repo != nil {
		if err := repo.SaveSnapshot(ctx, snapshot); err != nil {
			logger.Error().Err(err).Msg("Failed to persist threshold state to database")
		}
	}
	for _, state := range snapshot {
		if err := redisRepo.SaveState(ctx, state); err != nil {
			logger.Error().Err(err).Msg("Failed to persist threshold state to Redis")
		}
	}
}
