// Package main is the entry point for the conviction engine, an
// episodic belief-update service for adaptive investment conviction.
// It manages episode lifecycles, runs learning cycles that compare
// consecutive episodes, and serves belief-derived optimization
// constraints and risk checks over HTTP.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/frontieralpha/conviction/internal/alerts"
	"github.com/frontieralpha/conviction/internal/clients/mlengine"
	"github.com/frontieralpha/conviction/internal/config"
	"github.com/frontieralpha/conviction/internal/database"
	"github.com/frontieralpha/conviction/internal/events"
	"github.com/frontieralpha/conviction/internal/modules/episodes"
	episodeshandlers "github.com/frontieralpha/conviction/internal/modules/episodes/handlers"
	"github.com/frontieralpha/conviction/internal/modules/learning"
	learninghandlers "github.com/frontieralpha/conviction/internal/modules/learning/handlers"
	"github.com/frontieralpha/conviction/internal/modules/optimization"
	optimizationhandlers "github.com/frontieralpha/conviction/internal/modules/optimization/handlers"
	"github.com/frontieralpha/conviction/internal/modules/riskcontrol"
	riskcontrolhandlers "github.com/frontieralpha/conviction/internal/modules/riskcontrol/handlers"
	"github.com/frontieralpha/conviction/internal/scheduler"
	"github.com/frontieralpha/conviction/internal/server"
	"github.com/frontieralpha/conviction/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting conviction engine")

	// Two databases: episode history on the standard profile, beliefs on
	// the ledger profile. Belief versions and cycle history are the audit
	// trail of every parameter change, so they get maximum durability.
	episodesDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "episodes.db"),
		Profile: database.ProfileStandard,
		Name:    "episodes",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open episodes database")
	}
	defer episodesDB.Close()

	beliefsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "beliefs.db"),
		Profile: database.ProfileLedger,
		Name:    "beliefs",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open beliefs database")
	}
	defer beliefsDB.Close()

	if err := episodesDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate episodes database")
	}
	if err := beliefsDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate beliefs database")
	}

	eventBus := events.NewBus(log)

	// Repositories
	episodeRepo := episodes.NewRepository(episodesDB.Conn(), log)
	beliefsRepo := learning.NewBeliefsRepository(beliefsDB.Conn(), log)

	// Engine components
	comparator := episodes.NewComparator(log)
	extractor := learning.NewExtractor(cfg.Engine, log)
	updater := learning.NewUpdater(cfg.Engine, log)
	riskController := riskcontrol.NewController(cfg.Engine, log)
	constraintsManager := optimization.NewConstraintsManager(log)

	// Services
	episodeService := episodes.NewService(episodeRepo, eventBus, log)
	learningService := learning.NewService(
		episodeRepo,
		beliefsRepo,
		comparator,
		extractor,
		updater,
		eventBus,
		cfg.Engine,
		log,
	)
	episodeService.SetCycleRunner(learningService)

	mlClient := mlengine.NewClient(cfg.MLEngineURL, log)

	// Optional Kafka mirror for risk and cycle alerts
	alertPublisher, err := alerts.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create alert publisher")
	}
	if alertPublisher != nil {
		alertPublisher.Attach(eventBus)
		defer alertPublisher.Close()
		log.Info().Str("topic", cfg.KafkaTopic).Msg("Kafka alert publisher attached")
	}

	// HTTP handlers
	episodesHandler := episodeshandlers.NewHandler(episodeService, mlClient, cfg.DefaultScope, log)
	learningHandler := learninghandlers.NewHandler(learningService, mlClient, cfg.DefaultScope, log)
	riskHandler := riskcontrolhandlers.NewHandler(riskController, learningService, eventBus, cfg.DefaultScope, log)
	optimizationHandler := optimizationhandlers.NewHandler(constraintsManager, learningService, cfg.DefaultScope, log)

	srv := server.New(server.Config{
		Log:        log,
		Config:     cfg,
		EpisodesDB: episodesDB,
		BeliefsDB:  beliefsDB,
		EventBus:   eventBus,
		MLClient:   mlClient,
		Modules: []server.RouteRegistrar{
			episodesHandler,
			learningHandler,
			riskHandler,
			optimizationHandler,
		},
	})

	// Scheduled episode rollover, when configured
	sched := scheduler.New(log)
	if cfg.EpisodeCron != "" {
		rolloverJob := scheduler.NewEpisodeRolloverJob(episodeService, mlClient, cfg.DefaultScope, log)
		if err := sched.AddJob(cfg.EpisodeCron, rolloverJob); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.EpisodeCron).Msg("Failed to register rollover job")
		}
		sched.Start()
		defer sched.Stop()
	}

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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Flush WAL before the deferred closes
	if err := episodesDB.WALCheckpoint("TRUNCATE"); err != nil {
		log.Warn().Err(err).Msg("Episodes WAL checkpoint failed")
	}
	if err := beliefsDB.WALCheckpoint("TRUNCATE"); err != nil {
		log.Warn().Err(err).Msg("Beliefs WAL checkpoint failed")
	}

	log.Info().Msg("Server stopped")
}
