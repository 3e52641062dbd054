package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradescope/internal/config"
	"github.com/aristath/tradescope/internal/database"
	"github.com/aristath/tradescope/internal/events"
	"github.com/aristath/tradescope/internal/modules/analysis"
	"github.com/aristath/tradescope/internal/modules/cleanup"
	"github.com/aristath/tradescope/internal/modules/market"
	"github.com/aristath/tradescope/internal/modules/stats"
	"github.com/aristath/tradescope/internal/pipeline"
	"github.com/aristath/tradescope/internal/scheduler"
	"github.com/aristath/tradescope/internal/server"
	"github.com/aristath/tradescope/pkg/logger"
)

func main() {
	// Load configuration first so the log level is honored from the start
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Tradescope")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := analysis.InitSchema(db.Conn()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize analysis schema")
	}
	if err := market.InitSchema(db.Conn()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize market schema")
	}

	// Event manager
	eventManager := events.NewManager(log)

	// Analysis pipeline. The real agent graph runs in a separate service; a
	// scripted replay stands in for it until that endpoint exists.
	if !cfg.DevMode {
		log.Warn().Msg("No pipeline endpoint configured, falling back to the scripted demo pipeline")
	}
	p := pipeline.NewScripted(pipeline.DemoChunks("DEMO"), pipeline.Options{
		SelectedAnalysts:   cfg.DefaultAnalysts,
		DeepThinkingModel:  cfg.DeepThinkingModel,
		QuickThinkingModel: cfg.QuickThinkingModel,
		MaxDebateRounds:    cfg.MaxDebateRounds,
	}).WithDelay(2 * time.Second)

	// Analysis module
	sessionRepo := analysis.NewSessionRepository(db.Conn(), log)
	reportRepo := analysis.NewReportRepository(db.Conn(), log)
	logRepo := analysis.NewLogRepository(db.Conn(), log)
	streamHandler := analysis.NewStreamHandler(db, sessionRepo, reportRepo, logRepo, eventManager, log)
	manager := analysis.NewManager(p, sessionRepo, streamHandler, logRepo, eventManager, cfg.MaxConcurrentAnalyses, log)

	defaults := analysis.AnalysisConfig{
		SelectedAnalysts:   cfg.DefaultAnalysts,
		DeepThinkingModel:  cfg.DeepThinkingModel,
		QuickThinkingModel: cfg.QuickThinkingModel,
		MaxDebateRounds:    cfg.MaxDebateRounds,
	}
	analysisHandlers := analysis.NewHandlers(manager, sessionRepo, reportRepo, logRepo, defaults, log)

	// Market module
	marketCache := market.NewCacheRepository(db.Conn(), time.Duration(cfg.MarketCacheTTLMinutes)*time.Minute, log)
	marketService := market.NewService(market.NewYahooClient(log), marketCache, log)
	marketHandlers := market.NewHandlers(marketService, log)

	// Stats module
	statsService := stats.NewService(db.Conn(), log)
	statsHandlers := stats.NewHandlers(statsService, log)

	// Sweep sessions orphaned by a previous crash before accepting new work
	orphanSweep := cleanup.NewOrphanSweepJob(sessionRepo, manager, eventManager, log)
	if err := orphanSweep.Run(); err != nil {
		log.Error().Err(err).Msg("Startup orphan sweep failed")
	}

	// Scheduler and background jobs
	sched := scheduler.New(log)
	registerJobs(sched, db.Conn(), sessionRepo, marketCache, orphanSweep, eventManager, cfg, log)
	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Port:     cfg.Port,
		Log:      log,
		DevMode:  cfg.DevMode,
		Analysis: analysisHandlers,
		Market:   marketHandlers,
		Stats:    statsHandlers,
		System:   server.NewSystemHandlers(log, manager),
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	// Stop in-flight analyses and wait for their final state to be persisted
	if err := manager.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Analysis manager shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}

// registerJobs wires the background jobs onto the scheduler
func registerJobs(
	sched *scheduler.Scheduler,
	db *sql.DB,
	sessions *analysis.SessionRepository,
	marketCache *market.CacheRepository,
	orphanSweep *cleanup.OrphanSweepJob,
	eventManager *events.Manager,
	cfg *config.Config,
	log zerolog.Logger,
) {
	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{"0 3 * * *", cleanup.NewSessionCleanupJob(sessions, eventManager, cfg.SessionRetentionDays, log)},
		{"@every 10m", orphanSweep},
		{"@hourly", market.NewCachePurgeJob(marketCache, log)},
		{"@every 6h", scheduler.NewHealthCheckJob(db, log)},
	}

	for _, j := range jobs {
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			log.Error().Err(err).Str("job", j.job.Name()).Msg("Failed to register job")
		}
	}
}
