package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"proctorexam/internal/config"
	"proctorexam/internal/database"
	"proctorexam/internal/handlers"
	"proctorexam/internal/identity"
	"proctorexam/internal/logging"
	"proctorexam/internal/plagiarism"
	"proctorexam/internal/security"
	"proctorexam/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.Init("info", false)
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.LogLevel, cfg.Debug)

	// Initialize database with config (supports sqlite, postgres, mysql)
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	log.Info().Str("type", cfg.DatabaseType).Msg("Database connection established")

	// Run migrations
	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	log.Info().Msg("Migrations completed successfully")

	p := cfg.Plagiarism
	agg, err := plagiarism.NewAggregator(plagiarism.Options{
		AgreementThreshold: p.AgreementThreshold,
		MinAgreeing:        p.MinAgreeing,
		BoostFactor:        p.BoostFactor,
		Bands:              plagiarism.Bands{Medium: p.BandMedium, High: p.BandHigh, Critical: p.BandCritical},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid plagiarism settings")
	}

	// Initialize services
	plagiarismService := service.NewPlagiarismService(db, agg, nil)
	worker := plagiarism.NewWorker(plagiarismService.Aggregate, p.Workers, p.QueueSize)
	plagiarismService.UseQueue(worker)

	sessionService := service.NewSessionService(db, service.SessionOptions{
		LockWait: cfg.LockWait,
		Queue:    worker,
	})
	evidenceService := service.NewEvidenceService(db, nil)

	limiter := security.NewRateLimiter(cfg.ViolationRateLimit, cfg.ViolationRateWindow)

	// Initialize handlers
	handler := handlers.NewRouter(handlers.Handlers{
		Middleware: handlers.NewMiddleware(identity.NewVerifier(cfg.JWTSecret), limiter),
		Session:    handlers.NewSessionHandler(sessionService),
		Admin:      handlers.NewAdminHandler(sessionService, evidenceService),
		Plagiarism: handlers.NewPlagiarismHandler(plagiarismService),
	})

	// Start server
	addr := ":" + cfg.ServerPort
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start background work
	worker.Start(ctx)
	go limiter.Run(ctx, cfg.ViolationRateWindow)
	go sweepExpiredAttempts(ctx, sessionService, cfg.ExpirySweepInterval)

	go func() {
		log.Info().Str("addr", addr).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	if err := worker.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Plagiarism worker did not drain")
	}
	stats := worker.Stats()
	log.Info().Int64("enqueued", stats.Enqueued).Int64("completed", stats.Completed).
		Int64("failed", stats.Failed).Int64("rejected", stats.Rejected).Msg("Plagiarism worker stopped")
	cancel()
}

// sweepExpiredAttempts periodically ends attempts that ran past their deadline
func sweepExpiredAttempts(ctx context.Context, sessions *service.SessionService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.SweepExpired(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Error sweeping expired attempts")
				continue
			}
			if n > 0 {
				log.Info().Int("count", n).Msg("Expired overdue attempts")
			}
		}
	}
}
