package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"proctorexam/internal/config"
	"proctorexam/internal/database"
	"proctorexam/internal/logging"
	"proctorexam/internal/models"
	"proctorexam/internal/repository"
	"proctorexam/internal/service"
	"proctorexam/internal/validation"
)

func main() {
	// Define subcommands
	loadCmd := flag.NewFlagSet("load-test", flag.ExitOnError)
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)

	// Load flags
	loadInput := loadCmd.String("input", "", "Test definition JSON file (required)")

	// Export flags
	exportAttempt := exportCmd.String("attempt", "", "Attempt ID to export (required)")
	exportOutput := exportCmd.String("output", "", "Output file path (default: evidence_<attempt>_YYYYMMDD_HHMMSS.json)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.Init("info", false)
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.LogLevel, cfg.Debug)

	// Initialize database
	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Run migrations to ensure schema is up to date
	if err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "migrate":
		log.Info().Msg("Migrations completed successfully")

	case "load-test":
		loadCmd.Parse(os.Args[2:])
		if *loadInput == "" {
			fmt.Println("Error: -input flag is required")
			loadCmd.PrintDefaults()
			os.Exit(1)
		}
		handleLoadTest(ctx, db, *loadInput)

	case "sweep":
		sessions := service.NewSessionService(db, service.SessionOptions{LockWait: cfg.LockWait})
		n, err := sessions.SweepExpired(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Sweep failed")
		}
		log.Info().Int("count", n).Msg("Sweep complete")

	case "export":
		exportCmd.Parse(os.Args[2:])
		if *exportAttempt == "" {
			fmt.Println("Error: -attempt flag is required")
			exportCmd.PrintDefaults()
			os.Exit(1)
		}
		handleExport(ctx, service.NewEvidenceService(db, nil), *exportAttempt, *exportOutput)

	default:
		printUsage()
		os.Exit(1)
	}
}

func handleLoadTest(ctx context.Context, db *database.DB, inputPath string) {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", inputPath).Msg("Failed to read test definition")
	}

	var def models.TestDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		log.Fatal().Err(err).Msg("Failed to parse test definition")
	}
	if err := validation.Struct(def); err != nil {
		log.Fatal().Err(err).Msg("Invalid test definition")
	}

	if err := repository.NewTestRepository(db).Save(ctx, &def); err != nil {
		log.Fatal().Err(err).Msg("Failed to save test definition")
	}
	log.Info().Str("test_id", def.ID).Int("stages", len(def.Stages)).Msg("Test definition loaded")
}

func handleExport(ctx context.Context, evidence *service.EvidenceService, attemptID, outputPath string) {
	// Generate default filename if not provided
	if outputPath == "" {
		timestamp := time.Now().Format("20060102_150405")
		outputPath = fmt.Sprintf("evidence_%s_%s.json", attemptID, timestamp)
	}

	// Ensure directory exists
	dir := filepath.Dir(outputPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal().Err(err).Msg("Failed to create output directory")
		}
	}

	file, err := os.Create(outputPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create output file")
	}
	defer file.Close()

	operator := models.Caller{Role: models.RoleAdmin}
	if err := evidence.ExportToWriter(ctx, operator, attemptID, file); err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}
	log.Info().Str("attempt_id", attemptID).Str("path", outputPath).Msg("Evidence exported")
}

func printUsage() {
	fmt.Println("Proctored assessment administration tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  assessctl migrate                                Apply database migrations")
	fmt.Println("  assessctl load-test -input <file>                Validate and store a test definition")
	fmt.Println("  assessctl sweep                                  Expire overdue attempts once")
	fmt.Println("  assessctl export -attempt <id> [-output <file>]  Write an attempt's evidence bundle")
	fmt.Println()
	fmt.Println("Configuration is read from the environment and an optional .env file.")
}
