package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	ServerPort     string
	DatabaseType   string
	DatabaseURL    string
	DatabasePath   string
	MigrationsPath string

	JWTSecret string
	LogLevel  string
	Debug     bool

	// ExpirySweepInterval is how often the server checks for overdue attempts
	ExpirySweepInterval time.Duration
	// LockWait bounds how long a request waits for another mutation on the same attempt
	LockWait time.Duration

	ViolationRateLimit  int
	ViolationRateWindow time.Duration

	Plagiarism PlagiarismConfig
}

// PlagiarismConfig tunes report aggregation and the background worker pool
type PlagiarismConfig struct {
	Workers   int
	QueueSize int

	AgreementThreshold float64
	MinAgreeing        int
	BoostFactor        float64

	BandMedium   float64
	BandHigh     float64
	BandCritical float64
}

// Load reads configuration from an optional .env file and the environment
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := fromViper(v)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no environment is set
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		ServerPort:          v.GetString("PORT"),
		DatabaseType:        v.GetString("DATABASE_TYPE"),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		DatabasePath:        v.GetString("DB_PATH"),
		MigrationsPath:      v.GetString("MIGRATIONS_PATH"),
		JWTSecret:           v.GetString("JWT_SECRET"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		Debug:               v.GetBool("DEBUG"),
		ExpirySweepInterval: v.GetDuration("EXPIRY_SWEEP_INTERVAL"),
		LockWait:            v.GetDuration("LOCK_WAIT"),
		ViolationRateLimit:  v.GetInt("VIOLATION_RATE_LIMIT"),
		ViolationRateWindow: v.GetDuration("VIOLATION_RATE_WINDOW"),
		Plagiarism: PlagiarismConfig{
			Workers:            v.GetInt("PLAGIARISM_WORKERS"),
			QueueSize:          v.GetInt("PLAGIARISM_QUEUE_SIZE"),
			AgreementThreshold: v.GetFloat64("PLAGIARISM_AGREEMENT_THRESHOLD"),
			MinAgreeing:        v.GetInt("PLAGIARISM_MIN_AGREEING"),
			BoostFactor:        v.GetFloat64("PLAGIARISM_BOOST_FACTOR"),
			BandMedium:         v.GetFloat64("PLAGIARISM_BAND_MEDIUM"),
			BandHigh:           v.GetFloat64("PLAGIARISM_BAND_HIGH"),
			BandCritical:       v.GetFloat64("PLAGIARISM_BAND_CRITICAL"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_TYPE", "sqlite")
	v.SetDefault("DB_PATH", "./proctorexam.db")
	v.SetDefault("MIGRATIONS_PATH", "./migrations")
	v.SetDefault("JWT_SECRET", "change-me")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DEBUG", false)
	v.SetDefault("EXPIRY_SWEEP_INTERVAL", 30*time.Second)
	v.SetDefault("LOCK_WAIT", 2*time.Second)
	v.SetDefault("VIOLATION_RATE_LIMIT", 120)
	v.SetDefault("VIOLATION_RATE_WINDOW", time.Minute)
	v.SetDefault("PLAGIARISM_WORKERS", 2)
	v.SetDefault("PLAGIARISM_QUEUE_SIZE", 256)
	v.SetDefault("PLAGIARISM_AGREEMENT_THRESHOLD", 0.7)
	v.SetDefault("PLAGIARISM_MIN_AGREEING", 2)
	v.SetDefault("PLAGIARISM_BOOST_FACTOR", 0.5)
	v.SetDefault("PLAGIARISM_BAND_MEDIUM", 0.3)
	v.SetDefault("PLAGIARISM_BAND_HIGH", 0.6)
	v.SetDefault("PLAGIARISM_BAND_CRITICAL", 0.85)
}

// Validate checks the loaded values for internal consistency
func (c *Config) Validate() error {
	p := c.Plagiarism
	if p.Workers <= 0 {
		return errors.New("PLAGIARISM_WORKERS must be positive")
	}
	if p.QueueSize <= 0 {
		return errors.New("PLAGIARISM_QUEUE_SIZE must be positive")
	}
	if p.MinAgreeing < 1 {
		return errors.New("PLAGIARISM_MIN_AGREEING must be at least 1")
	}
	for name, val := range map[string]float64{
		"PLAGIARISM_AGREEMENT_THRESHOLD": p.AgreementThreshold,
		"PLAGIARISM_BOOST_FACTOR":        p.BoostFactor,
		"PLAGIARISM_BAND_MEDIUM":         p.BandMedium,
		"PLAGIARISM_BAND_HIGH":           p.BandHigh,
		"PLAGIARISM_BAND_CRITICAL":       p.BandCritical,
	} {
		if val < 0 || val > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, val)
		}
	}
	if !(p.BandMedium <= p.BandHigh && p.BandHigh <= p.BandCritical) {
		return fmt.Errorf("plagiarism bands must be monotonic: %v <= %v <= %v", p.BandMedium, p.BandHigh, p.BandCritical)
	}
	if c.LockWait <= 0 {
		return errors.New("LOCK_WAIT must be positive")
	}
	return nil
}
