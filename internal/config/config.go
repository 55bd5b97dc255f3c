// Package config reads the service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds every setting of the server and historian processes.
type Config struct {
	Port           string
	AppEnv         string
	LogLevel       logrus.Level
	AllowedOrigins []string

	MatchSeconds      int
	EloK              int
	DefaultRating     int
	TrainingSeconds   int
	TrainingGrace     time.Duration
	DisconnectForfeit time.Duration
	MatchJoinTimeout  time.Duration
	MaxRatingGap      int
	TaskBankFile      string

	Argon2MemoryKiB  int
	Argon2Iterations int

	HistorianBatchSize int
	HistorianFlush     time.Duration
	MatchAbandonAfter  time.Duration
}

// Load reads the configuration. Unset variables take their defaults; malformed
// numbers are an error.
func Load() (*Config, error) {
	var errs []string
	intVar := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		MatchSeconds:      intVar("MATCH_SECONDS", 600),
		EloK:              intVar("ELO_K", 32),
		DefaultRating:     intVar("DEFAULT_RATING", 1000),
		TrainingSeconds:   intVar("TRAINING_SECONDS", 60),
		TrainingGrace:     time.Duration(intVar("TRAINING_GRACE_MS", 1500)) * time.Millisecond,
		DisconnectForfeit: time.Duration(intVar("DISCONNECT_FORFEIT_SEC", 0)) * time.Second,
		MatchJoinTimeout:  time.Duration(intVar("MATCH_JOIN_TIMEOUT_SEC", 60)) * time.Second,
		MaxRatingGap:      intVar("MATCHMAKING_MAX_RATING_GAP", 0),
		TaskBankFile:      getEnv("TASK_BANK_FILE", ""),

		Argon2MemoryKiB:  intVar("ARGON2_MEMORY_KIB", 0),
		Argon2Iterations: intVar("ARGON2_ITERATIONS", 0),

		HistorianBatchSize: intVar("HISTORIAN_BATCH_SIZE", 20),
		HistorianFlush:     time.Duration(intVar("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
		MatchAbandonAfter:  time.Duration(intVar("MATCH_ABANDON_AFTER_SEC", 3600)) * time.Second,
	}

	defaultLevel := "debug"
	if cfg.IsProduction() {
		defaultLevel = "info"
	}
	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", defaultLevel))
	if err != nil {
		errs = append(errs, err.Error())
		level = logrus.InfoLevel
	}
	cfg.LogLevel = level

	if cfg.MatchSeconds <= 0 {
		errs = append(errs, "MATCH_SECONDS must be positive")
	}
	if cfg.TrainingSeconds <= 0 {
		errs = append(errs, "TRAINING_SECONDS must be positive")
	}
	if cfg.EloK <= 0 {
		errs = append(errs, "ELO_K must be positive")
	}
	if len(errs) > 0 {
		return cfg, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// NewLogger builds the process logger: JSON in production, text with full
// timestamps otherwise.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)
	if c.IsProduction() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// getEnv retrieves an environment variable's value or returns a default.
func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

// getEnvInt retrieves an integer environment variable or returns a default.
func getEnvInt(key string, defVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defVal, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return defVal, fmt.Errorf("%s: %q is not an integer", key, val)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
