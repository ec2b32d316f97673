package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by BELIEFD_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("BELIEFD_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// StoreBackend returns the configured persistence backend.
// Defaults to "badger" if not set.
// Valid values: badger, postgres, memory
func StoreBackend() string {
	b := os.Getenv("STORE_BACKEND")
	if b == "" {
		return "badger"
	}
	return b
}

// BadgerPath returns the data directory for the badger backend.
// Defaults to "data/beliefd" if not set; an explicit empty value via
// BADGER_IN_MEMORY=true runs badger without persistence.
func BadgerPath() string {
	if os.Getenv("BADGER_IN_MEMORY") == "true" {
		return ""
	}
	p := os.Getenv("BADGER_PATH")
	if p == "" {
		return "data/beliefd"
	}
	return p
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// MinConfidence returns the selection confidence floor.
// Defaults to 0.5 if not set.
func MinConfidence() float64 {
	v, err := strconv.ParseFloat(os.Getenv("SELECTION_MIN_CONFIDENCE"), 64)
	if err != nil || v < 0 || v > 1 {
		return 0.5
	}
	return v
}

// MaxAlternativeDelta returns how far behind the primary an alternative
// belief may trail. Defaults to 0.3 if not set.
func MaxAlternativeDelta() float64 {
	v, err := strconv.ParseFloat(os.Getenv("SELECTION_MAX_ALT_DELTA"), 64)
	if err != nil || v < 0 || v > 1 {
		return 0.3
	}
	return v
}

// GranularityBonus returns the per-tier score bonus for deeper
// classifications. Defaults to 0.05 if not set.
func GranularityBonus() float64 {
	v, err := strconv.ParseFloat(os.Getenv("SELECTION_GRANULARITY_BONUS"), 64)
	if err != nil || v < 0 || v > 1 {
		return 0.05
	}
	return v
}

// GranularityThreshold returns the confidence a belief needs before tier
// depth counts toward its score. Defaults to 0.7 if not set.
func GranularityThreshold() float64 {
	v, err := strconv.ParseFloat(os.Getenv("SELECTION_GRANULARITY_THRESHOLD"), 64)
	if err != nil || v < 0 || v > 1 {
		return 0.7
	}
	return v
}
