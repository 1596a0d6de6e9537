package queue

import (
	"os"
	"strconv"
)

// Config holds the queue tuning knobs, loaded once at startup.
type Config struct {
	MaxInflightGlobal  int
	MaxInflightPerUser int
	AdmitBatchSize     int
	QueuedTTLSec       int
	ETAWindow          int
	EMAAlpha           float64
	MetricsBackend     string // "noop" | "prom"
}

func DefaultConfig() Config {
	return Config{
		MaxInflightGlobal:  16,
		MaxInflightPerUser: 2,
		AdmitBatchSize:     64,
		QueuedTTLSec:       1800,
		ETAWindow:          50,
		EMAAlpha:           0.2,
		MetricsBackend:     "noop",
	}
}

// LoadConfig reads the QUEUE_* environment, falling back to defaults on
// missing or malformed values.
func LoadConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxInflightGlobal = intEnv("QUEUE_MAX_INFLIGHT", cfg.MaxInflightGlobal)
	cfg.MaxInflightPerUser = intEnv("QUEUE_USER_MAX_INFLIGHT", cfg.MaxInflightPerUser)
	cfg.AdmitBatchSize = intEnv("QUEUE_ADMIT_BATCH", cfg.AdmitBatchSize)
	cfg.QueuedTTLSec = intEnv("QUEUE_TTL_SEC", cfg.QueuedTTLSec)
	cfg.ETAWindow = intEnv("QUEUE_ETA_WINDOW", cfg.ETAWindow)
	cfg.EMAAlpha = floatEnv("QUEUE_EMA_ALPHA", cfg.EMAAlpha)
	if v := os.Getenv("QUEUE_METRICS"); v != "" {
		cfg.MetricsBackend = v
	}
	return cfg
}

// Limits returns the admission caps carried by this config.
func (c Config) Limits() Limits {
	return Limits{
		MaxInflightGlobal:  c.MaxInflightGlobal,
		MaxInflightPerUser: c.MaxInflightPerUser,
	}
}

func intEnv(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatEnv(name string, def float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
