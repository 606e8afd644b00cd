package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Reverse modes for stepping back through a circuit.
const (
	ReverseInverse = "inverse" // apply conjugate-transpose gates, replay when unavailable
	ReverseReplay  = "replay"  // always rebuild from the nearest snapshot
)

// Config holds simulator configuration
type Config struct {
	LogLevel          string
	LogPretty         bool
	ParallelThreshold int     // register width at which the partial trace fans out
	Workers           int     // goroutines used by the parallel partial trace
	Epsilon           float64 // numerical tolerance for trace and equality checks
	PruneTolerance    float64 // amplitudes with smaller modulus are dropped
	SnapshotInterval  int     // steps between cached snapshots, 0 disables
	ReverseMode       string
}

// Default returns the configuration used when no environment is set.
func Default() *Config {
	return &Config{
		LogLevel:          "info",
		LogPretty:         true,
		ParallelThreshold: 14,
		Workers:           runtime.NumCPU(),
		Epsilon:           1e-9,
		PruneTolerance:    1e-12,
		SnapshotInterval:  8,
		ReverseMode:       ReverseInverse,
	}
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	def := Default()
	cfg := &Config{
		LogLevel:          getEnv("QSIM_LOG_LEVEL", def.LogLevel),
		LogPretty:         getEnvAsBool("QSIM_LOG_PRETTY", def.LogPretty),
		ParallelThreshold: getEnvAsInt("QSIM_PARALLEL_THRESHOLD", def.ParallelThreshold),
		Workers:           getEnvAsInt("QSIM_WORKERS", def.Workers),
		Epsilon:           getEnvAsFloat("QSIM_EPSILON", def.Epsilon),
		PruneTolerance:    getEnvAsFloat("QSIM_PRUNE_TOLERANCE", def.PruneTolerance),
		SnapshotInterval:  getEnvAsInt("QSIM_SNAPSHOT_INTERVAL", def.SnapshotInterval),
		ReverseMode:       strings.ToLower(getEnv("QSIM_REVERSE_MODE", def.ReverseMode)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the engine cannot work with.
func (c *Config) Validate() error {
	if c.ParallelThreshold < 1 || c.ParallelThreshold > 63 {
		return fmt.Errorf("QSIM_PARALLEL_THRESHOLD must be in [1, 63], got %d", c.ParallelThreshold)
	}
	if c.Workers < 1 {
		return fmt.Errorf("QSIM_WORKERS must be positive, got %d", c.Workers)
	}
	if c.Epsilon <= 0 || c.Epsilon >= 1 {
		return fmt.Errorf("QSIM_EPSILON must be in (0, 1), got %g", c.Epsilon)
	}
	if c.PruneTolerance < 0 || c.PruneTolerance >= c.Epsilon {
		return fmt.Errorf("QSIM_PRUNE_TOLERANCE must be in [0, epsilon), got %g", c.PruneTolerance)
	}
	if c.SnapshotInterval < 0 {
		return fmt.Errorf("QSIM_SNAPSHOT_INTERVAL must not be negative, got %d", c.SnapshotInterval)
	}
	switch c.ReverseMode {
	case ReverseInverse, ReverseReplay:
	default:
		return fmt.Errorf("QSIM_REVERSE_MODE must be %q or %q, got %q", ReverseInverse, ReverseReplay, c.ReverseMode)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
