package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GBUF_"

// loadDotEnv loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is fine.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// applyEnv applies GBUF_* overrides. Unparsable values are ignored.
func applyEnv(cfg *Config) {
	cfg.Sim.NumEnvs = getEnvAsInt("NUM_ENVS", cfg.Sim.NumEnvs)
	cfg.Sim.Device = getEnv("DEVICE", cfg.Sim.Device)
	cfg.Sim.Steps = getEnvAsInt("STEPS", cfg.Sim.Steps)
	cfg.Camera.Width = getEnvAsInt("WIDTH", cfg.Camera.Width)
	cfg.Camera.Height = getEnvAsInt("HEIGHT", cfg.Camera.Height)
	cfg.Camera.Workers = getEnvAsInt("WORKERS", cfg.Camera.Workers)
	cfg.Output.Path = getEnv("OUTPUT", cfg.Output.Path)
	cfg.Display.Headless = getEnvAsBool("HEADLESS", cfg.Display.Headless)
	cfg.Stream.Addr = getEnv("SERVE", cfg.Stream.Addr)
	cfg.Stream.Interval = getEnvAsDuration("STREAM_INTERVAL", cfg.Stream.Interval)
	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.LogFile = getEnv("LOG_FILE", cfg.Logging.LogFile)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
