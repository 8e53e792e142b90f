package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/N3z3d/prioris-sync/internal/conflict"
)

// Load builds a Config from, in increasing priority: defaults, the YAML file
// at path (skipped when path is empty or the file does not exist), then
// PRIORIS_* environment variables. The result is validated before return.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Missing file falls through to defaults.
		case err != nil:
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Environment variable names recognized by applyEnv.
const (
	envConflictStrategy = "PRIORIS_CONFLICT_STRATEGY"
	envDeleteLocal      = "PRIORIS_DELETE_LOCAL_AFTER_MIGRATION"
	envBatchSize        = "PRIORIS_BATCH_SIZE"
	envTimeout          = "PRIORIS_TIMEOUT"
	envProgressTracking = "PRIORIS_ENABLE_PROGRESS_TRACKING"
	envMaxRetries       = "PRIORIS_MAX_RETRIES"
	envWorkerCount      = "PRIORIS_WORKER_COUNT"
)

func applyEnv(cfg *Config) error {
	if v := os.Getenv(envConflictStrategy); v != "" {
		cfg.ConflictStrategy = conflict.Strategy(v)
	}
	if v := os.Getenv(envDeleteLocal); v != "" {
		cfg.DeleteLocalAfterMigration = v == "true"
	}
	if v := os.Getenv(envProgressTracking); v != "" {
		cfg.EnableProgressTracking = v != "false"
	}
	if err := envInt(envBatchSize, &cfg.BatchSize); err != nil {
		return err
	}
	if err := envInt(envMaxRetries, &cfg.MaxRetries); err != nil {
		return err
	}
	if err := envInt(envWorkerCount, &cfg.WorkerCount); err != nil {
		return err
	}
	if v := os.Getenv(envTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s=%q: %w", envTimeout, v, err)
		}
		cfg.Timeout = d
	}
	return nil
}

func envInt(name string, target *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s=%q: %w", name, v, err)
	}
	*target = n
	return nil
}
