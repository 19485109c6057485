package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Queue.BatchSize < 1 {
		return fmt.Errorf("queue.batch_size must be >= 1, got %d", cfg.Queue.BatchSize)
	}
	if cfg.Queue.Limit < 0 {
		return fmt.Errorf("queue.limit must be >= 0, got %d", cfg.Queue.Limit)
	}
	if cfg.Queue.Offset < 0 {
		return fmt.Errorf("queue.offset must be >= 0, got %d", cfg.Queue.Offset)
	}
	if cfg.Queue.DryRunSample < 0 {
		return fmt.Errorf("queue.dry_run_sample must be >= 0, got %d", cfg.Queue.DryRunSample)
	}

	if cfg.Pool.MaxWorkers < 0 {
		return fmt.Errorf("pool.max_workers must be >= 0 (0 auto-sizes), got %d", cfg.Pool.MaxWorkers)
	}
	if cfg.Pool.MaxWorkers > 1000 {
		return fmt.Errorf("pool.max_workers must be <= 1000, got %d", cfg.Pool.MaxWorkers)
	}
	if cfg.Pool.MaxRetries < 0 {
		return fmt.Errorf("pool.max_retries must be >= 0, got %d", cfg.Pool.MaxRetries)
	}
	if cfg.Pool.WaitSeconds < 0 {
		return fmt.Errorf("pool.wait_seconds must be >= 0, got %d", cfg.Pool.WaitSeconds)
	}
	if cfg.Pool.MaxItems < 1 {
		return fmt.Errorf("pool.max_items must be >= 1, got %d", cfg.Pool.MaxItems)
	}

	if cfg.Browser.Renderer != "browser" && cfg.Browser.Renderer != "static" {
		return fmt.Errorf("browser.renderer must be 'browser' or 'static', got %q", cfg.Browser.Renderer)
	}
	if cfg.Browser.CleanupEvery < 1 {
		return fmt.Errorf("browser.cleanup_every must be >= 1, got %d", cfg.Browser.CleanupEvery)
	}

	if cfg.Guard.FDThreshold < 0 {
		return fmt.Errorf("guard.fd_threshold must be >= 0, got %d", cfg.Guard.FDThreshold)
	}
	if cfg.Guard.ChildThreshold < 0 {
		return fmt.Errorf("guard.child_proc_threshold must be >= 0, got %d", cfg.Guard.ChildThreshold)
	}
	if cfg.Guard.SystemRAMGB < 0 {
		return fmt.Errorf("guard.system_ram_gb must be >= 0, got %f", cfg.Guard.SystemRAMGB)
	}

	if cfg.Breaker.Threshold < 1 {
		return fmt.Errorf("breaker.threshold must be >= 1, got %d", cfg.Breaker.Threshold)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Database.URL != "" {
		u, err := url.Parse(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("invalid database.url: %w", err)
		}
		if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			return fmt.Errorf("database.url scheme must be postgres, got %q", u.Scheme)
		}
	}

	return nil
}
