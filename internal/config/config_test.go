package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Queue.BatchSize != 1000 {
		t.Errorf("batch_size = %d, want 1000", cfg.Queue.BatchSize)
	}
	if cfg.Pool.MaxRetries != 3 {
		t.Errorf("max_retries = %d, want 3", cfg.Pool.MaxRetries)
	}
	if cfg.Browser.CleanupEvery != 10 {
		t.Errorf("cleanup_every = %d, want 10", cfg.Browser.CleanupEvery)
	}
	if cfg.Breaker.Threshold != 3 {
		t.Errorf("breaker threshold = %d, want 3", cfg.Breaker.Threshold)
	}
	if got := cfg.Queue.StatusFilters(); len(got) != 2 || got[0] != "pending" || got[1] != "retrying" {
		t.Errorf("status filters = %v", got)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestOperatorEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://worker:pw@db.internal:5432/products")
	t.Setenv("MAX_PARALLEL_WORKERS", "25")
	t.Setenv("DB_URL_STATUS_FILTER", "failed")
	t.Setenv("URLS_PER_DRIVER_CLEANUP", "4")
	t.Setenv("ERRNO11_THRESHOLD", "5")
	t.Setenv("DRY_RUN_ONLY", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.URL != "postgres://worker:pw@db.internal:5432/products" {
		t.Errorf("database.url = %q", cfg.Database.URL)
	}
	if cfg.Pool.MaxWorkers != 25 {
		t.Errorf("max_workers = %d", cfg.Pool.MaxWorkers)
	}
	if got := cfg.Queue.StatusFilters(); len(got) != 1 || got[0] != "failed" {
		t.Errorf("status filters = %v", got)
	}
	if cfg.Browser.CleanupEvery != 4 {
		t.Errorf("cleanup_every = %d", cfg.Browser.CleanupEvery)
	}
	if cfg.Breaker.Threshold != 5 {
		t.Errorf("breaker threshold = %d", cfg.Breaker.Threshold)
	}
	if !cfg.Queue.DryRunOnly {
		t.Error("dry_run_only must be true")
	}
}

func TestNamespacedEnvOverrides(t *testing.T) {
	t.Setenv("PRODEX_POOL_WAIT_SECONDS", "20")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Pool.WaitSeconds != 20 {
		t.Errorf("wait_seconds = %d, want 20", cfg.Pool.WaitSeconds)
	}
}

func TestRAMAliases(t *testing.T) {
	t.Setenv("RAM_GB", "32")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Guard.SystemRAMGB != 32 {
		t.Errorf("system_ram_gb = %f, want 32", cfg.Guard.SystemRAMGB)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prodex.yaml")
	body := `
queue:
  batch_size: 50
pool:
  max_workers: 3
browser:
  renderer: static
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Queue.BatchSize != 50 || cfg.Pool.MaxWorkers != 3 || cfg.Browser.Renderer != "static" {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.Pool.MaxRetries != 3 {
		t.Error("unset keys must keep their defaults")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("an explicitly named missing config file must error")
	}
}

func TestStatusFiltersBlank(t *testing.T) {
	q := QueueConfig{StatusFilter: "  ,  "}
	if got := q.StatusFilters(); got != nil {
		t.Errorf("blank filter must return nil, got %v", got)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero batch size", func(c *Config) { c.Queue.BatchSize = 0 }},
		{"negative retries", func(c *Config) { c.Pool.MaxRetries = -1 }},
		{"bad renderer", func(c *Config) { c.Browser.Renderer = "selenium" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad db scheme", func(c *Config) { c.Database.URL = "mysql://db/products" }},
		{"zero breaker threshold", func(c *Config) { c.Breaker.Threshold = 0 }},
		{"too many workers", func(c *Config) { c.Pool.MaxWorkers = 5000 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}
