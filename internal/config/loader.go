package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and CLI flags.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults from struct
	setDefaults(v, cfg)

	// Environment variable support
	v.SetEnvPrefix("PRODEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindOperatorEnv(v)

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search default locations
		v.SetConfigName("prodex")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".prodex"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	return Load(path)
}

// bindOperatorEnv binds the bare environment names operators already set
// on their deployments, alongside the PRODEX_ namespaced forms.
func bindOperatorEnv(v *viper.Viper) {
	bind := func(key string, names ...string) {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}

	bind("database.url", "DATABASE_URL")

	bind("queue.batch_size", "DB_URL_BATCH_SIZE")
	bind("queue.status_filter", "DB_URL_STATUS_FILTER")
	bind("queue.limit", "DB_URL_LIMIT")
	bind("queue.offset", "DB_URL_OFFSET")
	bind("queue.dry_run_sample", "DRY_RUN_SAMPLE")
	bind("queue.dry_run_only", "DRY_RUN_ONLY")

	bind("bulk.urls", "BULK_URLS")
	bind("bulk.urls_file", "BULK_URLS_FILE")

	bind("pool.max_workers", "MAX_PARALLEL_WORKERS")
	bind("pool.max_retries", "MAX_RETRIES")
	bind("pool.wait_seconds", "WAIT_SECONDS")
	bind("pool.progress_log", "PARALLEL_PROGRESS_LOG")

	bind("browser.renderer", "RENDERER")
	bind("browser.cleanup_every", "URLS_PER_DRIVER_CLEANUP")

	bind("guard.fd_threshold", "FD_THRESHOLD")
	bind("guard.child_proc_threshold", "CHILD_PROC_THRESHOLD")
	bind("guard.system_ram_gb", "SYSTEM_RAM_GB", "RAM_GB", "AVAILABLE_RAM_GB")

	bind("breaker.threshold", "ERRNO11_THRESHOLD")
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("database.url", cfg.Database.URL)

	v.SetDefault("queue.batch_size", cfg.Queue.BatchSize)
	v.SetDefault("queue.status_filter", cfg.Queue.StatusFilter)
	v.SetDefault("queue.limit", cfg.Queue.Limit)
	v.SetDefault("queue.offset", cfg.Queue.Offset)
	v.SetDefault("queue.dry_run_sample", cfg.Queue.DryRunSample)
	v.SetDefault("queue.dry_run_only", cfg.Queue.DryRunOnly)

	v.SetDefault("bulk.urls", cfg.Bulk.URLs)
	v.SetDefault("bulk.urls_file", cfg.Bulk.URLsFile)

	v.SetDefault("pool.max_workers", cfg.Pool.MaxWorkers)
	v.SetDefault("pool.max_retries", cfg.Pool.MaxRetries)
	v.SetDefault("pool.wait_seconds", cfg.Pool.WaitSeconds)
	v.SetDefault("pool.max_items", cfg.Pool.MaxItems)
	v.SetDefault("pool.progress_log", cfg.Pool.ProgressLog)

	v.SetDefault("browser.renderer", cfg.Browser.Renderer)
	v.SetDefault("browser.cleanup_every", cfg.Browser.CleanupEvery)

	v.SetDefault("guard.fd_threshold", cfg.Guard.FDThreshold)
	v.SetDefault("guard.child_proc_threshold", cfg.Guard.ChildThreshold)
	v.SetDefault("guard.system_ram_gb", cfg.Guard.SystemRAMGB)

	v.SetDefault("breaker.threshold", cfg.Breaker.Threshold)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)
}
