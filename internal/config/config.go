package config

import "strings"

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for prodex.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Queue    QueueConfig    `mapstructure:"queue"    yaml:"queue"`
	Bulk     BulkConfig     `mapstructure:"bulk"     yaml:"bulk"`
	Pool     PoolConfig     `mapstructure:"pool"     yaml:"pool"`
	Browser  BrowserConfig  `mapstructure:"browser"  yaml:"browser"`
	Guard    GuardConfig    `mapstructure:"guard"    yaml:"guard"`
	Breaker  BreakerConfig  `mapstructure:"breaker"  yaml:"breaker"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
}

// DatabaseConfig points at the queue and product database.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// QueueConfig controls the claim/ack loop.
type QueueConfig struct {
	BatchSize    int    `mapstructure:"batch_size"     yaml:"batch_size"`
	StatusFilter string `mapstructure:"status_filter"  yaml:"status_filter"`
	Limit        int    `mapstructure:"limit"          yaml:"limit"`
	Offset       int    `mapstructure:"offset"         yaml:"offset"`
	DryRunSample int    `mapstructure:"dry_run_sample" yaml:"dry_run_sample"`
	DryRunOnly   bool   `mapstructure:"dry_run_only"   yaml:"dry_run_only"`
}

// StatusFilters splits the comma-separated filter into a slice. An empty
// filter returns nil so the queue client applies its own default.
func (q QueueConfig) StatusFilters() []string {
	var filters []string
	for _, f := range strings.Split(q.StatusFilter, ",") {
		if f = strings.TrimSpace(f); f != "" {
			filters = append(filters, f)
		}
	}
	return filters
}

// BulkConfig carries operator-supplied URL payloads. When either field is
// set, the run processes these URLs instead of the queue.
type BulkConfig struct {
	URLs     string `mapstructure:"urls"      yaml:"urls"`
	URLsFile string `mapstructure:"urls_file" yaml:"urls_file"`
}

// PoolConfig controls the worker pool.
type PoolConfig struct {
	MaxWorkers  int  `mapstructure:"max_workers"  yaml:"max_workers"` // 0 auto-sizes from host resources
	MaxRetries  int  `mapstructure:"max_retries"  yaml:"max_retries"`
	WaitSeconds int  `mapstructure:"wait_seconds" yaml:"wait_seconds"`
	MaxItems    int  `mapstructure:"max_items"    yaml:"max_items"`
	ProgressLog bool `mapstructure:"progress_log" yaml:"progress_log"`
}

// BrowserConfig controls the per-worker browser sessions.
type BrowserConfig struct {
	Renderer     string `mapstructure:"renderer"      yaml:"renderer"` // browser or static
	CleanupEvery int    `mapstructure:"cleanup_every" yaml:"cleanup_every"`
}

// GuardConfig controls the host resource guard.
type GuardConfig struct {
	FDThreshold    int     `mapstructure:"fd_threshold"         yaml:"fd_threshold"`
	ChildThreshold int     `mapstructure:"child_proc_threshold" yaml:"child_proc_threshold"`
	SystemRAMGB    float64 `mapstructure:"system_ram_gb"        yaml:"system_ram_gb"`
}

// BreakerConfig controls the resource-exhaustion circuit breaker.
type BreakerConfig struct {
	Threshold int `mapstructure:"threshold" yaml:"threshold"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Queue: QueueConfig{
			BatchSize:    1000,
			StatusFilter: "pending,retrying",
		},
		Pool: PoolConfig{
			MaxRetries:  3,
			WaitSeconds: 12,
			MaxItems:    50,
		},
		Browser: BrowserConfig{
			Renderer:     "browser",
			CleanupEvery: 10,
		},
		Breaker: BreakerConfig{
			Threshold: 3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}
