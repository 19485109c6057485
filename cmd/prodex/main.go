package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"prodex/internal/breaker"
	"prodex/internal/browser"
	"prodex/internal/config"
	"prodex/internal/db"
	"prodex/internal/extract"
	"prodex/internal/fetch"
	"prodex/internal/guard"
	"prodex/internal/pool"
	"prodex/internal/queue"
	"prodex/internal/store"
	"prodex/internal/urls"
)

var (
	cfgFile string
	verbose bool
	workers int
	dryRun  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "prodex",
		Short: "prodex — parallel product listing extractor",
		Long: `prodex extracts product listings from e-commerce search and category
pages at scale.

It runs a pool of workers, each with its own headless browser, over either
an operator-supplied list of URLs (bulk mode) or a shared URL queue claimed
in atomic batches (queue mode). Extraction layers DOM card parsing over
JSON-LD, microdata, embedded JSON, and link heuristics, and saves the
results to PostgreSQL.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runCmd creates the "run" subcommand.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [url...]",
		Short: "Extract products from URLs or the shared queue",
		Long: `Run the extraction pool.

URLs given as arguments (or via BULK_URLS / BULK_URLS_FILE) are processed
in bulk mode. With no URLs, workers claim batches from the shared queue
until it drains.`,
		RunE: runExtract,
	}

	cmd.Flags().IntVarP(&workers, "workers", "n", 0, "worker count (0 = auto-size from host resources)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "process only a small sample from one batch, then exit")

	return cmd
}

// runExtract executes the run command.
func runExtract(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g := guard.New(cfg.Guard.FDThreshold, cfg.Guard.ChildThreshold, logger)
	workerCount := guard.AutoWorkers(cfg.Pool.MaxWorkers, cfg.Guard.SystemRAMGB)

	registry := browser.NewRegistry()
	brk := breaker.New(cfg.Breaker.Threshold, registry.CloseAll, logger)

	newSession, closeRenderer, err := sessionFactory(cfg, g, logger)
	if err != nil {
		return err
	}
	defer closeRenderer()

	extractor := extract.New(logger, cfg.Pool.MaxItems)

	// Bulk entries come from CLI args first, then the environment payloads.
	entries := make([]urls.Entry, 0, len(args))
	for _, arg := range args {
		entries = append(entries, urls.Entry{URL: arg})
	}
	entries = append(entries, urls.Load(cfg.Bulk.URLs, cfg.Bulk.URLsFile, logger)...)

	var queueClient pool.QueueClient
	var saver pool.Saver
	if cfg.Database.URL != "" {
		dbpool, err := db.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer dbpool.Close()
		queueClient = queue.NewClient(dbpool, logger)
		saver = store.New(dbpool, logger)
	} else if len(entries) == 0 {
		return fmt.Errorf("nothing to do: set DATABASE_URL for queue mode or supply URLs for bulk mode")
	} else {
		logger.Warn("DATABASE_URL is not set; extracted products will not be persisted")
	}

	opts := pool.Options{
		Workers:     workerCount,
		MaxRetries:  cfg.Pool.MaxRetries,
		WaitSeconds: cfg.Pool.WaitSeconds,
	}
	if cfg.Pool.ProgressLog {
		opts.Progress = func(res pool.Result, snap pool.Snapshot) {
			logger.Info("url finished",
				"url", res.URL,
				"success", res.Success,
				"products_found", res.ProductsFound,
				"products_saved", res.ProductsSaved,
				"strategy", res.Strategy,
				"done", snap.Succeeded+snap.Failed,
				"submitted", snap.Submitted,
			)
		}
	}
	p := pool.New(opts, newSession, extractor, queueClient, saver, brk, registry, logger)

	logger.Info("starting extraction",
		"mode", runMode(entries),
		"workers", workerCount,
		"max_retries", cfg.Pool.MaxRetries,
	)

	if len(entries) > 0 {
		results, snap := p.RunBulk(ctx, entries)
		pool.PrintSummary(os.Stdout, results, snap)
		return ctx.Err()
	}

	snap, err := p.RunQueue(ctx, pool.QueueOptions{
		BatchSize:     cfg.Queue.BatchSize,
		Limit:         cfg.Queue.Limit,
		Offset:        cfg.Queue.Offset,
		StatusFilters: cfg.Queue.StatusFilters(),
		DryRunSample:  cfg.Queue.DryRunSample,
		DryRunOnly:    cfg.Queue.DryRunOnly,
	})
	logger.Info("queue run finished",
		"submitted", snap.Submitted,
		"succeeded", snap.Succeeded,
		"failed", snap.Failed,
		"products_found", snap.TotalProductsFound,
		"saved_to_db", snap.TotalSavedToDB,
		"duration_seconds", fmt.Sprintf("%.1f", snap.DurationSeconds),
	)
	return err
}

// sessionFactory picks the renderer: real browsers by default, the static
// HTTP renderer when configured for pages that need no JavaScript.
func sessionFactory(cfg *config.Config, g *guard.Guard, logger *slog.Logger) (func(int) pool.Session, func(), error) {
	if cfg.Browser.Renderer == "static" {
		renderer, err := fetch.NewRenderer(fetch.Options{}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("create renderer: %w", err)
		}
		factory := func(int) pool.Session { return fetch.NewSession(renderer) }
		return factory, func() { _ = renderer.Close() }, nil
	}

	factory := func(index int) pool.Session {
		return browser.NewSession(index, cfg.Browser.CleanupEvery, g, logger)
	}
	return factory, func() {}, nil
}

func runMode(entries []urls.Entry) string {
	if len(entries) > 0 {
		return "bulk"
	}
	return "queue"
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("prodex %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Database:\n")
			fmt.Printf("  URL set:           %v\n", cfg.Database.URL != "")
			fmt.Printf("\nQueue:\n")
			fmt.Printf("  Batch Size:        %d\n", cfg.Queue.BatchSize)
			fmt.Printf("  Status Filter:     %s\n", cfg.Queue.StatusFilter)
			fmt.Printf("  Limit:             %d\n", cfg.Queue.Limit)
			fmt.Printf("  Offset:            %d\n", cfg.Queue.Offset)
			fmt.Printf("  Dry Run Sample:    %d\n", cfg.Queue.DryRunSample)
			fmt.Printf("  Dry Run Only:      %v\n", cfg.Queue.DryRunOnly)
			fmt.Printf("\nPool:\n")
			fmt.Printf("  Max Workers:       %d (0 = auto)\n", cfg.Pool.MaxWorkers)
			fmt.Printf("  Max Retries:       %d\n", cfg.Pool.MaxRetries)
			fmt.Printf("  Wait Seconds:      %d\n", cfg.Pool.WaitSeconds)
			fmt.Printf("  Max Items:         %d\n", cfg.Pool.MaxItems)
			fmt.Printf("\nBrowser:\n")
			fmt.Printf("  Renderer:          %s\n", cfg.Browser.Renderer)
			fmt.Printf("  Cleanup Every:     %d URLs\n", cfg.Browser.CleanupEvery)
			fmt.Printf("\nGuard:\n")
			fmt.Printf("  FD Threshold:      %d\n", cfg.Guard.FDThreshold)
			fmt.Printf("  Child Threshold:   %d\n", cfg.Guard.ChildThreshold)
			fmt.Printf("  System RAM (GB):   %.1f\n", cfg.Guard.SystemRAMGB)
			fmt.Printf("\nBreaker:\n")
			fmt.Printf("  Threshold:         %d\n", cfg.Breaker.Threshold)
			return nil
		},
	}
	return cmd
}

// setupLogger creates a structured logger.
func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewTextHandler(os.Stderr, opts)
	return slog.New(handler)
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) {
	if workers > 0 {
		cfg.Pool.MaxWorkers = workers
	}
	if dryRun {
		cfg.Queue.DryRunOnly = true
		if cfg.Queue.DryRunSample == 0 {
			cfg.Queue.DryRunSample = 10
		}
	}
}
