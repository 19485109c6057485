// Package pool runs extraction jobs across a fixed set of workers, each
// owning one browser session. It drives both operating modes: a bulk list
// of operator-supplied URLs and a claim/ack loop against the shared URL
// queue.
package pool

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"prodex/internal/breaker"
	"prodex/internal/browser"
	"prodex/internal/dom"
	"prodex/internal/extract"
	"prodex/internal/types"
	"prodex/internal/urls"
)

// Session is the browser surface a worker needs. *browser.Session
// implements it.
type Session interface {
	Navigate(ctx context.Context, pageURL string, waitSeconds int) (dom.Page, func(), error)
	Recycle()
	Close()
}

// QueueClient is the queue surface the pool needs. *queue.Client
// implements it.
type QueueClient interface {
	Claim(ctx context.Context, batchSize int, workerID string, statusFilters []string, minID *int64) ([]types.URLRecord, error)
	Ack(ctx context.Context, id int64, upd types.TerminalUpdate) error
	IDAtOffset(ctx context.Context, offset int, statusFilters []string) (*int64, error)
}

// Saver persists extracted products. *store.ProductStore implements it.
type Saver interface {
	Save(ctx context.Context, candidates []*types.Candidate, platformURL string, productTypeID, searchedProductID *int64) int
}

// Job is one URL to extract. QueueID is nil for bulk jobs.
type Job struct {
	URL               string
	QueueID           *int64
	ProductTypeID     *int64
	SearchedProductID *int64
	RetryCount        int
}

// Result is the outcome of one job attempt chain.
type Result struct {
	URL           string
	Success       bool
	Strategy      string
	ProductsFound int
	ProductsSaved int
	Error         string
	Duration      time.Duration
}

// ProgressFunc observes each finished job with a stats snapshot taken
// just after the result was folded in.
type ProgressFunc func(Result, Snapshot)

// Options tunes a Pool. Zero values pick the documented defaults.
type Options struct {
	Workers     int
	MaxRetries  int // 0 disables retries
	WaitSeconds int
	Progress    ProgressFunc
}

// Pool owns the worker sessions and runs jobs through them.
type Pool struct {
	workers     int
	maxRetries  int
	waitSeconds int
	progress    ProgressFunc

	newSession func(index int) Session
	extractor  *extract.Extractor
	queue      QueueClient
	store      Saver
	breaker    *breaker.CircuitBreaker
	registry   *browser.Registry
	logger     *slog.Logger

	sleep func(time.Duration)

	mu       sync.Mutex
	sessions []Session

	stats Stats
}

// New builds a Pool. queue and store may be nil for bulk runs without
// persistence (dry runs, local debugging).
func New(opts Options, newSession func(index int) Session, extractor *extract.Extractor, q QueueClient, s Saver, b *breaker.CircuitBreaker, reg *browser.Registry, logger *slog.Logger) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Pool{
		workers:     opts.Workers,
		maxRetries:  opts.MaxRetries,
		waitSeconds: opts.WaitSeconds,
		progress:    opts.Progress,
		newSession:  newSession,
		extractor:   extractor,
		queue:       q,
		store:       s,
		breaker:     b,
		registry:    reg,
		logger:      logger.With("component", "worker_pool"),
		sleep:       time.Sleep,
	}
}

// RunBulk processes operator-supplied URL entries and returns the final
// stats. Sessions persist for the whole run and are closed at the end.
func (p *Pool) RunBulk(ctx context.Context, entries []urls.Entry) ([]Result, Snapshot) {
	jobs := make([]Job, 0, len(entries))
	for _, e := range entries {
		jobs = append(jobs, Job{
			URL:               e.URL,
			ProductTypeID:     e.ProductTypeID,
			SearchedProductID: e.SearchedProductID,
		})
	}
	defer p.closeSessions()
	results := p.runJobs(ctx, jobs)
	return results, p.stats.Snapshot()
}

// QueueOptions tunes a queue-driven run.
type QueueOptions struct {
	BatchSize     int
	Limit         int // 0 means unbounded
	Offset        int
	StatusFilters []string
	DryRunSample  int
	DryRunOnly    bool
}

// RunQueue claims and processes batches until the queue is drained, the
// limit is reached, or the context is cancelled. Each batch gets a fresh
// worker token so claims are attributable in the queue table.
func (p *Pool) RunQueue(ctx context.Context, opts QueueOptions) (Snapshot, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	defer p.closeSessions()

	workerPrefix := uuid.NewString()[:8]
	log := p.logger.With("worker_prefix", workerPrefix)

	minID, err := p.queue.IDAtOffset(ctx, opts.Offset, opts.StatusFilters)
	if err != nil {
		// The queue being unreachable is never fatal to the pool.
		log.Error("offset lookup failed; starting without a lower bound", "error", err)
	} else if opts.Offset > 0 && minID == nil {
		log.Info("offset is past the end of the queue", "offset", opts.Offset)
		return p.stats.Snapshot(), nil
	}

	// A dry-run sample caps how much of the queue one run may touch.
	limit := opts.Limit
	if opts.DryRunSample > 0 && (limit == 0 || opts.DryRunSample < limit) {
		limit = opts.DryRunSample
	}

	processed := 0
	for batchIndex := 0; ; batchIndex++ {
		if err := ctx.Err(); err != nil {
			return p.stats.Snapshot(), err
		}

		batchSize := opts.BatchSize
		if limit > 0 && limit-processed < batchSize {
			batchSize = limit - processed
		}
		if batchSize <= 0 {
			break
		}

		workerID := workerToken(workerPrefix, batchIndex)
		records, err := p.queue.Claim(ctx, batchSize, workerID, opts.StatusFilters, minID)
		if err != nil {
			// Treat the cycle as an empty batch and finish cleanly.
			log.Error("claim failed", "batch", batchIndex, "error", err)
			break
		}
		if len(records) == 0 {
			log.Info("queue drained", "batches", batchIndex, "processed", processed)
			break
		}

		if opts.DryRunSample > 0 {
			p.logDryRunSample(log, records, opts.DryRunSample)
		}

		jobs := make([]Job, 0, len(records))
		for _, rec := range records {
			jobs = append(jobs, Job{
				URL:           rec.URL,
				QueueID:       &rec.ID,
				ProductTypeID: rec.ProductTypeID,
				RetryCount:    rec.RetryCount,
			})
		}
		p.runJobs(ctx, jobs)
		processed += len(records)

		if opts.DryRunOnly {
			log.Info("stopping after one batch", "processed", processed)
			break
		}
		if limit > 0 && processed >= limit {
			log.Info("row limit reached", "limit", limit)
			break
		}
	}
	return p.stats.Snapshot(), nil
}

// runJobs fans jobs out to the pool's workers and blocks until all are
// done. Sessions are created lazily on first use and kept for later calls.
func (p *Pool) runJobs(ctx context.Context, jobs []Job) []Result {
	if len(jobs) == 0 {
		return nil
	}
	p.stats.AddSubmitted(len(jobs))

	workers := p.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	jobCh := make(chan Job)
	results := make([]Result, 0, len(jobs))
	var resMu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		sess := p.sessionFor(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				res := p.runJob(ctx, sess, job)
				p.stats.Record(res)
				p.ack(ctx, job, res)
				p.report(res)
				resMu.Lock()
				results = append(results, res)
				resMu.Unlock()
			}
		}()
	}

	for _, job := range jobs {
		select {
		case <-ctx.Done():
		case jobCh <- job:
			continue
		}
		break
	}
	close(jobCh)
	wg.Wait()
	return results
}

// runJob makes up to maxRetries+1 attempts for queue-less jobs; queued
// jobs get exactly one attempt here, the ack cycle handles re-delivery.
func (p *Pool) runJob(ctx context.Context, sess Session, job Job) Result {
	attempts := 1
	if job.QueueID == nil && p.maxRetries > 0 {
		attempts = p.maxRetries + 1
	}

	var res Result
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			p.sleep(breaker.Backoff(job.RetryCount + attempt - 1))
		}
		res = p.attempt(ctx, sess, job)
		if res.Success || ctx.Err() != nil {
			break
		}
	}
	return res
}

// attempt is one navigate/extract/save cycle.
func (p *Pool) attempt(ctx context.Context, sess Session, job Job) Result {
	start := time.Now()
	res := Result{URL: job.URL}

	if p.breaker != nil {
		if err := p.breaker.Wait(ctx); err != nil {
			res.Error = err.Error()
			res.Duration = time.Since(start)
			return res
		}
	}

	page, cleanup, err := sess.Navigate(ctx, job.URL, p.waitSeconds)
	if err != nil {
		// A broken browser poisons every later job on this worker.
		sess.Recycle()
		if p.breaker != nil && p.breaker.RecordFailure(err) {
			p.logger.Warn("circuit breaker tripped", "url", job.URL, "error", err)
		}
		res.Error = err.Error()
		res.Duration = time.Since(start)
		return res
	}

	extracted := p.extractor.Extract(page)
	cleanup()

	res.Strategy = extracted.Strategy
	res.ProductsFound = len(extracted.Products)
	if res.ProductsFound > 0 && p.store != nil {
		res.ProductsSaved = p.store.Save(ctx, extracted.Products, job.URL, job.ProductTypeID, job.SearchedProductID)
	}
	res.Success = res.ProductsFound > 0 || extracted.NoResults
	if !res.Success {
		res.Error = "no products found on page"
	}
	if res.Success && p.breaker != nil {
		p.breaker.RecordSuccess()
	}
	res.Duration = time.Since(start)
	return res
}

// ack writes the job outcome back to the queue. Bulk jobs have no queue
// row; ack failures are logged and swallowed so a flaky control plane
// never wedges a worker.
func (p *Pool) ack(ctx context.Context, job Job, res Result) {
	if job.QueueID == nil || p.queue == nil {
		return
	}

	upd := buildUpdate(job, res, p.maxRetries)
	if upd.ProcessingStatus == types.StatusRetrying {
		// Hold the row briefly so its redelivery is spaced out.
		p.sleep(breaker.Backoff(job.RetryCount))
	}
	if err := p.queue.Ack(ctx, *job.QueueID, upd); err != nil {
		p.logger.Error("ack failed",
			"queue_id", *job.QueueID,
			"status", upd.ProcessingStatus,
			"error", err,
		)
	}
}

// buildUpdate maps a result to the queue row transition: completed on
// success, retrying while budget remains, failed otherwise. The claim is
// always released.
func buildUpdate(job Job, res Result, maxRetries int) types.TerminalUpdate {
	attemptCount := job.RetryCount + 1
	success := res.Success
	found := res.ProductsFound
	saved := res.ProductsSaved

	if res.Success {
		return types.TerminalUpdate{
			ProcessingStatus: types.StatusCompleted,
			Success:          &success,
			ProductsFound:    &found,
			ProductsSaved:    &saved,
			RetryCount:       &attemptCount,
			ClearClaim:       true,
		}
	}

	errMsg := res.Error
	if shouldRetry(job.RetryCount, maxRetries) {
		nextRetry := job.RetryCount + 1
		return types.TerminalUpdate{
			ProcessingStatus: types.StatusRetrying,
			Success:          &success,
			ErrorMessage:     &errMsg,
			RetryCount:       &nextRetry,
			ClearClaim:       true,
		}
	}
	return types.TerminalUpdate{
		ProcessingStatus: types.StatusFailed,
		Success:          &success,
		ProductsFound:    &found,
		ProductsSaved:    &saved,
		ErrorMessage:     &errMsg,
		RetryCount:       &attemptCount,
		ClearClaim:       true,
	}
}

// shouldRetry reports whether a failed row still has retry budget.
func shouldRetry(currentRetries, maxRetries int) bool {
	return maxRetries > 0 && currentRetries < maxRetries
}

func (p *Pool) logDryRunSample(log *slog.Logger, records []types.URLRecord, sample int) {
	if sample > len(records) {
		sample = len(records)
	}
	for i := 0; i < sample; i++ {
		log.Info("dry run sample",
			"queue_id", records[i].ID,
			"url", records[i].URL,
			"retry_count", records[i].RetryCount,
		)
	}
}

// sessionFor returns the worker's session, creating and registering it on
// first use.
func (p *Pool) sessionFor(index int) Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.sessions) <= index {
		p.sessions = append(p.sessions, nil)
	}
	if p.sessions[index] == nil {
		sess := p.newSession(index)
		if p.registry != nil {
			if bs, ok := sess.(*browser.Session); ok {
				p.registry.Add(bs)
			}
		}
		p.sessions[index] = sess
	}
	return p.sessions[index]
}

func (p *Pool) closeSessions() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = nil
	p.mu.Unlock()

	for _, sess := range sessions {
		if sess == nil {
			continue
		}
		if p.registry != nil {
			if bs, ok := sess.(*browser.Session); ok {
				p.registry.Remove(bs)
			}
		}
		sess.Close()
	}
}

// report invokes the progress callback; a panicking observer must never
// take a worker down.
func (p *Pool) report(res Result) {
	if p.progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("progress callback panicked", "panic", r)
		}
	}()
	p.progress(res, p.stats.Snapshot())
}

// workerToken builds the claim attribution token for one batch.
func workerToken(prefix string, batchIndex int) string {
	return prefix + "-" + strconv.Itoa(batchIndex)
}
