package pool

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"prodex/internal/dom"
	"prodex/internal/extract"
	"prodex/internal/types"
	"prodex/internal/urls"
)

const productPageHTML = `
<html><body>
  <div class="product-grid">
    <div class="product-card">
      <a href="/p/mouse-1" title="Wireless Mouse">Wireless Mouse</a>
      <img src="https://cdn.example/m1.jpg" alt="Wireless Mouse">
      <span class="price">$24.99</span>
    </div>
  </div>
</body></html>`

const emptyPageHTML = `<html><body><main><p>Loading...</p></main></body></html>`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSession serves canned pages keyed by URL; unknown URLs fail.
type fakeSession struct {
	mu        sync.Mutex
	pages     map[string]string
	navErrs   map[string]error
	navCount  map[string]int
	recycled  int
	closed    int
	cleanedUp int
}

func newFakeSession(pages map[string]string, navErrs map[string]error) *fakeSession {
	return &fakeSession{pages: pages, navErrs: navErrs, navCount: make(map[string]int)}
}

func (f *fakeSession) Navigate(_ context.Context, pageURL string, _ int) (dom.Page, func(), error) {
	f.mu.Lock()
	f.navCount[pageURL]++
	f.mu.Unlock()
	if err, ok := f.navErrs[pageURL]; ok {
		return nil, nil, err
	}
	html, ok := f.pages[pageURL]
	if !ok {
		return nil, nil, errors.New("unknown page")
	}
	page, err := dom.NewStaticPage(pageURL, html)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		f.mu.Lock()
		f.cleanedUp++
		f.mu.Unlock()
	}
	return page, cleanup, nil
}

func (f *fakeSession) Recycle() {
	f.mu.Lock()
	f.recycled++
	f.mu.Unlock()
}

func (f *fakeSession) Close() {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
}

// fakeQueue hands out scripted claim batches and records acks.
type fakeQueue struct {
	mu       sync.Mutex
	batches  [][]types.URLRecord
	claimErr error // returned by the next Claim, then cleared
	acks     map[int64][]types.TerminalUpdate
	offset   *int64
}

func newFakeQueue(batches ...[]types.URLRecord) *fakeQueue {
	return &fakeQueue{batches: batches, acks: make(map[int64][]types.TerminalUpdate)}
}

func (f *fakeQueue) Claim(_ context.Context, batchSize int, _ string, _ []string, _ *int64) ([]types.URLRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		err := f.claimErr
		f.claimErr = nil
		return nil, err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	if len(batch) > batchSize {
		batch = batch[:batchSize]
	}
	return batch, nil
}

func (f *fakeQueue) Ack(_ context.Context, id int64, upd types.TerminalUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks[id] = append(f.acks[id], upd)
	return nil
}

func (f *fakeQueue) IDAtOffset(context.Context, int, []string) (*int64, error) {
	return f.offset, nil
}

func (f *fakeQueue) lastAck(id int64) (types.TerminalUpdate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	updates := f.acks[id]
	if len(updates) == 0 {
		return types.TerminalUpdate{}, false
	}
	return updates[len(updates)-1], true
}

// fakeStore saves everything it is given.
type fakeStore struct {
	mu    sync.Mutex
	saved int
}

func (f *fakeStore) Save(_ context.Context, candidates []*types.Candidate, _ string, _, _ *int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved += len(candidates)
	return len(candidates)
}

func newTestPool(t *testing.T, opts Options, sess Session, q QueueClient, s Saver) *Pool {
	t.Helper()
	logger := testLogger()
	p := New(opts, func(int) Session { return sess }, extract.New(logger, 0), q, s, nil, nil, logger)
	p.sleep = func(time.Duration) {}
	return p
}

func TestRunBulkSuccess(t *testing.T) {
	sess := newFakeSession(map[string]string{
		"https://shop.example/search?q=mouse": productPageHTML,
	}, nil)
	st := &fakeStore{}
	p := newTestPool(t, Options{Workers: 2}, sess, nil, st)

	results, snap := p.RunBulk(context.Background(), []urls.Entry{
		{URL: "https://shop.example/search?q=mouse"},
	})
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("results = %+v", results)
	}
	if results[0].ProductsFound != 1 || results[0].ProductsSaved != 1 {
		t.Errorf("found = %d, saved = %d", results[0].ProductsFound, results[0].ProductsSaved)
	}
	if snap.Succeeded != 1 || snap.Failed != 0 || snap.TotalSavedToDB != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
	if sess.closed == 0 {
		t.Error("sessions must be closed when the run ends")
	}
}

func TestRunBulkRetriesThenFails(t *testing.T) {
	url := "https://shop.example/empty"
	sess := newFakeSession(map[string]string{url: emptyPageHTML}, nil)
	p := newTestPool(t, Options{Workers: 1, MaxRetries: 2}, sess, nil, nil)

	results, snap := p.RunBulk(context.Background(), []urls.Entry{{URL: url}})
	if len(results) != 1 || results[0].Success {
		t.Fatalf("results = %+v", results)
	}
	if got := sess.navCount[url]; got != 3 {
		t.Errorf("navigations = %d, want 3 (initial + 2 retries)", got)
	}
	if snap.Failed != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestNavigateErrorRecyclesSession(t *testing.T) {
	url := "https://shop.example/broken"
	sess := newFakeSession(nil, map[string]error{url: errors.New("browser crashed")})
	p := newTestPool(t, Options{Workers: 1}, sess, nil, nil)

	results, _ := p.RunBulk(context.Background(), []urls.Entry{{URL: url}})
	if results[0].Success {
		t.Fatal("navigation error must fail the job")
	}
	if sess.recycled == 0 {
		t.Error("a navigation error must recycle the session")
	}
}

func TestRunQueueCompletedAck(t *testing.T) {
	url := "https://shop.example/search?q=mouse"
	q := newFakeQueue([]types.URLRecord{
		{ID: 7, URL: url, RetryCount: 1, ProcessingStatus: types.StatusClaimed},
	})
	sess := newFakeSession(map[string]string{url: productPageHTML}, nil)
	st := &fakeStore{}
	p := newTestPool(t, Options{Workers: 1, MaxRetries: 3}, sess, q, st)

	snap, err := p.RunQueue(context.Background(), QueueOptions{BatchSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	if snap.Succeeded != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}

	upd, ok := q.lastAck(7)
	if !ok {
		t.Fatal("row 7 was never acked")
	}
	if upd.ProcessingStatus != types.StatusCompleted {
		t.Errorf("status = %q", upd.ProcessingStatus)
	}
	if upd.Success == nil || !*upd.Success {
		t.Error("success must be true")
	}
	if upd.RetryCount == nil || *upd.RetryCount != 2 {
		t.Errorf("retry_count = %v, want attempt count 2", upd.RetryCount)
	}
	if !upd.ClearClaim {
		t.Error("claim must be released")
	}
}

func TestRunQueueRetryingAck(t *testing.T) {
	url := "https://shop.example/empty"
	q := newFakeQueue([]types.URLRecord{
		{ID: 3, URL: url, RetryCount: 0, ProcessingStatus: types.StatusClaimed},
	})
	sess := newFakeSession(map[string]string{url: emptyPageHTML}, nil)
	p := newTestPool(t, Options{Workers: 1, MaxRetries: 3}, sess, q, nil)

	if _, err := p.RunQueue(context.Background(), QueueOptions{BatchSize: 10}); err != nil {
		t.Fatal(err)
	}

	upd, _ := q.lastAck(3)
	if upd.ProcessingStatus != types.StatusRetrying {
		t.Errorf("status = %q, want retrying", upd.ProcessingStatus)
	}
	if upd.RetryCount == nil || *upd.RetryCount != 1 {
		t.Errorf("retry_count = %v, want 1", upd.RetryCount)
	}
	if upd.ErrorMessage == nil || *upd.ErrorMessage == "" {
		t.Error("error message must be recorded")
	}
	if got := sess.navCount[url]; got != 1 {
		t.Errorf("navigations = %d; queued jobs get one attempt per claim", got)
	}
}

func TestRunQueueFailedAckWhenBudgetExhausted(t *testing.T) {
	url := "https://shop.example/empty"
	q := newFakeQueue([]types.URLRecord{
		{ID: 9, URL: url, RetryCount: 3, ProcessingStatus: types.StatusClaimed},
	})
	sess := newFakeSession(map[string]string{url: emptyPageHTML}, nil)
	p := newTestPool(t, Options{Workers: 1, MaxRetries: 3}, sess, q, nil)

	if _, err := p.RunQueue(context.Background(), QueueOptions{BatchSize: 10}); err != nil {
		t.Fatal(err)
	}

	upd, _ := q.lastAck(9)
	if upd.ProcessingStatus != types.StatusFailed {
		t.Errorf("status = %q, want failed", upd.ProcessingStatus)
	}
	if upd.RetryCount == nil || *upd.RetryCount != 4 {
		t.Errorf("retry_count = %v, want attempt count 4", upd.RetryCount)
	}
}

func TestRunQueueLimit(t *testing.T) {
	url := "https://shop.example/search?q=mouse"
	q := newFakeQueue(
		[]types.URLRecord{{ID: 1, URL: url}, {ID: 2, URL: url}},
		[]types.URLRecord{{ID: 3, URL: url}},
	)
	sess := newFakeSession(map[string]string{url: productPageHTML}, nil)
	p := newTestPool(t, Options{Workers: 1}, sess, q, nil)

	snap, err := p.RunQueue(context.Background(), QueueOptions{BatchSize: 2, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if snap.Submitted != 2 {
		t.Errorf("submitted = %d, want limit-bounded 2", snap.Submitted)
	}
	if _, acked := q.lastAck(3); acked {
		t.Error("row past the limit must not be touched")
	}
}

func TestRunQueueClaimErrorEndsRunCleanly(t *testing.T) {
	url := "https://shop.example/search?q=mouse"
	q := newFakeQueue([]types.URLRecord{{ID: 1, URL: url}})
	q.claimErr = errors.New("transient network blip")
	sess := newFakeSession(map[string]string{url: productPageHTML}, nil)
	p := newTestPool(t, Options{Workers: 1}, sess, q, nil)

	snap, err := p.RunQueue(context.Background(), QueueOptions{BatchSize: 10})
	if err != nil {
		t.Fatalf("a claim error must not abort the run: %v", err)
	}
	if snap.Submitted != 0 {
		t.Errorf("submitted = %d, want 0 (failed cycle counts as empty)", snap.Submitted)
	}
	if _, acked := q.lastAck(1); acked {
		t.Error("no rows may be touched after a failed claim")
	}
}

func TestRunQueueDryRunSampleCapsWork(t *testing.T) {
	url := "https://shop.example/search?q=mouse"
	q := newFakeQueue([]types.URLRecord{
		{ID: 1, URL: url}, {ID: 2, URL: url}, {ID: 3, URL: url},
	})
	sess := newFakeSession(map[string]string{url: productPageHTML}, nil)
	p := newTestPool(t, Options{Workers: 1}, sess, q, nil)

	snap, err := p.RunQueue(context.Background(), QueueOptions{
		BatchSize: 10, DryRunSample: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if snap.Submitted != 1 {
		t.Errorf("submitted = %d, want 1 (sample caps the run)", snap.Submitted)
	}
	upd, ok := q.lastAck(1)
	if !ok {
		t.Fatal("the sampled row must be processed and acked")
	}
	if upd.ProcessingStatus != types.StatusCompleted {
		t.Errorf("status = %q, want completed", upd.ProcessingStatus)
	}
}

func TestRunQueueDryRunOnlyStopsAfterOneBatch(t *testing.T) {
	url := "https://shop.example/search?q=mouse"
	q := newFakeQueue(
		[]types.URLRecord{{ID: 1, URL: url}, {ID: 2, URL: url}},
		[]types.URLRecord{{ID: 3, URL: url}},
	)
	sess := newFakeSession(map[string]string{url: productPageHTML}, nil)
	p := newTestPool(t, Options{Workers: 1}, sess, q, nil)

	snap, err := p.RunQueue(context.Background(), QueueOptions{
		BatchSize: 2, DryRunOnly: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if snap.Submitted != 2 {
		t.Errorf("submitted = %d, want the first batch only", snap.Submitted)
	}
	if _, acked := q.lastAck(1); !acked {
		t.Error("first-batch rows must still be processed")
	}
	if _, acked := q.lastAck(3); acked {
		t.Error("a second batch must not be claimed")
	}
}

func TestRetryingAckWaitsBackoff(t *testing.T) {
	url := "https://shop.example/empty"
	q := newFakeQueue([]types.URLRecord{
		{ID: 4, URL: url, RetryCount: 1, ProcessingStatus: types.StatusClaimed},
	})
	sess := newFakeSession(map[string]string{url: emptyPageHTML}, nil)
	p := newTestPool(t, Options{Workers: 1, MaxRetries: 3}, sess, q, nil)

	var slept []time.Duration
	p.sleep = func(d time.Duration) { slept = append(slept, d) }

	if _, err := p.RunQueue(context.Background(), QueueOptions{BatchSize: 10}); err != nil {
		t.Fatal(err)
	}

	upd, _ := q.lastAck(4)
	if upd.ProcessingStatus != types.StatusRetrying {
		t.Fatalf("status = %q, want retrying", upd.ProcessingStatus)
	}
	want := 7 * time.Second // 5s base + 2s per prior retry
	found := false
	for _, d := range slept {
		if d == want {
			found = true
		}
	}
	if !found {
		t.Errorf("slept %v, want a %v pause before the retrying ack", slept, want)
	}
}

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		current, max int
		want         bool
	}{
		{0, 3, true},
		{2, 3, true},
		{3, 3, false},
		{0, 0, false},
		{5, 3, false},
	}
	for _, tc := range cases {
		if got := shouldRetry(tc.current, tc.max); got != tc.want {
			t.Errorf("shouldRetry(%d, %d) = %v, want %v", tc.current, tc.max, got, tc.want)
		}
	}
}

func TestProgressCallbackPanicIsContained(t *testing.T) {
	url := "https://shop.example/search?q=mouse"
	sess := newFakeSession(map[string]string{url: productPageHTML}, nil)
	calls := 0
	opts := Options{
		Workers: 1,
		Progress: func(Result, Snapshot) {
			calls++
			panic("observer bug")
		},
	}
	p := newTestPool(t, opts, sess, nil, nil)

	results, _ := p.RunBulk(context.Background(), []urls.Entry{{URL: url}})
	if calls != 1 {
		t.Errorf("progress calls = %d, want 1", calls)
	}
	if len(results) != 1 || !results[0].Success {
		t.Errorf("results = %+v", results)
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, []Result{
		{URL: "https://a.example", Success: true, ProductsFound: 3, Strategy: "dom_cards"},
		{URL: "https://b.example", Error: "no products found on page"},
	}, Snapshot{Submitted: 2, Succeeded: 1, Failed: 1, TotalProductsFound: 3, TotalSavedToDB: 3, DurationSeconds: 1.5})

	out := buf.String()
	for _, want := range []string{
		"BULK EXTRACTION SUMMARY",
		"URLs submitted:   2",
		"✓ https://a.example",
		"dom_cards",
		"✗ https://b.example",
		"no products found on page",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
