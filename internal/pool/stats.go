package pool

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats aggregates run counters. All fields are updated atomically so the
// progress callback can snapshot them from any worker.
type Stats struct {
	submitted     atomic.Int64
	succeeded     atomic.Int64
	failed        atomic.Int64
	productsFound atomic.Int64
	savedToDB     atomic.Int64

	startOnce sync.Once
	start     atomic.Int64 // unix nanos
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Submitted          int64   `json:"submitted"`
	Succeeded          int64   `json:"succeeded"`
	Failed             int64   `json:"failed"`
	TotalProductsFound int64   `json:"total_products_found"`
	TotalSavedToDB     int64   `json:"total_saved_to_db"`
	DurationSeconds    float64 `json:"duration_seconds"`
}

// AddSubmitted marks n jobs as handed to the pool and starts the run
// clock on the first call.
func (s *Stats) AddSubmitted(n int) {
	s.startOnce.Do(func() { s.start.Store(time.Now().UnixNano()) })
	s.submitted.Add(int64(n))
}

// Record folds one finished job into the counters.
func (s *Stats) Record(res Result) {
	if res.Success {
		s.succeeded.Add(1)
	} else {
		s.failed.Add(1)
	}
	s.productsFound.Add(int64(res.ProductsFound))
	s.savedToDB.Add(int64(res.ProductsSaved))
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() Snapshot {
	var elapsed float64
	if start := s.start.Load(); start > 0 {
		elapsed = time.Since(time.Unix(0, start)).Seconds()
	}
	return Snapshot{
		Submitted:          s.submitted.Load(),
		Succeeded:          s.succeeded.Load(),
		Failed:             s.failed.Load(),
		TotalProductsFound: s.productsFound.Load(),
		TotalSavedToDB:     s.savedToDB.Load(),
		DurationSeconds:    elapsed,
	}
}
