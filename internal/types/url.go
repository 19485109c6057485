package types

import "time"

// Processing lifecycle states for a queued URL.
const (
	StatusPending   = "pending"
	StatusClaimed   = "claimed"
	StatusRetrying  = "retrying"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// URLRecord is a row in the product_page_urls queue table.
type URLRecord struct {
	ID                int64
	URL               string
	ProductTypeID     *int64
	SearchedProductID *int64
	ProcessingStatus  string
	RetryCount        int
	ClaimedBy         *string
	ClaimedAt         *time.Time
	ProcessedAt       *time.Time
	UpdatedAt         *time.Time
	Success           *bool
	ProductsFound     *int
	ProductsSaved     *int
	ErrorMessage      *string
}

// IsTerminal reports whether the record has reached a final status.
func (r *URLRecord) IsTerminal() bool {
	return r.ProcessingStatus == StatusCompleted || r.ProcessingStatus == StatusFailed
}

// TerminalUpdate carries the fields written back to a queue row when a
// worker finishes (or gives up on) a URL. Nil pointers are left untouched.
type TerminalUpdate struct {
	ProcessingStatus string
	Success          *bool
	ProductsFound    *int
	ProductsSaved    *int
	ErrorMessage     *string
	RetryCount       *int
	ClearClaim       bool
}

// MaxErrorMessageLen is the column limit for error_message.
const MaxErrorMessageLen = 500
