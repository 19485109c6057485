// Package queue is the client side of the URL work queue: atomic batch
// claims through a server-side procedure and terminal acknowledgements.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"prodex/internal/normalize"
	"prodex/internal/types"
)

// DefaultStatusFilters is claimed when the operator sets no filter.
var DefaultStatusFilters = []string{types.StatusPending, types.StatusRetrying}

const claimSQL = `
SELECT id, product_page_url, product_type_id, processing_status,
       retry_count, claimed_by, claimed_at
FROM claim_product_page_urls($1, $2, $3, $4)`

// Client talks to the queue table. All claim paths go through the stored
// procedure so no two workers ever observe the same row.
type Client struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewClient(pool *pgxpool.Pool, logger *slog.Logger) *Client {
	return &Client{
		pool:   pool,
		logger: logger.With("component", "queue"),
	}
}

// Claim atomically claims up to batchSize rows matching statusFilters with
// id >= minID (nil minID means no lower bound). Rows come back already
// transitioned to claimed and stamped with workerID.
func (c *Client) Claim(ctx context.Context, batchSize int, workerID string, statusFilters []string, minID *int64) ([]types.URLRecord, error) {
	if batchSize <= 0 {
		return nil, nil
	}
	if len(statusFilters) == 0 {
		statusFilters = DefaultStatusFilters
	}

	rows, err := c.pool.Query(ctx, claimSQL, batchSize, workerID, statusFilters, minID)
	if err != nil {
		return nil, &types.QueueError{Op: "claim", Err: err}
	}
	defer rows.Close()

	var claimed []types.URLRecord
	for rows.Next() {
		var rec types.URLRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.URL,
			&rec.ProductTypeID,
			&rec.ProcessingStatus,
			&rec.RetryCount,
			&rec.ClaimedBy,
			&rec.ClaimedAt,
		); err != nil {
			return nil, &types.QueueError{Op: "claim", Err: err}
		}
		claimed = append(claimed, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.QueueError{Op: "claim", Err: err}
	}

	c.logger.Debug("batch claimed",
		"worker_id", workerID,
		"requested", batchSize,
		"claimed", len(claimed),
	)
	return claimed, nil
}

// Ack writes a terminal (or retrying) update for one row. It is a plain
// UPDATE by id: acking the same row twice is harmless.
func (c *Client) Ack(ctx context.Context, id int64, upd types.TerminalUpdate) error {
	sql, args := buildAckQuery(id, upd)
	if _, err := c.pool.Exec(ctx, sql, args...); err != nil {
		return &types.QueueError{Op: "ack", Err: err}
	}
	return nil
}

// IDAtOffset resolves the queue id sitting at the given row offset within
// statusFilters, for DB_URL_OFFSET support. Returns nil when the offset is
// past the end of the queue.
func (c *Client) IDAtOffset(ctx context.Context, offset int, statusFilters []string) (*int64, error) {
	if offset <= 0 {
		return nil, nil
	}
	if len(statusFilters) == 0 {
		statusFilters = DefaultStatusFilters
	}
	var id int64
	err := c.pool.QueryRow(ctx,
		`SELECT id FROM product_page_urls
		 WHERE processing_status = ANY($1)
		 ORDER BY id OFFSET $2 LIMIT 1`,
		statusFilters, offset,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &types.QueueError{Op: "offset", Err: err}
	}
	return &id, nil
}

// buildAckQuery assembles the UPDATE for a terminal update. Only fields
// present in upd are written; terminal statuses also stamp processed_at.
func buildAckQuery(id int64, upd types.TerminalUpdate) (string, []any) {
	sets := []string{"updated_at = now()"}
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.ProcessingStatus != "" {
		add("processing_status", upd.ProcessingStatus)
		if upd.ProcessingStatus == types.StatusCompleted || upd.ProcessingStatus == types.StatusFailed {
			sets = append(sets, "processed_at = now()")
		}
	}
	if upd.Success != nil {
		add("success", *upd.Success)
	}
	if upd.ProductsFound != nil {
		add("products_found", *upd.ProductsFound)
	}
	if upd.ProductsSaved != nil {
		add("products_saved", *upd.ProductsSaved)
	}
	if upd.ErrorMessage != nil {
		add("error_message", normalize.TruncateError(*upd.ErrorMessage))
	}
	if upd.RetryCount != nil {
		add("retry_count", *upd.RetryCount)
	}
	if upd.ClearClaim {
		sets = append(sets, "claimed_by = NULL", "claimed_at = NULL")
	}

	args = append(args, id)
	sql := fmt.Sprintf("UPDATE product_page_urls SET %s WHERE id = $%d",
		strings.Join(sets, ", "), len(args))
	return sql, args
}
