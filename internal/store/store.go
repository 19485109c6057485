// Package store persists extracted products. Inserts are idempotent by
// the product_url unique constraint: a duplicate counts as saved.
package store

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"prodex/internal/normalize"
	"prodex/internal/types"
)

const uniqueViolationCode = "23505"

const insertSQL = `
INSERT INTO r_product_data (
	platform_url, product_name, original_price, current_price,
	product_url, product_image_url, description, rating, reviews,
	in_stock, brand, product_type_id, searched_product_id
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// ProductStore writes candidate products to the product table.
type ProductStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func New(pool *pgxpool.Pool, logger *slog.Logger) *ProductStore {
	return &ProductStore{
		pool:   pool,
		logger: logger.With("component", "product_store"),
	}
}

// Save inserts each candidate extracted from platformURL. Rows missing a
// name or URL are dropped; duplicates count as saved; any other row error
// is logged and skipped. Returns how many rows are now in the table.
func (s *ProductStore) Save(ctx context.Context, candidates []*types.Candidate, platformURL string, productTypeID, searchedProductID *int64) int {
	if len(candidates) == 0 {
		return 0
	}

	saved, failed := 0, 0
	for _, c := range candidates {
		rec, ok := buildRecord(c, platformURL, productTypeID, searchedProductID)
		if !ok {
			failed++
			continue
		}

		_, err := s.pool.Exec(ctx, insertSQL,
			rec.PlatformURL,
			rec.ProductName,
			rec.OriginalPrice,
			rec.CurrentPrice,
			rec.ProductURL,
			rec.ProductImageURL,
			rec.Description,
			rec.Rating,
			rec.Reviews,
			rec.InStock,
			rec.Brand,
			rec.ProductTypeID,
			rec.SearchedProductID,
		)
		switch {
		case err == nil:
			saved++
		case isDuplicate(err):
			// Already in the table, which is what we wanted.
			saved++
		default:
			failed++
			s.logger.Error("save product failed",
				"product_url", rec.ProductURL,
				"error", &types.StoreError{ProductURL: rec.ProductURL, Err: err},
			)
		}
	}

	s.logger.Info("products saved",
		"platform_url", platformURL,
		"saved", saved,
		"failed", failed,
		"total", len(candidates),
	)
	return saved
}

// buildRecord clamps and maps a candidate to a table row. ok is false when
// required fields are missing.
func buildRecord(c *types.Candidate, platformURL string, productTypeID, searchedProductID *int64) (*types.ProductRecord, bool) {
	if c.Title == "" || c.ProductURL == "" {
		return nil, false
	}

	rec := &types.ProductRecord{
		PlatformURL:       platformURL,
		ProductName:       c.Title,
		ProductURL:        c.ProductURL,
		CurrentPrice:      normalize.ClampPrice(c.Price),
		Rating:            normalize.ClampRating(c.Rating),
		Reviews:           normalize.ClampReviews(c.ReviewCount),
		InStock:           c.InStock,
		ProductTypeID:     productTypeID,
		SearchedProductID: searchedProductID,
	}
	if c.RawPrice != "" {
		raw := c.RawPrice
		rec.OriginalPrice = &raw
	}
	if c.ImageURL != "" {
		img := c.ImageURL
		rec.ProductImageURL = &img
	}
	if c.Description != "" {
		desc := normalize.TruncateDescription(c.Description)
		rec.Description = &desc
	}
	if c.Brand != "" {
		brand := c.Brand
		rec.Brand = &brand
	}
	return rec, true
}

func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
