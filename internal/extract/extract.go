// Package extract turns a rendered listing page into product candidates.
// Strategies are tried in order of reliability; the first one that yields
// validated candidates wins and the rest never run.
package extract

import (
	"log/slog"

	"prodex/internal/dom"
	"prodex/internal/types"
	"prodex/internal/validate"
)

// DefaultMaxItems caps how many products a single page may contribute.
const DefaultMaxItems = 50

// strategy is one way of reading products off a page. Implementations
// return validated candidates only.
type strategy interface {
	name() string
	extract(page dom.Page, maxItems int) []*types.Candidate
}

// Result is the outcome of extracting a single page.
type Result struct {
	Products []*types.Candidate
	Strategy string // which strategy produced the products, "" when none did
	// NoResults is true when the page explicitly said the query matched
	// nothing, which makes an empty Products a success rather than a miss.
	NoResults bool
}

// Extractor runs the layered strategy cascade over rendered pages.
type Extractor struct {
	maxItems   int
	validator  *validate.PageValidator
	strategies []strategy
	logger     *slog.Logger
}

// New builds an Extractor. maxItems <= 0 selects DefaultMaxItems.
func New(logger *slog.Logger, maxItems int) *Extractor {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	v := validate.New()
	return &Extractor{
		maxItems:  maxItems,
		validator: v,
		strategies: []strategy{
			&cardStrategy{v: v},
			&jsonLDStrategy{v: v},
			&microdataStrategy{v: v},
			&inlineJSONStrategy{v: v},
			&heuristicStrategy{v: v},
			&linkStrategy{v: v},
		},
		logger: logger.With("component", "extractor"),
	}
}

// Extract runs the cascade against page. It always returns a Result; pages
// with nothing extractable yield an empty product list.
func (e *Extractor) Extract(page dom.Page) *Result {
	for _, s := range e.strategies {
		products := s.extract(page, e.maxItems)
		if len(products) == 0 {
			continue
		}
		products = dedupeByURL(products)
		if len(products) > e.maxItems {
			products = products[:e.maxItems]
		}
		e.logger.Debug("strategy produced products",
			"strategy", s.name(),
			"count", len(products),
			"page_url", page.URL(),
		)
		return &Result{Products: products, Strategy: s.name()}
	}

	if e.validator.IndicatesNoResults(page.BodyText()) {
		e.logger.Debug("page indicates no results", "page_url", page.URL())
		return &Result{NoResults: true}
	}
	return &Result{}
}

// dedupeByURL keeps the first candidate per product_url and back-fills its
// empty fields from later duplicates. Order of first appearance is kept.
func dedupeByURL(products []*types.Candidate) []*types.Candidate {
	seen := make(map[string]*types.Candidate, len(products))
	out := make([]*types.Candidate, 0, len(products))
	for _, p := range products {
		if p.ProductURL == "" {
			continue
		}
		if first, ok := seen[p.ProductURL]; ok {
			first.MergeMissing(p)
			continue
		}
		seen[p.ProductURL] = p
		out = append(out, p)
	}
	return out
}

// firstText returns the first non-empty text for the selector family,
// preferring content and aria-label attributes over element text.
func firstText(scope dom.Node, selectors []string) string {
	for _, sel := range selectors {
		el := scope.Find(sel)
		if el == nil {
			continue
		}
		for _, got := range []string{el.Attr("content"), el.Attr("aria-label"), el.Text()} {
			if got != "" {
				return got
			}
		}
	}
	return ""
}

// firstAttr returns the first non-empty value of attr across the family.
func firstAttr(scope dom.Node, selectors []string, attr string) string {
	for _, sel := range selectors {
		el := scope.Find(sel)
		if el == nil {
			continue
		}
		if got := el.Attr(attr); got != "" {
			return got
		}
	}
	return ""
}
