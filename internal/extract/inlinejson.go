package extract

import (
	"strings"

	"prodex/internal/dom"
	"prodex/internal/normalize"
	"prodex/internal/types"
	"prodex/internal/validate"
)

const inlineJSONScriptXPath = `//script[@type="application/json" or @type="text/json" or @type="text/plain"]`

// Blobs above this size are framework state dumps, not product feeds.
const maxInlineBlobLen = 500_000

// maxJSONDepth bounds the generic walker; shallowExploreDepth lets it poke
// into top-level keys even when their names say nothing about products.
const (
	maxJSONDepth        = 6
	shallowExploreDepth = 1
)

var productKeyHints = []string{"product", "item", "sku", "listing", "result", "entries", "records"}

// Key aliases tried in order when mapping an arbitrary JSON object.
var (
	genericTitleKeys       = []string{"name", "title", "productName", "product_name", "label"}
	genericURLKeys         = []string{"url", "link", "productUrl", "productURL", "href", "canonicalUrl"}
	genericImageKeys       = []string{"image", "imageUrl", "imageURL", "thumbnail", "thumbnailUrl", "mediaUrl", "picture"}
	genericPriceKeys       = []string{"price", "salePrice", "offerPrice", "priceValue", "price_amount", "priceWithTax"}
	genericCurrencyKeys    = []string{"currency", "currencyCode", "priceCurrency"}
	genericBrandKeys       = []string{"brand", "manufacturer", "maker"}
	genericSKUKeys         = []string{"sku", "id", "productId", "product_id", "itemId"}
	genericDescriptionKeys = []string{"description", "shortDescription", "summary"}
	genericRatingKeys      = []string{"rating", "ratingValue", "averageRating", "reviewRating"}
	genericReviewKeys      = []string{"reviewCount", "reviewsCount", "numberOfReviews", "ratingCount"}
	genericStockKeys       = []string{"availability", "stockStatus", "availabilityStatus"}
)

// inlineJSONStrategy mines non-ld JSON scripts (framework payloads, data
// islands) for objects that look like products.
type inlineJSONStrategy struct {
	v *validate.PageValidator
}

func (s *inlineJSONStrategy) name() string { return "inline_json" }

func (s *inlineJSONStrategy) extract(page dom.Page, maxItems int) []*types.Candidate {
	var out []*types.Candidate
	for _, script := range page.FindAllX(inlineJSONScriptXPath) {
		raw := script.Text()
		if raw == "" || len(raw) > maxInlineBlobLen {
			continue
		}
		for _, blob := range safeJSONBlobs(raw) {
			s.collect(blob, page.URL(), &out, maxItems, 0)
			if len(out) >= maxItems {
				return out
			}
		}
	}
	return out
}

func (s *inlineJSONStrategy) collect(data any, baseURL string, out *[]*types.Candidate, maxItems, depth int) {
	if len(*out) >= maxItems || depth > maxJSONDepth {
		return
	}
	switch node := data.(type) {
	case []any:
		for _, item := range node {
			s.collect(item, baseURL, out, maxItems, depth+1)
			if len(*out) >= maxItems {
				return
			}
		}
	case map[string]any:
		if c := mapGenericProduct(node, baseURL); c != nil && s.v.Accept(c) {
			*out = append(*out, c)
			if len(*out) >= maxItems {
				return
			}
		}
		for key, value := range node {
			switch value.(type) {
			case []any, map[string]any:
			default:
				continue
			}
			if keyLooksProductish(key) {
				s.collect(value, baseURL, out, maxItems, depth+1)
			} else if depth <= shallowExploreDepth {
				s.collect(value, baseURL, out, maxItems, depth+1)
			}
		}
	}
}

func keyLooksProductish(key string) bool {
	k := strings.ToLower(key)
	for _, hint := range productKeyHints {
		if strings.Contains(k, hint) {
			return true
		}
	}
	return false
}

// mapGenericProduct maps one arbitrary JSON object to a candidate using
// key aliases. Returns nil when neither a title nor a URL surfaced.
func mapGenericProduct(node map[string]any, baseURL string) *types.Candidate {
	title := pickAlias(node, genericTitleKeys)
	rawURL := pickAlias(node, genericURLKeys)
	image := pickAlias(node, genericImageKeys)
	rawPrice := pickAlias(node, genericPriceKeys)
	currency := jsonString(pickAlias(node, genericCurrencyKeys))
	brand := jsonString(pickAlias(node, genericBrandKeys))
	sku := jsonString(pickAlias(node, genericSKUKeys))
	description := jsonString(pickAlias(node, genericDescriptionKeys))
	rating := jsonString(pickAlias(node, genericRatingKeys))
	reviews := jsonString(pickAlias(node, genericReviewKeys))
	availability := jsonString(pickAlias(node, genericStockKeys))

	// Nested shapes: {"price": {"amount": 12}}, {"url": {"href": ...}}.
	if m, ok := rawPrice.(map[string]any); ok {
		rawPrice = firstKey(m, "value", "amount", "price")
	}
	if m, ok := rawURL.(map[string]any); ok {
		rawURL = firstKey(m, "url", "href")
	}
	if m, ok := image.(map[string]any); ok {
		image = firstKey(m, "url", "src")
	}

	rawPriceStr := jsonString(rawPrice)
	parsed, detected := normalize.ParsePrice(rawPriceStr)
	if currency == "" {
		currency = detected
	}

	c := &types.Candidate{
		Title:       normalize.CleanText(jsonString(title)),
		RawPrice:    rawPriceStr,
		Price:       parsed,
		Currency:    normalize.CleanText(currency),
		Rating:      normalize.ParseFloat(rating),
		ReviewCount: normalize.ParseInt(reviews),
		InStock:     normalize.InferInStock(availability),
		Brand:       normalize.CleanText(brand),
		SKU:         normalize.CleanText(sku),
		Description: normalize.CleanText(description),
	}
	if u := jsonString(rawURL); u != "" {
		c.ProductURL = normalize.AbsoluteURL(baseURL, u)
	}
	if img := jsonString(image); img != "" {
		c.ImageURL = normalize.AbsoluteURL(baseURL, img)
	}

	if c.Title == "" && c.ProductURL == "" {
		return nil
	}
	return c
}

// pickAlias returns the first present, non-empty value among keys,
// unwrapping single-element lists the way feed payloads nest them.
func pickAlias(node map[string]any, keys []string) any {
	for _, key := range keys {
		v, ok := node[key]
		if !ok || v == nil || v == "" {
			continue
		}
		if list, isList := v.([]any); isList {
			if len(list) == 0 {
				continue
			}
			return list[0]
		}
		return v
	}
	return nil
}
