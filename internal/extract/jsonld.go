package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"prodex/internal/dom"
	"prodex/internal/normalize"
	"prodex/internal/types"
	"prodex/internal/validate"
)

const ldJSONScriptXPath = `//script[@type="application/ld+json"]`

// jsonBlockRe salvages embedded objects/arrays out of scripts that are not
// a single well-formed JSON document.
var jsonBlockRe = regexp.MustCompile(`(?s)(\{.*?\}|\[.*?\])`)

// jsonLDStrategy reads schema.org structured data out of ld+json scripts.
type jsonLDStrategy struct {
	v *validate.PageValidator
}

func (s *jsonLDStrategy) name() string { return "jsonld" }

func (s *jsonLDStrategy) extract(page dom.Page, maxItems int) []*types.Candidate {
	var out []*types.Candidate
	for _, script := range page.FindAllX(ldJSONScriptXPath) {
		for _, blob := range safeJSONBlobs(script.Text()) {
			s.collect(blob, page.URL(), &out, maxItems)
		}
	}
	if len(out) > maxItems {
		out = out[:maxItems]
	}
	return out
}

// collect walks a decoded JSON-LD value looking for Product and ListItem
// nodes, descending through itemListElement and mainEntity wrappers.
func (s *jsonLDStrategy) collect(data any, baseURL string, out *[]*types.Candidate, maxItems int) {
	if len(*out) >= maxItems {
		return
	}
	switch node := data.(type) {
	case []any:
		for _, item := range node {
			s.collect(item, baseURL, out, maxItems)
		}
	case map[string]any:
		typ := strings.ToLower(jsonString(firstKey(node, "@type", "type")))
		if typ == "product" || typ == "listitem" || strings.Contains(fmt.Sprint(node["@type"]), "Product") {
			if c := mapLDProduct(node, baseURL); c != nil && s.v.Accept(c) {
				*out = append(*out, c)
			}
		}
		if nested, ok := node["itemListElement"]; ok {
			s.collect(nested, baseURL, out, maxItems)
		}
		if nested, ok := node["mainEntity"]; ok {
			s.collect(nested, baseURL, out, maxItems)
		}
	}
}

// mapLDProduct converts one schema.org node to a candidate.
func mapLDProduct(node map[string]any, baseURL string) *types.Candidate {
	item, _ := node["item"].(map[string]any)

	name := jsonString(node["name"])
	if name == "" && item != nil {
		name = jsonString(item["name"])
	}
	rawURL := jsonString(node["url"])
	if rawURL == "" && item != nil {
		rawURL = jsonString(item["url"])
	}

	image := node["image"]
	if list, ok := image.([]any); ok && len(list) > 0 {
		image = list[0]
	}

	offers := node["offers"]
	if list, ok := offers.([]any); ok && len(list) > 0 {
		offers = list[0]
	}
	var price, currency, availability string
	if offer, ok := offers.(map[string]any); ok {
		price = jsonString(offer["price"])
		currency = jsonString(offer["priceCurrency"])
		availability = jsonString(offer["availability"])
	}

	var rating, reviews string
	if agg, ok := node["aggregateRating"].(map[string]any); ok {
		rating = jsonString(agg["ratingValue"])
		reviews = jsonString(agg["reviewCount"])
	}

	brand := node["brand"]
	if list, ok := brand.([]any); ok && len(list) > 0 {
		brand = list[0]
	}
	brandName := jsonString(brand)
	if b, ok := brand.(map[string]any); ok {
		brandName = jsonString(firstKey(b, "name", "brand"))
	}

	sku := jsonString(node["sku"])
	if sku == "" && item != nil {
		sku = jsonString(item["sku"])
	}
	description := jsonString(node["description"])
	if description == "" && item != nil {
		description = jsonString(item["description"])
	}

	parsed, detected := normalize.ParsePrice(price)
	if currency == "" {
		currency = detected
	}

	c := &types.Candidate{
		Title:       normalize.CleanText(name),
		RawPrice:    price,
		Price:       parsed,
		Currency:    normalize.CleanText(currency),
		Rating:      normalize.ParseFloat(rating),
		ReviewCount: normalize.ParseInt(reviews),
		InStock:     normalize.InferInStock(availability),
		Brand:       normalize.CleanText(brandName),
		SKU:         normalize.CleanText(sku),
		Description: normalize.CleanText(description),
	}
	if rawURL != "" {
		c.ProductURL = normalize.AbsoluteURL(baseURL, rawURL)
	}
	if img := jsonString(image); img != "" {
		c.ImageURL = normalize.AbsoluteURL(baseURL, img)
	}
	return c
}

// safeJSONBlobs parses script content as JSON, salvaging embedded blocks
// when the whole content does not parse.
func safeJSONBlobs(content string) []any {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	var parsed any
	if err := json.Unmarshal([]byte(content), &parsed); err == nil {
		return []any{parsed}
	}
	var blobs []any
	for _, match := range jsonBlockRe.FindAllString(content, -1) {
		var salvaged any
		if err := json.Unmarshal([]byte(match), &salvaged); err == nil {
			blobs = append(blobs, salvaged)
		}
	}
	return blobs
}

// jsonString renders scalar JSON values as trimmed strings. Numbers keep
// their literal form so downstream price parsing sees "19.99", not 19.99.
func jsonString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "true"
		}
		return "false"
	}
	return ""
}

func firstKey(node map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := node[k]; ok && v != nil {
			return v
		}
	}
	return nil
}
