package extract

import (
	"strings"

	"prodex/internal/dom"
	"prodex/internal/normalize"
	"prodex/internal/types"
	"prodex/internal/validate"
)

const microdataScopeSelector = `[itemscope][itemtype*="Product"]`

// microdataStrategy reads schema.org microdata (itemscope/itemprop) nodes.
type microdataStrategy struct {
	v *validate.PageValidator
}

func (s *microdataStrategy) name() string { return "microdata" }

func (s *microdataStrategy) extract(page dom.Page, maxItems int) []*types.Candidate {
	var out []*types.Candidate
	for _, node := range page.FindAll(microdataScopeSelector) {
		if dom.InBlacklistedSection(node, s.v.IsBlacklistedSection, validate.MaxAncestorHops) {
			continue
		}
		c := extractMicrodataNode(node, page.URL())
		if c == nil || !s.v.Accept(c) {
			continue
		}
		out = append(out, c)
		if len(out) >= maxItems {
			break
		}
	}
	return out
}

// extractMicrodataNode folds every [itemprop] under the scope into a
// candidate. First value per property wins.
func extractMicrodataNode(node dom.Node, baseURL string) *types.Candidate {
	c := &types.Candidate{}
	var availability string

	if itemid := node.Attr("itemid"); itemid != "" {
		c.ProductURL = normalize.AbsoluteURL(baseURL, itemid)
	}

	for _, prop := range node.FindAll("[itemprop]") {
		key := strings.ToLower(prop.Attr("itemprop"))
		if key == "" {
			continue
		}
		value := normalize.CleanText(firstOf(
			prop.Attr("content"),
			prop.Attr("href"),
			prop.Attr("src"),
			prop.Text(),
		))

		// Brand is often a nested scope whose own text is empty.
		if key == "brand" && len(value) <= 2 {
			if nested := prop.Find(`[itemprop="name"]`); nested != nil {
				value = normalize.CleanText(firstOf(nested.Attr("content"), nested.Text()))
			}
		}
		if value == "" {
			continue
		}

		switch key {
		case "name":
			if c.Title == "" {
				c.Title = value
			}
		case "url", "link":
			if c.ProductURL == "" {
				c.ProductURL = normalize.AbsoluteURL(baseURL, value)
			}
		case "image":
			if c.ImageURL == "" {
				c.ImageURL = normalize.AbsoluteURL(baseURL, value)
			}
		case "price":
			c.RawPrice = value
		case "pricecurrency", "currency":
			c.Currency = value
		case "availability":
			availability = value
		case "description":
			c.Description = normalize.TruncateDescription(value)
		case "brand":
			if c.Brand == "" {
				c.Brand = value
			}
		case "sku":
			if c.SKU == "" {
				c.SKU = value
			}
		case "ratingvalue":
			c.Rating = normalize.ParseFloat(value)
		case "reviewcount", "ratingcount":
			c.ReviewCount = normalize.ParseInt(value)
		}
	}

	parsed, detected := normalize.ParsePrice(c.RawPrice)
	c.Price = parsed
	if c.Currency == "" {
		c.Currency = detected
	}
	c.InStock = normalize.InferInStock(availability)

	if c.Title == "" && c.ProductURL == "" && c.RawPrice == "" {
		return nil
	}
	return c
}
