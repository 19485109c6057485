package extract

import (
	"strings"
	"unicode/utf8"

	"prodex/internal/dom"
	"prodex/internal/normalize"
	"prodex/internal/types"
	"prodex/internal/validate"
)

// cardStrategy is the primary strategy: scope the search to likely result
// containers, then pick apart each visible product card.
type cardStrategy struct {
	v *validate.PageValidator
}

func (s *cardStrategy) name() string { return "dom_cards" }

func (s *cardStrategy) extract(page dom.Page, maxItems int) []*types.Candidate {
	cards := s.collectCards(page)

	var out []*types.Candidate
	for _, card := range cards {
		if dom.InBlacklistedSection(card, s.v.IsBlacklistedSection, validate.MaxAncestorHops) {
			continue
		}
		c := extractCard(card, page.URL())
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

// collectCards scopes card selection to the first non-empty result
// container family, falling back to a page-wide scan and finally to a
// permissive link+image guess.
func (s *cardStrategy) collectCards(page dom.Page) []dom.Node {
	var cards []dom.Node
	if containers := firstNonEmptySet(page, resultContainerSelectors); len(containers) > 0 {
		for _, container := range containers {
			for _, sel := range CardSelectors {
				for _, el := range container.FindAll(sel) {
					if el.Visible() {
						cards = append(cards, el)
					}
				}
			}
		}
	} else {
		cards = firstNonEmptySet(page, CardSelectors)
	}

	if len(cards) == 0 {
		for _, el := range page.FindAll("li, div, article") {
			if looksLikeCard(el) {
				cards = append(cards, el)
			}
		}
	}
	return cards
}

// firstNonEmptySet returns the matches of the first selector in the family
// that matches anything at all.
func firstNonEmptySet(scope dom.Node, selectors []string) []dom.Node {
	for _, sel := range selectors {
		if els := scope.FindAll(sel); len(els) > 0 {
			return els
		}
	}
	return nil
}

// looksLikeCard is the permissive guess: an element with a link plus
// either an image or price-ish text.
func looksLikeCard(el dom.Node) bool {
	if el.Find("a[href]") == nil {
		return false
	}
	if el.Find("img[src], img[data-src], img[data-original]") != nil {
		return true
	}
	text := strings.ToLower(el.Text())
	for _, tok := range []string{"$", "₹", "rs.", "rs ", "usd", "eur", "price"} {
		if strings.Contains(text, tok) {
			return true
		}
	}
	return false
}

// extractCard reads every product field out of one card element. Returns
// nil only when the card has nothing usable at all.
func extractCard(card dom.Node, baseURL string) *types.Candidate {
	c := &types.Candidate{}

	// Title: anchor title attribute or text first, then image alt, then
	// the title selector family.
	if a := card.Find("a[href]"); a != nil {
		if t := a.Attr("title"); t != "" {
			c.Title = normalize.CleanText(t)
		} else {
			c.Title = a.Text()
		}
	}
	if c.Title == "" {
		if img := card.Find("img"); img != nil {
			c.Title = normalize.CleanText(img.Attr("alt"))
		}
	}
	if c.Title == "" {
		c.Title = normalize.CleanText(firstText(card, titleSelectors))
	}

	// Link: most specific selector wins; href then content.
	for _, sel := range linkSelectors {
		el := card.Find(sel)
		if el == nil {
			continue
		}
		if href := firstOf(el.Attr("href"), el.Attr("content")); href != "" {
			c.ProductURL = normalize.AbsoluteURL(baseURL, href)
			break
		}
	}

	// Image: walk the lazy-loading attribute chain.
	for _, sel := range imageSelectors {
		el := card.Find(sel)
		if el == nil {
			continue
		}
		src := firstOf(
			el.Attr("src"),
			el.Attr("data-src"),
			el.Attr("data-original"),
			el.Attr("data-srcset"),
			el.Attr("content"),
		)
		if src != "" {
			c.ImageURL = normalize.AbsoluteURL(baseURL, src)
			break
		}
	}

	// Price: selector family, then a price token anywhere in the card text.
	for _, sel := range priceSelectors {
		el := card.Find(sel)
		if el == nil {
			continue
		}
		if raw := normalize.CleanText(firstOf(el.Attr("content"), el.Text())); raw != "" {
			c.RawPrice = raw
			break
		}
	}
	if c.RawPrice == "" {
		c.RawPrice = normalize.PriceFromText(card.Text())
	}

	for _, sel := range currencySelectors {
		el := card.Find(sel)
		if el == nil {
			continue
		}
		if cur := normalize.CleanText(firstOf(el.Attr("content"), el.Text())); cur != "" {
			c.Currency = cur
			break
		}
	}

	price, detected := normalize.ParsePrice(c.RawPrice)
	c.Price = price
	if c.Currency == "" {
		c.Currency = detected
	}

	c.Rating = normalize.ParseFloat(firstText(card, ratingSelectors))
	c.ReviewCount = normalize.ParseInt(firstText(card, reviewSelectors))
	c.InStock = normalize.InferInStock(firstText(card, availabilitySelectors))

	c.Brand = normalize.CleanText(firstOf(
		firstText(card, brandSelectors),
		firstAttr(card, brandSelectors, "data-brand"),
	))
	c.SKU = normalize.CleanText(firstOf(
		firstText(card, skuSelectors),
		firstAttr(card, skuSelectors, "data-sku"),
		firstAttr(card, skuSelectors, "data-product-sku"),
	))

	// Description needs enough substance to be worth keeping.
	for _, sel := range descriptionSelectors {
		el := card.Find(sel)
		if el == nil {
			continue
		}
		desc := normalize.CleanText(firstOf(el.Attr("content"), el.Text()))
		if utf8.RuneCountInString(desc) > 15 {
			c.Description = normalize.TruncateDescription(desc)
			break
		}
	}

	if c.Title == "" && c.ProductURL == "" && c.RawPrice == "" {
		return nil
	}
	return c
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
