// Package validate decides which extracted candidates and links are real
// products and which are navigation, chrome, or junk.
package validate

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"prodex/internal/types"
)

// Phrases that mark a rendered page as a legitimate empty result set.
var noResultsPhrases = []string{
	"no results",
	"no results found",
	"no result found",
	"0 results",
	"0 result",
	"no product",
	"nothing found",
	"did not find anything",
	"did not find anythings",
	"we did not find",
	"we did not find anything",
	"we did not find anythings",
	"try another search",
	"try a different search",
}

// Links containing any of these are never products.
var linkBlacklistKeywords = []string{
	"login", "register", "signup", "account", "profile", "help", "faq", "contact",
	"privacy", "terms", "policy", "cart", "wishlist", "checkout", "track", "order",
	"facebook", "instagram", "whatsapp", "twitter", "youtube", "pinterest",
	"linkedin", "support", "mailto:", "tel:", "javascript:", "gift-card", "loyalty",
}

// Path fragments that strongly suggest a product detail page.
var productPathKeywords = []string{
	"/product", "/products", "/item", "/items", "/p/", "/dp/", "/pd/", "/pdp",
	"/shop/", "/store/", "/catalog", "/listing", "/sku", "/detail", "/details",
	"/gp/", "/gp/product", "/listing/", "/prod", "/itm", "/itm/",
	"collection", "collections", "category", "categories",
	"productid", "sku=", "pid=", "variant=", "model=", "/buy/", "/sale/",
}

var negativePathKeywords = []string{
	"search", "account", "contact", "login", "register", "wishlist", "cart",
	"help", "support", "faq", "privacy", "terms",
}

var navTitleWords = []string{
	"home", "about", "contact", "help", "account", "login", "register", "signup",
	"wishlist", "cart", "track", "order", "policy", "privacy", "terms", "faq",
	"support", "customer care", "service", "blog", "news", "store locator",
}

// Tags whose descendants never contain result cards.
var blacklistedSections = map[string]bool{
	"header": true,
	"nav":    true,
	"footer": true,
	"aside":  true,
	"form":   true,
}

var longDigitRunRe = regexp.MustCompile(`\b\+?\d{8,}\b`)

// MaxAncestorHops bounds how far up the tree the blacklisted-section check walks.
const MaxAncestorHops = 6

// PageValidator applies the acceptance policy for candidates and hrefs.
type PageValidator struct{}

func New() *PageValidator { return &PageValidator{} }

// Accept reports whether a candidate passes the validation policy:
// a present, non-blacklisted, product-like URL plus either a usable title
// or a price. Ancestor checks happen at the DOM layer before extraction.
func (v *PageValidator) Accept(c *types.Candidate) bool {
	if c.ProductURL == "" {
		return false
	}
	if v.IsBlacklistedLink(c.ProductURL) {
		return false
	}
	hasPrice := c.Price != nil || c.RawPrice != ""
	if !v.IsProductLikePath(c.ProductURL) && !(hasPrice && c.Title != "") {
		return false
	}
	if c.Title != "" && (v.LooksLikeNav(c.Title) || utf8.RuneCountInString(c.Title) < 2) {
		return false
	}
	if c.Title == "" && !hasPrice {
		return false
	}
	return true
}

// IsBlacklistedLink rejects pseudo-schemes and nav/social/legal links.
func (v *PageValidator) IsBlacklistedLink(href string) bool {
	if href == "" {
		return true
	}
	h := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:"} {
		if strings.HasPrefix(h, prefix) {
			return true
		}
	}
	for _, keyword := range linkBlacklistKeywords {
		if strings.Contains(h, keyword) {
			return true
		}
	}
	return false
}

// IsProductLikePath applies the product-path heuristics from the most
// specific (known path keywords) to the most permissive (slugs, depth).
func (v *PageValidator) IsProductLikePath(href string) bool {
	parsed, err := url.Parse(href)
	if err != nil {
		return false
	}
	path := strings.ToLower(parsed.Path)
	query := strings.ToLower(parsed.RawQuery)
	fragment := strings.ToLower(parsed.Fragment)

	switch path {
	case "", "/", "/home", "/index", "/index.html":
		return false
	}

	combined := path + "?" + query + "#" + fragment
	for _, keyword := range productPathKeywords {
		if strings.Contains(combined, keyword) {
			return true
		}
	}
	for _, neg := range negativePathKeywords {
		if strings.Contains(combined, neg) {
			return false
		}
	}

	if strings.HasSuffix(path, ".html") || strings.HasSuffix(path, ".htm") {
		return true
	}
	if strings.Count(path, "/") >= 2 && len(path) > 3 {
		return true
	}
	if strings.Contains(path, "-") && len(strings.ReplaceAll(path, "-", "")) > 6 {
		return true
	}
	return false
}

// IsPotentialProductHref combines blacklist and product-path checks for the
// links-with-images strategy.
func (v *PageValidator) IsPotentialProductHref(href string) bool {
	if href == "" {
		return false
	}
	if v.IsBlacklistedLink(href) {
		return false
	}
	return v.IsProductLikePath(href)
}

// LooksLikeNav flags titles that are navigation labels or phone numbers.
func (v *PageValidator) LooksLikeNav(title string) bool {
	if title == "" {
		return false
	}
	t := strings.ToLower(title)
	if longDigitRunRe.MatchString(t) {
		return true
	}
	for _, word := range navTitleWords {
		if strings.Contains(t, word) {
			return true
		}
	}
	return false
}

// IsBlacklistedSection reports whether tag names a section whose content
// is never a result card.
func (v *PageValidator) IsBlacklistedSection(tag string) bool {
	return blacklistedSections[strings.ToLower(tag)]
}

// IndicatesNoResults reports whether the page body text contains any of the
// known empty-result phrases.
func (v *PageValidator) IndicatesNoResults(bodyText string) bool {
	t := strings.ToLower(bodyText)
	for _, phrase := range noResultsPhrases {
		if strings.Contains(t, phrase) {
			return true
		}
	}
	return false
}
