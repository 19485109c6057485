package extract

// Selector families used to scope and pick apart listing pages. Ordered
// from most to least specific; the first selector that matches wins.
// Values are lowercase because substring attribute matches are
// case-sensitive in both backends.

var resultContainerSelectors = []string{
	"ul.products",
	"ul.product-list",
	"ul.search-results",
	"div.products",
	"div.product-list",
	"div.search-results",
	`div[class*="listing"]`,
	`div[class*="product-grid"]`,
	`div[data-component*="product"]`,
	`div[data-testid*="result"]`,
	`section[class*="grid"]`,
	`section[class*="listing"]`,
	`section[class*="catalog"]`,
	`div[class*="grid"]`,
	`section[class*="product"]`,
	`section[class*="result"]`,
	"main",
}

// CardSelectors identifies product card candidates. The browser session
// also waits on these after page prep.
var CardSelectors = []string{
	`[data-component="product"]`,
	`[data-qa*="product"]`,
	`[data-testid*="product"]`,
	`[data-cy*="product"]`,
	`[itemscope][itemtype*="schema.org/Product"]`,
	"div[data-product-id]",
	"article[data-product-id]",
	"div[data-asin]",
	"li[data-asin]",
	`li[data-id*="product"]`,
	`div[data-testid*="product-card"]`,
	`li[class*="product"]`,
	`li[class*="grid"]`,
	`div[class*="product"]`,
	`div[class*="item"]`,
	`div[class*="card"]`,
	`div[class*="result"]`,
	`article[class*="product"]`,
	`article[class*="item"]`,
}

var titleSelectors = []string{
	`[itemprop="name"]`,
	"a[title]",
	`a[class*="title"]`,
	`a[data-testid*="title"]`,
	"h1", "h2", "h3", "h4",
	`[class*="title"]`,
	`[class*="name"]`,
	`[aria-label*="product"]`,
}

var linkSelectors = []string{
	`a[href*="/product"]`,
	`a[href*="/item"]`,
	`a[href*="/p/"]`,
	`a[href*="?pid="]`,
	`a[data-testid*="product"]`,
	`a[data-track*="product"]`,
	"a[href]",
	`[itemprop="url"]`,
}

var imageSelectors = []string{
	"img[src]",
	"img[data-src]",
	"img[data-original]",
	"img[data-lazy-src]",
	"img[data-srcset]",
	"source[data-srcset]",
	"[data-background-image]",
	`[itemprop="image"]`,
}

var priceSelectors = []string{
	`[itemprop="price"]`,
	`[class*="price"]`,
	`[class*="offer"]`,
	"[data-price]",
	"span[data-price]",
	"div[data-price]",
	`span[class*="amount"]`,
	`span[class*="value"]`,
	`meta[itemprop="price"][content]`,
}

var currencySelectors = []string{
	`meta[itemprop="priceCurrency"][content]`,
	`[class*="currency"]`,
	"span[data-currency]",
}

var ratingSelectors = []string{
	`[itemprop="ratingValue"]`,
	`[class*="rating"]`,
	`[aria-label*="rating"]`,
}

var reviewSelectors = []string{
	`[itemprop="reviewCount"]`,
	`[class*="review"]`,
	`[aria-label*="review"]`,
}

var availabilitySelectors = []string{
	`[itemprop="availability"]`,
	`[class*="stock"]`,
	`[class*="avail"]`,
}

var brandSelectors = []string{
	`[itemprop="brand"]`,
	`[class*="brand"]`,
	"[data-brand]",
}

var skuSelectors = []string{
	`[itemprop="sku"]`,
	"[data-sku]",
	"[data-product-sku]",
	`[class*="sku"]`,
}

var descriptionSelectors = []string{
	`[itemprop="description"]`,
	`[class*="description"]`,
	`[class*="subtitle"]`,
	"p",
}

// cardImageSelector matches any image an anchor-based card could carry.
const cardImageSelector = "img[src], img[data-src], img[data-original], img[data-srcset]"
