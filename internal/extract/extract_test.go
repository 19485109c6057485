package extract

import (
	"io"
	"log/slog"
	"testing"

	"prodex/internal/dom"
	"prodex/internal/types"
	"prodex/internal/validate"
)

const baseURL = "https://shop.example/search?q=mouse"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustPage(t *testing.T, rawHTML string) dom.Page {
	t.Helper()
	page, err := dom.NewStaticPage(baseURL, rawHTML)
	if err != nil {
		t.Fatalf("NewStaticPage: %v", err)
	}
	return page
}

const cardPageHTML = `<!DOCTYPE html>
<html><body>
<main>
  <header>
    <div class="product-card">
      <a href="/login">Login</a>
    </div>
  </header>
  <div class="product-grid">
    <div class="product-card">
      <a href="/p/mouse-101">Wireless Mouse Pro</a>
      <img data-src="/img/mouse-101.jpg" alt="Wireless Mouse Pro">
      <span class="price">₹1,299</span>
      <span class="rating">4.3 out of 5</span>
      <span class="review-count">(1284 reviews)</span>
      <span class="stock-status">In stock</span>
      <span class="brand">Logi</span>
      <div data-sku="SKU-99"></div>
      <p class="description">A compact wireless mouse with a 2.4GHz receiver.</p>
    </div>
    <div class="product-card">
      <a href="/p/keyboard-202" title="Mechanical Keyboard"></a>
      <img src="/img/kb-202.jpg">
      <span class="price">$79.00</span>
    </div>
  </div>
</main>
</body></html>`

func TestCardStrategy(t *testing.T) {
	e := New(testLogger(), 0)
	result := e.Extract(mustPage(t, cardPageHTML))

	if result.Strategy != "dom_cards" {
		t.Fatalf("strategy = %q, want dom_cards", result.Strategy)
	}
	if len(result.Products) != 2 {
		t.Fatalf("got %d products, want 2", len(result.Products))
	}

	mouse := result.Products[0]
	if mouse.Title != "Wireless Mouse Pro" {
		t.Errorf("title = %q", mouse.Title)
	}
	if mouse.ProductURL != "https://shop.example/p/mouse-101" {
		t.Errorf("product_url = %q", mouse.ProductURL)
	}
	if mouse.ImageURL != "https://shop.example/img/mouse-101.jpg" {
		t.Errorf("image_url = %q", mouse.ImageURL)
	}
	if mouse.Price == nil || *mouse.Price != 1299 {
		t.Errorf("price = %v", mouse.Price)
	}
	if mouse.Currency != "INR" {
		t.Errorf("currency = %q", mouse.Currency)
	}
	if mouse.Rating == nil || *mouse.Rating != 4.3 {
		t.Errorf("rating = %v", mouse.Rating)
	}
	if mouse.ReviewCount == nil || *mouse.ReviewCount != 1284 {
		t.Errorf("review_count = %v", mouse.ReviewCount)
	}
	if mouse.InStock == nil || !*mouse.InStock {
		t.Errorf("in_stock = %v", mouse.InStock)
	}
	if mouse.Brand != "Logi" {
		t.Errorf("brand = %q", mouse.Brand)
	}
	if mouse.SKU != "SKU-99" {
		t.Errorf("sku = %q", mouse.SKU)
	}
	if mouse.Description == "" {
		t.Error("expected a description")
	}

	kb := result.Products[1]
	if kb.Title != "Mechanical Keyboard" {
		t.Errorf("title from anchor title attr = %q", kb.Title)
	}
	if kb.Currency != "USD" {
		t.Errorf("currency = %q", kb.Currency)
	}
}

func TestCardStrategySkipsChrome(t *testing.T) {
	// The login card sits inside a header and must never surface.
	e := New(testLogger(), 0)
	result := e.Extract(mustPage(t, cardPageHTML))
	for _, p := range result.Products {
		if p.ProductURL == "https://shop.example/login" {
			t.Fatal("card inside header leaked into results")
		}
	}
}

const jsonLDPageHTML = `<!DOCTYPE html>
<html><head>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "ItemList",
  "itemListElement": [
    {
      "@type": "ListItem",
      "item": {"name": "Trail Shoe X", "url": "/p/shoe-1", "sku": "TS-1"}
    },
    {
      "@type": "Product",
      "name": "Trail Shoe Y",
      "url": "https://shop.example/p/shoe-2",
      "image": ["/img/shoe-2.jpg"],
      "brand": {"@type": "Brand", "name": "Trailco"},
      "offers": {"price": 89.5, "priceCurrency": "USD", "availability": "https://schema.org/InStock"},
      "aggregateRating": {"ratingValue": 4.7, "reviewCount": 310}
    }
  ]
}
</script>
</head><body><p>Loading products...</p></body></html>`

func TestJSONLDStrategy(t *testing.T) {
	e := New(testLogger(), 0)
	result := e.Extract(mustPage(t, jsonLDPageHTML))

	if result.Strategy != "jsonld" {
		t.Fatalf("strategy = %q, want jsonld", result.Strategy)
	}
	if len(result.Products) != 2 {
		t.Fatalf("got %d products, want 2", len(result.Products))
	}

	// ListItem wrapping an item object.
	first := result.Products[0]
	if first.Title != "Trail Shoe X" || first.ProductURL != "https://shop.example/p/shoe-1" {
		t.Errorf("list item product = %+v", first)
	}
	if first.SKU != "TS-1" {
		t.Errorf("sku = %q", first.SKU)
	}

	second := result.Products[1]
	if second.Price == nil || *second.Price != 89.5 {
		t.Errorf("price = %v", second.Price)
	}
	if second.Currency != "USD" {
		t.Errorf("currency = %q", second.Currency)
	}
	if second.Brand != "Trailco" {
		t.Errorf("brand = %q", second.Brand)
	}
	if second.InStock == nil || !*second.InStock {
		t.Errorf("in_stock = %v", second.InStock)
	}
	if second.Rating == nil || *second.Rating != 4.7 {
		t.Errorf("rating = %v", second.Rating)
	}
	if second.ImageURL != "https://shop.example/img/shoe-2.jpg" {
		t.Errorf("image_url = %q", second.ImageURL)
	}
}

func TestJSONLDSalvage(t *testing.T) {
	// Script body is not a single valid document; the object inside must
	// still be recovered.
	html := `<html><head><script type="application/ld+json">
window.__seo = {"@type": "Product", "name": "Salvaged Lamp", "url": "/p/lamp-3"};
</script></head><body></body></html>`
	e := New(testLogger(), 0)
	result := e.Extract(mustPage(t, html))
	if len(result.Products) != 1 || result.Products[0].Title != "Salvaged Lamp" {
		t.Fatalf("salvage failed: %+v", result.Products)
	}
}

const microdataHTML = `<html><body>
<span itemscope itemtype="https://schema.org/Product" itemid="/p/watch-7">
  <meta itemprop="name" content="Field Watch 7">
  <meta itemprop="price" content="₹4,999">
  <meta itemprop="availability" content="InStock">
  <span itemprop="brand" itemscope>
    <meta itemprop="name" content="Chronos">
  </span>
  <meta itemprop="ratingValue" content="4.1">
  <meta itemprop="reviewCount" content="57">
</span>
</body></html>`

func TestMicrodataStrategy(t *testing.T) {
	s := &microdataStrategy{v: validate.New()}
	products := s.extract(mustPage(t, microdataHTML), DefaultMaxItems)
	if len(products) != 1 {
		t.Fatalf("got %d products, want 1", len(products))
	}
	p := products[0]
	if p.Title != "Field Watch 7" {
		t.Errorf("title = %q", p.Title)
	}
	if p.ProductURL != "https://shop.example/p/watch-7" {
		t.Errorf("product_url from itemid = %q", p.ProductURL)
	}
	if p.Price == nil || *p.Price != 4999 {
		t.Errorf("price = %v", p.Price)
	}
	if p.Currency != "INR" {
		t.Errorf("currency = %q", p.Currency)
	}
	if p.Brand != "Chronos" {
		t.Errorf("nested brand = %q", p.Brand)
	}
	if p.InStock == nil || !*p.InStock {
		t.Errorf("in_stock = %v", p.InStock)
	}
	if p.Rating == nil || *p.Rating != 4.1 {
		t.Errorf("rating = %v", p.Rating)
	}
	if p.ReviewCount == nil || *p.ReviewCount != 57 {
		t.Errorf("review_count = %v", p.ReviewCount)
	}
}

const inlineJSONHTML = `<html><head>
<script type="application/json">
{
  "page": {
    "searchResults": [
      {
        "productName": "Desk Lamp Mini",
        "productUrl": "/p/lamp-9",
        "thumbnail": {"url": "/img/lamp-9.jpg"},
        "salePrice": {"amount": 24.99},
        "currencyCode": "USD",
        "ratingValue": "4.5",
        "reviewsCount": 12,
        "stockStatus": "InStock"
      }
    ]
  }
}
</script>
</head><body></body></html>`

func TestInlineJSONStrategy(t *testing.T) {
	e := New(testLogger(), 0)
	result := e.Extract(mustPage(t, inlineJSONHTML))

	if result.Strategy != "inline_json" {
		t.Fatalf("strategy = %q, want inline_json", result.Strategy)
	}
	if len(result.Products) != 1 {
		t.Fatalf("got %d products, want 1", len(result.Products))
	}
	p := result.Products[0]
	if p.Title != "Desk Lamp Mini" {
		t.Errorf("title = %q", p.Title)
	}
	if p.ProductURL != "https://shop.example/p/lamp-9" {
		t.Errorf("product_url = %q", p.ProductURL)
	}
	if p.ImageURL != "https://shop.example/img/lamp-9.jpg" {
		t.Errorf("nested image url = %q", p.ImageURL)
	}
	if p.Price == nil || *p.Price != 24.99 {
		t.Errorf("nested price = %v", p.Price)
	}
	if p.Currency != "USD" {
		t.Errorf("currency = %q", p.Currency)
	}
	if p.ReviewCount == nil || *p.ReviewCount != 12 {
		t.Errorf("review_count = %v", p.ReviewCount)
	}
	if p.InStock == nil || !*p.InStock {
		t.Errorf("in_stock = %v", p.InStock)
	}
}

func TestInlineJSONSkipsHugeBlobs(t *testing.T) {
	s := &inlineJSONStrategy{v: validate.New()}
	big := make([]byte, maxInlineBlobLen+100)
	for i := range big {
		big[i] = 'x'
	}
	html := `<html><head><script type="application/json">` + string(big) + `</script></head><body></body></html>`
	if got := s.extract(mustPage(t, html), DefaultMaxItems); len(got) != 0 {
		t.Fatalf("expected huge blob to be skipped, got %d products", len(got))
	}
}

const linksOnlyHTML = `<html><body>
<a href="/p/chair-5" title="Ergo Chair 5"><img src="/img/chair-5.jpg"></a>
<a href="/about"><img src="/img/banner.jpg"></a>
<div><a href="/p/desk-6">Standing Desk 6</a></div>
</body></html>`

func TestLinkStrategy(t *testing.T) {
	e := New(testLogger(), 0)
	result := e.Extract(mustPage(t, linksOnlyHTML))

	if result.Strategy != "links_with_images" {
		t.Fatalf("strategy = %q, want links_with_images", result.Strategy)
	}
	if len(result.Products) != 1 {
		t.Fatalf("got %d products, want 1", len(result.Products))
	}
	p := result.Products[0]
	if p.Title != "Ergo Chair 5" || p.ProductURL != "https://shop.example/p/chair-5" {
		t.Errorf("product = %+v", p)
	}
	if p.ImageURL != "https://shop.example/img/chair-5.jpg" {
		t.Errorf("image_url = %q", p.ImageURL)
	}
}

func TestHeuristicStrategy(t *testing.T) {
	html := `<html><body>
<section class="zone">
  <li><a href="/vertical-mouse-pro">Vertical Mouse</a><img src="/img/vm.jpg"><span>₹899</span></li>
</section>
</body></html>`
	s := &heuristicStrategy{v: validate.New()}
	products := s.extract(mustPage(t, html), DefaultMaxItems)
	if len(products) != 1 {
		t.Fatalf("got %d products, want 1", len(products))
	}
	if products[0].Price == nil || *products[0].Price != 899 {
		t.Errorf("price = %v", products[0].Price)
	}
}

func TestNoResultsPage(t *testing.T) {
	html := `<html><body><main><p>Sorry, no results found for "xyzzy".</p></main></body></html>`
	e := New(testLogger(), 0)
	result := e.Extract(mustPage(t, html))
	if !result.NoResults {
		t.Error("expected NoResults to be set")
	}
	if len(result.Products) != 0 {
		t.Errorf("got %d products, want 0", len(result.Products))
	}
}

func TestEmptyPageIsNotNoResults(t *testing.T) {
	html := `<html><body><main><p>Welcome to our storefront.</p></main></body></html>`
	e := New(testLogger(), 0)
	result := e.Extract(mustPage(t, html))
	if result.NoResults {
		t.Error("page without the phrases must not claim no-results")
	}
	if len(result.Products) != 0 {
		t.Errorf("got %d products, want 0", len(result.Products))
	}
}

func TestDedupeByURL(t *testing.T) {
	priceA := 10.0
	products := []*types.Candidate{
		{ProductURL: "https://shop.example/p/1", Title: "First"},
		{ProductURL: "https://shop.example/p/1", Title: "Duplicate", Price: &priceA, ImageURL: "https://cdn.example/1.jpg"},
		{ProductURL: "https://shop.example/p/2", Title: "Second"},
		{Title: "No URL"},
	}
	out := dedupeByURL(products)
	if len(out) != 2 {
		t.Fatalf("got %d products, want 2", len(out))
	}
	first := out[0]
	if first.Title != "First" {
		t.Errorf("first occurrence must win the title, got %q", first.Title)
	}
	if first.Price == nil || *first.Price != 10 {
		t.Error("missing fields must be back-filled from duplicates")
	}
	if first.ImageURL != "https://cdn.example/1.jpg" {
		t.Errorf("image_url = %q", first.ImageURL)
	}
}

func TestMaxItemsCap(t *testing.T) {
	html := `<html><body><main><div class="product-grid">
<div class="product-card"><a href="/p/1">Gadget One</a><span class="price">$1</span></div>
<div class="product-card"><a href="/p/2">Gadget Two</a><span class="price">$2</span></div>
<div class="product-card"><a href="/p/3">Gadget Three</a><span class="price">$3</span></div>
</div></main></body></html>`
	e := New(testLogger(), 2)
	result := e.Extract(mustPage(t, html))
	if len(result.Products) != 2 {
		t.Fatalf("got %d products, want cap of 2", len(result.Products))
	}
}

const multibyteDescriptionHTML = `
<html><body>
  <div class="product-grid">
    <div class="product-card">
      <a href="/p/kettle-9" title="Electric Kettle">Electric Kettle</a>
      <img src="https://cdn.example/k9.jpg" alt="Electric Kettle">
      <span class="price">₹1,499</span>
      <p class="product-description">短い説明です</p>
    </div>
    <div class="product-card">
      <a href="/p/kettle-10" title="Steel Kettle">Steel Kettle</a>
      <img src="https://cdn.example/k10.jpg" alt="Steel Kettle">
      <span class="price">₹1,999</span>
      <p class="product-description">一リットルの湯を三分で沸かせる電気ケトルです</p>
    </div>
  </div>
</body></html>`

func TestCardDescriptionCountsCharacters(t *testing.T) {
	s := &cardStrategy{v: validate.New()}
	products := s.extract(mustPage(t, multibyteDescriptionHTML), DefaultMaxItems)
	if len(products) != 2 {
		t.Fatalf("got %d products, want 2", len(products))
	}
	byURL := map[string]*types.Candidate{}
	for _, p := range products {
		byURL[p.ProductURL] = p
	}
	// Six characters span eighteen bytes; only the character count decides.
	short := byURL["https://shop.example/p/kettle-9"]
	if short == nil || short.Description != "" {
		t.Errorf("a six-character description must be dropped, got %+v", short)
	}
	long := byURL["https://shop.example/p/kettle-10"]
	if long == nil || long.Description == "" {
		t.Error("a description past the character threshold must be kept")
	}
}
