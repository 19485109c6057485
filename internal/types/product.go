package types

// Bounds enforced before a product row is written.
const (
	MaxPrice          = 999_999_999.99
	MaxRating         = 100.0
	MaxDescriptionLen = 400
)

// Candidate is a product extracted from a listing page, before validation
// and persistence. Pointer fields are tri-state: nil means "not observed".
type Candidate struct {
	Title       string
	ProductURL  string
	ImageURL    string
	RawPrice    string
	Price       *float64
	Currency    string
	Rating      *float64
	ReviewCount *int
	InStock     *bool
	Brand       string
	SKU         string
	Description string
}

// MergeMissing fills empty fields of c from other. Used when two strategies
// (or two cards) yield the same product_url: first occurrence wins, later
// occurrences only contribute fields the first one lacked.
func (c *Candidate) MergeMissing(other *Candidate) {
	if c.Title == "" {
		c.Title = other.Title
	}
	if c.ImageURL == "" {
		c.ImageURL = other.ImageURL
	}
	if c.RawPrice == "" {
		c.RawPrice = other.RawPrice
	}
	if c.Price == nil {
		c.Price = other.Price
	}
	if c.Currency == "" {
		c.Currency = other.Currency
	}
	if c.Rating == nil {
		c.Rating = other.Rating
	}
	if c.ReviewCount == nil {
		c.ReviewCount = other.ReviewCount
	}
	if c.InStock == nil {
		c.InStock = other.InStock
	}
	if c.Brand == "" {
		c.Brand = other.Brand
	}
	if c.SKU == "" {
		c.SKU = other.SKU
	}
	if c.Description == "" {
		c.Description = other.Description
	}
}

// ProductRecord is a row in the r_product_data table.
type ProductRecord struct {
	PlatformURL       string
	ProductName       string
	ProductURL        string
	OriginalPrice     *string
	CurrentPrice      *float64
	ProductImageURL   *string
	Description       *string
	Rating            *float64
	Reviews           *int
	InStock           *bool
	Brand             *string
	ProductTypeID     *int64
	SearchedProductID *int64
}
