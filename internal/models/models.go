package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Clients read prices as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Product statuses
const (
	ProductStatusDraft     = "draft"
	ProductStatusPublished = "published"
	ProductStatusArchived  = "archived"
)

// Product availability as shown to shoppers
const (
	AvailabilityAvailable  = "available"
	AvailabilityOutOfStock = "out-of-stock"
	AvailabilityComingSoon = "coming-soon"
)

// Product represents a catalog entry
type Product struct {
	ID               int64            `db:"id" json:"id"`
	Name             string           `db:"name" json:"name"`
	Slug             string           `db:"slug" json:"slug"`
	ShortDescription string           `db:"short_description" json:"shortDescription,omitempty"`
	Price            decimal.Decimal  `db:"price" json:"price"`
	CompareAtPrice   *decimal.Decimal `db:"compare_at_price" json:"compareAtPrice,omitempty"`
	Quantity         int              `db:"quantity" json:"quantity"`
	Status           string           `db:"status" json:"status"`
	Featured         bool             `db:"featured" json:"featured"`
	Images           ProductImages    `db:"images" json:"images"`
	Tags             Tags             `db:"tags" json:"tags"`
	SEO              SEO              `db:"seo" json:"seo"`
	CreatedAt        time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updatedAt"`
}

// ProductImage is a reference to an image served by the media host
type ProductImage struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// SEO holds search engine metadata for a product
type SEO struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Keywords    string `json:"keywords,omitempty"`
}

// OnSale reports whether the product is priced below its compare-at price
func (p *Product) OnSale() bool {
	return p.CompareAtPrice != nil && p.Price.LessThan(*p.CompareAtPrice)
}

// DiscountPercentage returns the rounded discount against the compare-at price
func (p *Product) DiscountPercentage() int {
	if p.CompareAtPrice == nil || !p.CompareAtPrice.IsPositive() || !p.Price.IsPositive() {
		return 0
	}
	pct := p.CompareAtPrice.Sub(p.Price).Div(*p.CompareAtPrice).Mul(decimal.NewFromInt(100))
	return int(pct.Round(0).IntPart())
}

// Availability derives the storefront availability label
func (p *Product) Availability() string {
	if p.Status != ProductStatusPublished {
		return AvailabilityComingSoon
	}
	if p.Quantity <= 0 {
		return AvailabilityOutOfStock
	}
	return AvailabilityAvailable
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL slug from a product name
func Slugify(name string) string {
	slug := slugInvalid.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}

// ProductImages is stored as a JSON array
type ProductImages []ProductImage

func (i ProductImages) Value() (driver.Value, error) { return jsonValue(i, "[]") }
func (i *ProductImages) Scan(src interface{}) error  { return scanJSON(src, i) }

// Tags is stored as a JSON array
type Tags []string

func (t Tags) Value() (driver.Value, error) { return jsonValue(t, "[]") }
func (t *Tags) Scan(src interface{}) error  { return scanJSON(src, t) }

func (s SEO) Value() (driver.Value, error) { return jsonValue(s, "{}") }
func (s *SEO) Scan(src interface{}) error  { return scanJSON(src, s) }

// ProductQuery describes a catalog listing request
type ProductQuery struct {
	Page      int
	Limit     int
	Featured  bool
	Search    string
	SortBy    string
	SortOrder string
}

// Cart is the single pre-checkout basket owned by a user
type Cart struct {
	ID          int64           `db:"id" json:"id"`
	UserID      int64           `db:"user_id" json:"user"`
	Items       CartItems       `db:"items" json:"items"`
	TotalAmount decimal.Decimal `db:"total_amount" json:"totalAmount"`
	ItemCount   int             `db:"item_count" json:"itemCount"`
	Version     int64           `db:"version" json:"version"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
}

// CartItem is one product line of a cart. UnitPrice is captured when the
// line is first added and is never refreshed afterwards.
type CartItem struct {
	ID        string          `json:"id,omitempty"`
	Product   ProductRef      `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// CartItems is stored as a JSON array of bare product references
type CartItems []CartItem

func (items CartItems) Value() (driver.Value, error) {
	stored := make(CartItems, len(items))
	for i, item := range items {
		item.Product = item.Product.Reference()
		stored[i] = item
	}
	return jsonValue(stored, "[]")
}

func (items *CartItems) Scan(src interface{}) error { return scanJSON(src, items) }

// NewCart returns an empty cart for a user
func NewCart(userID int64) *Cart {
	return &Cart{
		UserID:      userID,
		Items:       CartItems{},
		TotalAmount: decimal.Zero,
	}
}

// Reconcile recomputes the derived totals from the line items
func (c *Cart) Reconcile() {
	total := decimal.Zero
	count := 0
	for _, item := range c.Items {
		total = total.Add(lineTotal(item.Quantity, item.UnitPrice))
		count += item.Quantity
	}
	c.TotalAmount = total
	c.ItemCount = count
}

// FindItem returns the index of the line for productID, or -1
func (c *Cart) FindItem(productID int64) int {
	for i, item := range c.Items {
		if item.Product.ID() == productID {
			return i
		}
	}
	return -1
}

// RemoveItem drops the line for productID and reports whether one existed
func (c *Cart) RemoveItem(productID int64) bool {
	idx := c.FindItem(productID)
	if idx < 0 {
		return false
	}
	c.Items = append(c.Items[:idx:idx], c.Items[idx+1:]...)
	return true
}

// Clear empties the cart
func (c *Cart) Clear() {
	c.Items = CartItems{}
}

// ProductIDs returns the distinct product ids referenced by the cart
func (c *Cart) ProductIDs() []int64 {
	seen := make(map[int64]struct{}, len(c.Items))
	ids := make([]int64, 0, len(c.Items))
	for _, item := range c.Items {
		id := item.Product.ID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// Order is an immutable snapshot of a checkout
type Order struct {
	ID              int64           `json:"id"`
	OrderNumber     string          `json:"orderNumber"`
	CustomerID      int64           `json:"customer"`
	Status          string          `json:"status"`
	Items           []OrderItem     `json:"items"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// OrderItem is a line of an order
type OrderItem struct {
	ID        int64           `json:"id,omitempty"`
	Product   ProductRef      `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// ShippingAddress is the delivery destination of an order
type ShippingAddress struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"zipCode"`
}

// OrderTotal sums quantity x unit price over the order lines
func OrderTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(lineTotal(item.Quantity, item.UnitPrice))
	}
	return total
}

func lineTotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// Pagination defaults
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Page is the paginated list envelope returned by list endpoints
type Page[T any] struct {
	Docs          []T  `json:"docs"`
	TotalDocs     int  `json:"totalDocs"`
	Limit         int  `json:"limit"`
	Page          int  `json:"page"`
	TotalPages    int  `json:"totalPages"`
	HasNextPage   bool `json:"hasNextPage"`
	HasPrevPage   bool `json:"hasPrevPage"`
	PrevPage      *int `json:"prevPage"`
	NextPage      *int `json:"nextPage"`
	PagingCounter int  `json:"pagingCounter"`
}

// NormalizePaging clamps page and limit to usable values
func NormalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

// NewPage builds the envelope for one page of results
func NewPage[T any](docs []T, totalDocs, page, limit int) Page[T] {
	page, limit = NormalizePaging(page, limit)
	if docs == nil {
		docs = []T{}
	}

	totalPages := int(math.Ceil(float64(totalDocs) / float64(limit)))
	if totalPages < 1 {
		totalPages = 1
	}

	p := Page[T]{
		Docs:          docs,
		TotalDocs:     totalDocs,
		Limit:         limit,
		Page:          page,
		TotalPages:    totalPages,
		HasPrevPage:   page > 1,
		HasNextPage:   page < totalPages,
		PagingCounter: (page-1)*limit + 1,
	}
	if p.HasPrevPage {
		prev := page - 1
		p.PrevPage = &prev
	}
	if p.HasNextPage {
		next := page + 1
		p.NextPage = &next
	}
	return p
}

func jsonValue(v interface{}, empty string) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}
