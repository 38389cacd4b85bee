package client

import (
	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

type (
	Cart            = models.Cart
	CartItem        = models.CartItem
	Order           = models.Order
	OrderItem       = models.OrderItem
	ShippingAddress = models.ShippingAddress
	ProductQuery    = models.ProductQuery
)

// Page is a paginated list response
type Page[T any] models.Page[T]

// Product is a catalog entry with the derived storefront fields
type Product struct {
	models.Product
	OnSale             bool   `json:"onSale"`
	DiscountPercentage int    `json:"discountPercentage"`
	Availability       string `json:"availability"`
}

// OrderLine is one line of an order submission
type OrderLine struct {
	Product   int64           `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// OrderRequest is a checkout submission. The customer is taken from the session.
type OrderRequest struct {
	Items           []OrderLine     `json:"items"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	OrderNumber     string          `json:"orderNumber,omitempty"`
}

// OrderFromCart snapshots the cart lines into an order submission
func OrderFromCart(cart *Cart, address ShippingAddress) OrderRequest {
	lines := make([]OrderLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		lines = append(lines, OrderLine{
			Product:   item.Product.ID(),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return OrderRequest{Items: lines, ShippingAddress: address}
}
