package client

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// CartLine is a cart line ready for display
type CartLine struct {
	ProductID int64
	Name      string
	Quantity  int
	UnitPrice string
	LineTotal string
}

// CartSummary is a cart ready for display, with amounts fixed to 2 decimals
type CartSummary struct {
	Lines     []CartLine
	ItemCount int
	Total     string
}

// FormatCart renders a cart for display. Unexpanded lines are named by id.
func FormatCart(cart *Cart) CartSummary {
	summary := CartSummary{
		Lines:     make([]CartLine, 0, len(cart.Items)),
		ItemCount: cart.ItemCount,
		Total:     cart.TotalAmount.StringFixed(2),
	}

	for _, item := range cart.Items {
		name := "Product #" + strconv.FormatInt(item.Product.ID(), 10)
		if p := item.Product.Product(); p != nil && p.Name != "" {
			name = p.Name
		}
		summary.Lines = append(summary.Lines, CartLine{
			ProductID: item.Product.ID(),
			Name:      name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
			LineTotal: item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).StringFixed(2),
		})
	}
	return summary
}
