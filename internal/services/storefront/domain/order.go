package domain

import (
	"time"

	apperrors "github.com/wholesale-storefront/storefront/internal/platform/errors"
)

// CentsPerPoint is how much subtotal earns one loyalty point.
const CentsPerPoint = 100

// OrderLine is one priced product in an order or cart.
type OrderLine struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

// Totals is the money summary of a set of lines.
type Totals struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	TaxCents      int64 `json:"tax_cents"`
	TotalCents    int64 `json:"total_cents"`
	LoyaltyPoints int64 `json:"loyalty_points"`
}

// Order is a placed order.
type Order struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	ClientOrderID  string      `json:"client_order_id,omitempty"`
	IdempotencyKey string      `json:"-"`
	RequestHash    string      `json:"-"`
	Note           string      `json:"note,omitempty"`
	Lines          []OrderLine `json:"lines"`
	Totals
	CreatedAt time.Time `json:"created_at"`
}

// PriceLine prices quantity units of product.
func PriceLine(product Product, quantity int) (OrderLine, error) {
	if quantity <= 0 {
		return OrderLine{}, apperrors.WithMetadata(apperrors.CodeCartQuantityInvalid, "quantity must be positive", map[string]string{"product_id": product.ID})
	}
	unit := product.UnitPrice(quantity)
	return OrderLine{
		ProductID:      product.ID,
		Name:           product.Name,
		Quantity:       quantity,
		UnitPriceCents: unit,
		LineTotalCents: unit * int64(quantity),
	}, nil
}

// ComputeTotals sums lines and applies tax at taxRateBps basis points,
// rounded half up. Tax-exempt accounts pay no tax. Points accrue on the
// pre-tax subtotal.
func ComputeTotals(lines []OrderLine, taxRateBps int64, taxExempt bool) Totals {
	var subtotal int64
	for _, line := range lines {
		subtotal += line.LineTotalCents
	}
	var tax int64
	if !taxExempt && taxRateBps > 0 && subtotal > 0 {
		tax = (subtotal*taxRateBps + 5000) / 10000
	}
	return Totals{
		SubtotalCents: subtotal,
		TaxCents:      tax,
		TotalCents:    subtotal + tax,
		LoyaltyPoints: LoyaltyPoints(subtotal),
	}
}

// LoyaltyPoints awards one point per whole currency unit.
func LoyaltyPoints(subtotalCents int64) int64 {
	if subtotalCents <= 0 {
		return 0
	}
	return subtotalCents / CentsPerPoint
}
