// Package domain holds the storefront's wholesale pricing, tax and loyalty
// rules.
package domain

import (
	"sort"
	"strings"

	apperrors "github.com/wholesale-storefront/storefront/internal/platform/errors"
)

// PriceTier lowers the unit price once a line reaches MinQty units.
type PriceTier struct {
	MinQty         int   `json:"min_qty"`
	UnitPriceCents int64 `json:"unit_price_cents"`
}

// Category groups products in the catalog.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Product is one sellable catalog entry.
type Product struct {
	ID         string      `json:"id"`
	SKU        string      `json:"sku"`
	Name       string      `json:"name"`
	CategoryID string      `json:"category_id,omitempty"`
	PriceCents int64       `json:"price_cents"`
	Tiers      []PriceTier `json:"tiers,omitempty"`
	Active     bool        `json:"active"`
}

// Normalize trims fields and sorts tiers by ascending MinQty.
func (p Product) Normalize() Product {
	p.ID = strings.TrimSpace(p.ID)
	p.SKU = strings.TrimSpace(p.SKU)
	p.Name = strings.TrimSpace(p.Name)
	p.CategoryID = strings.TrimSpace(p.CategoryID)
	if p.SKU == "" {
		p.SKU = p.ID
	}
	tiers := append([]PriceTier(nil), p.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinQty < tiers[j].MinQty })
	p.Tiers = tiers
	return p
}

// Validate checks catalog invariants.
func (p Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return apperrors.New(apperrors.CodeProductIDEmpty, "product id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return apperrors.New(apperrors.CodeProductNameEmpty, "product name is required")
	}
	if p.PriceCents < 0 {
		return apperrors.New(apperrors.CodeProductPriceInvalid, "product price must not be negative")
	}
	seen := map[int]bool{}
	for _, tier := range p.Tiers {
		if tier.MinQty < 2 {
			return apperrors.WithMetadata(apperrors.CodeProductPriceInvalid, "price tier minimum must be at least 2", map[string]string{"product_id": p.ID})
		}
		if tier.UnitPriceCents < 0 || tier.UnitPriceCents > p.PriceCents {
			return apperrors.WithMetadata(apperrors.CodeProductPriceInvalid, "price tier must not exceed the base price", map[string]string{"product_id": p.ID})
		}
		if seen[tier.MinQty] {
			return apperrors.WithMetadata(apperrors.CodeProductPriceInvalid, "price tier minimums must be unique", map[string]string{"product_id": p.ID})
		}
		seen[tier.MinQty] = true
	}
	return nil
}

// UnitPrice returns the price of one unit when buying quantity units: the
// tier with the highest MinQty not above quantity, otherwise the base price.
func (p Product) UnitPrice(quantity int) int64 {
	price := p.PriceCents
	best := 0
	for _, tier := range p.Tiers {
		if tier.MinQty <= quantity && tier.MinQty > best {
			best = tier.MinQty
			price = tier.UnitPriceCents
		}
	}
	return price
}
