package app

import (
	"context"
	"fmt"

	"github.com/wholesale-storefront/storefront/internal/services/storefront/domain"
	"github.com/wholesale-storefront/storefront/internal/services/storefront/storage"
)

var demoCategories = []domain.Category{
	{ID: "packaging", Name: "Packaging"},
	{ID: "janitorial", Name: "Janitorial"},
	{ID: "office", Name: "Office supplies"},
}

var demoProducts = []domain.Product{
	{
		ID: "box-small", SKU: "PKG-BOX-S", Name: "Shipping box, small", CategoryID: "packaging", PriceCents: 120,
		Tiers:  []domain.PriceTier{{MinQty: 50, UnitPriceCents: 100}, {MinQty: 250, UnitPriceCents: 85}},
		Active: true,
	},
	{
		ID: "tape-roll", SKU: "PKG-TAPE", Name: "Packing tape roll", CategoryID: "packaging", PriceCents: 399,
		Tiers:  []domain.PriceTier{{MinQty: 24, UnitPriceCents: 349}},
		Active: true,
	},
	{
		ID: "towel-case", SKU: "JAN-TOWEL", Name: "Paper towels, case of 12", CategoryID: "janitorial", PriceCents: 2899,
		Tiers:  []domain.PriceTier{{MinQty: 10, UnitPriceCents: 2599}},
		Active: true,
	},
	{
		ID: "copy-paper", SKU: "OFF-PAPER", Name: "Copy paper, 10 reams", CategoryID: "office", PriceCents: 4999,
		Active: true,
	},
}

var demoStock = []storage.StockLevel{
	{SKU: "PKG-BOX-S", Quantity: 2000},
	{SKU: "PKG-TAPE", Quantity: 300},
	{SKU: "JAN-TOWEL", Quantity: 40},
}

// SeedDemo upserts a small demo catalog. Running it twice is harmless.
func SeedDemo(ctx context.Context, store storage.Store) error {
	for _, category := range demoCategories {
		if err := store.PutCategory(ctx, category); err != nil {
			return fmt.Errorf("seed category %s: %w", category.ID, err)
		}
	}
	for _, product := range demoProducts {
		if err := store.PutProduct(ctx, product); err != nil {
			return fmt.Errorf("seed product %s: %w", product.ID, err)
		}
	}
	for _, level := range demoStock {
		if _, err := store.GetStock(ctx, level.SKU); err == nil {
			continue
		}
		if err := store.SetStock(ctx, level); err != nil {
			return fmt.Errorf("seed stock %s: %w", level.SKU, err)
		}
	}
	return nil
}
