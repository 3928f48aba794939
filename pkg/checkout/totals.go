package checkout

import (
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

// Totals is the priced breakdown of a cart in minor units.
type Totals struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	TaxCents      int64 `json:"tax_cents"`
	ShippingCents int64 `json:"shipping_cents"`
	DiscountCents int64 `json:"discount_cents"`
	TotalCents    int64 `json:"total_cents"`
}

// ComputeTotals prices a subtotal with the configured tax rate and shipping
// policy. Discounts are always zero.
func ComputeTotals(subtotalCents int64, cfg config.CheckoutConfig) Totals {
	t := Totals{SubtotalCents: subtotalCents}
	t.TaxCents = money.PercentOfBps(subtotalCents, cfg.TaxRateBps)
	t.ShippingCents = cfg.FlatShippingCents
	if cfg.FreeShippingThreshold > 0 && subtotalCents >= cfg.FreeShippingThreshold {
		t.ShippingCents = 0
	}
	t.TotalCents = t.SubtotalCents + t.TaxCents + t.ShippingCents - t.DiscountCents
	return t
}
