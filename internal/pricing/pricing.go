package pricing

import (
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	defaultFreeShippingThreshold = decimal.NewFromInt(200)
	defaultFlatShippingFee       = decimal.NewFromInt(15)
	defaultTaxRate               = decimal.RequireFromString("0.15")
)

// Rules holds the inputs that shape an order's price breakdown.
type Rules struct {
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
	TaxRate               decimal.Decimal
}

// DefaultRules returns the storefront's standard pricing rules.
func DefaultRules() Rules {
	return Rules{
		FreeShippingThreshold: defaultFreeShippingThreshold,
		FlatShippingFee:       defaultFlatShippingFee,
		TaxRate:               defaultTaxRate,
	}
}

// RulesFromConfig maps the environment-backed pricing section.
func RulesFromConfig(cfg config.PricingConfig) Rules {
	return Rules{
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		FlatShippingFee:       cfg.FlatShippingFee,
		TaxRate:               cfg.TaxRate,
	}
}

// OrderPricing is the frozen price breakdown stored on an order.
type OrderPricing struct {
	ItemsPrice    decimal.Decimal `json:"itemsPrice"`
	TaxPrice      decimal.Decimal `json:"taxPrice"`
	ShippingPrice decimal.Decimal `json:"shippingPrice"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
}

// Compute derives tax, shipping and total from the cart's item total.
// Shipping is waived only when items strictly exceed the threshold.
func Compute(itemsPrice decimal.Decimal, rules Rules) (OrderPricing, error) {
	if itemsPrice.IsNegative() {
		return OrderPricing{}, pkgerrors.New(pkgerrors.CodeValidation, "items price must not be negative")
	}
	if rules.TaxRate.IsNegative() || rules.FlatShippingFee.IsNegative() || rules.FreeShippingThreshold.IsNegative() {
		return OrderPricing{}, pkgerrors.New(pkgerrors.CodeValidation, "pricing rules must not be negative")
	}

	items := Round2(itemsPrice)
	tax := Round2(items.Mul(rules.TaxRate))
	shipping := Round2(rules.FlatShippingFee)
	if items.GreaterThan(rules.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	return OrderPricing{
		ItemsPrice:    items,
		TaxPrice:      tax,
		ShippingPrice: shipping,
		TotalPrice:    Round2(items.Add(tax).Add(shipping)),
	}, nil
}

// Round2 rounds half away from zero at two places; for money that is half up.
func Round2(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// MinorUnits converts an amount to cents, the unit processors charge in.
func MinorUnits(amount decimal.Decimal) int64 {
	return Round2(amount).Shift(2).IntPart()
}
