package pricing

import (
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestComputeAboveThresholdWaivesShipping(t *testing.T) {
	got, err := Compute(dec("220.00"), DefaultRules())
	require.NoError(t, err)

	require.Equal(t, "220", got.ItemsPrice.String())
	require.Equal(t, "33", got.TaxPrice.String())
	require.True(t, got.ShippingPrice.IsZero())
	require.Equal(t, "253", got.TotalPrice.String())
}

func TestComputeBelowThresholdChargesFlatFee(t *testing.T) {
	got, err := Compute(dec("50.00"), DefaultRules())
	require.NoError(t, err)

	require.Equal(t, "7.5", got.TaxPrice.String())
	require.Equal(t, "15", got.ShippingPrice.String())
	require.Equal(t, "72.5", got.TotalPrice.String())
}

func TestComputeAtThresholdStillChargesShipping(t *testing.T) {
	got, err := Compute(dec("200"), DefaultRules())
	require.NoError(t, err)
	require.Equal(t, "15", got.ShippingPrice.String())
	require.Equal(t, "245", got.TotalPrice.String())
}

func TestComputeRoundsTaxHalfUp(t *testing.T) {
	// 0.15 * 10.10 = 1.515 -> 1.52
	got, err := Compute(dec("10.10"), DefaultRules())
	require.NoError(t, err)
	require.Equal(t, "1.52", got.TaxPrice.StringFixed(2))
	require.Equal(t, "26.62", got.TotalPrice.StringFixed(2))
	require.Equal(t, int64(2662), MinorUnits(got.TotalPrice))
}

func TestComputeNoFloatDrift(t *testing.T) {
	items := dec("0.1").Add(dec("0.2"))
	got, err := Compute(items, Rules{TaxRate: decimal.Zero, FlatShippingFee: decimal.Zero, FreeShippingThreshold: decimal.Zero})
	require.NoError(t, err)
	require.Equal(t, "0.3", got.TotalPrice.String())
}

func TestComputeRejectsNegative(t *testing.T) {
	_, err := Compute(dec("-1"), DefaultRules())
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRulesFromConfig(t *testing.T) {
	rules := RulesFromConfig(config.PricingConfig{
		FreeShippingThreshold: dec("100"),
		FlatShippingFee:       dec("5"),
		TaxRate:               dec("0.1"),
	})
	got, err := Compute(dec("100"), rules)
	require.NoError(t, err)
	require.Equal(t, "5", got.ShippingPrice.String())
	require.Equal(t, "115", got.TotalPrice.String())
}

func TestMinorUnits(t *testing.T) {
	require.Equal(t, int64(25300), MinorUnits(dec("253")))
	require.Equal(t, int64(1), MinorUnits(dec("0.005")))
}
