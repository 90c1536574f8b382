// Package pricing turns a source cost and shipping weight into a storefront sell price.
package pricing

import (
	"github.com/shopspring/decimal"
)

const (
	DefaultShippingPerKg     = 1250
	DefaultMarginDivisor     = 0.70
	DefaultVolumetricDivisor = 5000
)

// Rates holds the business constants of the pricing formula.
type Rates struct {
	ShippingPerKg float64 `mapstructure:"shipping_per_kg" json:"shipping_per_kg" yaml:"shipping_per_kg"`
	MarginDivisor float64 `mapstructure:"margin_divisor" json:"margin_divisor" yaml:"margin_divisor"`
}

// DefaultRates returns the standard shipping surcharge and ~30% margin target.
func DefaultRates() Rates {
	return Rates{ShippingPerKg: DefaultShippingPerKg, MarginDivisor: DefaultMarginDivisor}
}

// WithDefaults fills unset (non-positive) fields from DefaultRates.
func (r Rates) WithDefaults() Rates {
	d := DefaultRates()
	if r.ShippingPerKg <= 0 {
		r.ShippingPerKg = d.ShippingPerKg
	}
	if r.MarginDivisor <= 0 {
		r.MarginDivisor = d.MarginDivisor
	}
	return r
}

// SellPrice computes round((cost + weightKg*ShippingPerKg) / MarginDivisor) using
// round-half-even. A non-positive cost returns 0, meaning "do not list".
func (r Rates) SellPrice(cost int, weightKg float64) int {
	if cost <= 0 {
		return 0
	}
	r = r.WithDefaults()
	if weightKg < 0 {
		weightKg = 0
	}

	basis := decimal.NewFromInt(int64(cost)).
		Add(decimal.NewFromFloat(weightKg).Mul(decimal.NewFromFloat(r.ShippingPerKg)))
	price := basis.Div(decimal.NewFromFloat(r.MarginDivisor)).RoundBank(0)
	return int(price.IntPart())
}

// SellPrice applies DefaultRates.
func SellPrice(cost int, weightKg float64) int {
	return DefaultRates().SellPrice(cost, weightKg)
}

// VolumetricKg estimates shipping weight from package dimensions in centimetres.
// A non-positive divisor falls back to DefaultVolumetricDivisor.
func VolumetricKg(lengthCm, widthCm, heightCm, divisor float64) float64 {
	if lengthCm <= 0 || widthCm <= 0 || heightCm <= 0 {
		return 0
	}
	if divisor <= 0 {
		divisor = DefaultVolumetricDivisor
	}
	v, _ := decimal.NewFromFloat(lengthCm).
		Mul(decimal.NewFromFloat(widthCm)).
		Mul(decimal.NewFromFloat(heightCm)).
		Div(decimal.NewFromFloat(divisor)).
		Round(3).
		Float64()
	return v
}

// ResolveWeight picks the larger of declared and volumetric weight.
func ResolveWeight(declaredKg, volumetricKg float64) float64 {
	if volumetricKg > declaredKg {
		return volumetricKg
	}
	if declaredKg < 0 {
		return 0
	}
	return declaredKg
}
