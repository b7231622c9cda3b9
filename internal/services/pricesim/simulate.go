// Package pricesim generates deterministic collateral price paths for
// scenario runs. Paths are seeded random walks, so the same configuration
// always replays the same market history.
package pricesim

import (
	"math/rand"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// price floor keeps generated paths strictly positive so every point is a
// valid market price
var minFactor = decimal.NewFromFloat(0.01)

// Config describes a price path to generate.
type Config struct {
	StartPrice        decimal.Decimal
	DriftPercent      decimal.Decimal // expected daily move, percent
	VolatilityPercent decimal.Decimal // daily standard deviation, percent
	Days              int
	Seed              int64
}

// Generate produces a daily price path of Days+1 points starting at
// StartPrice. Each step multiplies the price by 1 + (drift + vol*z)/100
// where z is a standard normal draw from the seeded generator.
func Generate(cfg Config) ([]decimal.Decimal, error) {
	if cfg.StartPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.Errorf("start price must be positive, got %s", cfg.StartPrice.String())
	}
	if cfg.Days <= 0 {
		return nil, errors.Errorf("days must be positive, got %d", cfg.Days)
	}
	if cfg.VolatilityPercent.IsNegative() {
		return nil, errors.Errorf("volatility percent must not be negative, got %s", cfg.VolatilityPercent.String())
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)

	path := make([]decimal.Decimal, 0, cfg.Days+1)
	path = append(path, cfg.StartPrice)

	price := cfg.StartPrice
	for i := 0; i < cfg.Days; i++ {
		shock := decimal.NewFromFloat(rng.NormFloat64()).Mul(cfg.VolatilityPercent)
		movePercent := cfg.DriftPercent.Add(shock)

		factor := one.Add(movePercent.Div(hundred))
		if factor.LessThan(minFactor) {
			factor = minFactor
		}

		price = price.Mul(factor)
		path = append(path, price)
	}

	return path, nil
}

// PathStats summarizes a generated path.
type PathStats struct {
	Min   decimal.Decimal
	Max   decimal.Decimal
	Final decimal.Decimal
	EMA   decimal.Decimal // exponential moving average at the end of the path
}

// Stats computes min/max/final plus the closing EMA over the given period.
func Stats(path []decimal.Decimal, emaPeriod int) (PathStats, error) {
	if len(path) == 0 {
		return PathStats{}, errors.New("empty price path")
	}
	if emaPeriod < 1 || emaPeriod > len(path) {
		return PathStats{}, errors.Errorf("ema period %d out of range for path of %d points", emaPeriod, len(path))
	}

	stats := PathStats{Min: path[0], Max: path[0], Final: path[len(path)-1]}
	for _, p := range path[1:] {
		if p.LessThan(stats.Min) {
			stats.Min = p
		}
		if p.GreaterThan(stats.Max) {
			stats.Max = p
		}
	}

	ema := trend.NewEmaWithPeriod[float64](emaPeriod)
	values := ema.Compute(helper.SliceToChan(decimalsToFloat64(path)))
	emaValues := helper.ChanToSlice(values)
	if len(emaValues) == 0 {
		return PathStats{}, errors.New("ema produced no values")
	}
	stats.EMA = decimal.NewFromFloat(emaValues[len(emaValues)-1])

	return stats, nil
}

func decimalsToFloat64(decimals []decimal.Decimal) []float64 {
	result := make([]float64, len(decimals))
	for i, d := range decimals {
		result[i], _ = d.Float64()
	}
	return result
}
