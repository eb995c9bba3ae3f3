package aqi

import (
	"math"
	"time"

	"github.com/smartcity/aqforecast/internal/domain"
	"github.com/smartcity/aqforecast/pkg/utils"
)

// Calculator computes sub-indices and aggregate indices from a fixed table set.
// It holds no mutable state and is safe for concurrent use.
type Calculator struct {
	tables Tables
	capped bool
}

// Option configures a Calculator
type Option func(*Calculator)

// WithCap caps concentrations above the top range at the table's highest index
// instead of extrapolating with the top range's slope.
func WithCap(capped bool) Option {
	return func(c *Calculator) {
		c.capped = capped
	}
}

// NewCalculator creates a calculator over the given tables
func NewCalculator(tables Tables, opts ...Option) *Calculator {
	c := &Calculator{tables: tables}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewDefaultCalculator uses the training-time tables with top-range extrapolation
func NewDefaultCalculator() *Calculator {
	return NewCalculator(DefaultTables())
}

// SubIndex returns the index contributed by one pollutant concentration.
// ok is false for missing or negative concentrations and pollutants without a table.
// A concentration falling in the rounding gap between two ranges (12.05 for PM2.5)
// is interpolated between the neighbouring endpoints instead of being undefined;
// strict range lookup would report no index there.
func (c *Calculator) SubIndex(p domain.Pollutant, concentration float64) (float64, bool) {
	if math.IsNaN(concentration) || math.IsInf(concentration, 0) || concentration < 0 {
		return 0, false
	}
	table, ok := c.tables[p]
	if !ok || len(table.Ranges) == 0 {
		return 0, false
	}
	conc := concentration * table.scale()

	for i, r := range table.Ranges {
		if conc > r.CHigh {
			continue
		}
		if i > 0 && conc < r.CLow {
			// precision gap (12.0 -> 12.1): bridge the two neighbouring endpoints
			prev := table.Ranges[i-1]
			return interpolate(Breakpoint{CLow: prev.CHigh, CHigh: r.CLow, ILow: prev.IHigh, IHigh: r.ILow}, conc), true
		}
		return interpolate(r, conc), true
	}

	top := table.Ranges[len(table.Ranges)-1]
	if c.capped || top.CHigh == top.CLow {
		return top.IHigh, true
	}
	slope := (top.IHigh - top.ILow) / (top.CHigh - top.CLow)
	return math.RoundToEven(top.IHigh + slope*(conc-top.CHigh)), true
}

func interpolate(r Breakpoint, conc float64) float64 {
	if r.CHigh == r.CLow {
		return r.IHigh
	}
	frac := (conc - r.CLow) / (r.CHigh - r.CLow)
	return math.RoundToEven(utils.Lerp(r.ILow, r.IHigh, frac))
}

// Aggregate reduces pollutant values to the dominant sub-index.
// Pollutants without a valid sub-index are ignored; ok is false when none remain.
// Ties go to the first pollutant in canonical order.
func (c *Calculator) Aggregate(values map[domain.Pollutant]float64, ts time.Time) (domain.IndexResult, bool) {
	var (
		best  domain.IndexResult
		found bool
		top   float64
	)
	for _, p := range domain.Pollutants() {
		v, ok := values[p]
		if !ok {
			continue
		}
		sub, ok := c.SubIndex(p, v)
		if !ok {
			continue
		}
		if !found || sub > top {
			top = sub
			found = true
			best = domain.IndexResult{
				Index:                 int(sub),
				DominantPollutant:     p,
				DominantConcentration: v,
				Timestamp:             ts,
			}
		}
	}
	return best, found
}

// Measurements annotates readings with their own sub-index
func (c *Calculator) Measurements(readings []domain.Reading) []domain.Measurement {
	out := make([]domain.Measurement, 0, len(readings))
	for _, r := range readings {
		m := domain.Measurement{
			Parameter: r.Parameter,
			Value:     r.Value,
			Unit:      r.Unit,
			Timestamp: r.TimestampUTC,
		}
		if sub, ok := c.SubIndex(r.Parameter, r.Value); ok {
			idx := int(sub)
			m.SubIndex = &idx
		}
		out = append(out, m)
	}
	return out
}
