package aqi

import (
	"math"
	"time"

	"github.com/smartcity/aqforecast/internal/domain"
)

// NowCastWindow is the number of most recent hourly averages considered
const NowCastWindow = 12

const minWeightFactor = 0.5

// NowCast smooths hourly averages ordered oldest to newest.
// Missing (NaN) or negative hours keep their position but carry no weight.
// With fewer than two valid hours the latest valid value is returned as is.
func NowCast(hourly []float64) (float64, bool) {
	if len(hourly) > NowCastWindow {
		hourly = hourly[len(hourly)-NowCastWindow:]
	}

	var (
		valid  int
		latest float64
		lo     = math.Inf(1)
		hi     = math.Inf(-1)
	)
	for i := len(hourly) - 1; i >= 0; i-- {
		v := hourly[i]
		if !validHour(v) {
			continue
		}
		if valid == 0 {
			latest = v
		}
		valid++
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if valid == 0 {
		return 0, false
	}
	if valid < 2 {
		return latest, true
	}

	w := minWeightFactor
	if hi > 0 {
		w = math.Max(minWeightFactor, 1-(hi-lo)/hi)
	}

	var sum, weights float64
	factor := 1.0
	for i := len(hourly) - 1; i >= 0; i-- {
		if v := hourly[i]; validHour(v) {
			sum += v * factor
			weights += factor
		}
		factor *= w
	}
	return sum / weights, true
}

func validHour(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// NowCastIndex smooths each pollutant's history and aggregates the results.
// The returned values hold only pollutants with a usable NowCast.
func (c *Calculator) NowCastIndex(history map[domain.Pollutant][]float64, ts time.Time) (map[domain.Pollutant]float64, domain.IndexResult, bool) {
	values := make(map[domain.Pollutant]float64, len(history))
	for p, series := range history {
		if v, ok := NowCast(series); ok {
			values[p] = v
		}
	}
	result, ok := c.Aggregate(values, ts)
	return values, result, ok
}
