// Package features builds the engineered feature vectors consumed by the forecast models.
package features

import (
	"fmt"
	"strings"

	"github.com/smartcity/aqforecast/internal/domain"
)

// LagHours are the historical offsets kept per tracked quantity
var LagHours = []int{1, 2, 3, 6, 12, 24}

// RollingWindows are the trailing windows for rolling mean/std features
var RollingWindows = []int{6, 12, 24}

// Calendar feature names, recomputed for every step
const (
	FeatureHour      = "hour"
	FeatureDayOfWeek = "day_of_week"
	FeatureMonth     = "month"
	FeatureDayOfYear = "day_of_year"
	FeatureIsWeekend = "is_weekend"
	FeatureHourSin   = "hour_sin"
	FeatureHourCos   = "hour_cos"
	FeatureDaySin    = "day_sin"
	FeatureDayCos    = "day_cos"
)

// CalendarFeatures lists calendar feature names in model order
func CalendarFeatures() []string {
	return []string{
		FeatureHour, FeatureDayOfWeek, FeatureMonth, FeatureIsWeekend,
		FeatureHourSin, FeatureHourCos, FeatureDaySin, FeatureDayCos,
		FeatureDayOfYear,
	}
}

// LagName returns "{quantity}_lag_{h}h"
func LagName(quantity string, h int) string {
	return fmt.Sprintf("%s_lag_%dh", quantity, h)
}

// RollingMeanName returns "{quantity}_rolling_mean_{w}h"
func RollingMeanName(quantity string, w int) string {
	return fmt.Sprintf("%s_rolling_mean_%dh", quantity, w)
}

// RollingStdName returns "{quantity}_rolling_std_{w}h"
func RollingStdName(quantity string, w int) string {
	return fmt.Sprintf("%s_rolling_std_%dh", quantity, w)
}

// IsHistorical reports whether name is a lag or rolling feature
func IsHistorical(name string) bool {
	return strings.Contains(name, "_lag_") || strings.Contains(name, "_rolling_")
}

// Quantities returns the tracked lag-chain quantities: each pollutant plus the index
func Quantities(pollutants []domain.Pollutant) []string {
	out := make([]string, 0, len(pollutants)+1)
	for _, p := range pollutants {
		out = append(out, p.String())
	}
	return append(out, domain.IndexQuantity)
}

// DefaultColumns returns the training column layout: weather, calendar, then per-quantity
// lags and (for pollutants only) rolling statistics.
func DefaultColumns(pollutants []domain.Pollutant) []string {
	cols := append([]string{}, domain.WeatherFeatures()...)
	for _, c := range CalendarFeatures() {
		if c != FeatureDayOfYear {
			cols = append(cols, c)
		}
	}
	for _, q := range Quantities(pollutants) {
		for _, h := range LagHours {
			cols = append(cols, LagName(q, h))
		}
		if q == domain.IndexQuantity {
			continue
		}
		for _, w := range RollingWindows {
			cols = append(cols, RollingMeanName(q, w), RollingStdName(q, w))
		}
	}
	return cols
}

func isCalendar(name string) bool {
	for _, c := range CalendarFeatures() {
		if c == name {
			return true
		}
	}
	return false
}

func isWeather(name string) bool {
	for _, w := range domain.WeatherFeatures() {
		if w == name {
			return true
		}
	}
	return false
}
