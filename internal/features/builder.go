package features

import (
	"math"
	"sort"
	"time"

	"github.com/smartcity/aqforecast/internal/domain"
)

// Builder assembles the feature vector for a single forecast step
type Builder struct{}

// NewBuilder creates a Builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Build returns the vector for stepTime.
// Calendar features are recomputed from stepTime. Each environmental feature takes
// the exact-hour value from weather when present, otherwise the value carried in prev.
// Every other entry of prev (lags, rolling statistics, current values) is copied as-is.
func (b *Builder) Build(prev State, stepTime time.Time, weather map[string]float64) *Vector {
	v := NewVector()
	setCalendar(v, domain.ToUTC(stepTime))

	for _, name := range domain.WeatherFeatures() {
		if val, ok := weather[name]; ok {
			v.Set(name, val)
			continue
		}
		if val, ok := prev[name]; ok {
			v.Set(name, val)
		}
	}

	rest := make([]string, 0, len(prev))
	for name := range prev {
		if isCalendar(name) || isWeather(name) {
			continue
		}
		rest = append(rest, name)
	}
	sort.Strings(rest)
	for _, name := range rest {
		v.Set(name, prev[name])
	}
	return v
}

func setCalendar(v *Vector, t time.Time) {
	hour := float64(t.Hour())
	dow := (int(t.Weekday()) + 6) % 7 // Monday = 0
	doy := float64(t.YearDay())

	weekend := 0.0
	if dow >= 5 {
		weekend = 1
	}

	v.Set(FeatureHour, hour)
	v.Set(FeatureDayOfWeek, float64(dow))
	v.Set(FeatureMonth, float64(t.Month()))
	v.Set(FeatureIsWeekend, weekend)
	v.Set(FeatureHourSin, math.Sin(2*math.Pi*hour/24))
	v.Set(FeatureHourCos, math.Cos(2*math.Pi*hour/24))
	v.Set(FeatureDaySin, math.Sin(2*math.Pi*doy/365))
	v.Set(FeatureDayCos, math.Cos(2*math.Pi*doy/365))
	v.Set(FeatureDayOfYear, doy)
}
