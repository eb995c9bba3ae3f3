package features

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/smartcity/aqforecast/internal/domain"
)

// Seed is the starting point of a recursive forecast: the reference hour and the
// feature state observed at that hour.
type Seed struct {
	Timestamp time.Time
	State     State
}

// Overlay returns a copy of snapshot with the current slice replaced by obs.
// Pollutant values, the index, and weather present in the snapshot are overwritten
// when obs carries them; lags and rolling statistics are left untouched.
// The seed timestamp becomes the observation's UTC hour when set.
func Overlay(snapshot Seed, obs domain.WideObservation, weather map[string]float64) Seed {
	out := Seed{Timestamp: snapshot.Timestamp, State: snapshot.State.Clone()}
	if out.State == nil {
		out.State = State{}
	}
	if !obs.Timestamp.IsZero() {
		out.Timestamp = domain.ToUTC(obs.Timestamp).Truncate(time.Hour)
	}

	for name := range out.State {
		if IsHistorical(name) {
			continue
		}
		if name == domain.IndexQuantity {
			if obs.Index != nil {
				out.State[name] = float64(obs.Index.Index)
			}
			continue
		}
		if p, ok := domain.ParsePollutant(name); ok {
			if v, present := obs.Value(p); present {
				out.State[name] = v
			}
			continue
		}
		if v, ok := weather[name]; ok && isWeather(name) {
			out.State[name] = v
		}
	}
	return out
}

// HourlySeries lays hourly averages out as one series per pollutant covering
// the hours hours ending at end (inclusive), oldest first. Missing hours are NaN.
func HourlySeries(avgs []domain.HourlyAverage, end time.Time, hours int) map[domain.Pollutant][]float64 {
	series := make(map[domain.Pollutant][]float64)
	if hours <= 0 {
		return series
	}
	end = domain.ToUTC(end).Truncate(time.Hour)
	start := end.Add(-time.Duration(hours-1) * time.Hour)

	for _, a := range avgs {
		h := domain.ToUTC(a.Hour).Truncate(time.Hour)
		if h.Before(start) || h.After(end) {
			continue
		}
		s, ok := series[a.Pollutant]
		if !ok {
			s = make([]float64, hours)
			for i := range s {
				s[i] = math.NaN()
			}
			series[a.Pollutant] = s
		}
		s[int(h.Sub(start)/time.Hour)] = a.Value
	}
	return series
}

// StateFromHistory derives lag and rolling features from hourly series whose last
// element is the reference hour. Lags index back from that element; rolling windows
// include it and skip NaN hours. The index quantity gets lags only.
func StateFromHistory(history map[string][]float64) State {
	state := State{}
	for q, s := range history {
		n := len(s)
		if n == 0 {
			continue
		}
		state[q] = s[n-1]
		for _, h := range LagHours {
			v := math.NaN()
			if i := n - 1 - h; i >= 0 {
				v = s[i]
			}
			state[LagName(q, h)] = v
		}
		if q == domain.IndexQuantity {
			continue
		}
		for _, w := range RollingWindows {
			mean, std := rolling(s, w)
			state[RollingMeanName(q, w)] = mean
			state[RollingStdName(q, w)] = std
		}
	}
	return state
}

// rolling returns mean and sample std over the trailing window, NaN-skipping,
// with a single valid value enough for the mean.
func rolling(s []float64, w int) (float64, float64) {
	from := len(s) - w
	if from < 0 {
		from = 0
	}
	window := make([]float64, 0, w)
	for _, v := range s[from:] {
		if !math.IsNaN(v) {
			window = append(window, v)
		}
	}
	switch len(window) {
	case 0:
		return math.NaN(), math.NaN()
	case 1:
		return window[0], math.NaN()
	}
	return stat.MeanStdDev(window, nil)
}
