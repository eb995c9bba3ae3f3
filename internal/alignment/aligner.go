// Package alignment reconciles unevenly timed sensor readings into one observation batch.
package alignment

import (
	"sort"
	"time"

	"github.com/smartcity/aqforecast/internal/domain"
)

// Tolerances are the strict and loose alignment windows tried in order
type Tolerances struct {
	Primary  time.Duration
	Fallback time.Duration
}

// DefaultTolerances returns the 5 minute / 60 minute tiers
func DefaultTolerances() Tolerances {
	return Tolerances{
		Primary:  5 * time.Minute,
		Fallback: 60 * time.Minute,
	}
}

// Tiers returns the tolerances in retry order
func (t Tolerances) Tiers() []time.Duration {
	return []time.Duration{t.Primary, t.Fallback}
}

// Align keeps, per parameter, the reading closest to ref within tol.
// Readings without a valid timestamp are dropped. Ties prefer the most recent reading.
// The result is ordered by parameter and is empty when readings is empty or ref is zero.
func Align(readings []domain.Reading, ref time.Time, tol time.Duration) []domain.Reading {
	if len(readings) == 0 || ref.IsZero() || tol < 0 {
		return nil
	}
	ref = domain.ToUTC(ref)

	best := make(map[domain.Pollutant]domain.Reading)
	bestDiff := make(map[domain.Pollutant]time.Duration)

	for _, r := range readings {
		if !r.Parameter.Valid() || !r.TimestampUTC.Valid {
			continue
		}
		diff := absDuration(r.TimestampUTC.Time.Sub(ref))
		if diff > tol {
			continue
		}
		cur, seen := best[r.Parameter]
		if !seen || diff < bestDiff[r.Parameter] ||
			(diff == bestDiff[r.Parameter] && r.TimestampUTC.Time.After(cur.TimestampUTC.Time)) {
			best[r.Parameter] = r
			bestDiff[r.Parameter] = diff
		}
	}

	return sortedReadings(best)
}

// AlignTiered runs Align with each tolerance in turn and returns the first non-empty batch
func AlignTiered(readings []domain.Reading, ref time.Time, tiers ...time.Duration) []domain.Reading {
	for _, tol := range tiers {
		if batch := Align(readings, ref, tol); len(batch) > 0 {
			return batch
		}
	}
	return nil
}

// ReferenceTime returns the latest valid reading timestamp, the batch instant t*
func ReferenceTime(readings []domain.Reading) (time.Time, bool) {
	var (
		latest time.Time
		found  bool
	)
	for _, r := range readings {
		if !r.TimestampUTC.Valid {
			continue
		}
		if !found || r.TimestampUTC.Time.After(latest) {
			latest = r.TimestampUTC.Time
			found = true
		}
	}
	return latest, found
}

// Missing returns the targets that have no reading in batch, in canonical order
func Missing(batch []domain.Reading, targets domain.PollutantSet) []domain.Pollutant {
	have := make(domain.PollutantSet, len(batch))
	for _, r := range batch {
		have[r.Parameter] = struct{}{}
	}
	var missing []domain.Pollutant
	for _, p := range targets.Sorted() {
		if !have.Has(p) {
			missing = append(missing, p)
		}
	}
	return missing
}

func sortedReadings(byParam map[domain.Pollutant]domain.Reading) []domain.Reading {
	if len(byParam) == 0 {
		return nil
	}
	out := make([]domain.Reading, 0, len(byParam))
	for _, r := range byParam {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Parameter < out[j].Parameter
	})
	return out
}

// absDuration returns the absolute value of a Duration
func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
