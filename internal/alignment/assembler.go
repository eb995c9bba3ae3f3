package alignment

import (
	"math"
	"time"

	"github.com/smartcity/aqforecast/internal/aqi"
	"github.com/smartcity/aqforecast/internal/domain"
)

// unbounded is used when re-deduplicating already aligned batches
const unbounded = time.Duration(math.MaxInt64)

// Assembler merges aligned batches from several sources into one wide observation
type Assembler struct {
	calc       *aqi.Calculator
	tolerances Tolerances
}

// NewAssembler creates an assembler that scores observations with calc
func NewAssembler(calc *aqi.Calculator, tolerances Tolerances) *Assembler {
	return &Assembler{calc: calc, tolerances: tolerances}
}

// Assemble unions primary and secondary batches, restricts them to targets and keeps the
// reading nearest to ref per parameter. Secondary readings only fill parameters the primary
// batch lacks; a closer secondary reading never replaces a primary one. ok is false when no
// reading survives, which callers treat as "no observation available". The selected
// readings are returned for display.
func (a *Assembler) Assemble(primary, secondary []domain.Reading, targets domain.PollutantSet, ref time.Time) (domain.WideObservation, []domain.Reading, bool) {
	union := make([]domain.Reading, 0, len(primary)+len(secondary))
	covered := make(map[domain.Pollutant]bool, len(primary))
	for _, r := range primary {
		if targets.Has(r.Parameter) {
			union = append(union, r)
			covered[r.Parameter] = true
		}
	}
	for _, r := range secondary {
		if targets.Has(r.Parameter) && !covered[r.Parameter] {
			union = append(union, r)
		}
	}

	if ref.IsZero() {
		latest, ok := ReferenceTime(union)
		if !ok {
			return domain.WideObservation{}, nil, false
		}
		ref = latest
	}

	selected := Align(union, ref, unbounded)
	if len(selected) == 0 {
		return domain.WideObservation{}, nil, false
	}

	ts := domain.ToUTC(ref)
	obs := domain.WideObservation{
		Timestamp: ts,
		Values:    make(map[domain.Pollutant]float64, len(selected)),
	}
	for _, r := range selected {
		obs.Values[r.Parameter] = r.Value
	}
	if idx, ok := a.calc.Aggregate(obs.Values, ts); ok {
		obs.Index = &idx
	}
	return obs, selected, true
}

// AlignAndAssemble tier-aligns both sources against ref and assembles the result
func (a *Assembler) AlignAndAssemble(primary, secondary []domain.Reading, targets domain.PollutantSet, ref time.Time) (domain.WideObservation, []domain.Reading, bool) {
	tiers := a.tolerances.Tiers()
	primaryBatch := AlignTiered(primary, ref, tiers...)
	secondaryBatch := AlignTiered(secondary, ref, tiers...)
	return a.Assemble(primaryBatch, secondaryBatch, targets, ref)
}

// Tolerances returns the configured tiers
func (a *Assembler) Tolerances() Tolerances {
	return a.tolerances
}
