package features

import "math"

const lagSlots = 6

// LagChain is a fixed-size ring of lag slots for one quantity.
// Slot i holds the value for LagHours[i]. Push shifts every slot one position
// toward the oldest and writes the new value into the lag-1h slot.
type LagChain struct {
	slots [lagSlots]float64
	head  int
}

// NewLagChain builds a chain from values ordered by LagHours; absent slots are NaN
func NewLagChain(values ...float64) *LagChain {
	c := &LagChain{}
	for i := range c.slots {
		c.slots[i] = math.NaN()
		if i < len(values) {
			c.slots[i] = values[i]
		}
	}
	return c
}

// Push shifts the chain and stores v as the newest value
func (c *LagChain) Push(v float64) {
	c.head = (c.head + lagSlots - 1) % lagSlots
	c.slots[c.head] = v
}

// At returns slot i (0 = lag 1h)
func (c *LagChain) At(i int) float64 {
	return c.slots[(c.head+i)%lagSlots]
}

// LagState holds one chain per tracked quantity and mirrors them into a State
type LagState struct {
	chains map[string]*LagChain
	order  []string
}

// NewLagState seeds chains from the lag features present in state.
// Quantities with no lag-1h feature are not tracked, and lags of quantities not
// listed are never written by Advance.
func NewLagState(state State, quantities []string) *LagState {
	ls := &LagState{chains: make(map[string]*LagChain)}
	for _, q := range quantities {
		if _, ok := state[LagName(q, LagHours[0])]; !ok {
			continue
		}
		values := make([]float64, len(LagHours))
		for i, h := range LagHours {
			v, ok := state[LagName(q, h)]
			if !ok {
				v = math.NaN()
			}
			values[i] = v
		}
		ls.chains[q] = NewLagChain(values...)
		ls.order = append(ls.order, q)
	}
	return ls
}

// Tracked reports whether q has a lag chain
func (ls *LagState) Tracked(q string) bool {
	_, ok := ls.chains[q]
	return ok
}

// Advance pushes one new value per tracked quantity (NaN when absent) and writes
// the shifted lags back into state. Only lag names already in state are written.
func (ls *LagState) Advance(state State, latest map[string]float64) {
	for _, q := range ls.order {
		v, ok := latest[q]
		if !ok {
			v = math.NaN()
		}
		chain := ls.chains[q]
		chain.Push(v)
		for i, h := range LagHours {
			name := LagName(q, h)
			if _, ok := state[name]; ok {
				state[name] = chain.At(i)
			}
		}
	}
}
