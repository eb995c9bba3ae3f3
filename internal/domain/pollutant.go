package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Pollutant identifies one of the six criteria pollutants tracked by the engine
type Pollutant int

const (
	CO Pollutant = iota
	NO2
	O3
	PM10
	PM25
	SO2
)

// IndexQuantity is the state-key prefix used for the aggregated index in lag chains
const IndexQuantity = "aqi"

var pollutantCodes = [...]string{
	CO:   "co",
	NO2:  "no2",
	O3:   "o3",
	PM10: "pm10",
	PM25: "pm25",
	SO2:  "so2",
}

// Pollutants lists every pollutant in canonical order
func Pollutants() []Pollutant {
	return []Pollutant{CO, NO2, O3, PM10, PM25, SO2}
}

// String returns the lowercase parameter code (e.g. "pm25")
func (p Pollutant) String() string {
	if p < 0 || int(p) >= len(pollutantCodes) {
		return fmt.Sprintf("pollutant(%d)", int(p))
	}
	return pollutantCodes[p]
}

// Valid reports whether p is one of the known pollutants
func (p Pollutant) Valid() bool {
	return p >= 0 && int(p) < len(pollutantCodes)
}

// ParsePollutant maps a provider parameter name onto a Pollutant.
// Matching is case-insensitive and tolerates "pm2.5" / "pm2_5" spellings.
func ParsePollutant(name string) (Pollutant, bool) {
	code := strings.ToLower(strings.TrimSpace(name))
	code = strings.NewReplacer(".", "", "_", "", " ", "").Replace(code)
	for i, c := range pollutantCodes {
		if c == code {
			return Pollutant(i), true
		}
	}
	return 0, false
}

// MarshalText encodes the pollutant as its parameter code, so it can key JSON maps
func (p Pollutant) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("domain: unknown pollutant %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText decodes a parameter code
func (p *Pollutant) UnmarshalText(text []byte) error {
	parsed, ok := ParsePollutant(string(text))
	if !ok {
		return fmt.Errorf("domain: unknown pollutant %q", string(text))
	}
	*p = parsed
	return nil
}

// PollutantSet is a set of pollutants
type PollutantSet map[Pollutant]struct{}

// NewPollutantSet builds a set from the given pollutants
func NewPollutantSet(ps ...Pollutant) PollutantSet {
	s := make(PollutantSet, len(ps))
	for _, p := range ps {
		s[p] = struct{}{}
	}
	return s
}

// Has reports membership
func (s PollutantSet) Has(p Pollutant) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the members in canonical order
func (s PollutantSet) Sorted() []Pollutant {
	out := make([]Pollutant, 0, len(s))
	for _, p := range Pollutants() {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// MarshalJSON encodes the set as a sorted list of codes
func (s PollutantSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}
