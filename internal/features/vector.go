package features

import "math"

// State is the mutable name -> value map carried between forecast steps
type State map[string]float64

// Clone returns an independent copy
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Vector is an ordered feature mapping; names keep insertion order
type Vector struct {
	names  []string
	values map[string]float64
}

// NewVector creates an empty vector
func NewVector() *Vector {
	return &Vector{values: make(map[string]float64)}
}

// Set assigns a feature, appending its name on first use
func (v *Vector) Set(name string, value float64) {
	if _, ok := v.values[name]; !ok {
		v.names = append(v.names, name)
	}
	v.values[name] = value
}

// Get returns a feature value
func (v *Vector) Get(name string) (float64, bool) {
	val, ok := v.values[name]
	return val, ok
}

// Names returns feature names in insertion order
func (v *Vector) Names() []string {
	return append([]string(nil), v.names...)
}

// Len returns the number of features
func (v *Vector) Len() int {
	return len(v.names)
}

// Array lays the vector out in the given column order.
// Columns the vector does not hold are NaN, which models treat as missing.
func (v *Vector) Array(columns []string) []float64 {
	out := make([]float64, len(columns))
	for i, c := range columns {
		if val, ok := v.values[c]; ok {
			out[i] = val
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// ToFloat64 returns the values in insertion order
func (v *Vector) ToFloat64() []float64 {
	return v.Array(v.names)
}
