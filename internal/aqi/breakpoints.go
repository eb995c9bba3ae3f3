// Package aqi maps pollutant concentrations onto the air quality index.
//
// Sub-indices come from piecewise-linear breakpoint tables; the aggregate index is the
// maximum sub-index across pollutants. NowCast smoothing of short hourly histories lives here too.
package aqi

import (
	"fmt"

	"github.com/smartcity/aqforecast/internal/domain"
)

// Breakpoint is one concentration range and the index range it maps onto
type Breakpoint struct {
	CLow  float64 `json:"c_low"`
	CHigh float64 `json:"c_high"`
	ILow  float64 `json:"i_low"`
	IHigh float64 `json:"i_high"`
}

// Table is an ascending sequence of breakpoints for one pollutant.
// Scale converts the reported unit into the table's unit before lookup (0 means 1).
type Table struct {
	Ranges []Breakpoint `json:"ranges"`
	Scale  float64      `json:"scale,omitempty"`
}

// Tables holds one table per pollutant. It is read-only after construction.
type Tables map[domain.Pollutant]Table

// Validate checks that ranges are well formed, ascending and non-overlapping
func (t Table) Validate() error {
	if len(t.Ranges) == 0 {
		return fmt.Errorf("aqi: table has no ranges")
	}
	for i, r := range t.Ranges {
		if r.CHigh < r.CLow {
			return fmt.Errorf("aqi: range %d has c_high %.4g below c_low %.4g", i, r.CHigh, r.CLow)
		}
		if r.IHigh < r.ILow {
			return fmt.Errorf("aqi: range %d has i_high %.4g below i_low %.4g", i, r.IHigh, r.ILow)
		}
		if i == 0 {
			continue
		}
		prev := t.Ranges[i-1]
		if r.CLow < prev.CHigh {
			return fmt.Errorf("aqi: range %d overlaps range %d", i, i-1)
		}
		if r.ILow < prev.IHigh {
			return fmt.Errorf("aqi: range %d index decreases from range %d", i, i-1)
		}
	}
	return nil
}

// Validate checks every table in the set
func (ts Tables) Validate() error {
	for p, t := range ts {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func (t Table) scale() float64 {
	if t.Scale == 0 {
		return 1
	}
	return t.Scale
}

// DefaultTables returns the training-time breakpoints the forecast models were fitted against
func DefaultTables() Tables {
	return Tables{
		domain.PM25: {Ranges: []Breakpoint{{0.0, 12.0, 0, 50}, {12.1, 35.4, 51, 100}, {35.5, 55.4, 101, 150}, {55.5, 150.4, 151, 200}}},
		domain.PM10: {Ranges: []Breakpoint{{0, 54, 0, 50}, {55, 154, 51, 100}, {155, 254, 101, 150}, {255, 354, 151, 200}}},
		domain.O3:   {Ranges: []Breakpoint{{0, 54, 0, 50}, {55, 70, 51, 100}, {71, 85, 101, 150}, {86, 105, 151, 200}}},
		domain.CO:   {Ranges: []Breakpoint{{0.0, 4.4, 0, 50}, {4.5, 9.4, 51, 100}, {9.5, 12.4, 101, 150}, {12.5, 15.4, 151, 200}}},
		domain.NO2:  {Ranges: []Breakpoint{{0, 100, 0, 50}, {101, 360, 51, 100}, {361, 649, 101, 150}, {650, 1249, 151, 200}}},
		domain.SO2:  {Ranges: []Breakpoint{{0, 35, 0, 50}, {36, 75, 51, 100}, {76, 185, 101, 150}, {186, 304, 151, 200}}},
	}
}

// EPA2024Tables returns the May 2024 EPA breakpoints.
// NO2 and SO2 readings arrive in ppm and are scaled to ppb.
func EPA2024Tables() Tables {
	return Tables{
		domain.PM25: {Ranges: []Breakpoint{
			{0, 9.0, 0, 50}, {9.1, 35.4, 51, 100}, {35.5, 55.4, 101, 150},
			{55.5, 125.4, 151, 200}, {125.5, 225.4, 201, 300}, {225.5, 325.4, 301, 500},
		}},
		domain.PM10: {Ranges: []Breakpoint{
			{0, 54, 0, 50}, {55, 154, 51, 100}, {155, 254, 101, 150},
			{255, 354, 151, 200}, {355, 424, 201, 300}, {425, 604, 301, 500},
		}},
		domain.O3: {Ranges: []Breakpoint{
			{0, 0.054, 0, 50}, {0.055, 0.070, 51, 100}, {0.071, 0.085, 101, 150},
			{0.086, 0.105, 151, 200}, {0.106, 0.200, 201, 300},
		}},
		domain.NO2: {Scale: 1000, Ranges: []Breakpoint{
			{0, 53, 0, 50}, {54, 100, 51, 100}, {101, 360, 101, 150},
			{361, 649, 151, 200}, {650, 1249, 201, 300}, {1250, 2049, 301, 500},
		}},
		domain.SO2: {Scale: 1000, Ranges: []Breakpoint{
			{0, 35, 0, 50}, {36, 75, 51, 100}, {76, 185, 101, 150}, {186, 304, 151, 200},
		}},
		domain.CO: {Ranges: []Breakpoint{
			{0, 4.4, 0, 50}, {4.5, 9.4, 51, 100}, {9.5, 12.4, 101, 150},
			{12.5, 15.4, 151, 200}, {15.5, 30.4, 201, 300}, {30.5, 50.4, 301, 500},
		}},
	}
}

// TablesByName resolves a configured table set
func TablesByName(name string) (Tables, error) {
	switch name {
	case "", "training":
		return DefaultTables(), nil
	case "epa2024":
		return EPA2024Tables(), nil
	default:
		return nil, fmt.Errorf("aqi: unknown breakpoint table set %q", name)
	}
}
