package aqi

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcity/aqforecast/internal/domain"
)

func TestSubIndex_Interpolation(t *testing.T) {
	calc := NewCalculator(Tables{
		domain.PM25: {Ranges: []Breakpoint{{0, 12, 0, 50}, {12.1, 35.4, 51, 100}}},
	})

	got, ok := calc.SubIndex(domain.PM25, 6.0)
	require.True(t, ok)
	assert.Equal(t, 25.0, got)

	got, ok = calc.SubIndex(domain.PM25, 12.1)
	require.True(t, ok)
	assert.Equal(t, 51.0, got)

	got, ok = calc.SubIndex(domain.PM25, 35.4)
	require.True(t, ok)
	assert.Equal(t, 100.0, got)
}

func TestSubIndex_InvalidInputs(t *testing.T) {
	calc := NewDefaultCalculator()

	tests := []struct {
		name  string
		p     domain.Pollutant
		value float64
	}{
		{"negative", domain.PM25, -1},
		{"nan", domain.PM25, math.NaN()},
		{"inf", domain.O3, math.Inf(1)},
		{"unknown table", domain.Pollutant(42), 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := calc.SubIndex(tt.p, tt.value)
			assert.False(t, ok)
		})
	}
}

func TestSubIndex_DegenerateRange(t *testing.T) {
	calc := NewCalculator(Tables{
		domain.CO: {Ranges: []Breakpoint{{0, 0, 0, 10}, {0.1, 5, 11, 50}}},
	})

	got, ok := calc.SubIndex(domain.CO, 0)
	require.True(t, ok)
	assert.Equal(t, 10.0, got)
}

func TestSubIndex_AboveTable(t *testing.T) {
	tables := Tables{
		domain.PM10: {Ranges: []Breakpoint{{0, 54, 0, 50}, {55, 154, 51, 100}}},
	}

	// slope of the top range is 49/99
	got, ok := NewCalculator(tables).SubIndex(domain.PM10, 253)
	require.True(t, ok)
	assert.Equal(t, math.RoundToEven(100+49.0/99.0*99), got)

	got, ok = NewCalculator(tables, WithCap(true)).SubIndex(domain.PM10, 253)
	require.True(t, ok)
	assert.Equal(t, 100.0, got)
}

func TestSubIndex_PrecisionGap(t *testing.T) {
	calc := NewDefaultCalculator()

	low, _ := calc.SubIndex(domain.PM25, 12.0)
	gap, ok := calc.SubIndex(domain.PM25, 12.05)
	require.True(t, ok)
	high, _ := calc.SubIndex(domain.PM25, 12.1)

	assert.GreaterOrEqual(t, gap, low)
	assert.LessOrEqual(t, gap, high)
}

func TestSubIndex_MonotonicWithinTables(t *testing.T) {
	for name, tables := range map[string]Tables{"training": DefaultTables(), "epa2024": EPA2024Tables()} {
		calc := NewCalculator(tables)
		for p, table := range tables {
			top := table.Ranges[len(table.Ranges)-1].CHigh / table.scale()
			step := top / 2000
			prev := -1.0
			for c := 0.0; c <= top; c += step {
				got, ok := calc.SubIndex(p, c)
				require.True(t, ok, "%s/%s at %v", name, p, c)
				assert.GreaterOrEqual(t, got, prev, "%s/%s not monotonic at %v", name, p, c)
				prev = got
			}
		}
	}
}

func TestTablesValidate(t *testing.T) {
	require.NoError(t, DefaultTables().Validate())
	require.NoError(t, EPA2024Tables().Validate())

	bad := Table{Ranges: []Breakpoint{{0, 10, 0, 50}, {5, 20, 51, 100}}}
	assert.Error(t, bad.Validate())
	assert.Error(t, Table{}.Validate())
}

func TestAggregate(t *testing.T) {
	calc := NewDefaultCalculator()
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	values := map[domain.Pollutant]float64{
		domain.PM25: 6.0,  // 25
		domain.PM10: 80,   // ~63
		domain.O3:   -3.0, // invalid, ignored
	}

	result, ok := calc.Aggregate(values, ts)
	require.True(t, ok)
	assert.Equal(t, domain.PM10, result.DominantPollutant)
	assert.Equal(t, 80.0, result.DominantConcentration)
	assert.Equal(t, ts, result.Timestamp)

	for p, v := range values {
		if sub, ok := calc.SubIndex(p, v); ok {
			assert.GreaterOrEqual(t, float64(result.Index), sub)
		}
	}
}

func TestAggregate_NoValidPollutant(t *testing.T) {
	calc := NewDefaultCalculator()

	_, ok := calc.Aggregate(map[domain.Pollutant]float64{domain.PM25: -1}, time.Now())
	assert.False(t, ok)

	_, ok = calc.Aggregate(nil, time.Now())
	assert.False(t, ok)
}

func TestMeasurements(t *testing.T) {
	calc := NewDefaultCalculator()
	ms := calc.Measurements([]domain.Reading{
		{Parameter: domain.PM25, Value: 6, Unit: "µg/m³"},
		{Parameter: domain.CO, Value: -2, Unit: "ppm"},
	})

	require.Len(t, ms, 2)
	require.NotNil(t, ms[0].SubIndex)
	assert.Equal(t, 25, *ms[0].SubIndex)
	assert.Nil(t, ms[1].SubIndex)
}

func TestCategory(t *testing.T) {
	assert.Equal(t, "Good", Category(25))
	assert.Equal(t, "Moderate", Category(100))
	assert.Equal(t, "Unhealthy for Sensitive Groups", Category(101))
	assert.Equal(t, "Hazardous", Category(420))
}
