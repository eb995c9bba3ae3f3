package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartcity/aqforecast/internal/domain"
)

// ReadingSource supplies station metadata and latest readings
type ReadingSource interface {
	Location(ctx context.Context, id int64) (domain.Location, error)
	LatestByLocation(ctx context.Context, id int64) ([]domain.Reading, error)
	LatestByParameters(ctx context.Context, id int64, params []domain.Pollutant) ([]domain.Reading, error)
}

// ErrLocationNotFound is returned when the provider has no such location
var ErrLocationNotFound = errors.New("openaq: location not found")

// parameterIDs are the provider's numeric parameter identifiers
var parameterIDs = map[domain.Pollutant]int{
	domain.CO:   8,
	domain.NO2:  7,
	domain.O3:   10,
	domain.PM10: 1,
	domain.PM25: 2,
	domain.SO2:  9,
}

// OpenAQClient reads the OpenAQ v3 API
type OpenAQClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logrus.FieldLogger

	sensors sync.Map // location id -> map[int64]sensorParam
}

// NewOpenAQClient creates a new OpenAQ client
func NewOpenAQClient(baseURL, apiKey string, timeout time.Duration, logger logrus.FieldLogger) *OpenAQClient {
	return &OpenAQClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.WithField("component", "openaq"),
	}
}

type sensorParam struct {
	Parameter domain.Pollutant
	Units     string
}

// utcLocal is a {"utc": ..., "local": ...} pair; utc may arrive as a string or list
type utcLocal struct {
	UTC   any    `json:"utc"`
	Local string `json:"local"`
}

// parameterField accepts both {"name": "pm25", "units": "..."} and a bare "pm25"
type parameterField struct {
	Name  string `json:"name"`
	Units string `json:"units"`
}

func (p *parameterField) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		p.Name = name
		return nil
	}
	type plain parameterField
	return json.Unmarshal(data, (*plain)(p))
}

type latestResult struct {
	Datetime *utcLocal `json:"datetime"`
	Period   *struct {
		DatetimeTo   *utcLocal `json:"datetimeTo"`
		DatetimeFrom *utcLocal `json:"datetimeFrom"`
	} `json:"period"`
	Value     *float64        `json:"value"`
	Parameter *parameterField `json:"parameter"`
	Units     string          `json:"units"`
	SensorsID int64           `json:"sensorsId"`
}

type locationResult struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Coordinates struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"coordinates"`
	DatetimeLast *utcLocal `json:"datetimeLast"`
	Sensors      []struct {
		ID        int64           `json:"id"`
		Parameter *parameterField `json:"parameter"`
	} `json:"sensors"`
}

type envelope[T any] struct {
	Results []T `json:"results"`
}

// Location fetches station metadata and remembers its sensor -> parameter mapping
func (c *OpenAQClient) Location(ctx context.Context, id int64) (domain.Location, error) {
	var env envelope[locationResult]
	found, err := c.get(ctx, fmt.Sprintf("/locations/%d", id), nil, &env)
	if err != nil {
		return domain.Location{}, err
	}
	if !found || len(env.Results) == 0 {
		return domain.Location{}, fmt.Errorf("%w: %d", ErrLocationNotFound, id)
	}

	r := env.Results[0]
	sensors := make(map[int64]sensorParam, len(r.Sensors))
	for _, s := range r.Sensors {
		if s.Parameter == nil {
			continue
		}
		if p, ok := domain.ParsePollutant(s.Parameter.Name); ok {
			sensors[s.ID] = sensorParam{Parameter: p, Units: s.Parameter.Units}
		}
	}
	c.sensors.Store(id, sensors)

	loc := domain.Location{
		ID:        r.ID,
		Name:      r.Name,
		Latitude:  r.Coordinates.Latitude,
		Longitude: r.Coordinates.Longitude,
	}
	if r.DatetimeLast != nil {
		loc.LastUpdated = domain.ParseTimestamp(r.DatetimeLast.UTC)
	}
	return loc, nil
}

// LatestByLocation returns the latest value of every sensor at the station.
// Rows whose parameter cannot be resolved are dropped; a 404 yields no readings.
func (c *OpenAQClient) LatestByLocation(ctx context.Context, id int64) ([]domain.Reading, error) {
	var env envelope[latestResult]
	found, err := c.get(ctx, fmt.Sprintf("/locations/%d/latest", id), url.Values{"limit": {"1000"}}, &env)
	if err != nil || !found {
		return nil, err
	}

	var sensors map[int64]sensorParam
	if v, ok := c.sensors.Load(id); ok {
		sensors = v.(map[int64]sensorParam)
	}

	readings := make([]domain.Reading, 0, len(env.Results))
	for _, r := range env.Results {
		var p domain.Pollutant
		var ok bool
		units := r.Units
		if r.Parameter != nil {
			p, ok = domain.ParsePollutant(r.Parameter.Name)
			if r.Parameter.Units != "" {
				units = r.Parameter.Units
			}
		}
		if !ok {
			if s, known := sensors[r.SensorsID]; known {
				p, ok = s.Parameter, true
				if units == "" {
					units = s.Units
				}
			}
		}
		if !ok || r.Value == nil {
			continue
		}
		readings = append(readings, r.reading(p, units))
	}
	return readings, nil
}

// LatestByParameters queries the per-parameter endpoint for each requested pollutant.
// Failures for one parameter are logged and do not affect the others.
func (c *OpenAQClient) LatestByParameters(ctx context.Context, id int64, params []domain.Pollutant) ([]domain.Reading, error) {
	var readings []domain.Reading
	for _, p := range params {
		pid, ok := parameterIDs[p]
		if !ok {
			continue
		}
		var env envelope[latestResult]
		q := url.Values{"locationId": {strconv.FormatInt(id, 10)}, "limit": {"50"}}
		found, err := c.get(ctx, fmt.Sprintf("/parameters/%d/latest", pid), q, &env)
		if err != nil {
			if ctx.Err() != nil {
				return readings, ctx.Err()
			}
			c.logger.WithError(err).WithField("parameter", p).Warn("Parameter latest fetch failed")
			continue
		}
		if !found {
			continue
		}
		for _, r := range env.Results {
			if r.Value == nil {
				continue
			}
			units := r.Units
			if r.Parameter != nil && r.Parameter.Units != "" {
				units = r.Parameter.Units
			}
			readings = append(readings, r.reading(p, units))
		}
	}
	return readings, nil
}

// reading takes the first usable UTC timestamp among datetime, period end and period start
func (r latestResult) reading(p domain.Pollutant, units string) domain.Reading {
	out := domain.Reading{Parameter: p, Value: *r.Value, Unit: units}
	candidates := []*utcLocal{r.Datetime}
	if r.Period != nil {
		candidates = append(candidates, r.Period.DatetimeTo, r.Period.DatetimeFrom)
	}
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if ts := domain.ParseTimestamp(c.UTC); ts.Valid && !out.TimestampUTC.Valid {
			out.TimestampUTC = ts
		}
		if out.TimestampLocal == "" {
			out.TimestampLocal = c.Local
		}
	}
	return out
}

// get issues a GET and decodes JSON into dst. found is false on 404.
func (c *OpenAQClient) get(ctx context.Context, path string, query url.Values, dst any) (bool, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("openaq: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("openaq: request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("openaq: %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return false, fmt.Errorf("openaq: failed to decode %s: %w", path, err)
	}
	return true, nil
}

// MockReadingSource serves a fixed station for running without an API key.
// SO2 only appears on the per-parameter path and lags the batch, so the fallback tier is exercised.
type MockReadingSource struct {
	now func() time.Time
}

// NewMockReadingSource creates a mock source; now defaults to time.Now
func NewMockReadingSource(now func() time.Time) *MockReadingSource {
	if now == nil {
		now = time.Now
	}
	return &MockReadingSource{now: now}
}

func (m *MockReadingSource) batchTime() time.Time {
	return m.now().UTC().Truncate(time.Hour)
}

func (m *MockReadingSource) Location(_ context.Context, id int64) (domain.Location, error) {
	return domain.Location{
		ID:          id,
		Name:        "Mock Station",
		Latitude:    25.0478,
		Longitude:   121.5319,
		LastUpdated: domain.NewTimestamp(m.batchTime()),
	}, nil
}

func (m *MockReadingSource) LatestByLocation(_ context.Context, _ int64) ([]domain.Reading, error) {
	t := m.batchTime()
	return []domain.Reading{
		mockReading(domain.PM25, 12.4, "µg/m³", t),
		mockReading(domain.PM10, 38, "µg/m³", t),
		mockReading(domain.O3, 0.031, "ppm", t),
		mockReading(domain.NO2, 0.018, "ppm", t.Add(-2*time.Minute)),
		mockReading(domain.CO, 0.42, "ppm", t.Add(-3*time.Minute)),
	}, nil
}

func (m *MockReadingSource) LatestByParameters(_ context.Context, _ int64, params []domain.Pollutant) ([]domain.Reading, error) {
	var out []domain.Reading
	for _, p := range params {
		if p == domain.SO2 {
			out = append(out, mockReading(domain.SO2, 0.002, "ppm", m.batchTime().Add(-20*time.Minute)))
		}
	}
	return out, nil
}

func mockReading(p domain.Pollutant, v float64, unit string, at time.Time) domain.Reading {
	return domain.Reading{Parameter: p, Value: v, Unit: unit, TimestampUTC: domain.NewTimestamp(at)}
}
