package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/smartcity/aqforecast/internal/domain"
	"github.com/smartcity/aqforecast/internal/forecast"
)

// MLBridge handles communication with the Python model-serving process
type MLBridge struct {
	serviceURL string
	httpClient *http.Client
}

// NewMLBridge creates a new ML bridge
func NewMLBridge(serviceURL string) *MLBridge {
	return &MLBridge{
		serviceURL: serviceURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type predictRequest struct {
	Columns  []string   `json:"columns"`
	Features []*float64 `json:"features"`
}

type predictResponse struct {
	Prediction *float64 `json:"prediction"`
}

// Predict asks the remote model for one pollutant's value.
// NaN features are sent as null so the remote model treats them as missing.
func (b *MLBridge) Predict(ctx context.Context, p domain.Pollutant, columns []string, features []float64) (float64, error) {
	payload := predictRequest{Columns: columns, Features: make([]*float64, len(features))}
	for i := range features {
		if !math.IsNaN(features[i]) && !math.IsInf(features[i], 0) {
			payload.Features[i] = &features[i]
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("ml_bridge: failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/predict/%s", b.serviceURL, p)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("ml_bridge: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("ml_bridge: predict %s failed: %w", p, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("ml_bridge: predict %s returned status %d", p, resp.StatusCode)
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("ml_bridge: failed to decode response: %w", err)
	}
	if out.Prediction == nil {
		return math.NaN(), nil
	}
	return *out.Prediction, nil
}

// Health checks ML service connectivity
func (b *MLBridge) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", b.serviceURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("ml_bridge: failed to create health request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ml_bridge: health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ml_bridge: health check returned status %d", resp.StatusCode)
	}

	return nil
}

// Loader resolves every pollutant to a remote regressor over the given columns
func (b *MLBridge) Loader() forecast.RegressorLoader {
	return func(p domain.Pollutant, columns []string) (forecast.Regressor, error) {
		return &RemoteRegressor{bridge: b, pollutant: p, columns: columns}, nil
	}
}

// RemoteRegressor adapts one remote pollutant model to forecast.Regressor
type RemoteRegressor struct {
	bridge    *MLBridge
	pollutant domain.Pollutant
	columns   []string
}

func (r *RemoteRegressor) Predict(ctx context.Context, features []float64) (float64, error) {
	return r.bridge.Predict(ctx, r.pollutant, r.columns, features)
}

func (r *RemoteRegressor) NumFeatures() int {
	return len(r.columns)
}
