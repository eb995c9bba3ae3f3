package domain

import "time"

// Environmental feature names shared by the weather source and the forecast models
const (
	FeatureTemperature = "temperature"
	FeatureHumidity    = "humidity"
	FeaturePressure    = "pressure"
)

// WeatherFeatures lists the environmental feature names in model order
func WeatherFeatures() []string {
	return []string{FeatureTemperature, FeatureHumidity, FeaturePressure}
}

// WeatherPoint holds the environmental inputs for one hour
type WeatherPoint struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
}

// Features returns the point keyed by feature name
func (w WeatherPoint) Features() map[string]float64 {
	return map[string]float64{
		FeatureTemperature: w.Temperature,
		FeatureHumidity:    w.Humidity,
		FeaturePressure:    w.Pressure,
	}
}

// WeatherForecast maps exact-hour UTC instants to weather values
type WeatherForecast map[time.Time]WeatherPoint

// At returns the forecast for the hour containing t, only on an exact hour match
func (f WeatherForecast) At(t time.Time) (WeatherPoint, bool) {
	if f == nil {
		return WeatherPoint{}, false
	}
	t = ToUTC(t)
	if !t.Equal(t.Truncate(time.Hour)) {
		return WeatherPoint{}, false
	}
	w, ok := f[t]
	return w, ok
}

// Set stores a point under its UTC hour
func (f WeatherForecast) Set(t time.Time, w WeatherPoint) {
	f[ToUTC(t).Truncate(time.Hour)] = w
}
