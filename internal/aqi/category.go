package aqi

// Category returns the health category label for an index value
func Category(index int) string {
	switch {
	case index <= 50:
		return "Good"
	case index <= 100:
		return "Moderate"
	case index <= 150:
		return "Unhealthy for Sensitive Groups"
	case index <= 200:
		return "Unhealthy"
	case index <= 300:
		return "Very Unhealthy"
	default:
		return "Hazardous"
	}
}
