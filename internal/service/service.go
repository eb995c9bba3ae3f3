// Package service orchestrates readings, weather, persistence and the forecast engine.
package service

import (
	"github.com/smartcity/aqforecast/internal/domain"
)

// DataRepository is re-exported from domain for convenience
type DataRepository = domain.DataRepository
