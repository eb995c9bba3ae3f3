package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartcity/aqforecast/internal/alignment"
	"github.com/smartcity/aqforecast/internal/aqi"
	"github.com/smartcity/aqforecast/internal/domain"
	"github.com/smartcity/aqforecast/internal/features"
)

// ErrNoObservation means no reading survived alignment for the location
var ErrNoObservation = errors.New("service: no observation available")

// ObservationCache stores assembled observations between requests
type ObservationCache interface {
	Get(ctx context.Context, locationID int64) (domain.ObservationResponse, bool)
	Set(ctx context.Context, locationID int64, resp domain.ObservationResponse) error
}

// AirQualityService assembles current observations and NowCast indices for a station
type AirQualityService struct {
	source    ReadingSource
	assembler *alignment.Assembler
	calc      *aqi.Calculator
	repo      DataRepository
	cache     ObservationCache
	targets   domain.PollutantSet
	logger    logrus.FieldLogger
	now       func() time.Time

	wgBg sync.WaitGroup // tracks background saves for graceful shutdown
}

// NewAirQualityService creates the service; cache may be nil
func NewAirQualityService(
	source ReadingSource,
	assembler *alignment.Assembler,
	calc *aqi.Calculator,
	repo DataRepository,
	cache ObservationCache,
	logger logrus.FieldLogger,
) *AirQualityService {
	return &AirQualityService{
		source:    source,
		assembler: assembler,
		calc:      calc,
		repo:      repo,
		cache:     cache,
		targets:   domain.NewPollutantSet(domain.Pollutants()...),
		logger:    logger.WithField("component", "air_quality"),
		now:       time.Now,
	}
}

// WaitBackground blocks until all background saves complete
func (s *AirQualityService) WaitBackground() {
	s.wgBg.Wait()
}

// CurrentObservation reconciles the station's latest readings into one observation.
// The batch instant is the newest reading timestamp, or the station's last-updated time.
// Parameters the location feed lacks are filled from the per-parameter feed.
func (s *AirQualityService) CurrentObservation(ctx context.Context, locationID int64) (domain.ObservationResponse, error) {
	if s.cache != nil {
		if resp, ok := s.cache.Get(ctx, locationID); ok {
			return resp, nil
		}
	}

	log := s.logger.WithField("location_id", locationID)

	loc, err := s.source.Location(ctx, locationID)
	if err != nil {
		if errors.Is(err, ErrLocationNotFound) {
			return domain.ObservationResponse{}, err
		}
		log.WithError(err).Warn("Location metadata unavailable")
		loc = domain.Location{ID: locationID}
	}

	primary, err := s.source.LatestByLocation(ctx, locationID)
	if err != nil {
		return domain.ObservationResponse{}, fmt.Errorf("service: failed to fetch latest readings: %w", err)
	}

	ref, ok := alignment.ReferenceTime(primary)
	if !ok {
		if !loc.LastUpdated.Valid {
			return domain.ObservationResponse{}, ErrNoObservation
		}
		ref = loc.LastUpdated.Time
	}

	batch := alignment.AlignTiered(primary, ref, s.assembler.Tolerances().Tiers()...)
	var secondary []domain.Reading
	if missing := alignment.Missing(batch, s.targets); len(missing) > 0 {
		log.WithField("missing", missing).Debug("Filling parameters from per-parameter feed")
		secondary, err = s.source.LatestByParameters(ctx, locationID, missing)
		if err != nil {
			log.WithError(err).Warn("Per-parameter fetch failed")
		}
	}

	obs, selected, ok := s.assembler.AlignAndAssemble(primary, secondary, s.targets, ref)
	if !ok {
		return domain.ObservationResponse{}, ErrNoObservation
	}

	resp := domain.ObservationResponse{
		Location:     loc,
		Observation:  obs,
		Measurements: s.calc.Measurements(selected),
		Success:      true,
	}
	if obs.Index != nil {
		resp.Category = aqi.Category(obs.Index.Index)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, locationID, resp); err != nil {
			log.WithError(err).Warn("Failed to cache observation")
		}
	}

	s.wgBg.Add(1)
	go func() {
		defer s.wgBg.Done()
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.repo.SaveObservation(bgCtx, locationID, obs); err != nil {
			log.WithError(err).Warn("Failed to save observation")
		}
	}()

	return resp, nil
}

// NowCast smooths the last NowCastWindow hours of stored averages for the station
func (s *AirQualityService) NowCast(ctx context.Context, locationID int64) (domain.NowCastResult, error) {
	end := s.now().UTC().Truncate(time.Hour)
	series, err := s.hourlySeries(ctx, locationID, end, aqi.NowCastWindow)
	if err != nil {
		return domain.NowCastResult{}, err
	}

	values, idx, ok := s.calc.NowCastIndex(series, end)
	if !ok {
		return domain.NowCastResult{}, ErrNoObservation
	}
	return domain.NowCastResult{LocationID: locationID, Values: values, Index: &idx}, nil
}

// hourlySeries loads hours of stored averages ending at end (inclusive)
func (s *AirQualityService) hourlySeries(ctx context.Context, locationID int64, end time.Time, hours int) (map[domain.Pollutant][]float64, error) {
	from := end.Add(-time.Duration(hours-1) * time.Hour)
	avgs, err := s.repo.GetHourlyAverages(ctx, locationID, from, end.Add(time.Hour))
	if err != nil {
		return nil, fmt.Errorf("service: failed to load hourly averages: %w", err)
	}
	return features.HourlySeries(avgs, end, hours), nil
}
