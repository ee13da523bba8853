package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/ngsi"
	"github.com/couchcryptid/flood-risk-engine/internal/observability"
	"github.com/couchcryptid/flood-risk-engine/internal/store"
)

// Report limits enforced at the API boundary.
const (
	MaxDescriptionRunes = 2000
	MaxPhotos           = 10
)

// ReportInput is a citizen report as submitted over the API.
type ReportInput struct {
	ID          string   `json:"id,omitempty"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
	Description string   `json:"description"`
	WaterLevel  *float64 `json:"waterLevel,omitempty"`
	Photos      []string `json:"photos,omitempty"`
	ReporterID  string   `json:"reporterId,omitempty"`
	Verified    bool     `json:"verified,omitempty"`
}

// ReportService stores citizen reports and assesses them inline.
type ReportService struct {
	store    store.EntityStore
	assessor *Assessor
	loader   BatchLoader
	bounds   domain.BoundingBox
	metrics  *observability.Metrics
}

func NewReportService(s store.EntityStore, assessor *Assessor, loader BatchLoader, bounds domain.BoundingBox, metrics *observability.Metrics) *ReportService {
	return &ReportService{store: s, assessor: assessor, loader: loader, bounds: bounds, metrics: metrics}
}

// Submit validates, stores and scores a report. Validation failures wrap
// domain.ErrInvalidObservation.
func (s *ReportService) Submit(ctx context.Context, in ReportInput) (domain.Assessment, error) {
	o, err := s.observation(in)
	if err != nil {
		s.metrics.ReportsReceived.WithLabelValues("rejected").Inc()
		return domain.Assessment{}, err
	}

	a, err := s.assessor.Assess(o)
	if err != nil {
		s.metrics.ReportsReceived.WithLabelValues("rejected").Inc()
		return domain.Assessment{}, err
	}

	if err := store.Upsert(ctx, s.store, ngsi.CrowdReportEntity(o)); err != nil {
		s.metrics.ReportsReceived.WithLabelValues("failed").Inc()
		return domain.Assessment{}, fmt.Errorf("store report: %w", err)
	}
	batch := []domain.Assessment{a}
	if err := s.loader.LoadBatch(ctx, batch); err != nil {
		s.metrics.ReportsReceived.WithLabelValues("failed").Inc()
		return domain.Assessment{}, fmt.Errorf("store assessment: %w", err)
	}

	s.metrics.ReportsReceived.WithLabelValues("accepted").Inc()
	return batch[0], nil
}

func (s *ReportService) observation(in ReportInput) (domain.Observation, error) {
	if in.Lat == nil || in.Lng == nil {
		return domain.Observation{}, fmt.Errorf("%w: lat and lng are required", domain.ErrInvalidObservation)
	}
	if utf8.RuneCountInString(in.Description) > MaxDescriptionRunes {
		return domain.Observation{}, fmt.Errorf("%w: description longer than %d characters", domain.ErrInvalidObservation, MaxDescriptionRunes)
	}
	if len(in.Photos) > MaxPhotos {
		return domain.Observation{}, fmt.Errorf("%w: at most %d photos", domain.ErrInvalidObservation, MaxPhotos)
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}

	o := domain.Observation{
		Kind:        domain.ObservationCrowd,
		SourceID:    ngsi.CrowdReportID(id),
		Location:    domain.GeoPoint{Lat: *in.Lat, Lng: *in.Lng},
		Description: strings.TrimSpace(in.Description),
		Photos:      in.Photos,
		PhotoCount:  len(in.Photos),
		Verified:    in.Verified,
		ReporterID:  in.ReporterID,
		ObservedAt:  domain.Now(),
	}
	if in.WaterLevel != nil {
		o.WaterLevel = *in.WaterLevel
		o.HasWaterLevel = true
	}
	if err := o.Validate(s.bounds); err != nil {
		return domain.Observation{}, err
	}
	return o, nil
}

// IsRejection reports whether err is a client input error.
func IsRejection(err error) bool {
	return errors.Is(err, domain.ErrInvalidObservation)
}
