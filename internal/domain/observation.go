package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidObservation is wrapped by every validation failure so callers can
// map it to a client-visible rejection.
var ErrInvalidObservation = errors.New("invalid observation")

// MaxWaterLevel is the sane upper bound for a reported water level, in metres.
const MaxWaterLevel = 20.0

// ObservationKind distinguishes the two inbound paths.
type ObservationKind string

const (
	ObservationSensor ObservationKind = "sensor"
	ObservationCrowd  ObservationKind = "crowd"
)

// Observation is the normalized inbound record every payload shape is
// converted into before scoring.
type Observation struct {
	Kind     ObservationKind
	SourceID string
	Location GeoPoint

	// Sensor path.
	ZoneID    string
	ZoneName  string
	District  string
	Delta     float64
	Trend     Trend
	Threshold float64

	// Crowd path.
	Description string
	Photos      []string
	PhotoCount  int
	Verified    bool
	ReporterID  string

	WaterLevel    float64
	HasWaterLevel bool
	ObservedAt    time.Time
}

// Validate rejects observations that must never reach the scoring engine.
func (o Observation) Validate(bounds BoundingBox) error {
	switch o.Kind {
	case ObservationSensor:
		if o.ZoneID == "" {
			return fmt.Errorf("%w: zoneId is required", ErrInvalidObservation)
		}
		if !o.HasWaterLevel {
			return fmt.Errorf("%w: waterLevel is required", ErrInvalidObservation)
		}
	case ObservationCrowd:
		if o.SourceID == "" {
			return fmt.Errorf("%w: report id is required", ErrInvalidObservation)
		}
		if strings.TrimSpace(o.Description) == "" && !o.HasWaterLevel {
			return fmt.Errorf("%w: description or waterLevel is required", ErrInvalidObservation)
		}
		if o.PhotoCount < 0 {
			return fmt.Errorf("%w: negative photo count", ErrInvalidObservation)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidObservation, o.Kind)
	}

	if o.Location.IsZero() {
		return fmt.Errorf("%w: location is missing", ErrInvalidObservation)
	}
	if !bounds.Contains(o.Location) {
		return fmt.Errorf("%w: location (%g, %g) outside operational bounds", ErrInvalidObservation, o.Location.Lat, o.Location.Lng)
	}
	if !finite(o.WaterLevel) || !finite(o.Delta) || !finite(o.Threshold) {
		return fmt.Errorf("%w: non-finite numeric field", ErrInvalidObservation)
	}
	if o.HasWaterLevel && (o.WaterLevel < 0 || o.WaterLevel > MaxWaterLevel) {
		return fmt.Errorf("%w: waterLevel %g outside [0, %g]", ErrInvalidObservation, o.WaterLevel, MaxWaterLevel)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
