package pipeline

import (
	"fmt"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/ngsi"
	"github.com/couchcryptid/flood-risk-engine/internal/risk"
)

// ZoneLocator finds the flood zone containing a point.
type ZoneLocator interface {
	Locate(p domain.GeoPoint) (domain.FloodZone, bool)
}

// Assessor turns validated observations into risk assessments. It is
// stateless apart from the zone catalogue and safe for concurrent use.
type Assessor struct {
	zones ZoneLocator
}

// NewAssessor creates an Assessor. A nil locator disables zone tagging of
// crowd reports.
func NewAssessor(zones ZoneLocator) *Assessor {
	return &Assessor{zones: zones}
}

// Assess scores an observation. Callers validate first.
func (a *Assessor) Assess(o domain.Observation) (domain.Assessment, error) {
	switch o.Kind {
	case domain.ObservationSensor:
		return a.assessSensor(o), nil
	case domain.ObservationCrowd:
		return a.assessCrowd(o), nil
	default:
		return domain.Assessment{}, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidObservation, o.Kind)
	}
}

func (a *Assessor) assessSensor(o domain.Observation) domain.Assessment {
	threshold := o.Threshold
	if threshold <= 0 {
		threshold = risk.DefaultAlertThreshold
	}
	trend := o.Trend
	if trend == "" {
		trend = domain.TrendStable
	}

	sourceRef := o.SourceID
	if sourceRef == "" {
		sourceRef = ngsi.WaterLevelID(o.ZoneID)
	}

	return domain.Assessment{
		ID:         ngsi.SensorAssessmentID(o.ZoneID),
		Kind:       domain.KindSensor,
		Location:   o.Location,
		CreatedAt:  domain.Now(),
		Severity:   risk.ComputeSeverity(o.WaterLevel, threshold, o.Delta),
		WaterLevel: o.WaterLevel,
		SourceRef:  sourceRef,
		Sensor: &domain.SensorDetail{
			ZoneID:    o.ZoneID,
			ZoneName:  o.ZoneName,
			District:  o.District,
			Threshold: threshold,
			Alert:     risk.ThresholdExceeded(o.WaterLevel, threshold),
			Trend:     trend,
			TrendRate: o.Delta,
		},
	}
}

func (a *Assessor) assessCrowd(o domain.Observation) domain.Assessment {
	level := o.WaterLevel
	if !o.HasWaterLevel {
		level, _ = risk.EstimateDepth(o.Description)
	}

	scored := risk.ComputeCrowdRisk(risk.CrowdInput{
		WaterLevel:  level,
		Description: o.Description,
		PhotoCount:  o.PhotoCount,
		Verified:    o.Verified,
	})

	detail := &domain.CrowdDetail{Score: scored.Score, Factors: scored.Factors}
	if a.zones != nil {
		if z, ok := a.zones.Locate(o.Location); ok {
			detail.ZoneID = z.ID
		}
	}

	return domain.Assessment{
		ID:         ngsi.CrowdAssessmentID(o.SourceID),
		Kind:       domain.KindCrowd,
		Location:   o.Location,
		CreatedAt:  domain.Now(),
		Severity:   scored.Level,
		WaterLevel: level,
		SourceRef:  o.SourceID,
		Crowd:      detail,
	}
}
