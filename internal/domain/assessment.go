package domain

import "time"

// Kind tags which stream an assessment belongs to.
type Kind string

const (
	KindSensor Kind = "sensor"
	KindCrowd  Kind = "crowd"
)

// Assessment is a derived risk record. Exactly one of Sensor or Crowd is set,
// matching Kind.
type Assessment struct {
	ID         string        `json:"id"`
	Kind       Kind          `json:"kind"`
	Location   GeoPoint      `json:"location"`
	CreatedAt  time.Time     `json:"createdAt"`
	Severity   Severity      `json:"severity"`
	WaterLevel float64       `json:"waterLevel"`
	SourceRef  string        `json:"sourceRef,omitempty"`
	Sensor     *SensorDetail `json:"sensor,omitempty"`
	Crowd      *CrowdDetail  `json:"crowd,omitempty"`

	// DistanceKm is set only on results of a radius query.
	DistanceKm *float64 `json:"distanceKm,omitempty"`
}

// SensorDetail carries the sensor-path inputs behind a severity.
type SensorDetail struct {
	ZoneID    string  `json:"zoneId"`
	ZoneName  string  `json:"zoneName,omitempty"`
	District  string  `json:"district,omitempty"`
	Threshold float64 `json:"alertThreshold"`
	Alert     bool    `json:"alert"`
	Trend     Trend   `json:"trend"`
	TrendRate float64 `json:"trendRate"`
}

// CrowdDetail carries the crowd-path score and its breakdown.
type CrowdDetail struct {
	Score   float64      `json:"riskScore"`
	Factors CrowdFactors `json:"riskFactors"`
	ZoneID  string       `json:"zoneId,omitempty"`
}

// CrowdFactors is the per-factor breakdown of a crowd risk score.
type CrowdFactors struct {
	WaterLevel     float64 `json:"waterLevelFactor"`
	TextSeverity   float64 `json:"textSeverityFactor"`
	Photo          float64 `json:"photoFactor"`
	Verified       float64 `json:"verifiedFactor"`
	KeywordMatches int     `json:"keywordMatches"`
}

// WithDistance returns a copy annotated with a distance from a query center.
func (a Assessment) WithDistance(km float64) Assessment {
	a.DistanceKm = &km
	return a
}

// ZoneKey returns the zone identifier for sensor records, falling back to the
// record ID. Crowd records are keyed by rounded coordinates instead.
func (a Assessment) ZoneKey() string {
	if a.Sensor != nil && a.Sensor.ZoneID != "" {
		return a.Sensor.ZoneID
	}
	return a.ID
}

// Newer reports whether a should win over b when both describe the same place:
// later CreatedAt first, then the lexically larger ID.
func (a Assessment) Newer(b Assessment) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
