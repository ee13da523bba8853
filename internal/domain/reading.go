package domain

import "time"

// WaterReading is one simulated or measured sample for a zone.
type WaterReading struct {
	ZoneID     string    `json:"zoneId"`
	ZoneName   string    `json:"zoneName"`
	District   string    `json:"district"`
	Level      float64   `json:"waterLevel"`
	Delta      float64   `json:"delta"` // change since the previous sample, metres
	Trend      Trend     `json:"trend"`
	Severity   Severity  `json:"severity"`
	Location   GeoPoint  `json:"location"`
	ObservedAt time.Time `json:"observedAt"`
}

// Observation converts the reading into the inbound form consumed by the
// scoring stage.
func (r WaterReading) Observation(sourceID string) Observation {
	return Observation{
		Kind:          ObservationSensor,
		SourceID:      sourceID,
		ZoneID:        r.ZoneID,
		ZoneName:      r.ZoneName,
		District:      r.District,
		Location:      r.Location,
		WaterLevel:    r.Level,
		HasWaterLevel: true,
		Delta:         r.Delta,
		Trend:         r.Trend,
		ObservedAt:    r.ObservedAt,
	}
}
