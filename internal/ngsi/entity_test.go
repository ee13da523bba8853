package ngsi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
)

var observed = time.Date(2025, time.November, 3, 8, 30, 0, 0, time.UTC)

// roundTrip serializes through JSON the way the broker would.
func roundTrip(t *testing.T, e Entity) Entity {
	t.Helper()
	data, err := json.Marshal(e)
	require.NoError(t, err)
	out, err := Decode(data)
	require.NoError(t, err)
	return out
}

func TestDecode_RejectsNull(t *testing.T) {
	_, err := Decode([]byte("null"))
	require.Error(t, err)

	_, err = Decode([]byte("{"))
	require.Error(t, err)
}

func TestEntity_ReadsNormalizedAndKeyValues(t *testing.T) {
	normalized := Entity{
		"id":         "urn:ngsi-ld:WaterLevelObserved:Q1_001",
		"type":       TypeWaterLevelObserved,
		"waterLevel": map[string]any{"type": "Property", "value": 0.42, "observedAt": "2025-11-03T08:30:00Z"},
		"zoneId":     map[string]any{"type": "Property", "value": "Q1_001"},
		"location": map[string]any{
			"type":  "GeoProperty",
			"value": map[string]any{"type": "Point", "coordinates": []any{106.70, 10.77}},
		},
	}
	flat := Entity{
		"id":         "urn:ngsi-ld:WaterLevelObserved:Q1_001",
		"type":       TypeWaterLevelObserved,
		"waterLevel": "0.42",
		"zoneId":     "Q1_001",
		"lat":        10.77,
		"lng":        106.70,
	}

	for name, e := range map[string]Entity{"normalized": normalized, "key-values": flat} {
		t.Run(name, func(t *testing.T) {
			level, ok := e.Float("waterLevel")
			require.True(t, ok)
			assert.InDelta(t, 0.42, level, 1e-9)
			assert.Equal(t, "Q1_001", e.String("zoneId"))

			loc, ok := e.Location()
			require.True(t, ok)
			assert.Equal(t, domain.GeoPoint{Lat: 10.77, Lng: 106.70}, loc)
		})
	}

	at, ok := normalized.ObservedAt("waterLevel")
	require.True(t, ok)
	assert.Equal(t, observed, at)
	_, ok = flat.ObservedAt("waterLevel")
	assert.False(t, ok)
}

func TestEntity_MissingLocation(t *testing.T) {
	_, ok := Entity{"location": nil}.Location()
	assert.False(t, ok)

	_, ok = Entity{"lat": 10.7}.Location()
	assert.False(t, ok)
}

func TestEntity_AttrsDropsIdentity(t *testing.T) {
	e := Entity{"id": "x", "type": "T", "@context": CoreContext, "severity": Property("high")}
	assert.Equal(t, Entity{"severity": Property("high")}, e.Attrs())
}

func TestLastSegment(t *testing.T) {
	assert.Equal(t, "Q7_001", LastSegment("urn:ngsi-ld:WaterLevelObserved:Q7_001"))
	assert.Equal(t, "plain", LastSegment("plain"))
}

func TestWaterLevelEntity_ParsesBackAsObservation(t *testing.T) {
	r := domain.WaterReading{
		ZoneID:     "Q7_001",
		ZoneName:   "Tân Phong",
		District:   "Quận 7",
		Level:      0.55,
		Delta:      0.07,
		Trend:      domain.TrendRising,
		Severity:   domain.SeverityHigh,
		Location:   domain.GeoPoint{Lat: 10.733, Lng: 106.705},
		ObservedAt: observed,
	}

	e := roundTrip(t, WaterLevelEntity(r))
	assert.Equal(t, "urn:ngsi-ld:WaterLevelObserved:Q7_001", e.ID())
	assert.Equal(t, "sensor", e.String("reportType"))

	got, err := ParseObservation(e)
	require.NoError(t, err)

	want := r.Observation(WaterLevelID(r.ZoneID))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("observation mismatch (-want +got):\n%s", diff)
	}
}

func TestCrowdReportEntity_ParsesBackAsObservation(t *testing.T) {
	o := domain.Observation{
		Kind:          domain.ObservationCrowd,
		SourceID:      CrowdReportID("r-1"),
		Location:      domain.GeoPoint{Lat: 10.78, Lng: 106.69},
		Description:   "Nước ngập 40cm",
		Photos:        []string{"a.jpg", "b.jpg"},
		PhotoCount:    2,
		Verified:      true,
		ReporterID:    "user-9",
		WaterLevel:    0.4,
		HasWaterLevel: true,
		ObservedAt:    observed,
	}

	got, err := ParseObservation(roundTrip(t, CrowdReportEntity(o)))
	require.NoError(t, err)
	if diff := cmp.Diff(o, got); diff != "" {
		t.Errorf("observation mismatch (-want +got):\n%s", diff)
	}
}

func TestParseObservation_FlatCrowdReport(t *testing.T) {
	domain.SetClock(nil)
	e := Entity{
		"id":          "urn:ngsi-ld:CrowdReport:abc",
		"type":        TypeCrowdReport,
		"latitude":    10.8,
		"longitude":   106.7,
		"description": "ngập nặng",
		"photoCount":  3.0,
	}

	o, err := ParseObservation(e)
	require.NoError(t, err)
	assert.Equal(t, domain.ObservationCrowd, o.Kind)
	assert.Equal(t, 3, o.PhotoCount)
	assert.False(t, o.HasWaterLevel)
	assert.False(t, o.ObservedAt.IsZero(), "missing timestamp defaults to now")
}

func TestParseObservation_SensorZoneFromID(t *testing.T) {
	o, err := ParseObservation(Entity{
		"id":         "urn:ngsi-ld:WaterLevelObserved:Q8_002",
		"type":       TypeWaterLevelObserved,
		"waterLevel": 0.3,
	})
	require.NoError(t, err)
	assert.Equal(t, "Q8_002", o.ZoneID)
}

func TestParseObservation_UnknownType(t *testing.T) {
	_, err := ParseObservation(Entity{"id": "x", "type": "Vehicle"})
	require.ErrorIs(t, err, domain.ErrInvalidObservation)
}

func TestAssessmentEntity_RoundTrip(t *testing.T) {
	sensor := domain.Assessment{
		ID:         SensorAssessmentID("Q1_001"),
		Kind:       domain.KindSensor,
		Location:   domain.GeoPoint{Lat: 10.776, Lng: 106.700},
		CreatedAt:  observed,
		Severity:   domain.SeveritySevere,
		WaterLevel: 0.62,
		SourceRef:  WaterLevelID("Q1_001"),
		Sensor: &domain.SensorDetail{
			ZoneID:    "Q1_001",
			ZoneName:  "Bến Nghé",
			District:  "Quận 1",
			Threshold: 0.3,
			Alert:     true,
			Trend:     domain.TrendRising,
			TrendRate: 0.12,
		},
	}
	crowd := domain.Assessment{
		ID:         CrowdAssessmentID("urn:ngsi-ld:CrowdReport:r-1"),
		Kind:       domain.KindCrowd,
		Location:   domain.GeoPoint{Lat: 10.78, Lng: 106.69},
		CreatedAt:  observed,
		Severity:   domain.SeverityModerate,
		WaterLevel: 0.4,
		SourceRef:  "urn:ngsi-ld:CrowdReport:r-1",
		Crowd: &domain.CrowdDetail{
			Score: 0.48,
			Factors: domain.CrowdFactors{
				WaterLevel:     0.27,
				TextSeverity:   0.7,
				Photo:          0.5,
				KeywordMatches: 1,
			},
			ZoneID: "Q1_002",
		},
	}

	for _, a := range []domain.Assessment{sensor, crowd} {
		t.Run(string(a.Kind), func(t *testing.T) {
			got, err := DecodeAssessment(roundTrip(t, AssessmentEntity(a)))
			require.NoError(t, err)
			if diff := cmp.Diff(a, got); diff != "" {
				t.Errorf("assessment mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAssessmentEntity_AlertLabel(t *testing.T) {
	a := domain.Assessment{ID: SensorAssessmentID("Z"), Kind: domain.KindSensor, Sensor: &domain.SensorDetail{ZoneID: "Z"}}
	assert.Equal(t, "Normal", AssessmentEntity(a).String("alert"))

	a.Sensor.Alert = true
	assert.Equal(t, "ThresholdExceeded", AssessmentEntity(a).String("alert"))
}

func TestDecodeAssessment_Rejects(t *testing.T) {
	loc := GeoProperty(domain.GeoPoint{Lat: 10.7, Lng: 106.7})

	tests := []struct {
		name string
		e    Entity
	}{
		{"no location", Entity{"id": "a", "type": TypeFloodRiskSensor, "severity": Property("low")}},
		{"bad severity", Entity{"id": "a", "type": TypeFloodRiskSensor, "severity": Property("extreme"), "location": loc}},
		{"bad risk level", Entity{"id": "a", "type": TypeFloodRiskCrowd, "riskLevel": Property(""), "location": loc}},
		{"foreign type", Entity{"id": "a", "type": TypeCrowdReport, "location": loc}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeAssessment(tt.e)
			require.Error(t, err)
		})
	}
}

func TestCrowdAssessmentID_Stable(t *testing.T) {
	a := CrowdAssessmentID("urn:ngsi-ld:CrowdReport:r-1")
	assert.Equal(t, a, CrowdAssessmentID("urn:ngsi-ld:CrowdReport:r-1"))
	assert.NotEqual(t, a, CrowdAssessmentID("urn:ngsi-ld:CrowdReport:r-2"))
	assert.Equal(t, "urn:ngsi-ld:FloodRiskCrowd:", a[:len("urn:ngsi-ld:FloodRiskCrowd:")])
}

func TestEntity_FloatRejectsNonFinite(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		want   float64
		wantOK bool
	}{
		{"number", 0.4, 0.4, true},
		{"numeric string", " 0.4 ", 0.4, true},
		{"NaN string", "NaN", 0, false},
		{"Inf string", "Inf", 0, false},
		{"signed Inf string", "+Inf", 0, false},
		{"negative infinity", "-infinity", 0, false},
		{"text", "deep", 0, false},
		{"bool", true, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Entity{"waterLevel": tt.value}.Float("waterLevel")
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
