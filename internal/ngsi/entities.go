package ngsi

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
)

const (
	unitMetre     = "MTR"
	alertExceeded = "ThresholdExceeded"
	alertNormal   = "Normal"
)

// crowdNamespace scopes name-based UUIDs of crowd assessments.
var crowdNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:floodwatch:FloodRiskCrowd"))

func WaterLevelID(zoneID string) string {
	return "urn:ngsi-ld:" + TypeWaterLevelObserved + ":" + zoneID
}

func SensorAssessmentID(zoneID string) string {
	return "urn:ngsi-ld:" + TypeFloodRiskSensor + ":" + zoneID
}

// CrowdAssessmentID derives a stable ID from the source report, so the same
// report always maps to the same assessment entity.
func CrowdAssessmentID(reportID string) string {
	return "urn:ngsi-ld:" + TypeFloodRiskCrowd + ":" + uuid.NewSHA1(crowdNamespace, []byte(reportID)).String()
}

func CrowdReportID(id string) string {
	return "urn:ngsi-ld:" + TypeCrowdReport + ":" + id
}

// WaterLevelEntity encodes a reading as a WaterLevelObserved entity.
func WaterLevelEntity(r domain.WaterReading) Entity {
	return Entity{
		"id":              WaterLevelID(r.ZoneID),
		"type":            TypeWaterLevelObserved,
		"location":        GeoProperty(r.Location),
		"waterLevel":      MeasuredProperty(r.Level, unitMetre, r.ObservedAt),
		"waterLevelDelta": Property(r.Delta),
		"waterTrend":      Property(string(r.Trend)),
		"severity":        Property(r.Severity.String()),
		"zoneId":          Property(r.ZoneID),
		"zoneName":        Property(r.ZoneName),
		"district":        Property(r.District),
		"reportType":      Property("sensor"),
		"dateObserved":    DateTimeProperty(r.ObservedAt),
	}
}

// CrowdReportEntity encodes a citizen report as a CrowdReport entity.
func CrowdReportEntity(o domain.Observation) Entity {
	photos := make([]any, len(o.Photos))
	for i, p := range o.Photos {
		photos[i] = p
	}
	e := Entity{
		"id":          o.SourceID,
		"type":        TypeCrowdReport,
		"location":    GeoProperty(o.Location),
		"description": Property(o.Description),
		"reporterId":  Property(o.ReporterID),
		"photos":      Property(photos),
		"verified":    Property(o.Verified),
		"reportType":  Property("crowd"),
		"timestamp":   DateTimeProperty(o.ObservedAt),
	}
	if o.HasWaterLevel {
		e["waterLevel"] = MeasuredProperty(o.WaterLevel, unitMetre, o.ObservedAt)
	}
	return e
}

// AssessmentEntity encodes an assessment as FloodRiskSensor or FloodRiskCrowd.
func AssessmentEntity(a domain.Assessment) Entity {
	if a.Kind == domain.KindCrowd && a.Crowd != nil {
		e := Entity{
			"id":           a.ID,
			"type":         TypeFloodRiskCrowd,
			"riskLevel":    Property(a.Severity.String()),
			"riskScore":    Property(a.Crowd.Score),
			"riskFactors":  Property(factorsMap(a.Crowd.Factors)),
			"waterLevel":   MeasuredProperty(a.WaterLevel, unitMetre, time.Time{}),
			"location":     GeoProperty(a.Location),
			"sourceReport": Relationship(a.SourceRef),
			"calculatedAt": DateTimeProperty(a.CreatedAt),
		}
		if a.Crowd.ZoneID != "" {
			e["zoneId"] = Property(a.Crowd.ZoneID)
		}
		return e
	}

	e := Entity{
		"id":           a.ID,
		"type":         TypeFloodRiskSensor,
		"severity":     Property(a.Severity.String()),
		"waterLevel":   MeasuredProperty(a.WaterLevel, unitMetre, time.Time{}),
		"location":     GeoProperty(a.Location),
		"sourceSensor": Relationship(a.SourceRef),
		"updatedAt":    DateTimeProperty(a.CreatedAt),
	}
	if s := a.Sensor; s != nil {
		alert := alertNormal
		if s.Alert {
			alert = alertExceeded
		}
		e["alert"] = Property(alert)
		e["alertThreshold"] = Property(s.Threshold)
		e["waterTrend"] = Property(string(s.Trend))
		e["trendRate"] = Property(s.TrendRate)
		e["zoneId"] = Property(s.ZoneID)
		e["zoneName"] = Property(s.ZoneName)
		e["district"] = Property(s.District)
	}
	return e
}

func factorsMap(f domain.CrowdFactors) map[string]any {
	return map[string]any{
		"waterLevelFactor":   f.WaterLevel,
		"textSeverityFactor": f.TextSeverity,
		"photoFactor":        f.Photo,
		"verifiedFactor":     f.Verified,
		"keywordMatches":     f.KeywordMatches,
	}
}

// DecodeAssessment reads a FloodRiskSensor or FloodRiskCrowd entity.
func DecodeAssessment(e Entity) (domain.Assessment, error) {
	loc, ok := e.Location()
	if !ok {
		return domain.Assessment{}, fmt.Errorf("entity %s: missing location", e.ID())
	}
	level, _ := e.Float("waterLevel")

	a := domain.Assessment{
		ID:         e.ID(),
		Location:   loc,
		WaterLevel: level,
	}

	switch e.Type() {
	case TypeFloodRiskSensor:
		sev, err := domain.ParseSeverity(e.String("severity"))
		if err != nil {
			return domain.Assessment{}, fmt.Errorf("entity %s: %w", a.ID, err)
		}
		threshold, _ := e.Float("alertThreshold")
		rate, _ := e.Float("trendRate")
		zoneID := e.String("zoneId")
		if zoneID == "" {
			zoneID = LastSegment(a.ID)
		}
		a.Kind = domain.KindSensor
		a.Severity = sev
		a.SourceRef = e.String("sourceSensor")
		a.CreatedAt, _ = e.Time("updatedAt")
		a.Sensor = &domain.SensorDetail{
			ZoneID:    zoneID,
			ZoneName:  e.String("zoneName"),
			District:  e.String("district"),
			Threshold: threshold,
			Alert:     e.String("alert") == alertExceeded,
			Trend:     domain.ParseTrend(e.String("waterTrend")),
			TrendRate: rate,
		}

	case TypeFloodRiskCrowd:
		sev, err := domain.ParseSeverity(e.String("riskLevel"))
		if err != nil {
			return domain.Assessment{}, fmt.Errorf("entity %s: %w", a.ID, err)
		}
		score, _ := e.Float("riskScore")
		a.Kind = domain.KindCrowd
		a.Severity = sev
		a.SourceRef = e.String("sourceReport")
		a.CreatedAt, _ = e.Time("calculatedAt")
		a.Crowd = &domain.CrowdDetail{
			Score:   score,
			Factors: decodeFactors(e),
			ZoneID:  e.String("zoneId"),
		}

	default:
		return domain.Assessment{}, fmt.Errorf("entity %s: unsupported type %q", a.ID, e.Type())
	}
	return a, nil
}

func decodeFactors(e Entity) domain.CrowdFactors {
	v, ok := e.Value("riskFactors")
	if !ok {
		return domain.CrowdFactors{}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return domain.CrowdFactors{}
	}
	f := Entity(m)
	out := domain.CrowdFactors{}
	out.WaterLevel, _ = f.Float("waterLevelFactor")
	out.TextSeverity, _ = f.Float("textSeverityFactor")
	out.Photo, _ = f.Float("photoFactor")
	out.Verified, _ = f.Float("verifiedFactor")
	matches, _ := f.Float("keywordMatches")
	out.KeywordMatches = int(matches)
	return out
}

// ParseObservation normalizes a WaterLevelObserved or CrowdReport entity.
// Missing timestamps default to now.
func ParseObservation(e Entity) (domain.Observation, error) {
	loc, _ := e.Location()
	level, hasLevel := e.Float("waterLevel")

	o := domain.Observation{
		SourceID:      e.ID(),
		Location:      loc,
		WaterLevel:    level,
		HasWaterLevel: hasLevel,
	}

	switch e.Type() {
	case TypeWaterLevelObserved:
		o.Kind = domain.ObservationSensor
		o.ZoneID = e.String("zoneId")
		if o.ZoneID == "" && o.SourceID != "" {
			o.ZoneID = LastSegment(o.SourceID)
		}
		o.ZoneName = e.String("zoneName")
		o.District = e.String("district")
		o.Delta, _ = e.Float("waterLevelDelta")
		o.Trend = domain.ParseTrend(e.String("waterTrend"))
		o.Threshold, _ = e.Float("alertThreshold")
		o.ObservedAt = firstTime(e, "dateObserved", "waterLevel")

	case TypeCrowdReport:
		o.Kind = domain.ObservationCrowd
		o.Description = e.String("description")
		o.ReporterID = e.String("reporterId")
		o.Verified = e.Bool("verified")
		o.Photos = stringList(e, "photos")
		o.PhotoCount = len(o.Photos)
		if n, ok := e.Float("photoCount"); ok && o.PhotoCount == 0 {
			o.PhotoCount = int(n)
		}
		o.ObservedAt = firstTime(e, "timestamp", "waterLevel")

	default:
		return domain.Observation{}, fmt.Errorf("%w: unsupported entity type %q", domain.ErrInvalidObservation, e.Type())
	}
	return o, nil
}

// firstTime prefers a DateTime attribute, then the observedAt of a measured
// property, then the current time.
func firstTime(e Entity, attr, measured string) time.Time {
	if t, ok := e.Time(attr); ok {
		return t
	}
	if t, ok := e.ObservedAt(measured); ok {
		return t
	}
	return domain.Now()
}

func stringList(e Entity, name string) []string {
	v, ok := e.Value(name)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
