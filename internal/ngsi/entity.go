// Package ngsi encodes and decodes NGSI-LD entities. Decoders accept both the
// normalized form ({"type":"Property","value":...}) and the key-values form,
// because upstream producers and broker notifications use either.
package ngsi

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
)

// CoreContext is sent in the Link header of every broker request.
const CoreContext = "https://uri.etsi.org/ngsi-ld/v1/ngsi-ld-core-context.jsonld"

// Entity types.
const (
	TypeWaterLevelObserved = "WaterLevelObserved"
	TypeFloodRiskSensor    = "FloodRiskSensor"
	TypeFloodRiskCrowd     = "FloodRiskCrowd"
	TypeCrowdReport        = "CrowdReport"
)

// Entity is a decoded NGSI-LD entity.
type Entity map[string]any

// Decode parses a JSON entity.
func Decode(data []byte) (Entity, error) {
	var e Entity
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	if e == nil {
		return nil, fmt.Errorf("decode entity: null payload")
	}
	return e, nil
}

func (e Entity) ID() string   { s, _ := e["id"].(string); return s }
func (e Entity) Type() string { s, _ := e["type"].(string); return s }

// Attrs returns the entity without id and type, the body of an attribute PATCH.
func (e Entity) Attrs() Entity {
	out := make(Entity, len(e))
	for k, v := range e {
		if k == "id" || k == "type" || k == "@context" {
			continue
		}
		out[k] = v
	}
	return out
}

// Merge overlays attrs onto a copy of e.
func (e Entity) Merge(attrs Entity) Entity {
	out := make(Entity, len(e)+len(attrs))
	for k, v := range e {
		out[k] = v
	}
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// Property builds a normalized Property attribute.
func Property(v any) map[string]any {
	return map[string]any{"type": "Property", "value": v}
}

// MeasuredProperty builds a Property with a unit code and observation time.
func MeasuredProperty(v float64, unit string, observedAt time.Time) map[string]any {
	p := Property(v)
	if unit != "" {
		p["unitCode"] = unit
	}
	if !observedAt.IsZero() {
		p["observedAt"] = observedAt.UTC().Format(time.RFC3339Nano)
	}
	return p
}

// DateTimeProperty builds a Property holding an ISO 8601 timestamp.
func DateTimeProperty(t time.Time) map[string]any {
	return Property(map[string]any{"@type": "DateTime", "@value": t.UTC().Format(time.RFC3339Nano)})
}

// GeoProperty builds a GeoJSON Point. GeoJSON orders coordinates [lng, lat].
func GeoProperty(p domain.GeoPoint) map[string]any {
	return map[string]any{
		"type": "GeoProperty",
		"value": map[string]any{
			"type":        "Point",
			"coordinates": []any{p.Lng, p.Lat},
		},
	}
}

// Relationship builds a Relationship attribute pointing at another entity.
func Relationship(object string) map[string]any {
	return map[string]any{"type": "Relationship", "object": object}
}

// Value returns an attribute's value in either normalized or key-values form.
func (e Entity) Value(name string) (any, bool) {
	raw, ok := e[name]
	if !ok || raw == nil {
		return nil, false
	}
	if m, ok := raw.(map[string]any); ok {
		switch m["type"] {
		case "Property", "GeoProperty":
			v, ok := m["value"]
			return v, ok && v != nil
		case "Relationship":
			v, ok := m["object"]
			return v, ok && v != nil
		}
	}
	return raw, true
}

func (e Entity) String(name string) string {
	v, ok := e.Value(name)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	}
	return ""
}

// Float reads a numeric attribute stored as a number or a numeric string.
// NaN and infinities count as absent.
func (e Entity) Float(name string) (float64, bool) {
	v, ok := e.Value(name)
	if !ok {
		return 0, false
	}
	var (
		f   float64
		err error
	)
	switch n := v.(type) {
	case float64:
		f = n
	case json.Number:
		f, err = n.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func (e Entity) Bool(name string) bool {
	v, ok := e.Value(name)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	}
	return false
}

// Len returns the length of a list attribute, or 0.
func (e Entity) Len(name string) int {
	v, ok := e.Value(name)
	if !ok {
		return 0
	}
	if list, ok := v.([]any); ok {
		return len(list)
	}
	return 0
}

// Time reads an RFC 3339 timestamp stored as a plain string or as a
// {"@type":"DateTime","@value":...} object.
func (e Entity) Time(name string) (time.Time, bool) {
	v, ok := e.Value(name)
	if !ok {
		return time.Time{}, false
	}
	if m, ok := v.(map[string]any); ok {
		v = m["@value"]
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// ObservedAt returns the observedAt sub-attribute of a normalized property.
func (e Entity) ObservedAt(name string) (time.Time, bool) {
	m, ok := e[name].(map[string]any)
	if !ok {
		return time.Time{}, false
	}
	s, ok := m["observedAt"].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// Location reads the "location" GeoProperty, falling back to flat lat/lng
// (or latitude/longitude) attributes.
func (e Entity) Location() (domain.GeoPoint, bool) {
	if v, ok := e.Value("location"); ok {
		if geo, ok := v.(map[string]any); ok {
			if coords, ok := geo["coordinates"].([]any); ok && len(coords) >= 2 {
				lng, okLng := coords[0].(float64)
				lat, okLat := coords[1].(float64)
				if okLat && okLng {
					return domain.GeoPoint{Lat: lat, Lng: lng}, true
				}
			}
		}
	}
	for _, keys := range [][2]string{{"lat", "lng"}, {"latitude", "longitude"}} {
		lat, okLat := e.Float(keys[0])
		lng, okLng := e.Float(keys[1])
		if okLat && okLng {
			return domain.GeoPoint{Lat: lat, Lng: lng}, true
		}
	}
	return domain.GeoPoint{}, false
}

// LastSegment returns the part of a URN after the final colon.
func LastSegment(id string) string {
	if i := strings.LastIndex(id, ":"); i >= 0 {
		return id[i+1:]
	}
	return id
}
