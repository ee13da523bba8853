package domain

import "math"

const earthRadiusKm = 6371.0

// GeoPoint is a WGS-84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero reports whether the point is exactly (0,0), which upstream producers
// emit when a location is missing.
func (p GeoPoint) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}

// BoundingBox is an inclusive lat/lng rectangle.
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLng float64 `json:"minLng"`
	MaxLng float64 `json:"maxLng"`
}

// VietnamBounds is the default operational region.
var VietnamBounds = BoundingBox{MinLat: 8.5, MaxLat: 23.4, MinLng: 102.1, MaxLng: 109.5}

func (b BoundingBox) Contains(p GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// DistanceKm returns the great-circle (haversine) distance between two points.
func DistanceKm(a, b GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Polygon is a ring of vertices. The first and last vertex may coincide.
type Polygon []GeoPoint

// Contains uses ray casting on the lat/lng plane, which is accurate enough at
// street-block scale.
func (pg Polygon) Contains(p GeoPoint) bool {
	inside := false
	n := len(pg)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := pg[i], pg[j]
		if (a.Lng > p.Lng) != (b.Lng > p.Lng) &&
			p.Lat < (b.Lat-a.Lat)*(p.Lng-a.Lng)/(b.Lng-a.Lng)+a.Lat {
			inside = !inside
		}
	}
	return inside
}
