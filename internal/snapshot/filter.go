package snapshot

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
)

// FilterValid drops records without a usable location: the (0,0) placeholder
// and anything outside bounds.
func FilterValid(records []domain.Assessment, bounds domain.BoundingBox) []domain.Assessment {
	out := make([]domain.Assessment, 0, len(records))
	for _, r := range records {
		if r.Location.IsZero() || !bounds.Contains(r.Location) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Dedup keeps the newest record per place and returns them newest first.
// Sensor records are keyed by zone. Crowd records are bucketed into cells of
// coordinates rounded to precision decimal places; a record is dropped when a
// newer one sits in the same or an adjacent cell, so GPS jitter across a
// rounding boundary still collapses. Dedup(Dedup(x)) == Dedup(x).
func Dedup(stream Stream, records []domain.Assessment, precision int) []domain.Assessment {
	sorted := make([]domain.Assessment, len(records))
	copy(sorted, records)
	SortNewest(sorted)

	out := make([]domain.Assessment, 0, len(sorted))
	if stream == StreamSensor {
		seen := make(map[string]struct{}, len(sorted))
		for _, r := range sorted {
			key := r.ZoneKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, r)
		}
		return out
	}

	taken := make(map[cell]struct{}, len(sorted))
	for _, r := range sorted {
		c := cellOf(r.Location, precision)
		if c.nearAny(taken) {
			continue
		}
		taken[c] = struct{}{}
		out = append(out, r)
	}
	return out
}

type cell struct{ lat, lng int64 }

func cellOf(p domain.GeoPoint, precision int) cell {
	exp := int32(precision)
	return cell{
		lat: decimal.NewFromFloat(p.Lat).Round(exp).Shift(exp).IntPart(),
		lng: decimal.NewFromFloat(p.Lng).Round(exp).Shift(exp).IntPart(),
	}
}

func (c cell) nearAny(taken map[cell]struct{}) bool {
	for dLat := int64(-1); dLat <= 1; dLat++ {
		for dLng := int64(-1); dLng <= 1; dLng++ {
			if _, ok := taken[cell{c.lat + dLat, c.lng + dLng}]; ok {
				return true
			}
		}
	}
	return false
}

// SortNewest orders records by CreatedAt descending, ties broken by ID.
func SortNewest(records []domain.Assessment) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Newer(records[j])
	})
}

// WithinRadius returns the records within radiusKm of center, each annotated
// with its distance, nearest first.
func WithinRadius(records []domain.Assessment, center domain.GeoPoint, radiusKm float64) []domain.Assessment {
	out := make([]domain.Assessment, 0, len(records))
	for _, r := range records {
		d := domain.DistanceKm(center, r.Location)
		if d <= radiusKm {
			out = append(out, r.WithDistance(d))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].DistanceKm < *out[j].DistanceKm
	})
	return out
}

// Newest returns the latest CreatedAt among records, or the zero time.
func Newest(records []domain.Assessment) time.Time {
	var t time.Time
	for _, r := range records {
		if r.CreatedAt.After(t) {
			t = r.CreatedAt
		}
	}
	return t
}
