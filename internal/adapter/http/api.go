package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/flood-risk-engine/internal/distribution"
	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/pipeline"
	"github.com/couchcryptid/flood-risk-engine/internal/snapshot"
	"github.com/couchcryptid/flood-risk-engine/internal/zones"
)

// Result limits for GET /api/flood/{stream}.
const (
	defaultLimit = 100
	maxLimit     = 500

	maxReportBytes = 1 << 20
)

type floodResponse struct {
	Stream    snapshot.Stream     `json:"stream"`
	Count     int                 `json:"count"`
	Records   []domain.Assessment `json:"records"`
	Timestamp time.Time           `json:"timestamp"`
}

type zonesResponse struct {
	Zones []domain.FloodZone `json:"zones"`
	Stats zones.Stats        `json:"stats"`
}

// handleFlood serves one stream's snapshot, optionally restricted to a radius
// around lat/lng and sorted by distance.
func (s *Server) handleFlood(w http.ResponseWriter, r *http.Request) {
	stream, err := snapshot.ParseStream(r.PathValue("stream"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	q, err := s.parseFloodQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var records []domain.Assessment
	if q.area != nil {
		records, err = s.api.Snapshots.Nearby(r.Context(), stream, *q.area, q.limit)
	} else {
		records, err = s.api.Snapshots.Snapshot(r.Context(), stream)
		if len(records) > q.limit {
			records = records[:q.limit]
		}
	}
	if err != nil {
		s.logger.Error("flood query failed", "stream", stream, "error", err)
		writeError(w, http.StatusBadGateway, "entity store unavailable")
		return
	}
	if records == nil {
		records = []domain.Assessment{}
	}

	writeJSON(w, http.StatusOK, floodResponse{
		Stream:    stream,
		Count:     len(records),
		Records:   records,
		Timestamp: s.api.Clock.Now().UTC(),
	})
}

type floodQuery struct {
	area  *snapshot.Area
	limit int
}

func (s *Server) parseFloodQuery(r *http.Request) (floodQuery, error) {
	v := r.URL.Query()
	q := floodQuery{limit: defaultLimit}

	if raw := v.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLimit {
			return q, fmt.Errorf("limit must be an integer in [1, %d]", maxLimit)
		}
		q.limit = n
	}

	rawLat, rawLng, rawRadius := v.Get("lat"), v.Get("lng"), v.Get("radius")
	if rawLat == "" && rawLng == "" {
		if rawRadius != "" {
			return q, errors.New("radius requires lat and lng")
		}
		return q, nil
	}
	if rawLat == "" || rawLng == "" {
		return q, errors.New("lat and lng must be given together")
	}

	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return q, fmt.Errorf("invalid lat %q", rawLat)
	}
	lng, err := strconv.ParseFloat(rawLng, 64)
	if err != nil {
		return q, fmt.Errorf("invalid lng %q", rawLng)
	}
	var radius *float64
	if rawRadius != "" {
		km, err := strconv.ParseFloat(rawRadius, 64)
		if err != nil {
			return q, fmt.Errorf("invalid radius %q", rawRadius)
		}
		radius = &km
	}

	area, err := distribution.NewArea(lat, lng, radius)
	if err != nil {
		return q, err
	}
	if !s.api.Bounds.Contains(area.Center) {
		return q, fmt.Errorf("center (%g, %g) outside the operational region", lat, lng)
	}
	q.area = &area
	return q, nil
}

func (s *Server) handleZones(w http.ResponseWriter, _ *http.Request) {
	if s.api.Zones == nil {
		writeJSON(w, http.StatusOK, zonesResponse{Zones: []domain.FloodZone{}})
		return
	}
	writeJSON(w, http.StatusOK, zonesResponse{Zones: s.api.Zones.All(), Stats: s.api.Zones.Stats()})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var in pipeline.ReportInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReportBytes))
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed report: "+err.Error())
		return
	}

	a, err := s.api.Reports.Submit(r.Context(), in)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, a)
	case pipeline.IsRejection(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("report submission failed", "error", err)
		writeError(w, http.StatusBadGateway, "entity store unavailable")
	}
}
