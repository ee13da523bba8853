// Package distribution implements the per-connection real-time protocol: a
// client sends init once, then polls; the server answers with a snapshot and
// then with deltas, and stays silent when nothing changed.
package distribution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/snapshot"
)

// ErrProtocol marks a client message the session ignores. The connection
// stays open.
var ErrProtocol = errors.New("protocol violation")

// Radius bounds for init and the read API, in kilometres.
const (
	MinRadiusKm     = 0.1
	MaxRadiusKm     = 100.0
	DefaultRadiusKm = 5.0
)

// Message types.
const (
	TypeInit     = "init"
	TypePoll     = "poll"
	TypeSnapshot = "snapshot"
	TypeUpdate   = "update"
)

// State is the session's position in the protocol.
type State int

const (
	AwaitingInit State = iota
	Steady
)

func (s State) String() string {
	if s == Steady {
		return "steady"
	}
	return "awaiting_init"
}

// Cursor is the newest timestamp delivered per stream.
type Cursor struct {
	Sensor time.Time
	Crowd  time.Time
}

func (c Cursor) get(stream snapshot.Stream) time.Time {
	if stream == snapshot.StreamCrowd {
		return c.Crowd
	}
	return c.Sensor
}

func (c *Cursor) advance(stream snapshot.Stream, t time.Time) {
	if t.IsZero() || !t.After(c.get(stream)) {
		return
	}
	if stream == snapshot.StreamCrowd {
		c.Crowd = t
	} else {
		c.Sensor = t
	}
}

// Source is the read side the session needs; *snapshot.Store implements it.
type Source interface {
	Snapshot(ctx context.Context, stream snapshot.Stream) ([]domain.Assessment, error)
	Nearby(ctx context.Context, stream snapshot.Stream, area snapshot.Area, limit int) ([]domain.Assessment, error)
	Delta(ctx context.Context, stream snapshot.Stream, since time.Time, area *snapshot.Area) ([]domain.Assessment, error)
}

// InboundMessage is a client request.
type InboundMessage struct {
	Type   string   `json:"type"`
	Lat    *float64 `json:"lat,omitempty"`
	Lng    *float64 `json:"lng,omitempty"`
	Radius *float64 `json:"radius,omitempty"`
}

// OutboundMessage is a snapshot or update sent to the client.
type OutboundMessage struct {
	Type      string              `json:"type"`
	Crowd     []domain.Assessment `json:"crowd"`
	Sensor    []domain.Assessment `json:"sensor"`
	Timestamp time.Time           `json:"timestamp"`
}

// Session holds one connection's protocol state. It is not safe for
// concurrent use; the transport serializes messages per connection.
type Session struct {
	source Source
	bounds domain.BoundingBox
	clock  clockwork.Clock
	state  State
	cursor Cursor
	area   *snapshot.Area
}

// NewSession starts a session that only accepts init centers inside bounds.
func NewSession(source Source, bounds domain.BoundingBox, clock clockwork.Clock) *Session {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Session{source: source, bounds: bounds, clock: clock}
}

func (s *Session) State() State   { return s.state }
func (s *Session) Cursor() Cursor { return s.cursor }

// Handle processes one raw client message. A nil message with a nil error
// means there is nothing to send. Errors wrapping ErrProtocol leave the
// session unchanged.
func (s *Session) Handle(ctx context.Context, raw []byte) (*OutboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: malformed message: %v", ErrProtocol, err)
	}

	switch msg.Type {
	case TypeInit:
		area, err := s.parseArea(msg)
		if err != nil {
			return nil, err
		}
		return s.handleInit(ctx, area)
	case TypePoll:
		if s.state != Steady {
			return nil, fmt.Errorf("%w: poll before init", ErrProtocol)
		}
		return s.handlePoll(ctx)
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrProtocol, msg.Type)
	}
}

// handleInit sends a full snapshot and resets the cursor. A repeated init
// starts over with the new area.
func (s *Session) handleInit(ctx context.Context, area *snapshot.Area) (*OutboundMessage, error) {
	out := &OutboundMessage{Type: TypeSnapshot}
	var cursor Cursor

	for _, stream := range snapshot.Streams {
		var (
			records []domain.Assessment
			err     error
		)
		if area != nil {
			records, err = s.source.Nearby(ctx, stream, *area, 0)
		} else {
			records, err = s.source.Snapshot(ctx, stream)
		}
		if err != nil {
			return nil, fmt.Errorf("%s snapshot: %w", stream, err)
		}
		cursor.advance(stream, snapshot.Newest(records))
		out.set(stream, records)
	}

	s.cursor = cursor
	s.area = area
	s.state = Steady
	out.Timestamp = s.clock.Now().UTC()
	return out, nil
}

// handlePoll sends what is newer than the cursor, or nothing.
func (s *Session) handlePoll(ctx context.Context) (*OutboundMessage, error) {
	out := &OutboundMessage{Type: TypeUpdate}
	next := s.cursor
	total := 0

	for _, stream := range snapshot.Streams {
		records, err := s.source.Delta(ctx, stream, s.cursor.get(stream), s.area)
		if err != nil {
			return nil, fmt.Errorf("%s delta: %w", stream, err)
		}
		next.advance(stream, snapshot.Newest(records))
		out.set(stream, records)
		total += len(records)
	}

	s.cursor = next
	if total == 0 {
		return nil, nil
	}
	out.Timestamp = s.clock.Now().UTC()
	return out, nil
}

func (m *OutboundMessage) set(stream snapshot.Stream, records []domain.Assessment) {
	if records == nil {
		records = []domain.Assessment{}
	}
	if stream == snapshot.StreamCrowd {
		m.Crowd = records
	} else {
		m.Sensor = records
	}
}

// parseArea validates the optional center and radius of an init message. The
// center must lie in the operational region, as on the read API.
func (s *Session) parseArea(msg InboundMessage) (*snapshot.Area, error) {
	if msg.Lat == nil && msg.Lng == nil {
		if msg.Radius != nil {
			return nil, fmt.Errorf("%w: radius without lat and lng", ErrProtocol)
		}
		return nil, nil
	}
	if msg.Lat == nil || msg.Lng == nil {
		return nil, fmt.Errorf("%w: lat and lng must be given together", ErrProtocol)
	}
	area, err := NewArea(*msg.Lat, *msg.Lng, msg.Radius)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if !s.bounds.Contains(area.Center) {
		return nil, fmt.Errorf("%w: center (%g, %g) outside the operational region", ErrProtocol, area.Center.Lat, area.Center.Lng)
	}
	return &area, nil
}

// NewArea validates a center and an optional radius, defaulting the radius to
// DefaultRadiusKm. NaN fails every range check.
func NewArea(lat, lng float64, radius *float64) (snapshot.Area, error) {
	if !(lat >= -90 && lat <= 90) || !(lng >= -180 && lng <= 180) {
		return snapshot.Area{}, fmt.Errorf("coordinates (%g, %g) out of range", lat, lng)
	}
	r := DefaultRadiusKm
	if radius != nil {
		r = *radius
	}
	if !(r >= MinRadiusKm && r <= MaxRadiusKm) {
		return snapshot.Area{}, fmt.Errorf("radius %g km outside [%g, %g]", r, MinRadiusKm, MaxRadiusKm)
	}
	return snapshot.Area{Center: domain.GeoPoint{Lat: lat, Lng: lng}, RadiusKm: r}, nil
}
