// Package snapshot serves deduplicated, radius-filterable views of the current
// risk assessments and the deltas clients poll for.
package snapshot

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/ngsi"
)

// Stream is one of the two assessment feeds.
type Stream string

const (
	StreamSensor Stream = "sensor"
	StreamCrowd  Stream = "crowd"
)

// Streams lists every stream in a stable order.
var Streams = []Stream{StreamSensor, StreamCrowd}

func ParseStream(s string) (Stream, error) {
	switch Stream(strings.ToLower(strings.TrimSpace(s))) {
	case StreamSensor:
		return StreamSensor, nil
	case StreamCrowd:
		return StreamCrowd, nil
	}
	return "", fmt.Errorf("unknown stream %q", s)
}

// EntityType is the stored entity type backing the stream.
func (s Stream) EntityType() string {
	if s == StreamCrowd {
		return ngsi.TypeFloodRiskCrowd
	}
	return ngsi.TypeFloodRiskSensor
}

// StreamOf maps an assessment kind to its stream.
func StreamOf(k domain.Kind) Stream {
	if k == domain.KindCrowd {
		return StreamCrowd
	}
	return StreamSensor
}
