package pipeline

import (
	"context"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/ngsi"
)

// InlineSink assesses simulated readings in-process when no observation topic
// is configured. It satisfies simulation.Sink.
type InlineSink struct {
	assessor *Assessor
	loader   BatchLoader
}

func NewInlineSink(assessor *Assessor, loader BatchLoader) *InlineSink {
	return &InlineSink{assessor: assessor, loader: loader}
}

// Ensure is a no-op; assessments are upserted on every publish.
func (s *InlineSink) Ensure(context.Context, domain.WaterReading) error { return nil }

func (s *InlineSink) Publish(ctx context.Context, r domain.WaterReading) error {
	a, err := s.assessor.Assess(r.Observation(ngsi.WaterLevelID(r.ZoneID)))
	if err != nil {
		return err
	}
	return s.loader.LoadBatch(ctx, []domain.Assessment{a})
}
