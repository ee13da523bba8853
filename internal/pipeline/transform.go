package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/ngsi"
)

// ObservationTransformer implements Transformer for NGSI-LD observation
// messages in either normalized or key-values form.
type ObservationTransformer struct {
	assessor *Assessor
	bounds   domain.BoundingBox
}

func NewTransformer(assessor *Assessor, bounds domain.BoundingBox) *ObservationTransformer {
	return &ObservationTransformer{assessor: assessor, bounds: bounds}
}

func (t *ObservationTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.Assessment, error) {
	e, err := ngsi.Decode(raw.Value)
	if err != nil {
		return domain.Assessment{}, fmt.Errorf("%w: %v", domain.ErrInvalidObservation, err)
	}
	return t.assessEntity(e)
}

func (t *ObservationTransformer) assessEntity(e ngsi.Entity) (domain.Assessment, error) {
	o, err := ngsi.ParseObservation(e)
	if err != nil {
		return domain.Assessment{}, err
	}
	if err := o.Validate(t.bounds); err != nil {
		return domain.Assessment{}, err
	}
	return t.assessor.Assess(o)
}
