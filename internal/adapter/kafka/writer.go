package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/flood-risk-engine/internal/config"
	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/ngsi"
)

// Header keys set on every published observation.
const (
	headerEntityType = "entity_type"
	headerObservedAt = "observed_at"
)

// Writer publishes simulated readings as WaterLevelObserved entities onto the
// observation topic. It implements simulation.Sink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a producer for the observation topic. Messages are keyed
// by entity id so one zone's readings stay ordered within a partition.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Ensure is a no-op; the consumer creates entities on first sight.
func (w *Writer) Ensure(context.Context, domain.WaterReading) error { return nil }

func (w *Writer) Publish(ctx context.Context, r domain.WaterReading) error {
	return w.PublishBatch(ctx, []domain.WaterReading{r})
}

// PublishBatch writes several readings in a single WriteMessages call.
func (w *Writer) PublishBatch(ctx context.Context, readings []domain.WaterReading) error {
	if len(readings) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(readings))
	for i := range readings {
		msg, err := serializeToMessage(readings[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func serializeToMessage(r domain.WaterReading) (kafkago.Message, error) {
	e := ngsi.WaterLevelEntity(r)
	data, err := json.Marshal(e)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize reading for %s: %w", r.ZoneID, err)
	}
	return kafkago.Message{
		Key:   []byte(e.ID()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: headerEntityType, Value: []byte(ngsi.TypeWaterLevelObserved)},
			{Key: headerObservedAt, Value: []byte(r.ObservedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
