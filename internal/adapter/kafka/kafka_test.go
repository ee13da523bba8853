package kafka

import (
	"context"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/ngsi"
	"github.com/couchcryptid/flood-risk-engine/internal/pipeline"
)

func TestMapMessageToRawEvent(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("urn:ngsi-ld:WaterLevelObserved:Q1_001"),
		Value:     []byte(`{"id":"urn:ngsi-ld:WaterLevelObserved:Q1_001"}`),
		Topic:     "flood-observations",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "entity_type", Value: []byte("WaterLevelObserved")},
		},
	}

	raw := mapMessageToRawEvent(msg)

	assert.Equal(t, []byte("urn:ngsi-ld:WaterLevelObserved:Q1_001"), raw.Key)
	assert.JSONEq(t, `{"id":"urn:ngsi-ld:WaterLevelObserved:Q1_001"}`, string(raw.Value))
	assert.Equal(t, "flood-observations", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "WaterLevelObserved", raw.Headers["entity_type"])
	assert.Nil(t, raw.Commit)
}

func TestSerializeToMessage(t *testing.T) {
	observed := time.Date(2025, time.November, 3, 7, 10, 0, 0, time.UTC)
	r := domain.WaterReading{
		ZoneID:     "Q1_001",
		ZoneName:   "Nguyễn Hữu Cảnh",
		District:   "Bình Thạnh",
		Level:      0.42,
		Delta:      0.03,
		Trend:      domain.TrendRising,
		Severity:   domain.SeverityModerate,
		Location:   domain.GeoPoint{Lat: 10.7890, Lng: 106.7180},
		ObservedAt: observed,
	}

	msg, err := serializeToMessage(r)
	require.NoError(t, err)

	assert.Equal(t, []byte(ngsi.WaterLevelID("Q1_001")), msg.Key)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "entity_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("WaterLevelObserved"), msg.Headers[0].Value)
	assert.Equal(t, "observed_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(observed.Format(time.RFC3339)), msg.Headers[1].Value)

	e, err := ngsi.Decode(msg.Value)
	require.NoError(t, err)
	o, err := ngsi.ParseObservation(e)
	require.NoError(t, err)
	assert.Equal(t, "Q1_001", o.ZoneID)
	assert.InDelta(t, 0.42, o.WaterLevel, 1e-9)
	assert.Equal(t, domain.TrendRising, o.Trend)
	assert.Equal(t, observed, o.ObservedAt)
}

// A published reading is a valid pipeline input.
func TestSerializedReadingIsAssessable(t *testing.T) {
	r := domain.WaterReading{
		ZoneID:     "Q7_003",
		Level:      0.55,
		Trend:      domain.TrendStable,
		Location:   domain.GeoPoint{Lat: 10.7340, Lng: 106.7220},
		ObservedAt: time.Date(2025, time.November, 3, 7, 10, 0, 0, time.UTC),
	}
	msg, err := serializeToMessage(r)
	require.NoError(t, err)

	tfm := pipeline.NewTransformer(pipeline.NewAssessor(nil), domain.VietnamBounds)
	a, err := tfm.Transform(context.Background(), mapMessageToRawEvent(msg))
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityHigh, a.Severity)
	assert.Equal(t, "Q7_003", a.Sensor.ZoneID)
}
