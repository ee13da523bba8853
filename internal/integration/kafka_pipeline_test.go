//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flood-risk-engine/internal/adapter/kafka"
	"github.com/couchcryptid/flood-risk-engine/internal/config"
	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/ngsi"
	"github.com/couchcryptid/flood-risk-engine/internal/observability"
	"github.com/couchcryptid/flood-risk-engine/internal/pipeline"
	"github.com/couchcryptid/flood-risk-engine/internal/simulation"
	"github.com/couchcryptid/flood-risk-engine/internal/snapshot"
	"github.com/couchcryptid/flood-risk-engine/internal/store"
	"github.com/couchcryptid/flood-risk-engine/internal/zones"
)

const testTopic = "test-observations"

var t0 = time.Date(2025, time.November, 3, 6, 0, 0, 0, time.UTC)

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaTopic:         testTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 2 * time.Second,
	}
}

// engine is the consumer half of the deployment: pipeline, store and snapshots.
type engine struct {
	store     *store.Memory
	snapshots *snapshot.Store
	pipeline  *pipeline.Pipeline
}

func newEngine(t *testing.T, cfg *config.Config, registry *zones.Registry) *engine {
	t.Helper()
	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	mem := store.NewMemory()
	snaps := snapshot.New(mem, nil, snapshot.Options{Bounds: domain.VietnamBounds, CoordPrecision: 5}, logger, metrics)

	reader := kafka.NewReader(cfg, logger)
	t.Cleanup(func() { _ = reader.Close() })

	p := pipeline.New(
		reader,
		pipeline.NewTransformer(pipeline.NewAssessor(registry), domain.VietnamBounds),
		pipeline.NewLoader(mem, snaps),
		logger, metrics, 50,
	)
	return &engine{store: mem, snapshots: snaps, pipeline: p}
}

func (e *engine) run(ctx context.Context, t *testing.T) {
	t.Helper()
	runCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- e.pipeline.Run(runCtx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-errCh)
	})
}

// TestKafkaReaderWriter verifies the adapter layer: a reading published by
// kafka.Writer comes back from kafka.Reader as an assessable observation.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	freezeClock(t, t0)

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)
	cfg := testConfig(broker, "test-reader")

	reading := domain.WaterReading{
		ZoneID:     "zone-q4-tran-xuan-soan",
		ZoneName:   "Đường Trần Xuân Soạn",
		District:   "Quận 4",
		Level:      0.55,
		Delta:      0.03,
		Trend:      domain.TrendRising,
		Severity:   domain.SeverityHigh,
		Location:   domain.GeoPoint{Lat: 10.7592, Lng: 106.7030},
		ObservedAt: t0,
	}

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.Publish(ctx, reading))

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for len(batch) == 0 {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for the reading")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, ngsi.WaterLevelID("zone-q4-tran-xuan-soan"), string(raw.Key))
	assert.Equal(t, testTopic, raw.Topic)
	assert.Equal(t, ngsi.TypeWaterLevelObserved, raw.Headers["entity_type"])
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	registry, err := zones.Default()
	require.NoError(t, err)
	transformer := pipeline.NewTransformer(pipeline.NewAssessor(registry), domain.VietnamBounds)
	a, err := transformer.Transform(ctx, raw)
	require.NoError(t, err)

	assert.Equal(t, ngsi.SensorAssessmentID("zone-q4-tran-xuan-soan"), a.ID)
	assert.Equal(t, domain.KindSensor, a.Kind)
	assert.Equal(t, domain.SeverityHigh, a.Severity)
	assert.InDelta(t, 0.55, a.WaterLevel, 1e-9)
	require.NotNil(t, a.Sensor)
	assert.True(t, a.Sensor.Alert)
	assert.Equal(t, domain.TrendRising, a.Sensor.Trend)
	assert.Equal(t, t0, a.CreatedAt)
}

// TestPipelineEndToEnd drives the simulator into Kafka and verifies every
// zone ends up in the sensor snapshot.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	clock := freezeClock(t, t0)

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)
	cfg := testConfig(broker, "test-pipeline")

	registry, err := zones.Default()
	require.NoError(t, err)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	params := simulation.DefaultParams()
	params.Seed = 42
	sim := simulation.New(registry.All(), params, writer, clock, discardLogger(), observability.NewMetricsForTesting())

	const ticks = 3
	var last []domain.WaterReading
	for range ticks {
		last = sim.Step(ctx)
		clock.Advance(params.TickInterval)
	}
	require.Len(t, last, registry.Len())

	e := newEngine(t, cfg, registry)
	e.run(ctx, t)

	// Later ticks overwrite earlier ones; wait until the snapshot holds the
	// last tick for every zone.
	want := make(map[string]domain.WaterReading, len(last))
	for _, r := range last {
		want[r.ZoneID] = r
	}
	var records []domain.Assessment
	require.Eventually(t, func() bool {
		records, err = e.snapshots.Snapshot(ctx, snapshot.StreamSensor)
		if err != nil || len(records) != len(want) {
			return false
		}
		for _, a := range records {
			r, ok := want[a.Sensor.ZoneID]
			if !ok || a.WaterLevel != r.Level {
				return false
			}
		}
		return true
	}, 60*time.Second, 500*time.Millisecond, "snapshot should converge on the last tick")

	assert.Equal(t, registry.Len(), e.store.Len(), "one sensor assessment per zone")
	for _, a := range records {
		r := want[a.Sensor.ZoneID]
		assert.GreaterOrEqual(t, a.Severity, r.Severity, "zone %s severity", r.ZoneID)
		assert.Equal(t, r.Trend, a.Sensor.Trend, "zone %s trend", r.ZoneID)
		assert.Equal(t, r.Location, a.Location, "zone %s location", r.ZoneID)
	}

	require.NoError(t, e.pipeline.CheckReadiness(ctx))
}

// TestPipelineTransformError verifies that an invalid message (poison pill) is
// skipped and the pipeline continues processing valid messages.
func TestPipelineTransformError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	freezeClock(t, t0)

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)
	cfg := testConfig(broker, "test-poison")

	// Publish: invalid JSON, a reading outside the operational region, then a
	// valid reading.
	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{"), Time: t0},
	))

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.PublishBatch(ctx, []domain.WaterReading{
		{ZoneID: "zone-paris", Level: 0.4, Location: domain.GeoPoint{Lat: 48.85, Lng: 2.35}, ObservedAt: t0},
		{ZoneID: "zone-q7-huynh-tan-phat", Level: 0.12, Location: domain.GeoPoint{Lat: 10.7355, Lng: 106.7205}, ObservedAt: t0},
	}))

	registry, err := zones.Default()
	require.NoError(t, err)
	e := newEngine(t, cfg, registry)
	e.run(ctx, t)

	require.Eventually(t, func() bool {
		return e.store.Len() == 1
	}, 60*time.Second, 500*time.Millisecond, "valid reading should be loaded")

	// Nothing else arrives once the poison messages have been skipped.
	time.Sleep(3 * time.Second)
	assert.Equal(t, 1, e.store.Len())

	got, err := e.store.Get(ctx, ngsi.SensorAssessmentID("zone-q7-huynh-tan-phat"))
	require.NoError(t, err)
	a, err := ngsi.DecodeAssessment(got)
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityLow, a.Severity)
}
