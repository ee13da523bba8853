package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/observability"
)

// Delays between failed cycles: 200ms doubling up to 5s, reset after a
// successful load.
const (
	initialRetryDelay = 200 * time.Millisecond
	maxRetryDelay     = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer scores one raw observation message.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.Assessment, error)
}

// BatchLoader persists a batch of assessments.
type BatchLoader interface {
	LoadBatch(ctx context.Context, assessments []domain.Assessment) error
}

// Pipeline consumes observation messages, scores them and writes the
// resulting assessments. Offsets are committed only after the assessment is
// stored; rejected messages are committed immediately so they are not
// redelivered.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// CheckReadiness returns nil once the pipeline has stored at least one assessment.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not stored any assessments yet")
	}
	return nil
}

// Run executes cycles until ctx is cancelled. Failed cycles are retried
// after a growing delay; Run itself only returns on shutdown.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	retry := newRetryBackOff()
	for ctx.Err() == nil {
		if err := p.cycle(ctx); err != nil {
			if !sleepWithContext(ctx, retry.NextBackOff()) {
				break
			}
			continue
		}
		retry.Reset()
	}

	p.logger.Info("pipeline stopping", "reason", context.Cause(ctx))
	return nil
}

// cycle runs one extract, assess, load pass. A non-nil error means the
// cycle failed and the caller should back off.
func (p *Pipeline) cycle(ctx context.Context) error {
	start := time.Now()

	batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		p.logger.Error("extract batch failed", "error", err)
		return err
	}
	if len(batch) == 0 {
		return nil
	}
	p.metrics.MessagesConsumed.Add(float64(len(batch)))
	p.metrics.BatchSize.Observe(float64(len(batch)))

	assessments, accepted := p.assess(ctx, batch)
	if len(assessments) == 0 {
		return nil
	}

	if err := p.loader.LoadBatch(ctx, assessments); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		p.logger.Error("load batch failed", "error", err, "batch_size", len(assessments))
		return err
	}

	p.metrics.MessagesProduced.Add(float64(len(assessments)))
	for _, a := range assessments {
		p.metrics.Assessments.WithLabelValues(string(a.Kind), a.Severity.String()).Inc()
	}
	for _, raw := range accepted {
		p.commit(ctx, raw)
	}

	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)
	return nil
}

// assess scores each message. Rejected messages are logged, counted and
// committed; the rest are returned alongside their assessments.
func (p *Pipeline) assess(ctx context.Context, batch []domain.RawEvent) ([]domain.Assessment, []domain.RawEvent) {
	assessments := make([]domain.Assessment, 0, len(batch))
	accepted := make([]domain.RawEvent, 0, len(batch))

	for _, raw := range batch {
		a, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("observation rejected, skipping message",
				"error", err,
				"key", string(raw.Key),
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TransformErrors.Inc()
			p.commit(ctx, raw)
			continue
		}
		assessments = append(assessments, a)
		accepted = append(accepted, raw)
	}
	return assessments, accepted
}

func (p *Pipeline) commit(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func newRetryBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialRetryDelay
	b.MaxInterval = maxRetryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
