// Package risk holds the pure scoring functions behind sensor severities and
// crowd risk scores. Nothing here reads a clock, a store, or a random source.
package risk

import "github.com/couchcryptid/flood-risk-engine/internal/domain"

// Absolute level bands, metres.
const (
	lowBand      = 0.2
	moderateBand = 0.5
	highBand     = 1.0
)

// Trend escalation cutoffs, metres per sample.
const (
	trendStepOne = 0.05
	trendStepTwo = 0.1
)

// DefaultAlertThreshold is used when a sensor reading carries no local threshold.
const DefaultAlertThreshold = 0.3

// BaseSeverity classifies a water level by absolute bands only.
func BaseSeverity(level float64) domain.Severity {
	switch {
	case level < lowBand:
		return domain.SeverityLow
	case level < moderateBand:
		return domain.SeverityModerate
	case level < highBand:
		return domain.SeverityHigh
	default:
		return domain.SeveritySevere
	}
}

// ComputeSeverity classifies a sensor reading. A zero threshold or trend means
// the value was not supplied.
//
// The base band is escalated one step when trend > 0.05 and two steps when
// trend > 0.1. Independently, a reading at or above its alert threshold is at
// least High. The result is the higher of the two, capped at Severe.
func ComputeSeverity(level, threshold, trend float64) domain.Severity {
	escalated := BaseSeverity(level).Escalate(trendSteps(trend))

	if ThresholdExceeded(level, threshold) {
		return domain.MaxSeverity(escalated, domain.SeverityHigh)
	}
	return escalated
}

func trendSteps(trend float64) int {
	switch {
	case trend > trendStepTwo:
		return 2
	case trend > trendStepOne:
		return 1
	default:
		return 0
	}
}

// ThresholdExceeded reports whether a reading trips its local alert threshold.
func ThresholdExceeded(level, threshold float64) bool {
	return threshold > 0 && level >= threshold
}
