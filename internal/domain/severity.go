package domain

import (
	"fmt"
	"strings"
)

// Severity is the ordinal flood risk scale shared by sensor and crowd assessments.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityModerate
	SeverityHigh
	SeveritySevere
)

var severityNames = [...]string{"Low", "Moderate", "High", "Severe"}

func (s Severity) String() string {
	if s < SeverityLow || s > SeveritySevere {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

// Escalate moves the severity up by steps, never down and never past Severe.
func (s Severity) Escalate(steps int) Severity {
	if steps <= 0 {
		return s
	}
	out := s + Severity(steps)
	if out > SeveritySevere {
		return SeveritySevere
	}
	return out
}

// MaxSeverity returns the higher of two severities.
func MaxSeverity(a, b Severity) Severity {
	if a > b {
		return a
	}
	return b
}

// ParseSeverity accepts the canonical labels case-insensitively. The zone
// catalogue uses "medium" for Moderate.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, nil
	case "moderate", "medium":
		return SeverityModerate, nil
	case "high":
		return SeverityHigh, nil
	case "severe":
		return SeveritySevere, nil
	}
	return SeverityLow, fmt.Errorf("unknown severity %q", s)
}

func (s Severity) MarshalText() ([]byte, error) {
	if s < SeverityLow || s > SeveritySevere {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Trend is the direction of water level change between two ticks.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// ParseTrend maps unknown or empty labels to TrendStable.
func ParseTrend(s string) Trend {
	switch Trend(strings.ToLower(s)) {
	case TrendRising:
		return TrendRising
	case TrendFalling:
		return TrendFalling
	}
	return TrendStable
}
