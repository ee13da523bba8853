package risk

import (
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
)

// Factor weights. They sum to 1 so the score stays in [0, 1].
const (
	weightWater    = 0.50
	weightText     = 0.25
	weightPhoto    = 0.15
	weightVerified = 0.10
)

// Score cutoffs for the ordinal level.
const (
	cutoffSevere   = 0.75
	cutoffHigh     = 0.55
	cutoffModerate = 0.35
)

const (
	photoStep        = 0.25
	textPerRune      = 0.004
	textLengthCap    = 0.4
	textOneMatch     = 0.7
	textManyMatches  = 1.0
	manyMatchesCount = 3
)

// dangerKeywords are matched against the NFC-normalized, lower-cased
// description. Entries must not be substrings of one another.
var dangerKeywords = []string{
	// Vietnamese
	"nguy hiểm",
	"nghiêm trọng",
	"ngập sâu",
	"ngập nặng",
	"khẩn cấp",
	"cứu hộ",
	"mắc kẹt",
	"lũ lụt",
	"nước xiết",
	"không qua được",
	// English
	"danger",
	"severe",
	"flood",
	"trapped",
	"emergency",
	"rescue",
	"impassable",
	"stuck",
}

// CrowdInput is everything a citizen report contributes to its score.
type CrowdInput struct {
	WaterLevel  float64
	Description string
	PhotoCount  int
	Verified    bool
}

// CrowdRisk is the scored result of a citizen report.
type CrowdRisk struct {
	Score   float64
	Level   domain.Severity
	Factors domain.CrowdFactors
}

// ComputeCrowdRisk scores a citizen report. Identical inputs always produce
// identical results, and the score is always in [0, 1].
func ComputeCrowdRisk(in CrowdInput) CrowdRisk {
	text, matches := textFactor(in.Description)
	factors := domain.CrowdFactors{
		WaterLevel:     waterFactor(in.WaterLevel),
		TextSeverity:   text,
		Photo:          photoFactor(in.PhotoCount),
		KeywordMatches: matches,
	}
	if in.Verified {
		factors.Verified = 1
	}

	score := weightWater*factors.WaterLevel +
		weightText*factors.TextSeverity +
		weightPhoto*factors.Photo +
		weightVerified*factors.Verified
	score = math.Round(clamp01(score)*1000) / 1000

	return CrowdRisk{Score: score, Level: LevelForScore(score), Factors: factors}
}

// LevelForScore maps a crowd score onto the ordinal scale.
func LevelForScore(score float64) domain.Severity {
	switch {
	case score > cutoffSevere:
		return domain.SeveritySevere
	case score > cutoffHigh:
		return domain.SeverityHigh
	case score > cutoffModerate:
		return domain.SeverityModerate
	default:
		return domain.SeverityLow
	}
}

// waterFactor grows slowly below 0.3 m, steeply up to 0.8 m, then saturates
// at 1.0 by 1.8 m.
func waterFactor(level float64) float64 {
	switch {
	case level <= 0 || math.IsNaN(level):
		return 0
	case level < 0.3:
		return level * 0.5
	case level < 0.8:
		return 0.15 + (level-0.3)*1.2
	default:
		return math.Min(1, 0.75+(level-0.8)*0.25)
	}
}

func textFactor(description string) (float64, int) {
	text := normalizeText(description)
	if text == "" {
		return 0, 0
	}

	matches := 0
	for _, kw := range dangerKeywords {
		matches += strings.Count(text, kw)
	}

	switch {
	case matches >= manyMatchesCount:
		return textManyMatches, matches
	case matches >= 1:
		return textOneMatch, matches
	default:
		return math.Min(float64(utf8.RuneCountInString(text))*textPerRune, textLengthCap), 0
	}
}

func photoFactor(n int) float64 {
	if n <= 0 {
		return 0
	}
	return math.Min(float64(n)*photoStep, 1)
}

// normalizeText composes Vietnamese diacritics so NFD input from mobile
// keyboards matches the keyword list, then lower-cases with Vietnamese rules.
// A Caser is stateful, so each call builds its own.
func normalizeText(s string) string {
	return cases.Lower(language.Vietnamese).String(strings.TrimSpace(norm.NFC.String(s)))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
