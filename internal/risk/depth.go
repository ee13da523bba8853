package risk

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/couchcryptid/flood-risk-engine/internal/domain"
)

var depthPattern = regexp.MustCompile(`([0-9]+(?:[.,][0-9]+)?)\s*(cm|m)\b`)

// Fallback depths when a report mentions flooding without a number.
const (
	heavyFloodDepth = 0.30
	floodDepth      = 0.10
)

// EstimateDepth extracts a water depth in metres from free text such as
// "ngập 30cm" or "nước sâu 0,5 m". Without a number it falls back to the
// wording: "ngập nặng" reads as 0.30 m and "ngập" as 0.10 m. The boolean is
// false when nothing in the text indicates water.
func EstimateDepth(description string) (float64, bool) {
	text := normalizeText(description)

	if m := depthPattern.FindStringSubmatch(text); m != nil {
		v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
		if err == nil {
			if m[2] == "cm" {
				v /= 100
			}
			if v > domain.MaxWaterLevel {
				v = domain.MaxWaterLevel
			}
			return v, true
		}
	}

	switch {
	case strings.Contains(text, "ngập nặng"):
		return heavyFloodDepth, true
	case strings.Contains(text, "ngập"):
		return floodDepth, true
	}
	return 0, false
}
