package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvOrDefault returns the value of the environment variable or def when unset or empty.
func EnvOrDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// ParseBrokers splits a comma-separated broker list, dropping empty entries.
func ParseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// envReader parses typed variables and keeps the first error, so Load can read
// every setting and check once.
type envReader struct {
	err error
}

func (r *envReader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *envReader) duration(name, def string, allowZero bool) time.Duration {
	s := EnvOrDefault(name, def)
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		r.fail("invalid %s %q: must be a positive duration", name, s)
		return 0
	}
	return d
}

func (r *envReader) integer(name string, def, minVal, maxVal int) int {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minVal || n > maxVal {
		r.fail("invalid %s %q: must be an integer in [%d, %d]", name, s, minVal, maxVal)
		return def
	}
	return n
}

func (r *envReader) float(name string, def, minVal, maxVal float64) float64 {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < minVal || f > maxVal {
		r.fail("invalid %s %q: must be a number in [%g, %g]", name, s, minVal, maxVal)
		return def
	}
	return f
}

func (r *envReader) boolean(name string, def bool) bool {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		r.fail("invalid %s %q: must be true or false", name, s)
		return def
	}
	return b
}

func (r *envReader) oneOf(name, def string, allowed ...string) string {
	s := strings.ToLower(EnvOrDefault(name, def))
	for _, a := range allowed {
		if s == a {
			return s
		}
	}
	r.fail("invalid %s %q: must be one of %s", name, s, strings.Join(allowed, ", "))
	return def
}
