// Package kduration parses and renders the compound duration strings used
// throughout the engine for action timeouts and retry intervals (e.g. "5s",
// "200ms", "1h30m").
//
// The grammar is intentionally narrower than time.ParseDuration: only the
// ms/s/m/h units are accepted, no sign prefix, no whitespace, and no
// sub-millisecond units (ns, us). time.ParseDuration accepts a strictly wider
// grammar, so it is not used at all: accepted strings are summed as integer
// milliseconds by hand and returned as a time.Duration.
package kduration

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// InvalidDurationError is returned when a string does not conform to the
// grammar described in the package doc.
type InvalidDurationError struct {
	Input string
}

func (e *InvalidDurationError) Error() string {
	return fmt.Sprintf("invalid duration: %q", e.Input)
}

var unitMillis = map[string]int64{
	"ms": 1,
	"s":  1000,
	"m":  60_000,
	"h":  3_600_000,
}

// Parse converts a duration string into a time.Duration, truncated toward
// zero at sub-millisecond precision. "0" is accepted as a literal zero with
// no unit.
func Parse(s string) (time.Duration, error) {
	if s == "0" {
		return 0, nil
	}
	if s == "" {
		return 0, &InvalidDurationError{Input: s}
	}

	var totalMs int64
	rest := s
	consumedAny := false

	for len(rest) > 0 {
		intEnd := 0
		for intEnd < len(rest) && isDigit(rest[intEnd]) {
			intEnd++
		}
		if intEnd == 0 {
			return 0, &InvalidDurationError{Input: s}
		}
		intPart := rest[:intEnd]
		rest = rest[intEnd:]

		var fracPart string
		if len(rest) > 0 && rest[0] == '.' {
			rest = rest[1:]
			fracEnd := 0
			for fracEnd < len(rest) && isDigit(rest[fracEnd]) {
				fracEnd++
			}
			if fracEnd == 0 {
				return 0, &InvalidDurationError{Input: s}
			}
			fracPart = rest[:fracEnd]
			rest = rest[fracEnd:]
		}

		unitEnd := 0
		for unitEnd < len(rest) && isAlpha(rest[unitEnd]) {
			unitEnd++
		}
		if unitEnd == 0 {
			return 0, &InvalidDurationError{Input: s}
		}
		unit := rest[:unitEnd]
		rest = rest[unitEnd:]

		mult, ok := unitMillis[unit]
		if !ok {
			return 0, &InvalidDurationError{Input: s}
		}

		n, err := strconv.ParseInt(intPart, 10, 64)
		if err != nil {
			return 0, &InvalidDurationError{Input: s}
		}
		totalMs += n * mult

		if fracPart != "" {
			num, err := strconv.ParseInt(fracPart, 10, 64)
			if err != nil {
				return 0, &InvalidDurationError{Input: s}
			}
			denom := pow10(len(fracPart))
			totalMs += (mult * num) / denom
		}

		consumedAny = true
	}

	if !consumedAny {
		return 0, &InvalidDurationError{Input: s}
	}
	return time.Duration(totalMs) * time.Millisecond, nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isAlpha(b byte) bool { return b >= 'a' && b <= 'z' }

func pow10(n int) int64 {
	p := int64(1)
	for i := 0; i < n; i++ {
		p *= 10
	}
	return p
}

// Render produces the canonical compound form of d, e.g. 90061ms renders as
// "1m30.061s" and 60000ms renders as "1m". Parse(Render(d)) == d for every
// value produced by Parse.
func Render(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 0 {
		return "-" + Render(-d)
	}

	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	fracMs := ms - s*1000

	frac := trimTrailingZeros(fmt.Sprintf("%03d", fracMs))

	switch {
	case frac != "":
		return compound(h, m, fmt.Sprintf("%d.%ss", s, frac))
	case s > 0:
		return compound(h, m, fmt.Sprintf("%ds", s))
	case m > 0:
		return compound(h, m, "")
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return "0s"
	}
}

// compound renders hours/minutes given that the last significant unit is
// seconds (already formatted as lastSeconds, which may be empty when minutes
// is itself the last significant unit).
func compound(h, m int64, lastSeconds string) string {
	var b strings.Builder
	if h > 0 {
		fmt.Fprintf(&b, "%dh", h)
	}
	if h > 0 || m > 0 {
		if lastSeconds == "" {
			fmt.Fprintf(&b, "%dm", m)
			return b.String()
		}
		fmt.Fprintf(&b, "%dm", m)
	}
	b.WriteString(lastSeconds)
	return b.String()
}

func trimTrailingZeros(s string) string {
	s = strings.TrimRight(s, "0")
	return s
}
