package expr

import (
	"regexp"
	"strconv"

	"github.com/caretide/scenario"
)

var windowPattern = regexp.MustCompile(`^(\d+)(s|m|h|d|w)$`)

// ParseWindow parses a compact duration literal such as "48h" or "30m"
// into a WindowSpec. Pure; fails on anything not matching <integer><unit>
// with unit in s, m, h, d, w.
func ParseWindow(lit string) (scenario.WindowSpec, error) {
	m := windowPattern.FindStringSubmatch(lit)
	if m == nil {
		return scenario.WindowSpec{}, syntaxErr(0, len(lit), "invalid window %q, expected <integer><unit> with unit s|m|h|d|w", lit)
	}
	mag, err := strconv.Atoi(m[1])
	if err != nil {
		return scenario.WindowSpec{}, syntaxErr(0, len(lit), "invalid window magnitude %q", m[1])
	}
	return scenario.WindowSpec{Magnitude: mag, Unit: m[2]}, nil
}
