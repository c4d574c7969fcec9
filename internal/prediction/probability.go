package prediction

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseProbability normalizes a free-text probability into a fraction in
// [0, 1]. Accepts "30%", "0.30" and "30"; anything unparseable is an explicit
// error, never a silent zero.
func ParseProbability(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty probability %q", raw)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable probability %q", raw)
	}

	// Bare numbers above 1 are read as percentages.
	if v > 1 {
		v = v / 100
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("probability %q out of range", raw)
	}

	return math.Round(v*10000) / 10000, nil
}
