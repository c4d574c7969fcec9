package prediction

import (
	"fmt"
	"math"
	"strings"
)

// BrierScore is the mean squared error between the assigned probabilities and
// the actual-outcome indicator: 0 is a perfect forecast, around 0.25 is an
// uninformative baseline for a roughly even split.
func BrierScore(scenarios []Scenario, outcome string) (float64, error) {
	if len(scenarios) == 0 {
		return 0, fmt.Errorf("no scenarios to score")
	}

	var total float64
	for _, s := range scenarios {
		actual := 0.0
		if MatchesLabel(s.Label, outcome) {
			actual = 1.0
		}
		total += (s.Probability - actual) * (s.Probability - actual)
	}
	return math.Round(total/float64(len(scenarios))*10000) / 10000, nil
}

// MatchesLabel compares a scenario label against an outcome label, tolerating
// decorated forms ("pessimistic scenario" matches "pessimistic").
func MatchesLabel(label, outcome string) bool {
	l := strings.ToLower(strings.TrimSpace(label))
	o := strings.ToLower(strings.TrimSpace(outcome))
	if l == "" || o == "" {
		return false
	}
	return l == o || strings.Contains(l, o) || strings.Contains(o, l)
}
