package verify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var periodRe = regexp.MustCompile(`^(\d{4})-([QH])([1-4])$`)

// ParseTriggerDate parses the date forms that show up in published trigger
// lists. Periods resolve to their last day, so a trigger is only considered
// passed once the whole period is over.
//
//	2026-06-17, 2026/06/17  exact day
//	2026-06                 end of month
//	2026-Q4                 end of quarter
//	2026-H1                 end of half
//	2026                    end of year
func ParseTriggerDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty trigger date")
	}

	for _, layout := range []string{"2006-01-02", "2006/01/02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	if m := periodRe.FindStringSubmatch(strings.ToUpper(s)); m != nil {
		year, _ := strconv.Atoi(m[1])
		n, _ := strconv.Atoi(m[3])
		switch m[2] {
		case "Q":
			endMonth := time.Month(n * 3)
			return endOfMonth(year, endMonth), nil
		case "H":
			if n > 2 {
				return time.Time{}, fmt.Errorf("invalid half %q", s)
			}
			return endOfMonth(year, time.Month(n*6)), nil
		}
	}

	if t, err := time.Parse("2006-01", s); err == nil {
		return endOfMonth(t.Year(), t.Month()), nil
	}
	if t, err := time.Parse("2006", s); err == nil {
		return time.Date(t.Year(), 12, 31, 0, 0, 0, 0, time.UTC), nil
	}

	return time.Time{}, fmt.Errorf("unrecognized trigger date %q", s)
}

func endOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}
