package report

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"foresight/internal/market"
	"foresight/internal/prediction"
	"foresight/internal/verify"
)

// Tracker computes track-record metrics from the prediction document and,
// when a market database is attached, the market tables.
type Tracker struct {
	predictions   *prediction.Store
	markets       *market.Store
	stalenessDays int
	now           func() time.Time
}

// NewTracker builds a tracker. markets may be nil when no market database is
// configured; the status report then omits the market section.
func NewTracker(predictions *prediction.Store, markets *market.Store, stalenessDays int) *Tracker {
	return &Tracker{
		predictions:   predictions,
		markets:       markets,
		stalenessDays: stalenessDays,
		now:           time.Now,
	}
}

// Report is the scoring summary, optionally restricted to one quarter.
// Total and Open always cover the whole document; the scoring fields cover
// only predictions resolved inside the period.
type Report struct {
	Period   string
	Total    int
	Open     int
	Resolved int
	AvgBrier *float64
	Outcomes map[string]int
	Tags     map[string]TagStats
}

// TagStats is the per-dynamics-tag track record.
type TagStats struct {
	Count    int
	AvgBrier float64
}

// Generate computes the report. period is empty for all time, or a quarter
// like "2026-Q1".
func (t *Tracker) Generate(period string) (*Report, error) {
	doc, err := t.predictions.Load()
	if err != nil {
		return nil, err
	}

	var start, end time.Time
	if period != "" {
		start, end, err = periodBounds(period)
		if err != nil {
			return nil, err
		}
	}

	r := &Report{
		Period:   period,
		Total:    len(doc.Predictions),
		Outcomes: make(map[string]int),
		Tags:     make(map[string]TagStats),
	}

	type agg struct {
		n   int
		sum float64
	}
	tagAgg := make(map[string]*agg)
	var scoreSum float64
	var scored int

	for _, p := range doc.Predictions {
		if p.Open() {
			r.Open++
			continue
		}
		if period != "" {
			if p.ResolvedAt == nil || p.ResolvedAt.Before(start) || !p.ResolvedAt.Before(end) {
				continue
			}
		}
		r.Resolved++
		r.Outcomes[p.Outcome]++

		if p.BrierScore == nil {
			continue
		}
		scoreSum += *p.BrierScore
		scored++
		for _, tag := range splitTags(p.DynamicsTags) {
			a := tagAgg[tag]
			if a == nil {
				a = &agg{}
				tagAgg[tag] = a
			}
			a.n++
			a.sum += *p.BrierScore
		}
	}

	if scored > 0 {
		avg := math.Round(scoreSum/float64(scored)*10000) / 10000
		r.AvgBrier = &avg
	}
	for tag, a := range tagAgg {
		r.Tags[tag] = TagStats{
			Count:    a.n,
			AvgBrier: math.Round(a.sum/float64(a.n)*10000) / 10000,
		}
	}
	return r, nil
}

// OverdueItem is an open prediction whose check is past due.
type OverdueItem struct {
	PredictionID string
	Title        string
	Reason       string
	DaysOver     int
}

// Overdue lists open predictions with a passed trigger date or past the
// staleness window, most overdue first.
func (t *Tracker) Overdue() ([]OverdueItem, error) {
	doc, err := t.predictions.Load()
	if err != nil {
		return nil, err
	}

	today := t.now().UTC()
	var items []OverdueItem
	for _, p := range doc.Predictions {
		if !p.Open() {
			continue
		}

		var best *OverdueItem
		for _, tr := range p.Triggers {
			d, err := verify.ParseTriggerDate(tr.Date)
			if err != nil {
				continue
			}
			if d.After(today) {
				continue
			}
			over := int(today.Sub(d).Hours() / 24)
			if best == nil || over > best.DaysOver {
				best = &OverdueItem{
					PredictionID: p.PredictionID,
					Title:        p.Title,
					Reason:       fmt.Sprintf("trigger %q passed %s", tr.Name, tr.Date),
					DaysOver:     over,
				}
			}
		}
		if best == nil {
			age := int(today.Sub(p.PublishedAt).Hours() / 24)
			if age >= t.stalenessDays {
				best = &OverdueItem{
					PredictionID: p.PredictionID,
					Title:        p.Title,
					Reason:       fmt.Sprintf("stale, published %d days ago", age),
					DaysOver:     age - t.stalenessDays,
				}
			}
		}
		if best != nil {
			items = append(items, *best)
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].DaysOver > items[j].DaysOver })
	return items, nil
}

// Status combines document stats with the market table counts.
type Status struct {
	Stats  prediction.Stats
	Market *market.Counts
}

func (t *Tracker) Status() (*Status, error) {
	doc, err := t.predictions.Load()
	if err != nil {
		return nil, err
	}
	st := &Status{Stats: doc.Stats}

	if t.markets != nil {
		counts, err := t.markets.Counts()
		if err != nil {
			return nil, fmt.Errorf("counting market tables: %w", err)
		}
		st.Market = counts
	}
	return st, nil
}

func periodBounds(period string) (time.Time, time.Time, error) {
	parts := strings.SplitN(strings.ToUpper(strings.TrimSpace(period)), "-Q", 2)
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("unrecognized period %q, want YYYY-Qn", period)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("unrecognized period %q, want YYYY-Qn", period)
	}
	q, err := strconv.Atoi(parts[1])
	if err != nil || q < 1 || q > 4 {
		return time.Time{}, time.Time{}, fmt.Errorf("unrecognized period %q, want YYYY-Qn", period)
	}

	start := time.Date(year, time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 3, 0), nil
}

func splitTags(tags string) []string {
	var out []string
	for _, t := range strings.Split(tags, ",") {
		t = strings.TrimSpace(strings.ToLower(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
