package prediction

import "time"

// Prediction status values. The transition is one-way: open -> resolved.
const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
)

// Canonical scenario labels. Articles publish three scenarios; the base label
// doubles as the "no decisive outcome" resolution when a deadline passes with
// the market still ambiguous.
const (
	LabelOptimistic  = "optimistic"
	LabelBase        = "base"
	LabelPessimistic = "pessimistic"
)

// Scenario is one labeled outcome with its assigned probability.
type Scenario struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
	Narrative   string  `json:"narrative,omitempty"`
	Action      string  `json:"action,omitempty"`
}

// Trigger is a named future event whose date gates verification.
type Trigger struct {
	Name string `json:"name"`
	Date string `json:"date"`
}

// HistoryScenario is a scenario's probability at one point in time.
type HistoryScenario struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// HistoryEntry records one probability revision, attributed to the article
// that made it.
type HistoryEntry struct {
	Date            string            `json:"date"`
	SourceArticleID string            `json:"source_article_id"`
	Scenarios       []HistoryScenario `json:"scenarios"`
	Reason          string            `json:"reason,omitempty"`
}

// Prediction is one published forecast. Once Status is resolved, Outcome and
// BrierScore are immutable.
type Prediction struct {
	PredictionID       string         `json:"prediction_id"`
	ArticleID          string         `json:"article_id"`
	Title              string         `json:"title"`
	PublishedAt        time.Time      `json:"published_at"`
	DynamicsTags       string         `json:"dynamics_tags,omitempty"`
	GenreTags          string         `json:"genre_tags,omitempty"`
	Scenarios          []Scenario     `json:"scenarios"`
	Triggers           []Trigger      `json:"triggers,omitempty"`
	Status             string         `json:"status"`
	Outcome            string         `json:"outcome,omitempty"`
	ResolvedAt         *time.Time     `json:"resolved_at,omitempty"`
	BrierScore         *float64       `json:"brier_score,omitempty"`
	ResolutionNote     string         `json:"resolution_note,omitempty"`
	ProbabilityHistory []HistoryEntry `json:"probability_history,omitempty"`
}

// Open reports whether the prediction can still be resolved or revised.
func (p *Prediction) Open() bool { return p.Status == StatusOpen }

// Stats is a recomputed, non-authoritative aggregate over the predictions.
type Stats struct {
	Total         int      `json:"total"`
	Resolved      int      `json:"resolved"`
	Open          int      `json:"open"`
	AvgBrierScore *float64 `json:"avg_brier_score"`
	LastUpdated   string   `json:"last_updated"`
}

// Document is the persisted prediction state.
type Document struct {
	Predictions []*Prediction `json:"predictions"`
	Stats       Stats         `json:"stats"`
}
