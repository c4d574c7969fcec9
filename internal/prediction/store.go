package prediction

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"
)

// Store persists the prediction document as a single JSON file. All mutating
// operations load, modify and rewrite the whole document; the process model
// is single-writer batch jobs, so no file locking is needed.
type Store struct {
	path     string
	idPrefix string
	now      func() time.Time
}

func NewStore(path, idPrefix string) *Store {
	return &Store{path: path, idPrefix: idPrefix, now: time.Now}
}

// Load reads the document, returning an empty one when the file does not
// exist yet.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading prediction db: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing prediction db: %w", err)
	}
	return &doc, nil
}

func (s *Store) save(doc *Document) error {
	doc.Stats = s.computeStats(doc)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding prediction db: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating prediction db directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("writing prediction db: %w", err)
	}
	return nil
}

func (s *Store) computeStats(doc *Document) Stats {
	var resolved int
	var scoreSum float64
	var scored int
	for _, p := range doc.Predictions {
		if p.Status == StatusResolved {
			resolved++
			if p.BrierScore != nil {
				scoreSum += *p.BrierScore
				scored++
			}
		}
	}

	st := Stats{
		Total:       len(doc.Predictions),
		Resolved:    resolved,
		Open:        len(doc.Predictions) - resolved,
		LastUpdated: s.now().UTC().Format(time.RFC3339),
	}
	if scored > 0 {
		avg := math.Round(scoreSum/float64(scored)*10000) / 10000
		st.AvgBrierScore = &avg
	}
	return st
}

// Forecast is the inbound record extracted from a published analysis.
// Probabilities arrive as free text and are normalized on record.
type Forecast struct {
	ArticleID    string             `json:"article_id"`
	Title        string             `json:"title"`
	DynamicsTags string             `json:"dynamics_tags"`
	GenreTags    string             `json:"genre_tags"`
	Scenarios    []ForecastScenario `json:"scenarios"`
	Triggers     []Trigger          `json:"triggers"`
}

type ForecastScenario struct {
	Label       string `json:"label"`
	Probability string `json:"probability"`
	Narrative   string `json:"narrative"`
	Action      string `json:"action"`
}

// Record creates a new prediction with a year-scoped sequential id. Repeated
// calls for the same originating article return the existing id instead of
// creating a duplicate. Returns (id, created, error).
func (s *Store) Record(f Forecast) (string, bool, error) {
	if len(f.Scenarios) == 0 {
		return "", false, fmt.Errorf("forecast has no scenarios")
	}

	doc, err := s.Load()
	if err != nil {
		return "", false, err
	}

	if f.ArticleID != "" {
		for _, p := range doc.Predictions {
			if p.ArticleID == f.ArticleID {
				slog.Info("prediction already recorded for article",
					"article_id", f.ArticleID, "prediction_id", p.PredictionID)
				return p.PredictionID, false, nil
			}
		}
	}

	scenarios := make([]Scenario, 0, len(f.Scenarios))
	for _, fs := range f.Scenarios {
		prob, err := ParseProbability(fs.Probability)
		if err != nil {
			return "", false, fmt.Errorf("scenario %q: %w", fs.Label, err)
		}
		scenarios = append(scenarios, Scenario{
			Label:       fs.Label,
			Probability: prob,
			Narrative:   fs.Narrative,
			Action:      fs.Action,
		})
	}

	now := s.now().UTC()
	id := s.generateID(doc, now.Year())

	history := make([]HistoryScenario, 0, len(scenarios))
	for _, sc := range scenarios {
		history = append(history, HistoryScenario{Label: sc.Label, Probability: sc.Probability})
	}

	doc.Predictions = append(doc.Predictions, &Prediction{
		PredictionID: id,
		ArticleID:    f.ArticleID,
		Title:        f.Title,
		PublishedAt:  now,
		DynamicsTags: f.DynamicsTags,
		GenreTags:    f.GenreTags,
		Scenarios:    scenarios,
		Triggers:     f.Triggers,
		Status:       StatusOpen,
		ProbabilityHistory: []HistoryEntry{{
			Date:            now.Format("2006-01-02"),
			SourceArticleID: f.ArticleID,
			Scenarios:       history,
		}},
	})

	if err := s.save(doc); err != nil {
		return "", false, err
	}

	slog.Info("prediction recorded", "prediction_id", id, "title", f.Title,
		"scenarios", len(scenarios), "triggers", len(f.Triggers))
	return id, true, nil
}

// generateID produces the first free PREFIX-YYYY-NNNN identifier for the year.
func (s *Store) generateID(doc *Document, year int) string {
	existing := make(map[string]bool, len(doc.Predictions))
	for _, p := range doc.Predictions {
		existing[p.PredictionID] = true
	}
	for i := 1; i < 10000; i++ {
		id := fmt.Sprintf("%s-%d-%04d", s.idPrefix, year, i)
		if !existing[id] {
			return id
		}
	}
	return fmt.Sprintf("%s-%d-%04d", s.idPrefix, year, len(doc.Predictions)+1)
}

// Revision carries the new probabilities from a follow-up article.
type Revision struct {
	ArticleID string
	Reason    string
	Scenarios []ForecastScenario
}

// UpdateProbability overwrites the current scenario probabilities of an open
// prediction and appends the new state to its history. Resolved predictions
// are rejected: history never rewrites a scored outcome.
func (s *Store) UpdateProbability(predictionID string, rev Revision) error {
	doc, err := s.Load()
	if err != nil {
		return err
	}

	p := findPrediction(doc, predictionID)
	if p == nil {
		return fmt.Errorf("prediction %s not found", predictionID)
	}
	if !p.Open() {
		return fmt.Errorf("prediction %s is already resolved; probabilities are immutable", predictionID)
	}

	entry := HistoryEntry{
		Date:            s.now().UTC().Format("2006-01-02"),
		SourceArticleID: rev.ArticleID,
		Reason:          rev.Reason,
	}
	for _, fs := range rev.Scenarios {
		prob, err := ParseProbability(fs.Probability)
		if err != nil {
			return fmt.Errorf("scenario %q: %w", fs.Label, err)
		}
		for i := range p.Scenarios {
			if MatchesLabel(p.Scenarios[i].Label, fs.Label) {
				p.Scenarios[i].Probability = prob
				break
			}
		}
		entry.Scenarios = append(entry.Scenarios, HistoryScenario{Label: fs.Label, Probability: prob})
	}
	p.ProbabilityHistory = append(p.ProbabilityHistory, entry)

	if err := s.save(doc); err != nil {
		return err
	}
	slog.Info("probabilities revised", "prediction_id", predictionID,
		"history_entries", len(p.ProbabilityHistory))
	return nil
}

// Judge resolves a prediction: one-way status transition, Brier score
// computed exactly once at the moment of resolution. Judging an already
// resolved prediction is an error and changes nothing.
func (s *Store) Judge(predictionID, outcome, note string) (*Prediction, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}

	p := findPrediction(doc, predictionID)
	if p == nil {
		return nil, fmt.Errorf("prediction %s not found", predictionID)
	}
	// Terminality check immediately before the write: the resolver and the
	// verifier must never overwrite each other's outcome.
	if !p.Open() {
		return nil, fmt.Errorf("prediction %s already resolved as %q", predictionID, p.Outcome)
	}

	score, err := BrierScore(p.Scenarios, outcome)
	if err != nil {
		return nil, fmt.Errorf("scoring %s: %w", predictionID, err)
	}

	now := s.now().UTC()
	p.Status = StatusResolved
	p.Outcome = outcome
	p.ResolvedAt = &now
	p.BrierScore = &score
	p.ResolutionNote = note

	if err := s.save(doc); err != nil {
		return nil, err
	}

	slog.Info("prediction resolved", "prediction_id", predictionID,
		"outcome", outcome, "brier_score", score)
	return p, nil
}

func findPrediction(doc *Document, id string) *Prediction {
	for _, p := range doc.Predictions {
		if p.PredictionID == id {
			return p
		}
	}
	return nil
}
