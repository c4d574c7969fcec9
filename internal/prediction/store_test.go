package prediction

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "prediction_db.json"), "NP")
	s.now = func() time.Time { return time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC) }
	return s
}

func sampleForecast(articleID string) Forecast {
	return Forecast{
		ArticleID:    articleID,
		Title:        "Fed holds rates through summer",
		DynamicsTags: "path-dependency",
		Scenarios: []ForecastScenario{
			{Label: LabelOptimistic, Probability: "30%", Narrative: "Cuts begin in June"},
			{Label: LabelBase, Probability: "0.50", Narrative: "Holds through Q3"},
			{Label: LabelPessimistic, Probability: "20", Narrative: "Hike resumes"},
		},
		Triggers: []Trigger{{Name: "June FOMC", Date: "2026-06-17"}},
	}
}

func TestRecord_NormalizesProbabilityForms(t *testing.T) {
	s := newTestStore(t)

	id, created, err := s.Record(sampleForecast("a-1"))
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("expected created=true for first record")
	}
	if id != "NP-2026-0001" {
		t.Errorf("expected NP-2026-0001, got %s", id)
	}

	doc, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	p := doc.Predictions[0]
	want := []float64{0.30, 0.50, 0.20}
	for i, sc := range p.Scenarios {
		if sc.Probability != want[i] {
			t.Errorf("scenario %d: probability %v, want %v", i, sc.Probability, want[i])
		}
	}
	if len(p.ProbabilityHistory) != 1 {
		t.Errorf("expected initial history entry, got %d", len(p.ProbabilityHistory))
	}
}

func TestRecord_IdempotentPerArticle(t *testing.T) {
	s := newTestStore(t)

	id1, _, err := s.Record(sampleForecast("a-1"))
	if err != nil {
		t.Fatal(err)
	}
	id2, created, err := s.Record(sampleForecast("a-1"))
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("expected created=false for duplicate article")
	}
	if id1 != id2 {
		t.Errorf("expected same id, got %s and %s", id1, id2)
	}

	doc, _ := s.Load()
	if len(doc.Predictions) != 1 {
		t.Errorf("expected 1 prediction, got %d", len(doc.Predictions))
	}
}

func TestRecord_RejectsBadProbability(t *testing.T) {
	s := newTestStore(t)
	f := sampleForecast("a-1")
	f.Scenarios[1].Probability = "around half"
	if _, _, err := s.Record(f); err == nil {
		t.Error("expected parse error, not a silent zero")
	}
}

func TestRecord_SequentialYearScopedIDs(t *testing.T) {
	s := newTestStore(t)

	for i, article := range []string{"a-1", "a-2", "a-3"} {
		id, _, err := s.Record(sampleForecast(article))
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"NP-2026-0001", "NP-2026-0002", "NP-2026-0003"}[i]
		if id != want {
			t.Errorf("expected %s, got %s", want, id)
		}
	}
}

func TestUpdateProbability_AppendsHistoryAndOverwrites(t *testing.T) {
	s := newTestStore(t)
	id, _, err := s.Record(sampleForecast("a-1"))
	if err != nil {
		t.Fatal(err)
	}

	err = s.UpdateProbability(id, Revision{
		ArticleID: "a-2",
		Reason:    "market moved after FOMC minutes",
		Scenarios: []ForecastScenario{
			{Label: LabelOptimistic, Probability: "20%"},
			{Label: LabelBase, Probability: "45%"},
			{Label: LabelPessimistic, Probability: "35%"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	doc, _ := s.Load()
	p := doc.Predictions[0]
	if p.Scenarios[2].Probability != 0.35 {
		t.Errorf("expected pessimistic overwritten to 0.35, got %v", p.Scenarios[2].Probability)
	}
	if len(p.ProbabilityHistory) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(p.ProbabilityHistory))
	}
	last := p.ProbabilityHistory[1]
	if last.SourceArticleID != "a-2" || last.Reason == "" {
		t.Errorf("history entry missing attribution: %+v", last)
	}
}

func TestUpdateProbability_RejectsResolved(t *testing.T) {
	s := newTestStore(t)
	id, _, err := s.Record(sampleForecast("a-1"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Judge(id, LabelBase, ""); err != nil {
		t.Fatal(err)
	}

	err = s.UpdateProbability(id, Revision{
		ArticleID: "a-2",
		Scenarios: []ForecastScenario{{Label: LabelBase, Probability: "90%"}},
	})
	if err == nil {
		t.Error("expected rejection on resolved prediction")
	}
}

func TestJudge_ComputesBrierOnce(t *testing.T) {
	s := newTestStore(t)
	id, _, err := s.Record(sampleForecast("a-1"))
	if err != nil {
		t.Fatal(err)
	}

	p, err := s.Judge(id, LabelPessimistic, "market resolved YES")
	if err != nil {
		t.Fatal(err)
	}
	if p.BrierScore == nil || *p.BrierScore != 0.3267 {
		t.Errorf("expected brier 0.3267, got %v", p.BrierScore)
	}
	if p.Status != StatusResolved {
		t.Errorf("expected resolved status, got %s", p.Status)
	}
}

func TestJudge_Terminality(t *testing.T) {
	s := newTestStore(t)
	id, _, err := s.Record(sampleForecast("a-1"))
	if err != nil {
		t.Fatal(err)
	}

	first, err := s.Judge(id, LabelPessimistic, "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Judge(id, LabelOptimistic, ""); err == nil {
		t.Error("expected second judge to be rejected")
	}

	doc, _ := s.Load()
	p := doc.Predictions[0]
	if p.Outcome != LabelPessimistic || *p.BrierScore != *first.BrierScore {
		t.Errorf("outcome or score changed after second judge: %+v", p)
	}
}

func TestStats_Recomputed(t *testing.T) {
	s := newTestStore(t)
	id1, _, _ := s.Record(sampleForecast("a-1"))
	if _, _, err := s.Record(sampleForecast("a-2")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Judge(id1, LabelBase, ""); err != nil {
		t.Fatal(err)
	}

	doc, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if doc.Stats.Total != 2 || doc.Stats.Resolved != 1 || doc.Stats.Open != 1 {
		t.Errorf("unexpected stats: %+v", doc.Stats)
	}
	if doc.Stats.AvgBrierScore == nil {
		t.Error("expected avg brier score after one resolution")
	}
}
