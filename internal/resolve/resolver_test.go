package resolve

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"foresight/internal/config"
	"foresight/internal/db"
	"foresight/internal/market"
	"foresight/internal/prediction"
)

type fakeGen struct {
	resp string
	err  error
}

func (f *fakeGen) Generate(_ context.Context, _ string) (string, error) {
	return f.resp, f.err
}

type memoNotifier struct {
	msgs []string
}

func (m *memoNotifier) Push(_ context.Context, text string) error {
	m.msgs = append(m.msgs, text)
	return nil
}

type fixture struct {
	resolver    *Resolver
	predictions *prediction.Store
	markets     *market.Store
	notifier    *memoNotifier
	gen         *fakeGen
	seq         int
}

func newFixture(t *testing.T, dryRun bool) *fixture {
	t.Helper()

	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.Migrate(conn); err != nil {
		t.Fatal(err)
	}

	predictions := prediction.NewStore(filepath.Join(t.TempDir(), "prediction_db.json"), "NP")
	markets := market.NewStore(conn)
	gen := &fakeGen{}
	notifier := &memoNotifier{}

	r := New(predictions, markets, gen, notifier, config.DefaultConfig().Resolver, dryRun)
	r.now = func() time.Time { return time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC) }

	return &fixture{resolver: r, predictions: predictions, markets: markets, notifier: notifier, gen: gen}
}

// linkedPrediction records one open prediction wired to one market with a
// current snapshot. Scenarios are 0.30 optimistic / 0.50 base / 0.20
// pessimistic, so resolving pessimistic scores 0.3267.
func (f *fixture) linkedPrediction(t *testing.T, yesProb float64, closeDate string,
	resolved bool, resolution string, dir market.Direction) string {
	t.Helper()

	f.seq++
	id, _, err := f.predictions.Record(prediction.Forecast{
		ArticleID: fmt.Sprintf("a-%d", f.seq),
		Title:     "Fed holds rates through summer",
		Scenarios: []prediction.ForecastScenario{
			{Label: prediction.LabelOptimistic, Probability: "30%"},
			{Label: prediction.LabelBase, Probability: "50%"},
			{Label: prediction.LabelPessimistic, Probability: "20%"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	marketID, err := f.markets.UpsertMarket(market.Market{
		Source:     "polymarket",
		ExternalID: "m-" + id,
		Question:   "Will the Fed hike before September?",
		CloseDate:  closeDate,
		Resolved:   resolved,
		Resolution: resolution,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !resolved {
		err = f.markets.UpsertSnapshot(market.Snapshot{
			MarketID: marketID,
			Date:     "2026-02-21",
			YesProb:  yesProb,
			NoProb:   1 - yesProb,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	err = f.markets.AddLink(market.Link{PredictionID: id, MarketID: marketID, Direction: dir})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func (f *fixture) status(t *testing.T, id string) *prediction.Prediction {
	t.Helper()
	doc, err := f.predictions.Load()
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range doc.Predictions {
		if p.PredictionID == id {
			return p
		}
	}
	t.Fatalf("prediction %s not found", id)
	return nil
}

func TestRun_AutoResolvesExtremePrice(t *testing.T) {
	f := newFixture(t, false)
	id := f.linkedPrediction(t, 0.97, "2026-06-17", false, "", market.Pessimistic)

	sum, err := f.resolver.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Resolved != 1 {
		t.Fatalf("expected 1 resolved, got %+v", sum)
	}

	p := f.status(t, id)
	if p.Outcome != prediction.LabelPessimistic {
		t.Errorf("expected pessimistic outcome, got %s", p.Outcome)
	}
	if p.BrierScore == nil || *p.BrierScore != 0.3267 {
		t.Errorf("expected brier 0.3267, got %v", p.BrierScore)
	}
	if len(f.notifier.msgs) != 1 || !strings.Contains(f.notifier.msgs[0], "RESOLVED") {
		t.Errorf("expected one resolution notification, got %v", f.notifier.msgs)
	}
}

func TestRun_SourceResolutionMapsDirection(t *testing.T) {
	f := newFixture(t, false)
	id := f.linkedPrediction(t, 0, "2026-01-15", true, "NO", market.Pessimistic)

	if _, err := f.resolver.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	p := f.status(t, id)
	if p.Outcome != prediction.LabelOptimistic {
		t.Errorf("market NO with pessimistic direction should resolve optimistic, got %s", p.Outcome)
	}
}

func TestRun_DeadlinePassedMidRangeResolvesBase(t *testing.T) {
	f := newFixture(t, false)
	id := f.linkedPrediction(t, 0.50, "2026-01-15", false, "", market.Pessimistic)

	if _, err := f.resolver.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	p := f.status(t, id)
	if p.Outcome != prediction.LabelBase {
		t.Errorf("expected base outcome, got %s", p.Outcome)
	}
	if !strings.Contains(p.ResolutionNote, "deadline") {
		t.Errorf("expected deadline note, got %q", p.ResolutionNote)
	}
}

func TestRun_MidRangeBeforeDeadlineStaysOpen(t *testing.T) {
	f := newFixture(t, false)
	id := f.linkedPrediction(t, 0.45, "2026-06-17", false, "", market.Pessimistic)

	sum, err := f.resolver.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Monitoring != 1 || sum.Resolved != 0 {
		t.Errorf("expected monitoring only, got %+v", sum)
	}
	if p := f.status(t, id); !p.Open() {
		t.Error("prediction should remain open")
	}
	if len(f.notifier.msgs) != 0 {
		t.Errorf("expected no notifications, got %v", f.notifier.msgs)
	}
}

func TestRun_ReviewGapNotifiesAndStaysOpen(t *testing.T) {
	f := newFixture(t, false)
	id := f.linkedPrediction(t, 0.32, "2026-01-15", false, "", market.Pessimistic)

	sum, err := f.resolver.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.ManualReview != 1 || sum.Resolved != 0 {
		t.Errorf("expected one manual review, got %+v", sum)
	}
	if p := f.status(t, id); !p.Open() {
		t.Error("prediction should remain open pending review")
	}
	if len(f.notifier.msgs) != 1 || !strings.Contains(f.notifier.msgs[0], "MANUAL REVIEW") {
		t.Errorf("expected one review notification, got %v", f.notifier.msgs)
	}
}

func TestRun_ConfirmBandAppliesModelVerdict(t *testing.T) {
	f := newFixture(t, false)
	f.gen.resp = "```json\n{\"outcome\": \"YES\", \"reason\": \"filings confirm it\"}\n```"
	id := f.linkedPrediction(t, 0.80, "2026-06-17", false, "", market.Optimistic)

	if _, err := f.resolver.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	p := f.status(t, id)
	if p.Outcome != prediction.LabelOptimistic {
		t.Errorf("confirmed YES with optimistic direction should resolve optimistic, got %s", p.Outcome)
	}
	if !strings.Contains(p.ResolutionNote, "filings confirm it") {
		t.Errorf("expected model reason in note, got %q", p.ResolutionNote)
	}
}

func TestRun_InconclusiveConfirmationLeavesOpen(t *testing.T) {
	f := newFixture(t, false)
	f.gen.resp = "I am not sure, it could go either way."
	id := f.linkedPrediction(t, 0.80, "2026-06-17", false, "", market.Optimistic)

	sum, err := f.resolver.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Inconclusive != 1 || sum.Resolved != 0 {
		t.Errorf("expected one inconclusive, got %+v", sum)
	}
	if p := f.status(t, id); !p.Open() {
		t.Error("prediction should remain open after inconclusive confirmation")
	}
}

func TestRun_MissingSnapshotSkips(t *testing.T) {
	f := newFixture(t, false)

	id, _, err := f.predictions.Record(prediction.Forecast{
		ArticleID: "a-nosnap",
		Title:     "No data yet",
		Scenarios: []prediction.ForecastScenario{
			{Label: prediction.LabelBase, Probability: "100%"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	marketID, err := f.markets.UpsertMarket(market.Market{
		Source: "polymarket", ExternalID: "m-nosnap", Question: "q", CloseDate: "2026-01-15",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.markets.AddLink(market.Link{PredictionID: id, MarketID: marketID, Direction: market.Optimistic}); err != nil {
		t.Fatal(err)
	}

	sum, err := f.resolver.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Skipped != 1 || sum.Resolved != 0 {
		t.Errorf("expected skip on missing snapshot, got %+v", sum)
	}
	if p := f.status(t, id); !p.Open() {
		t.Error("prediction should remain open")
	}
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	f := newFixture(t, true)
	id := f.linkedPrediction(t, 0.97, "2026-06-17", false, "", market.Pessimistic)

	sum, err := f.resolver.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Resolved != 1 {
		t.Errorf("dry run should still report the intended resolution, got %+v", sum)
	}
	if p := f.status(t, id); !p.Open() {
		t.Error("dry run must not resolve anything")
	}
	if len(f.notifier.msgs) != 0 {
		t.Errorf("dry run must not notify, got %v", f.notifier.msgs)
	}
}
