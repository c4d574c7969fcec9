package market

import (
	"testing"

	"foresight/internal/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.Migrate(database); err != nil {
		t.Fatal(err)
	}
	return NewStore(database)
}

func TestUpsertMarket_SameIdentityYieldsSameRow(t *testing.T) {
	store := newTestStore(t)

	id1, err := store.UpsertMarket(Market{
		Source: "polymarket", ExternalID: "ext-1", Question: "Will X happen?",
	})
	if err != nil {
		t.Fatal(err)
	}

	id2, err := store.UpsertMarket(Market{
		Source: "polymarket", ExternalID: "ext-1", Question: "Will X happen?",
		EventTitle: "updated title",
	})
	if err != nil {
		t.Fatal(err)
	}

	if id1 != id2 {
		t.Errorf("expected same row id for same (source, external_id), got %d and %d", id1, id2)
	}

	m, err := store.MarketByID(id1)
	if err != nil {
		t.Fatal(err)
	}
	if m.EventTitle != "updated title" {
		t.Errorf("expected event title refreshed on upsert, got %q", m.EventTitle)
	}
}

func TestUpsertSnapshot_SameDayOverwrites(t *testing.T) {
	store := newTestStore(t)

	id, err := store.UpsertMarket(Market{Source: "manifold", ExternalID: "m-1", Question: "Q?"})
	if err != nil {
		t.Fatal(err)
	}

	if err := store.UpsertSnapshot(Snapshot{MarketID: id, Date: "2026-02-21", YesProb: 0.40, NoProb: 0.60, Volume: 100}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertSnapshot(Snapshot{MarketID: id, Date: "2026-02-21", YesProb: 0.55, NoProb: 0.45, Volume: 150}); err != nil {
		t.Fatal(err)
	}

	snap, err := store.LatestSnapshot(id)
	if err != nil {
		t.Fatal(err)
	}
	if snap == nil {
		t.Fatal("expected a snapshot")
	}
	if snap.YesProb != 0.55 {
		t.Errorf("expected second run to overwrite, got yes_prob=%v", snap.YesProb)
	}

	// Exactly one row must exist.
	counts, err := store.Counts()
	if err != nil {
		t.Fatal(err)
	}
	if counts.Snapshots != 1 {
		t.Errorf("expected 1 snapshot row, got %d", counts.Snapshots)
	}
}

func TestPriorSnapshot_ToleratesGaps(t *testing.T) {
	store := newTestStore(t)

	id, err := store.UpsertMarket(Market{Source: "manifold", ExternalID: "m-2", Question: "Q?"})
	if err != nil {
		t.Fatal(err)
	}

	// Snapshot five days before today's: gap is fine.
	if err := store.UpsertSnapshot(Snapshot{MarketID: id, Date: "2026-02-16", YesProb: 0.40, NoProb: 0.60}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertSnapshot(Snapshot{MarketID: id, Date: "2026-02-21", YesProb: 0.60, NoProb: 0.40}); err != nil {
		t.Fatal(err)
	}

	prior, err := store.PriorSnapshot(id, "2026-02-21")
	if err != nil {
		t.Fatal(err)
	}
	if prior == nil {
		t.Fatal("expected a prior snapshot")
	}
	if prior.Date != "2026-02-16" {
		t.Errorf("expected prior snapshot from 2026-02-16, got %s", prior.Date)
	}
}

func TestInsertNewsEvent_Idempotent(t *testing.T) {
	store := newTestStore(t)

	id, err := store.UpsertMarket(Market{Source: "polymarket", ExternalID: "ext-3", Question: "Q?"})
	if err != nil {
		t.Fatal(err)
	}

	ev := NewsEvent{MarketID: id, EventDate: "2026-02-21", PrevProb: 0.40, CurrProb: 0.60, ChangePct: 20.0}
	if err := store.InsertNewsEvent(ev); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertNewsEvent(ev); err != nil {
		t.Fatal(err)
	}

	n, err := store.NewsEventCount(id)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 news event after rerun, got %d", n)
	}
}

func TestAddLink_RejectsUnknownMarketAndBadDirection(t *testing.T) {
	store := newTestStore(t)

	err := store.AddLink(Link{PredictionID: "NP-2026-0001", MarketID: 999, Direction: Pessimistic})
	if err == nil {
		t.Error("expected error for unknown market")
	}

	id, err := store.UpsertMarket(Market{Source: "polymarket", ExternalID: "ext-4", Question: "Q?"})
	if err != nil {
		t.Fatal(err)
	}

	err = store.AddLink(Link{PredictionID: "NP-2026-0001", MarketID: id, Direction: "sideways"})
	if err == nil {
		t.Error("expected error for invalid direction")
	}

	if err := store.AddLink(Link{PredictionID: "NP-2026-0001", MarketID: id, Direction: Optimistic}); err != nil {
		t.Fatal(err)
	}

	link, err := store.LinkForPrediction("NP-2026-0001")
	if err != nil {
		t.Fatal(err)
	}
	if link == nil {
		t.Fatal("expected link")
	}
	if link.Direction != Optimistic {
		t.Errorf("expected optimistic direction, got %s", link.Direction)
	}
	if link.ExternalMarketID != "ext-4" {
		t.Errorf("expected external market id copied onto link, got %q", link.ExternalMarketID)
	}
}

func TestSearch_MatchesQuestionAndEventTitle(t *testing.T) {
	store := newTestStore(t)

	id, err := store.UpsertMarket(Market{
		Source: "polymarket", ExternalID: "ext-5",
		Question: "Will the Fed cut rates in March?", EventTitle: "Fed decisions 2026",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpsertMarket(Market{
		Source: "manifold", ExternalID: "m-9", Question: "Unrelated question",
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertSnapshot(Snapshot{MarketID: id, Date: "2026-02-21", YesProb: 0.72, NoProb: 0.28}); err != nil {
		t.Fatal(err)
	}

	results, err := store.Search("Fed", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !results[0].HasSnapshot || results[0].YesProb != 0.72 {
		t.Errorf("expected latest snapshot attached, got %+v", results[0])
	}
}
