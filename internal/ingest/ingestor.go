package ingest

import (
	"context"
	"log/slog"
	"math"
	"time"

	"foresight/internal/config"
	"foresight/internal/market"
	"foresight/internal/source"
)

// Ingestor polls each configured source, normalizes active markets into the
// canonical store, and flags large day-over-day probability swings.
type Ingestor struct {
	sources []source.Source
	store   *market.Store
	cfg     config.IngestConfig
	now     func() time.Time
}

func NewIngestor(sources []source.Source, store *market.Store, cfg config.IngestConfig) *Ingestor {
	return &Ingestor{sources: sources, store: store, cfg: cfg, now: time.Now}
}

// Run processes every source in sequence. Sources are isolated: a failure in
// one is logged and skipped, the next still runs, and the failed source is
// simply retried on the next scheduled run.
func (i *Ingestor) Run(ctx context.Context) error {
	today := i.now().UTC().Format("2006-01-02")

	for _, src := range i.sources {
		if err := i.runSource(ctx, src, today); err != nil {
			slog.Error("source ingest failed, skipping for this run",
				"source", src.Name(), "error", err)
			continue
		}
	}

	i.refreshLinkedResolutions(ctx)
	return nil
}

func (i *Ingestor) runSource(ctx context.Context, src source.Source, today string) error {
	quotes, err := src.FetchQuotes(ctx)
	if err != nil {
		return err
	}

	saved, flagged := 0, 0
	for _, q := range quotes {
		id, err := i.store.UpsertMarket(q.Market)
		if err != nil {
			slog.Warn("failed to upsert market",
				"source", src.Name(), "external_id", q.Market.ExternalID, "error", err)
			continue
		}

		// Prior snapshot is the most recent one strictly before today; gaps
		// between crawl days are tolerated.
		prior, err := i.store.PriorSnapshot(id, today)
		if err != nil {
			slog.Warn("failed to read prior snapshot", "market", id, "error", err)
			continue
		}

		if err := i.store.UpsertSnapshot(market.Snapshot{
			MarketID: id,
			Date:     today,
			YesProb:  q.YesProb,
			NoProb:   q.NoProb,
			Volume:   q.Volume,
		}); err != nil {
			slog.Warn("failed to snapshot market", "market", id, "error", err)
			continue
		}
		saved++

		if prior != nil {
			changePct := (q.YesProb - prior.YesProb) * 100
			if math.Abs(changePct) >= i.cfg.NewsEventThresholdPct {
				ev := market.NewsEvent{
					MarketID:  id,
					EventDate: today,
					PrevProb:  prior.YesProb,
					CurrProb:  q.YesProb,
					ChangePct: math.Round(changePct*10) / 10,
					Headline:  q.Market.Question,
				}
				if err := i.store.InsertNewsEvent(ev); err != nil {
					slog.Warn("failed to insert news event", "market", id, "error", err)
				} else {
					flagged++
				}
			}
		}
	}

	slog.Info("source ingest complete",
		"source", src.Name(), "snapshots", saved, "news_events", flagged)
	return nil
}

// refreshLinkedResolutions asks each source for the final state of linked
// markets that have dropped out of the active listings. Per-item failures are
// logged and skipped.
func (i *Ingestor) refreshLinkedResolutions(ctx context.Context) {
	links, err := i.store.AllLinks()
	if err != nil {
		slog.Error("failed to list links for resolution refresh", "error", err)
		return
	}

	bySource := make(map[string]source.Source, len(i.sources))
	for _, src := range i.sources {
		bySource[src.Name()] = src
	}

	refreshed := 0
	for _, l := range links {
		m, err := i.store.MarketByID(l.MarketID)
		if err != nil || m == nil {
			slog.Warn("linked market missing", "market", l.MarketID, "error", err)
			continue
		}
		if m.Resolved {
			continue
		}

		src, ok := bySource[m.Source]
		if !ok {
			continue
		}

		res, err := src.FetchResolution(ctx, m.ExternalID)
		if err != nil {
			slog.Warn("resolution refresh failed",
				"source", m.Source, "external_id", m.ExternalID, "error", err)
			continue
		}
		if res.Resolved {
			if err := i.store.SetResolution(m.ID, res.Outcome); err != nil {
				slog.Warn("failed to record resolution", "market", m.ID, "error", err)
				continue
			}
			slog.Info("linked market resolved by source",
				"market", m.ID, "question", m.Question, "outcome", res.Outcome)
			refreshed++
		}
	}

	if refreshed > 0 {
		slog.Info("resolution refresh complete", "resolved", refreshed)
	}
}
