package source

import (
	"context"

	"foresight/internal/market"
)

// Quote is one market together with its current probability reading,
// already normalized into the canonical shape.
type Quote struct {
	Market  market.Market
	YesProb float64
	NoProb  float64
	Volume  float64
}

// Resolution is a source's report on a single market's final state.
type Resolution struct {
	Resolved bool
	Outcome  string // "YES" or "NO" when Resolved
}

// Source is one external prediction-market API. Each source normalizes its
// own field shapes; the ingestor only ever sees Quotes.
type Source interface {
	Name() string
	// FetchQuotes returns the currently active markets with today's probabilities.
	FetchQuotes(ctx context.Context) ([]Quote, error)
	// FetchResolution looks up the final outcome of one market, for refreshing
	// linked markets that have dropped out of the active listings.
	FetchResolution(ctx context.Context, externalID string) (*Resolution, error)
}
