package source

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/jonnyspicer/mango"

	"foresight/internal/market"
)

// Manifold reads open binary markets via the Manifold API. Binary markets
// carry a direct probability field, so normalization is just yes/1-yes.
type Manifold struct {
	client *mango.Client
	limit  int64
}

func NewManifold(client *mango.Client, limit int) *Manifold {
	return &Manifold{client: client, limit: int64(limit)}
}

func (m *Manifold) Name() string { return "manifold" }

func (m *Manifold) FetchQuotes(_ context.Context) ([]Quote, error) {
	markets, err := m.client.SearchMarkets(mango.SearchMarketsRequest{
		Filter:       "open",
		ContractType: "BINARY",
		Sort:         "liquidity",
		Limit:        m.limit,
	})
	if err != nil {
		return nil, fmt.Errorf("searching manifold markets: %w", err)
	}
	if markets == nil {
		return nil, nil
	}

	quotes := make([]Quote, 0, len(*markets))
	for _, fm := range *markets {
		if string(fm.OutcomeType) != "BINARY" {
			continue
		}
		yes := fm.Probability
		if yes < 0 || yes > 1 {
			continue
		}

		closeDate := ""
		if fm.CloseTime > 0 {
			closeDate = time.UnixMilli(fm.CloseTime).UTC().Format("2006-01-02")
		}

		quotes = append(quotes, Quote{
			Market: market.Market{
				Source:     "manifold",
				ExternalID: fm.Id,
				Question:   fm.Question,
				EventTitle: fm.Question,
				MarketSlug: path.Base(fm.Url),
				CloseDate:  closeDate,
				Resolved:   fm.IsResolved,
				Resolution: fm.Resolution,
			},
			YesProb: yes,
			NoProb:  1 - yes,
			Volume:  fm.Volume,
		})
	}
	return quotes, nil
}

func (m *Manifold) FetchResolution(_ context.Context, externalID string) (*Resolution, error) {
	fm, err := m.client.GetMarketByID(externalID)
	if err != nil {
		return nil, fmt.Errorf("getting manifold market %s: %w", externalID, err)
	}
	if fm == nil {
		return &Resolution{}, nil
	}

	if fm.IsResolved && (fm.Resolution == "YES" || fm.Resolution == "NO") {
		return &Resolution{Resolved: true, Outcome: fm.Resolution}, nil
	}
	return &Resolution{}, nil
}
