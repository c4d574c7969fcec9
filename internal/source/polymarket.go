package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"foresight/internal/config"
	"foresight/internal/market"
)

// Polymarket reads active events from the Gamma API. Probabilities arrive as
// parallel outcome/price string arrays that have to be matched up by label.
type Polymarket struct {
	baseURL     string
	maxEvents   int
	client      *http.Client
	rateLimiter *rate.Limiter
}

func NewPolymarket(cfg config.IngestConfig) *Polymarket {
	return &Polymarket{
		baseURL:   cfg.PolymarketBaseURL,
		maxEvents: cfg.MaxMarketsPerSource,
		client: &http.Client{
			Timeout: cfg.HTTPTimeout.Duration,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

func (p *Polymarket) Name() string { return "polymarket" }

type gammaEvent struct {
	ID      json.Number   `json:"id"`
	Title   string        `json:"title"`
	Slug    string        `json:"slug"`
	EndDate string        `json:"endDate"`
	Tags    []gammaTag    `json:"tags"`
	Markets []gammaMarket `json:"markets"`
}

type gammaTag struct {
	Slug string `json:"slug"`
}

type gammaMarket struct {
	ID            json.Number `json:"id"`
	Question      string      `json:"question"`
	Slug          string      `json:"slug"`
	Outcomes      string      `json:"outcomes"`      // JSON-encoded string array
	OutcomePrices string      `json:"outcomePrices"` // JSON-encoded string array
	VolumeNum     float64     `json:"volumeNum"`
	Closed        bool        `json:"closed"`
	EndDate       string      `json:"endDate"`
}

func (p *Polymarket) FetchQuotes(ctx context.Context) ([]Quote, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(p.maxEvents))
	q.Set("active", "true")
	q.Set("closed", "false")

	var events []gammaEvent
	if err := p.getJSON(ctx, "/events?"+q.Encode(), &events); err != nil {
		return nil, fmt.Errorf("fetching polymarket events: %w", err)
	}

	var quotes []Quote
	for _, ev := range events {
		closeDate := truncateDate(ev.EndDate)
		genres := make([]string, 0, len(ev.Tags))
		for _, t := range ev.Tags {
			if t.Slug != "" {
				genres = append(genres, t.Slug)
			}
		}

		for _, m := range ev.Markets {
			yes, no, ok := parseOutcomePrices(m.Outcomes, m.OutcomePrices)
			if !ok {
				continue
			}

			md := truncateDate(m.EndDate)
			if md == "" {
				md = closeDate
			}

			quotes = append(quotes, Quote{
				Market: market.Market{
					Source:     "polymarket",
					ExternalID: m.ID.String(),
					EventID:    ev.ID.String(),
					Question:   m.Question,
					EventTitle: ev.Title,
					MarketSlug: m.Slug,
					EventSlug:  ev.Slug,
					Genres:     genres,
					CloseDate:  md,
				},
				YesProb: yes,
				NoProb:  no,
				Volume:  m.VolumeNum,
			})
		}
	}
	return quotes, nil
}

// FetchResolution fetches one market directly. A closed market pinned at an
// extreme price is treated as finally resolved on that side.
func (p *Polymarket) FetchResolution(ctx context.Context, externalID string) (*Resolution, error) {
	var m gammaMarket
	if err := p.getJSON(ctx, "/markets/"+url.PathEscape(externalID), &m); err != nil {
		return nil, fmt.Errorf("fetching polymarket market %s: %w", externalID, err)
	}

	if !m.Closed {
		return &Resolution{}, nil
	}

	yes, _, ok := parseOutcomePrices(m.Outcomes, m.OutcomePrices)
	if !ok {
		return &Resolution{}, nil
	}

	switch {
	case yes >= 0.99:
		return &Resolution{Resolved: true, Outcome: "YES"}, nil
	case yes <= 0.01:
		return &Resolution{Resolved: true, Outcome: "NO"}, nil
	default:
		return &Resolution{}, nil
	}
}

func (p *Polymarket) getJSON(ctx context.Context, path string, out any) error {
	if err := p.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// parseOutcomePrices matches the Yes/No labels in outcomes against the
// parallel prices array. Both arrive as JSON-encoded string arrays, e.g.
// outcomes `["Yes","No"]` and prices `["0.72","0.28"]`.
func parseOutcomePrices(outcomesRaw, pricesRaw string) (yes, no float64, ok bool) {
	var outcomes, prices []string
	if err := json.Unmarshal([]byte(outcomesRaw), &outcomes); err != nil {
		return 0, 0, false
	}
	if err := json.Unmarshal([]byte(pricesRaw), &prices); err != nil {
		return 0, 0, false
	}
	if len(outcomes) != len(prices) {
		return 0, 0, false
	}

	var haveYes, haveNo bool
	for i, outcome := range outcomes {
		v, err := strconv.ParseFloat(prices[i], 64)
		if err != nil || v < 0 || v > 1 {
			continue
		}
		switch strings.ToLower(outcome) {
		case "yes":
			yes, haveYes = v, true
		case "no":
			no, haveNo = v, true
		}
	}

	if haveYes && !haveNo {
		no, haveNo = 1-yes, true
	}
	return yes, no, haveYes && haveNo
}

func truncateDate(iso string) string {
	if len(iso) >= 10 {
		return iso[:10]
	}
	return ""
}
