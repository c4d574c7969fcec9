package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"foresight/internal/config"
	"foresight/internal/judge"
	"foresight/internal/market"
	"foresight/internal/notify"
	"foresight/internal/prediction"
)

// Resolver walks every open prediction with a market link and applies the
// resolution policy to its latest reading. Each prediction is handled
// independently; a failure on one never aborts the run.
type Resolver struct {
	predictions *prediction.Store
	markets     *market.Store
	gen         judge.Generator
	notifier    notify.Notifier
	cfg         config.ResolverConfig
	dryRun      bool
	now         func() time.Time
}

func New(predictions *prediction.Store, markets *market.Store, gen judge.Generator,
	notifier notify.Notifier, cfg config.ResolverConfig, dryRun bool) *Resolver {
	return &Resolver{
		predictions: predictions,
		markets:     markets,
		gen:         gen,
		notifier:    notifier,
		cfg:         cfg,
		dryRun:      dryRun,
		now:         time.Now,
	}
}

// Summary counts what one run did.
type Summary struct {
	Checked      int
	Resolved     int
	Monitoring   int
	ManualReview int
	Inconclusive int
	Skipped      int
}

// Run applies the policy to every open, linked prediction.
func (r *Resolver) Run(ctx context.Context) (*Summary, error) {
	doc, err := r.predictions.Load()
	if err != nil {
		return nil, err
	}

	today := r.now().UTC().Format("2006-01-02")
	sum := &Summary{}

	for _, p := range doc.Predictions {
		if !p.Open() {
			continue
		}

		link, err := r.markets.LinkForPrediction(p.PredictionID)
		if err != nil {
			slog.Error("reading link", "prediction_id", p.PredictionID, "error", err)
			sum.Skipped++
			continue
		}
		if link == nil {
			continue
		}
		sum.Checked++

		if err := r.resolveOne(ctx, p, link, today, sum); err != nil {
			slog.Error("resolving prediction", "prediction_id", p.PredictionID, "error", err)
			sum.Skipped++
		}
	}

	slog.Info("resolution run complete", "checked", sum.Checked, "resolved", sum.Resolved,
		"monitoring", sum.Monitoring, "manual_review", sum.ManualReview,
		"inconclusive", sum.Inconclusive, "skipped", sum.Skipped, "dry_run", r.dryRun)
	return sum, nil
}

func (r *Resolver) resolveOne(ctx context.Context, p *prediction.Prediction,
	link *market.Link, today string, sum *Summary) error {

	m, err := r.markets.MarketByID(link.MarketID)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("linked market %d does not exist", link.MarketID)
	}

	snap, err := r.markets.LatestSnapshot(link.MarketID)
	if err != nil {
		return err
	}
	if snap == nil && !m.Resolved {
		slog.Warn("linked market has no snapshot yet, skipping",
			"prediction_id", p.PredictionID, "market_id", m.ID, "question", m.Question)
		sum.Skipped++
		return nil
	}

	var yesProb float64
	if snap != nil {
		yesProb = snap.YesProb
	}
	deadlinePassed := m.CloseDate != "" && m.CloseDate < today

	action := Decide(m.Resolved, yesProb, deadlinePassed, r.cfg)
	slog.Debug("policy decision", "prediction_id", p.PredictionID,
		"action", action.String(), "yes_prob", yesProb, "deadline_passed", deadlinePassed)

	switch action {
	case ActionMonitor:
		sum.Monitoring++
		return nil

	case ActionResolveMarket:
		outcome := OutcomeLabel(m.Resolution, link.Direction)
		if outcome == "" {
			return fmt.Errorf("market %d resolved with unmapped outcome %q", m.ID, m.Resolution)
		}
		note := fmt.Sprintf("market %s/%s resolved %s", m.Source, m.ExternalID, m.Resolution)
		return r.resolve(ctx, p, outcome, note, sum)

	case ActionResolveYes, ActionResolveNo:
		side := "YES"
		if action == ActionResolveNo {
			side = "NO"
		}
		outcome := OutcomeLabel(side, link.Direction)
		note := fmt.Sprintf("market at %.2f, past the auto-resolve threshold", yesProb)
		return r.resolve(ctx, p, outcome, note, sum)

	case ActionConfirmYes, ActionConfirmNo:
		leaning := "YES"
		if action == ActionConfirmNo {
			leaning = "NO"
		}
		if r.dryRun {
			slog.Info("dry run: would request model confirmation",
				"prediction_id", p.PredictionID, "leaning", leaning, "yes_prob", yesProb)
			sum.Inconclusive++
			return nil
		}
		side, reason, ok := r.confirm(ctx, m, yesProb, leaning)
		if !ok {
			sum.Inconclusive++
			return nil
		}
		outcome := OutcomeLabel(side, link.Direction)
		note := fmt.Sprintf("market at %.2f, model confirmed %s: %s", yesProb, side, reason)
		return r.resolve(ctx, p, outcome, note, sum)

	case ActionResolveBase:
		note := fmt.Sprintf("deadline %s passed with market at %.2f, no decisive outcome", m.CloseDate, yesProb)
		return r.resolve(ctx, p, prediction.LabelBase, note, sum)

	case ActionManualReview:
		sum.ManualReview++
		if r.dryRun {
			slog.Info("dry run: would flag for manual review", "prediction_id", p.PredictionID)
			return nil
		}
		text := fmt.Sprintf("MANUAL REVIEW %s\n%s\nmarket at %.0f%%, direction %s, closed %s",
			p.PredictionID, m.Question, yesProb*100, link.Direction, m.CloseDate)
		notify.BestEffort(ctx, r.notifier, text)
		return nil
	}
	return nil
}

// resolve writes the outcome through the prediction store and announces it.
// The store re-checks that the prediction is still open before writing.
func (r *Resolver) resolve(ctx context.Context, p *prediction.Prediction,
	outcome, note string, sum *Summary) error {

	if r.dryRun {
		slog.Info("dry run: would resolve", "prediction_id", p.PredictionID,
			"outcome", outcome, "note", note)
		sum.Resolved++
		return nil
	}

	resolved, err := r.predictions.Judge(p.PredictionID, outcome, note)
	if err != nil {
		return err
	}
	sum.Resolved++

	text := fmt.Sprintf("RESOLVED %s as %s (brier %.4f)\n%s\n%s",
		resolved.PredictionID, outcome, *resolved.BrierScore, resolved.Title, note)
	notify.BestEffort(ctx, r.notifier, text)
	return nil
}

type confirmation struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason"`
}

// confirm asks the model to confirm a leaning price band. Anything other than
// a clean YES or NO answer is inconclusive and leaves the prediction open.
func (r *Resolver) confirm(ctx context.Context, m *market.Market, yesProb float64, leaning string) (string, string, bool) {
	prompt := fmt.Sprintf(`You are verifying the outcome of a binary prediction market question.

Question: %s
Current YES probability: %.2f
Market close date: %s

The price suggests the market will settle %s. Based on the question and the
current price, state the final binary outcome.

Respond with JSON only, no other text:
{"outcome": "YES" or "NO", "reason": "one short sentence"}`,
		m.Question, yesProb, m.CloseDate, leaning)

	raw, err := r.gen.Generate(ctx, prompt)
	if err != nil {
		slog.Warn("confirmation request failed", "market_id", m.ID, "error", err)
		return "", "", false
	}

	var c confirmation
	if err := json.Unmarshal([]byte(judge.ExtractJSON(raw)), &c); err != nil {
		slog.Warn("unparseable confirmation response", "market_id", m.ID, "error", err)
		return "", "", false
	}

	side := strings.ToUpper(strings.TrimSpace(c.Outcome))
	if side != "YES" && side != "NO" {
		slog.Warn("inconclusive confirmation", "market_id", m.ID, "outcome", c.Outcome)
		return "", "", false
	}
	return side, c.Reason, true
}
