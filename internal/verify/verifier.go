package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"foresight/internal/config"
	"foresight/internal/judge"
	"foresight/internal/notify"
	"foresight/internal/prediction"
)

// Verifier asks the model to check open predictions against what it knows.
// Verdicts are proposals by default; only an explicit auto-apply run with a
// confident, concrete verdict resolves anything.
type Verifier struct {
	predictions *prediction.Store
	gen         judge.Generator
	notifier    notify.Notifier
	cfg         config.VerifierConfig
	autoApply   bool
	checkAll    bool
	dryRun      bool
	now         func() time.Time
}

func New(predictions *prediction.Store, gen judge.Generator, notifier notify.Notifier,
	cfg config.VerifierConfig, autoApply, checkAll, dryRun bool) *Verifier {
	return &Verifier{
		predictions: predictions,
		gen:         gen,
		notifier:    notifier,
		cfg:         cfg,
		autoApply:   autoApply,
		checkAll:    checkAll,
		dryRun:      dryRun,
		now:         time.Now,
	}
}

// Verdict is the response schema the model is asked to fill in.
type Verdict struct {
	Verdict       string   `json:"verdict"`
	Confidence    string   `json:"confidence"`
	Evidence      []string `json:"evidence"`
	Reasoning     string   `json:"reasoning"`
	Status        string   `json:"status"`
	NextCheckDate string   `json:"next_check_date"`
}

// Summary counts what one verification run did.
type Summary struct {
	Open         int
	Targets      int
	Applied      int
	Proposed     int
	StillOpen    int
	Inconclusive int
}

// Run checks every due prediction and sends one consolidated summary. The
// summary goes out even when nothing was due, so a silent day is
// distinguishable from a broken one.
func (v *Verifier) Run(ctx context.Context) (*Summary, error) {
	doc, err := v.predictions.Load()
	if err != nil {
		return nil, err
	}

	today := v.now().UTC()
	sum := &Summary{}
	var lines []string

	for _, p := range doc.Predictions {
		if !p.Open() {
			continue
		}
		sum.Open++
		if !v.checkAll && !v.due(p, today) {
			continue
		}
		sum.Targets++

		line := v.verifyOne(ctx, p, today, sum)
		if line != "" {
			lines = append(lines, line)
		}
	}

	text := v.summaryText(doc, sum, lines)
	if v.dryRun {
		slog.Info("dry run: verification summary", "text", text)
	} else {
		notify.BestEffort(ctx, v.notifier, text)
	}

	slog.Info("verification run complete", "open", sum.Open, "targets", sum.Targets,
		"applied", sum.Applied, "proposed", sum.Proposed,
		"still_open", sum.StillOpen, "inconclusive", sum.Inconclusive)
	return sum, nil
}

// due reports whether a prediction should be checked today: any trigger date
// has passed, or the prediction has gone stale.
func (v *Verifier) due(p *prediction.Prediction, today time.Time) bool {
	for _, tr := range p.Triggers {
		d, err := ParseTriggerDate(tr.Date)
		if err != nil {
			slog.Warn("unparseable trigger date", "prediction_id", p.PredictionID,
				"trigger", tr.Name, "date", tr.Date)
			continue
		}
		if !d.After(today) {
			return true
		}
	}
	staleAfter := time.Duration(v.cfg.StalenessDays) * 24 * time.Hour
	return today.Sub(p.PublishedAt) >= staleAfter
}

func (v *Verifier) verifyOne(ctx context.Context, p *prediction.Prediction,
	today time.Time, sum *Summary) string {

	raw, err := v.gen.Generate(ctx, v.prompt(p, today))
	if err != nil {
		slog.Warn("verification request failed", "prediction_id", p.PredictionID, "error", err)
		sum.Inconclusive++
		return fmt.Sprintf("%s: check failed (%v)", p.PredictionID, err)
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(judge.ExtractJSON(raw)), &verdict); err != nil {
		slog.Warn("unparseable verdict", "prediction_id", p.PredictionID, "error", err)
		sum.Inconclusive++
		return fmt.Sprintf("%s: unparseable verdict", p.PredictionID)
	}

	verdict.Status = strings.ToLower(strings.TrimSpace(verdict.Status))
	verdict.Confidence = strings.ToLower(strings.TrimSpace(verdict.Confidence))

	if verdict.Status == "still_open" {
		sum.StillOpen++
		next := verdict.NextCheckDate
		if next == "" {
			next = "unspecified"
		}
		return fmt.Sprintf("%s: still open, next check %s", p.PredictionID, next)
	}
	if verdict.Status != "resolved" {
		slog.Warn("verdict with unknown status", "prediction_id", p.PredictionID,
			"status", verdict.Status)
		sum.Inconclusive++
		return fmt.Sprintf("%s: unusable verdict status %q", p.PredictionID, verdict.Status)
	}

	label := matchScenario(p, verdict.Verdict)
	if label == "" {
		slog.Warn("verdict names no known scenario", "prediction_id", p.PredictionID,
			"verdict", verdict.Verdict)
		sum.Inconclusive++
		return fmt.Sprintf("%s: verdict %q matches no scenario", p.PredictionID, verdict.Verdict)
	}

	confident := verdict.Confidence == "high" || verdict.Confidence == "medium"
	if v.autoApply && confident && !v.dryRun {
		note := fmt.Sprintf("verified: %s", verdict.Reasoning)
		resolved, err := v.predictions.Judge(p.PredictionID, label, note)
		if err != nil {
			slog.Error("applying verdict", "prediction_id", p.PredictionID, "error", err)
			sum.Inconclusive++
			return fmt.Sprintf("%s: verdict could not be applied (%v)", p.PredictionID, err)
		}
		sum.Applied++
		return fmt.Sprintf("APPLIED %s -> %s (brier %.4f, %s confidence)\n  %s",
			p.PredictionID, label, *resolved.BrierScore, verdict.Confidence, verdict.Reasoning)
	}

	sum.Proposed++
	line := fmt.Sprintf("PROPOSED %s -> %s (%s confidence)\n  %s",
		p.PredictionID, label, verdict.Confidence, verdict.Reasoning)
	for _, ev := range verdict.Evidence {
		line += "\n  - " + ev
	}
	return line
}

func (v *Verifier) prompt(p *prediction.Prediction, today time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today is %s. You are verifying a published forecast.\n\n", today.Format("2006-01-02"))
	fmt.Fprintf(&b, "Forecast %s: %s\nPublished: %s\n\nScenarios:\n",
		p.PredictionID, p.Title, p.PublishedAt.Format("2006-01-02"))
	for _, sc := range p.Scenarios {
		fmt.Fprintf(&b, "- %s (%.0f%%): %s\n", sc.Label, sc.Probability*100, sc.Narrative)
	}
	if len(p.Triggers) > 0 {
		b.WriteString("\nTrigger events:\n")
		for _, tr := range p.Triggers {
			fmt.Fprintf(&b, "- %s (%s)\n", tr.Name, tr.Date)
		}
	}
	b.WriteString(`
Based on what you know happened since publication, decide whether one scenario
has clearly occurred. If the outcome is not yet decided, say so.

Respond with JSON only, no other text:
{
  "verdict": "<scenario label, or empty if undecided>",
  "confidence": "high" | "medium" | "low",
  "evidence": ["short factual statements"],
  "reasoning": "one or two sentences",
  "status": "resolved" | "still_open",
  "next_check_date": "YYYY-MM-DD or empty"
}`)
	return b.String()
}

// matchScenario maps the model's free-text verdict onto one of the
// prediction's scenario labels.
func matchScenario(p *prediction.Prediction, verdict string) string {
	if strings.TrimSpace(verdict) == "" {
		return ""
	}
	for _, sc := range p.Scenarios {
		if prediction.MatchesLabel(sc.Label, verdict) {
			return sc.Label
		}
	}
	return ""
}

func (v *Verifier) summaryText(doc *prediction.Document, sum *Summary, lines []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "VERIFICATION %s\n", v.now().UTC().Format("2006-01-02"))
	fmt.Fprintf(&b, "open %d, due %d, applied %d, proposed %d, still open %d, inconclusive %d\n",
		sum.Open, sum.Targets, sum.Applied, sum.Proposed, sum.StillOpen, sum.Inconclusive)
	for _, l := range lines {
		b.WriteString(l + "\n")
	}
	b.WriteString(CalibrationLine(doc.Stats))
	return b.String()
}

// CalibrationLine renders the running track record. Brier tiers: below 0.15
// is superforecaster territory, below 0.20 excellent, below 0.25 still beats
// the coin-flip baseline.
func CalibrationLine(st prediction.Stats) string {
	if st.Resolved == 0 || st.AvgBrierScore == nil {
		return "calibration: no resolved predictions yet"
	}
	avg := *st.AvgBrierScore
	var tier string
	switch {
	case avg < 0.15:
		tier = "superforecaster territory"
	case avg < 0.20:
		tier = "excellent"
	case avg < 0.25:
		tier = "above the chance baseline"
	default:
		tier = "at or below the chance baseline"
	}
	return fmt.Sprintf("calibration: %d resolved, avg brier %.4f (%s)", st.Resolved, avg, tier)
}
