package report

import (
	"log/slog"

	"foresight/internal/prediction"
	"foresight/internal/verify"
)

// LogReport logs the scoring report as structured JSON.
func LogReport(r *Report) {
	period := r.Period
	if period == "" {
		period = "all-time"
	}
	args := []any{
		"period", period,
		"total", r.Total,
		"open", r.Open,
		"resolved", r.Resolved,
	}
	if r.AvgBrier != nil {
		args = append(args, "avg_brier", *r.AvgBrier)
		args = append(args, "calibration", verify.CalibrationLine(prediction.Stats{
			Resolved:      r.Resolved,
			AvgBrierScore: r.AvgBrier,
		}))
	}
	slog.Info("=== TRACK RECORD ===", args...)

	for outcome, n := range r.Outcomes {
		slog.Info("outcome distribution", "outcome", outcome, "count", n)
	}
	for tag, stats := range r.Tags {
		slog.Info("tag performance",
			"dynamics_tag", tag,
			"resolved", stats.Count,
			"avg_brier", stats.AvgBrier,
		)
	}
}

// LogStatus logs the store counters.
func LogStatus(st *Status) {
	args := []any{
		"predictions", st.Stats.Total,
		"open", st.Stats.Open,
		"resolved", st.Stats.Resolved,
	}
	if st.Stats.AvgBrierScore != nil {
		args = append(args, "avg_brier", *st.Stats.AvgBrierScore)
	}
	args = append(args, "calibration", verify.CalibrationLine(st.Stats))
	slog.Info("=== STATUS ===", args...)

	if st.Market == nil {
		slog.Info("market database not configured")
		return
	}
	slog.Info("market database",
		"markets", st.Market.Markets,
		"snapshots", st.Market.Snapshots,
		"links", st.Market.Links,
		"news_events", st.Market.News,
		"first_snapshot", st.Market.MinDate,
		"last_snapshot", st.Market.MaxDate,
	)
	for source, n := range st.Market.BySource {
		slog.Info("source coverage", "source", source, "markets", n)
	}
}

// LogOverdue logs open predictions that are past due.
func LogOverdue(items []OverdueItem) {
	if len(items) == 0 {
		slog.Info("nothing overdue")
		return
	}
	for _, it := range items {
		slog.Info("overdue prediction",
			"prediction_id", it.PredictionID,
			"title", it.Title,
			"reason", it.Reason,
			"days_over", it.DaysOver,
		)
	}
}
