package resolve

import (
	"foresight/internal/config"
	"foresight/internal/market"
	"foresight/internal/prediction"
)

// Action is the policy decision for one linked prediction on one run.
type Action int

const (
	// ActionMonitor leaves the prediction open; the market is still ambiguous
	// and its deadline has not passed.
	ActionMonitor Action = iota
	// ActionResolveMarket resolves using the source's own final outcome.
	ActionResolveMarket
	// ActionResolveYes resolves as if the market settled YES (price band).
	ActionResolveYes
	// ActionResolveNo resolves as if the market settled NO (price band).
	ActionResolveNo
	// ActionConfirmYes asks the model to confirm a YES-leaning price.
	ActionConfirmYes
	// ActionConfirmNo asks the model to confirm a NO-leaning price.
	ActionConfirmNo
	// ActionResolveBase resolves to the base scenario: deadline passed with
	// the price stuck mid-range.
	ActionResolveBase
	// ActionManualReview notifies an operator and leaves the prediction open:
	// deadline passed with the price between the base band and a confirm band.
	ActionManualReview
)

func (a Action) String() string {
	switch a {
	case ActionMonitor:
		return "monitor"
	case ActionResolveMarket:
		return "resolve-market"
	case ActionResolveYes:
		return "resolve-yes"
	case ActionResolveNo:
		return "resolve-no"
	case ActionConfirmYes:
		return "confirm-yes"
	case ActionConfirmNo:
		return "confirm-no"
	case ActionResolveBase:
		return "resolve-base"
	case ActionManualReview:
		return "manual-review"
	default:
		return "unknown"
	}
}

// Decide maps one market reading onto a policy action. The price bands are
// checked from the outside in: a source-reported resolution always wins, then
// the auto bands, then the confirm bands, and only a mid-range price consults
// the deadline.
func Decide(marketResolved bool, yesProb float64, deadlinePassed bool, cfg config.ResolverConfig) Action {
	if marketResolved {
		return ActionResolveMarket
	}
	switch {
	case yesProb >= cfg.AutoHigh:
		return ActionResolveYes
	case yesProb <= cfg.AutoLow:
		return ActionResolveNo
	case yesProb >= cfg.ConfirmHigh:
		return ActionConfirmYes
	case yesProb <= cfg.ConfirmLow:
		return ActionConfirmNo
	}

	if !deadlinePassed {
		return ActionMonitor
	}
	if yesProb >= cfg.AmbiguousLow && yesProb <= cfg.AmbiguousHigh {
		return ActionResolveBase
	}
	return ActionManualReview
}

// OutcomeLabel translates a market's binary outcome into a scenario label via
// the link's direction. A YES on a pessimistically-directed market confirms
// the pessimistic scenario; a NO on it confirms the optimistic one.
func OutcomeLabel(marketOutcome string, dir market.Direction) string {
	yes := marketOutcome == "YES"
	switch dir {
	case market.Pessimistic:
		if yes {
			return prediction.LabelPessimistic
		}
		return prediction.LabelOptimistic
	case market.Optimistic:
		if yes {
			return prediction.LabelOptimistic
		}
		return prediction.LabelPessimistic
	}
	return ""
}
