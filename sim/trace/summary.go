package trace

// TraceSummary aggregates statistics from a RunTrace.
type TraceSummary struct {
	TotalDecisions int     `json:"total_decisions"`
	Skipped        int     `json:"skipped"`
	SelectedIndex  int     `json:"selected_index"` // -1 when nothing was selected
	Signals        int     `json:"signals"`        // candidates that beat every observed one
	MissedSignals  int     `json:"missed_signals"` // signaled candidates that were skipped
	BestSeen       float64 `json:"best_seen"`      // highest score presented
	Regret         float64 `json:"regret"`         // BestSeen - selected score; 0 without a selection
}

// Summarize computes aggregate statistics from a RunTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(rt *RunTrace) *TraceSummary {
	summary := &TraceSummary{SelectedIndex: -1}
	if rt == nil {
		return summary
	}

	summary.TotalDecisions = len(rt.Decisions)
	selectedScore := 0.0
	for _, d := range rt.Decisions {
		if d.Score > summary.BestSeen {
			summary.BestSeen = d.Score
		}
		if d.Signaled {
			summary.Signals++
		}
		switch d.Action {
		case ActionSelect:
			summary.SelectedIndex = d.Index
			selectedScore = d.Score
		default:
			summary.Skipped++
			if d.Signaled {
				summary.MissedSignals++
			}
		}
	}
	if summary.SelectedIndex >= 0 {
		summary.Regret = summary.BestSeen - selectedScore
	}
	return summary
}
