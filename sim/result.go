package sim

import "sort"

// Result is the post-hoc evaluation of a finished run.
//
// Ranking uses summed raw ratings, while in-play comparisons use the rounded
// mean Score; the two can order near-tied candidates differently.
type Result struct {
	Selected        *Candidate        `json:"selected,omitempty"`
	Rank            int               `json:"rank,omitempty"`         // 1-based; 0 when nothing was selected
	SuccessRate     float64           `json:"success_rate,omitempty"` // percent of the maximum possible total
	TotalScore      int               `json:"total_score"`
	CriteriaScores  map[Criterion]int `json:"criteria_scores,omitempty"`
	CriteriaCount   int               `json:"criteria_count"`
	TotalCandidates int               `json:"total_candidates"`
}

// HasSelection reports whether the run ended with an accepted candidate.
func (r Result) HasSelection() bool {
	return r.Selected != nil
}

// IsBest reports whether the selected candidate ranks first.
func (r Result) IsBest() bool {
	return r.Rank == 1
}

// Evaluate ranks selected within pool over criteria. A nil selection yields a
// Result with no rank or success rate.
func Evaluate(selected *Candidate, pool []Candidate, criteria []Criterion) Result {
	res := Result{
		CriteriaCount:   len(criteria),
		TotalCandidates: len(pool),
	}
	if selected == nil {
		return res
	}
	chosen := selected.Clone()
	res.Selected = &chosen
	res.TotalScore = chosen.Total(criteria)
	res.CriteriaScores = make(map[Criterion]int, len(criteria))
	for _, c := range criteria {
		res.CriteriaScores[c] = chosen.Ratings[c]
	}
	if len(criteria) > 0 {
		res.SuccessRate = round1(float64(res.TotalScore) / float64(len(criteria)*MaxRating) * 100)
	}
	res.Rank = rankOf(chosen, pool, criteria)
	return res
}

// rankOf returns the 1-based position of c in pool stably sorted by descending
// total. When c's ID is absent from pool it ranks after every member.
func rankOf(c Candidate, pool []Candidate, criteria []Criterion) int {
	order := make([]int, len(pool))
	totals := make([]int, len(pool))
	for i := range pool {
		order[i] = i
		totals[i] = pool[i].Total(criteria)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return totals[order[a]] > totals[order[b]]
	})
	for pos, idx := range order {
		if pool[idx].ID == c.ID {
			return pos + 1
		}
	}
	return len(pool) + 1
}
