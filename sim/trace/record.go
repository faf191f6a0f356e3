// Package trace provides decision-trace recording for runs.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// Action is what the player did with a presented candidate.
type Action string

const (
	ActionSkip   Action = "skip"
	ActionSelect Action = "select"
)

// DecisionRecord captures a single decision on a presented candidate.
type DecisionRecord struct {
	Index        int     `json:"index"`
	CandidateID  int     `json:"candidate_id"`
	Phase        string  `json:"phase"`
	Action       Action  `json:"action"`
	Score        float64 `json:"score"`
	BestObserved float64 `json:"best_observed"`
	Signaled     bool    `json:"signaled"` // the candidate beat every observed one
}
