// Package sink defines where run outcomes are logged for later inspection.
//
// Writes are best effort. Gameplay never waits on or reacts to a sink
// failure: sessions call sinks through Async, which queues writes on a
// background goroutine and logs errors instead of returning them.
package sink

//go:generate mockgen -source=sink.go -destination=mock_sink.go -package=sink

import (
	"context"

	"github.com/secretary-sim/secretary-sim/sim"
)

// RunDescriptor is written once when a run starts.
type RunDescriptor struct {
	ID                   string   `json:"id"`
	TotalCandidates      int      `json:"total_candidates"`
	Criteria             []string `json:"criteria"`
	ObservationThreshold int      `json:"observation_threshold"`
}

// CandidateRecord is one finalized candidate of a run.
type CandidateRecord struct {
	Name           string         `json:"name"`
	CriteriaValues map[string]int `json:"criteria_values"`
}

// ResultRecord is written once a candidate has been selected.
type ResultRecord struct {
	Score                  int            `json:"score"`
	TotalQuestions         int            `json:"total_questions"` // number of criteria
	SuccessRate            float64        `json:"success_rate"`
	SelectedCandidateName  string         `json:"selected_candidate_name"`
	SelectedCandidateScore map[string]int `json:"selected_candidate_scores"`
	TotalCandidates        int            `json:"total_candidates"`
	RankPosition           int            `json:"rank_position"`
}

// Sink persists run lifecycle records.
type Sink interface {
	// StartRun records a new run and returns the identifier subsequent
	// writes are tagged with.
	StartRun(ctx context.Context, run RunDescriptor) (string, error)
	SaveCandidates(ctx context.Context, runID string, candidates []CandidateRecord) error
	SaveResult(ctx context.Context, runID string, result ResultRecord) error
	Close() error
}

// Loader is implemented by sinks that can return the most recently stored
// roster, so a new run can reuse it.
type Loader interface {
	LatestCandidates(ctx context.Context, limit int) ([]CandidateRecord, error)
}

// Nop discards every write.
type Nop struct{}

func (Nop) StartRun(_ context.Context, run RunDescriptor) (string, error) { return run.ID, nil }

func (Nop) SaveCandidates(context.Context, string, []CandidateRecord) error { return nil }

func (Nop) SaveResult(context.Context, string, ResultRecord) error { return nil }

func (Nop) Close() error { return nil }

// CandidateRecords converts a pool into persistence records over criteria.
func CandidateRecords(pool []sim.Candidate, criteria []sim.Criterion) []CandidateRecord {
	out := make([]CandidateRecord, len(pool))
	for i, c := range pool {
		values := make(map[string]int, len(criteria))
		for _, cr := range criteria {
			values[string(cr)] = c.Ratings[cr]
		}
		out[i] = CandidateRecord{Name: c.Name, CriteriaValues: values}
	}
	return out
}

// ResultFromEvaluation converts an evaluated selection into a ResultRecord.
// ok is false when the run ended without a selection.
func ResultFromEvaluation(res sim.Result) (rec ResultRecord, ok bool) {
	if !res.HasSelection() {
		return ResultRecord{}, false
	}
	scores := make(map[string]int, len(res.CriteriaScores))
	for c, v := range res.CriteriaScores {
		scores[string(c)] = v
	}
	return ResultRecord{
		Score:                  res.TotalScore,
		TotalQuestions:         res.CriteriaCount,
		SuccessRate:            res.SuccessRate,
		SelectedCandidateName:  res.Selected.Name,
		SelectedCandidateScore: scores,
		TotalCandidates:        res.TotalCandidates,
		RankPosition:           res.Rank,
	}, true
}

// Candidates converts stored records back into candidates with IDs 1..n,
// backfilling criteria the records lack.
func Candidates(records []CandidateRecord, criteria []sim.Criterion) []sim.Candidate {
	out := make([]sim.Candidate, len(records))
	for i, r := range records {
		ratings := make(map[sim.Criterion]int, len(r.CriteriaValues))
		for k, v := range r.CriteriaValues {
			ratings[sim.Criterion(k)] = v
		}
		out[i] = sim.NewCandidate(i+1, r.Name, ratings, criteria)
	}
	return out
}
