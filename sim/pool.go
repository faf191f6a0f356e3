package sim

import (
	"math/rand"
)

// MinCandidates is the smallest pool size accepted from configuration.
const MinCandidates = 10

// RatingSource produces the rating of one (candidate, criterion) pair.
type RatingSource interface {
	Rating(candidateID int, c Criterion) int
}

// RandomRatings draws uniform integer ratings in [1, MaxRating].
type RandomRatings struct {
	rng *rand.Rand
}

// NewRandomRatings creates a RandomRatings drawing from rng.
func NewRandomRatings(rng *rand.Rand) *RandomRatings {
	return &RandomRatings{rng: rng}
}

func (r *RandomRatings) Rating(_ int, _ Criterion) int {
	return r.rng.Intn(MaxRating) + 1
}

// UserRatings serves user-supplied ratings keyed by candidate ID. Values are
// clamped to [MinRating, MaxRating]; unset pairs yield DefaultRating.
type UserRatings map[int]map[Criterion]int

// Set records a rating for a candidate, clamping it into range.
func (u UserRatings) Set(candidateID int, c Criterion, v int) {
	if u[candidateID] == nil {
		u[candidateID] = make(map[Criterion]int)
	}
	u[candidateID][c] = ClampRating(v)
}

func (u UserRatings) Rating(candidateID int, c Criterion) int {
	v, ok := u[candidateID][c]
	if !ok {
		return DefaultRating
	}
	return ClampRating(v)
}

// ConstantRatings rates every pair with the same value.
type ConstantRatings int

func (k ConstantRatings) Rating(_ int, _ Criterion) int {
	return ClampRating(int(k))
}

// Generate produces n candidates with sequential IDs 1..n, default names and
// ratings from source for every criterion. Any n >= 1 is accepted; callers
// floor configured sizes with ClampCandidateCount. n <= 0 returns nil.
func Generate(n int, criteria []Criterion, source RatingSource) []Candidate {
	if n <= 0 {
		return nil
	}
	pool := make([]Candidate, n)
	for i := range pool {
		id := i + 1
		ratings := make(map[Criterion]int, len(criteria))
		for _, c := range criteria {
			ratings[c] = source.Rating(id, c)
		}
		pool[i] = Candidate{
			ID:      id,
			Name:    DefaultName(id),
			Ratings: ratings,
			Score:   Score(ratings, criteria),
		}
	}
	return pool
}

// Shuffle returns pool in a uniformly random presentation order. The input
// slice and the candidate records it holds are not modified.
func Shuffle(pool []Candidate, rng *rand.Rand) []Candidate {
	out := make([]Candidate, len(pool))
	for i, c := range pool {
		out[i] = c.Clone()
	}
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// BackfillPool aligns every candidate's ratings with criteria (see
// Candidate.Backfill) and recomputes scores. Candidates are updated in place.
func BackfillPool(pool []Candidate, criteria []Criterion) {
	for i := range pool {
		pool[i].Backfill(criteria)
	}
}

// ClampCandidateCount raises n to MinCandidates.
func ClampCandidateCount(n int) int {
	return max(n, MinCandidates)
}
