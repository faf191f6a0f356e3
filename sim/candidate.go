// Defines the Candidate record presented during a run and the score reduction
// applied to its per-criterion ratings.

package sim

import (
	"fmt"
	"maps"
	"math"
	"slices"
)

const (
	MinRating = 0 // lowest rating a user may assign
	MaxRating = 10

	// DefaultRating backfills any criterion a candidate has no rating for.
	DefaultRating = 5
)

// Candidate is one entry of a candidate pool.
type Candidate struct {
	ID      int               `json:"id"`
	Name    string            `json:"name"`
	Ratings map[Criterion]int `json:"ratings"`
	Score   float64           `json:"score"` // mean of Ratings over the active criteria, one decimal
}

// NewCandidate builds a candidate and computes its score over criteria.
// Ratings are copied and clamped to [MinRating, MaxRating]; criteria missing
// from ratings are backfilled with DefaultRating.
func NewCandidate(id int, name string, ratings map[Criterion]int, criteria []Criterion) Candidate {
	c := Candidate{ID: id, Name: name, Ratings: make(map[Criterion]int, len(criteria))}
	for k, v := range ratings {
		c.Ratings[k] = ClampRating(v)
	}
	c.Backfill(criteria)
	return c
}

// DefaultName returns the display name of a generated candidate.
func DefaultName(id int) string {
	return fmt.Sprintf("Candidate %d", id)
}

// Backfill aligns c.Ratings with criteria: ratings for criteria not listed
// are dropped, missing ones get DefaultRating. c.Score is recomputed.
func (c *Candidate) Backfill(criteria []Criterion) {
	if c.Ratings == nil {
		c.Ratings = make(map[Criterion]int, len(criteria))
	}
	maps.DeleteFunc(c.Ratings, func(k Criterion, _ int) bool {
		return !slices.Contains(criteria, k)
	})
	for _, cr := range criteria {
		if _, ok := c.Ratings[cr]; !ok {
			c.Ratings[cr] = DefaultRating
		}
	}
	c.Score = Score(c.Ratings, criteria)
}

// Total returns the sum of c's ratings over criteria. Missing criteria count as 0.
func (c Candidate) Total(criteria []Criterion) int {
	sum := 0
	for _, cr := range criteria {
		sum += c.Ratings[cr]
	}
	return sum
}

// Clone returns a copy of c that does not share its Ratings map.
func (c Candidate) Clone() Candidate {
	c.Ratings = maps.Clone(c.Ratings)
	return c
}

func (c Candidate) String() string {
	return fmt.Sprintf("Candidate: (ID: %d, Name: %s, Score: %.1f)", c.ID, c.Name, c.Score)
}

// Score reduces ratings to the arithmetic mean over criteria, rounded to one
// decimal place. An empty criteria list scores 0; a criterion absent from
// ratings contributes 0.
func Score(ratings map[Criterion]int, criteria []Criterion) float64 {
	if len(criteria) == 0 {
		return 0
	}
	sum := 0
	for _, c := range criteria {
		sum += ratings[c]
	}
	return round1(float64(sum) / float64(len(criteria)))
}

// ClampRating limits v to [MinRating, MaxRating].
func ClampRating(v int) int {
	return max(MinRating, min(MaxRating, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
