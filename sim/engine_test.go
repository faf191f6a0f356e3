package sim

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// poolWithScores builds a pool whose single criterion "A" equals each score.
func poolWithScores(scores ...int) []Candidate {
	pool := make([]Candidate, len(scores))
	for i, s := range scores {
		pool[i] = NewCandidate(i+1, DefaultName(i+1), map[Criterion]int{"A": s}, []Criterion{"A"})
	}
	return pool
}

func TestThreshold_FloorOfNOverE(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{0, 0}, {1, 0}, {2, 0}, {3, 1}, {5, 1}, {10, 3}, {100, 36}, {1000, 367},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Threshold(tt.n), "Threshold(%d)", tt.n)
	}
}

func TestThreshold_BoundsForAllN(t *testing.T) {
	for n := 1; n <= 5000; n++ {
		got := Threshold(n)
		require.Equal(t, int(math.Floor(float64(n)/math.E)), got)
		require.GreaterOrEqual(t, got, 0)
		require.Less(t, got, n)
	}
}

func TestNewEngine_EmptyPool(t *testing.T) {
	_, err := NewEngine(nil, EngineOptions{})
	assert.ErrorIs(t, err, ErrEmptyPool)
}

func TestNewEngine_InitialPhase(t *testing.T) {
	e, err := NewEngine(poolWithScores(1, 2), EngineOptions{})
	require.NoError(t, err)
	assert.Equal(t, PhaseSelection, e.Phase(), "threshold 0 starts in selection")

	e, err = NewEngine(Generate(10, abc, ConstantRatings(5)), EngineOptions{})
	require.NoError(t, err)
	assert.Equal(t, PhaseObservation, e.Phase())
	assert.Equal(t, 3, e.Threshold())
}

func TestEngine_AllFivesExample(t *testing.T) {
	// GIVEN N=10 with every rating fixed at 5
	e, err := NewEngine(Generate(10, abc, ConstantRatings(5)), EngineOptions{})
	require.NoError(t, err)

	// WHEN the three observation candidates are passed
	for i := 0; i < 3; i++ {
		require.Equal(t, PhaseObservation, e.Phase())
		require.NoError(t, e.Advance())
	}

	// THEN the engine is selecting at index 3 with best 5.0 and no recommendation
	assert.Equal(t, PhaseSelection, e.Phase())
	assert.Equal(t, 3, e.Index())
	assert.Equal(t, 5.0, e.BestObservedScore())
	assert.False(t, e.IsOptimal(), "5.0 is not strictly greater than 5.0")
}

func TestEngine_BestObservedIsMaxOfObservationWindow(t *testing.T) {
	// GIVEN 10 candidates; the window is the first 3
	e, err := NewEngine(poolWithScores(4, 9, 2, 10, 1, 1, 1, 1, 1, 1), EngineOptions{})
	require.NoError(t, err)

	for e.Phase() == PhaseObservation {
		require.NoError(t, e.Advance())
	}
	assert.Equal(t, 9.0, e.BestObservedScore())
	assert.True(t, e.IsOptimal(), "index 3 scores 10 > 9")

	// AND selection-phase candidates never update the best score
	require.NoError(t, e.Advance())
	require.NoError(t, e.Advance())
	assert.Equal(t, 9.0, e.BestObservedScore())
}

func TestEngine_BestObservedZeroWhenNoWindow(t *testing.T) {
	e, err := NewEngine(poolWithScores(7, 8), EngineOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, e.BestObservedScore())
	assert.True(t, e.IsOptimal())
}

func TestEngine_ExhaustionEndsWithoutSelection(t *testing.T) {
	e, err := NewEngine(Generate(10, abc, ConstantRatings(3)), EngineOptions{})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, e.Advance())
	}

	assert.Equal(t, PhaseResults, e.Phase())
	assert.Equal(t, 10, e.Index())
	assert.Nil(t, e.Selected())
	_, ok := e.Current()
	assert.False(t, ok)
	assert.ErrorIs(t, e.Advance(), ErrRunComplete)
	assert.ErrorIs(t, e.Select(), ErrRunComplete)

	res := Evaluate(e.Selected(), e.Pool(), abc)
	assert.False(t, res.HasSelection())
	assert.Equal(t, 0, res.Rank)
}

func TestEngine_SelectDuringObservation(t *testing.T) {
	pool := poolWithScores(5, 6, 7, 8, 9, 1, 2, 3, 4, 5)

	t.Run("rejected by default", func(t *testing.T) {
		e, err := NewEngine(pool, EngineOptions{})
		require.NoError(t, err)
		assert.False(t, e.CanSelect())
		assert.ErrorIs(t, e.Select(), ErrObservationPhase)
		assert.Equal(t, PhaseObservation, e.Phase(), "rejected select must not change phase")
	})

	t.Run("permitted when enabled", func(t *testing.T) {
		e, err := NewEngine(pool, EngineOptions{PermitEarlySelect: true})
		require.NoError(t, err)
		require.NoError(t, e.Advance())
		assert.True(t, e.CanSelect())
		require.NoError(t, e.Select())
		assert.Equal(t, PhaseResults, e.Phase())
		require.NotNil(t, e.Selected())
		assert.Equal(t, pool[1].ID, e.Selected().ID)
	})
}

func TestEngine_SelectYieldsCurrentCandidate(t *testing.T) {
	// For every index i, selecting at i yields Results with pool[i].
	pool := Generate(12, abc, NewRandomRatings(rand.New(rand.NewSource(5))))
	for i := range pool {
		e, err := NewEngine(pool, EngineOptions{PermitEarlySelect: true})
		require.NoError(t, err)
		for j := 0; j < i; j++ {
			require.NoError(t, e.Advance())
		}
		require.NoError(t, e.Select())
		assert.Equal(t, PhaseResults, e.Phase())
		assert.Equal(t, pool[i], *e.Selected())
	}
}

func TestEngine_PhaseSequenceIsMonotonic(t *testing.T) {
	order := map[Phase]int{PhaseObservation: 0, PhaseSelection: 1, PhaseResults: 2}
	rng := rand.New(rand.NewSource(99))

	for trial := 0; trial < 500; trial++ {
		n := rng.Intn(30) + 1
		e, err := NewEngine(Generate(n, abc, NewRandomRatings(rng)), EngineOptions{PermitEarlySelect: rng.Intn(2) == 0})
		require.NoError(t, err)

		prev := order[e.Phase()]
		prevIdx := e.Index()
		for step := 0; step < 2*n; step++ {
			if rng.Intn(8) == 0 {
				_ = e.Select()
			} else {
				_ = e.Advance()
			}
			cur := order[e.Phase()]
			require.GreaterOrEqual(t, cur, prev, "phase regressed at trial %d step %d", trial, step)
			require.GreaterOrEqual(t, e.Index(), prevIdx)
			require.LessOrEqual(t, e.Index(), n)
			prev, prevIdx = cur, e.Index()
		}
	}
}

func TestEngine_Snapshot(t *testing.T) {
	e, err := NewEngine(poolWithScores(3, 2, 1, 8, 1, 1, 1, 1, 1, 1), EngineOptions{})
	require.NoError(t, err)

	s := e.Snapshot()
	assert.Equal(t, PhaseObservation, s.Phase)
	assert.Equal(t, 10, s.Total)
	assert.Equal(t, 3, s.Threshold)
	require.NotNil(t, s.Current)
	assert.False(t, s.IsOptimal, "no recommendation during observation")
	assert.False(t, s.CanSelect)

	for i := 0; i < 3; i++ {
		require.NoError(t, e.Advance())
	}
	s = e.Snapshot()
	assert.Equal(t, PhaseSelection, s.Phase)
	assert.Equal(t, 3.0, s.BestObservedScore)
	assert.Equal(t, 4, s.Current.ID)
	assert.True(t, s.IsOptimal)
	assert.True(t, s.CanSelect)

	require.NoError(t, e.Select())
	s = e.Snapshot()
	assert.Equal(t, PhaseResults, s.Phase)
	assert.Nil(t, s.Current)
	assert.False(t, s.CanSelect)
}

func TestEngine_SnapshotDoesNotAliasPool(t *testing.T) {
	e, err := NewEngine(poolWithScores(1, 2, 3), EngineOptions{})
	require.NoError(t, err)
	s := e.Snapshot()
	s.Current.Ratings["A"] = 10
	cur, _ := e.Current()
	assert.Equal(t, 1, cur.Ratings["A"])
}
