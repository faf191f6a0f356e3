package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/secretary-sim/secretary-sim/sim"
	"github.com/secretary-sim/secretary-sim/sim/sink"
	"github.com/secretary-sim/secretary-sim/sim/trace"
)

func newTestSession(t *testing.T, cfg Config, s sink.Sink) *Session {
	t.Helper()
	sess := New(cfg, s)
	n := 0
	sess.newRunID = func() string {
		n++
		return fmt.Sprintf("run-%d", n)
	}
	return sess
}

func advanceTo(t *testing.T, s *Session, phase sim.Phase) {
	t.Helper()
	for {
		snap, err := s.Snapshot()
		require.NoError(t, err)
		if snap.Phase == phase {
			return
		}
		require.NoError(t, s.Advance(context.Background()))
	}
}

func TestNew_ClampsCandidateCount(t *testing.T) {
	s := New(Config{TotalCandidates: 3}, nil)
	assert.Equal(t, sim.MinCandidates, s.TotalCandidates())
	assert.Equal(t, 3, s.Threshold())
	assert.Equal(t, sim.DefaultCriteria, s.Criteria())
	assert.False(t, s.Running())
}

func TestSession_StartRecordsRunAndCandidates(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := sink.NewMockSink(ctrl)
	ctx := context.Background()

	gomock.InOrder(
		mock.EXPECT().StartRun(gomock.Any(), sink.RunDescriptor{
			ID:                   "run-1",
			TotalCandidates:      10,
			Criteria:             []string{"Personality", "Interests", "Appearance"},
			ObservationThreshold: 3,
		}).Return("run-1", nil),
		mock.EXPECT().SaveCandidates(gomock.Any(), "run-1", gomock.Len(10)).Return(nil),
	)

	s := newTestSession(t, Config{TotalCandidates: 10, Seed: 42}, mock)
	require.NoError(t, s.Start(ctx))
	assert.Equal(t, "run-1", s.RunID())

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, sim.PhaseObservation, snap.Phase)
	assert.Equal(t, 10, snap.Total)

	assert.ErrorIs(t, s.Start(ctx), ErrRunInProgress)
}

func TestSession_SelectionWritesResultOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := sink.NewMockSink(ctrl)
	ctx := context.Background()

	mock.EXPECT().StartRun(gomock.Any(), gomock.Any()).Return("run-1", nil)
	mock.EXPECT().SaveCandidates(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	var saved sink.ResultRecord
	mock.EXPECT().SaveResult(gomock.Any(), "run-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, r sink.ResultRecord) error {
			saved = r
			return nil
		}).Times(1)

	s := newTestSession(t, Config{TotalCandidates: 10, Seed: 7}, mock)
	require.NoError(t, s.Start(ctx))
	advanceTo(t, s, sim.PhaseSelection)

	snap, _ := s.Snapshot()
	require.NoError(t, s.Select(ctx))

	res, err := s.Result()
	require.NoError(t, err)
	require.True(t, res.HasSelection())
	assert.Equal(t, snap.Current.ID, res.Selected.ID)
	assert.True(t, s.Recorded())

	assert.Equal(t, res.Selected.Name, saved.SelectedCandidateName)
	assert.Equal(t, res.Rank, saved.RankPosition)
	assert.Equal(t, 3, saved.TotalQuestions)
	assert.Equal(t, 10, saved.TotalCandidates)

	// further operations are rejected without another write
	assert.ErrorIs(t, s.Select(ctx), sim.ErrRunComplete)
	assert.ErrorIs(t, s.Advance(ctx), sim.ErrRunComplete)
}

func TestSession_ExhaustionWritesNoResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := sink.NewMockSink(ctrl)
	ctx := context.Background()

	mock.EXPECT().StartRun(gomock.Any(), gomock.Any()).Return("run-1", nil)
	mock.EXPECT().SaveCandidates(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	mock.EXPECT().SaveResult(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	s := newTestSession(t, Config{TotalCandidates: 10}, mock)
	require.NoError(t, s.Start(ctx))
	advanceTo(t, s, sim.PhaseResults)

	res, err := s.Result()
	require.NoError(t, err)
	assert.False(t, res.HasSelection())
	assert.Zero(t, res.Rank)
	assert.False(t, s.Recorded())
}

func TestSession_SinkErrorsDoNotAffectRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := sink.NewMockSink(ctrl)
	ctx := context.Background()
	boom := errors.New("db down")

	mock.EXPECT().StartRun(gomock.Any(), gomock.Any()).Return("", boom)
	mock.EXPECT().SaveCandidates(gomock.Any(), "run-1", gomock.Any()).Return(boom)
	mock.EXPECT().SaveResult(gomock.Any(), "run-1", gomock.Any()).Return(boom)

	s := newTestSession(t, Config{TotalCandidates: 10, PermitEarlySelect: true}, mock)
	require.NoError(t, s.Start(ctx))
	assert.Equal(t, "run-1", s.RunID(), "locally generated id is kept")
	require.NoError(t, s.Select(ctx))

	res, err := s.Result()
	require.NoError(t, err)
	assert.True(t, res.HasSelection())
	assert.False(t, s.Recorded())
}

func TestSession_EarlySelectRejectedByDefault(t *testing.T) {
	s := newTestSession(t, Config{TotalCandidates: 10}, nil)
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Select(context.Background()), sim.ErrObservationPhase)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, sim.PhaseObservation, snap.Phase)
	assert.Equal(t, 0, snap.Index)
}

func TestSession_OperationsBeforeStart(t *testing.T) {
	s := New(Config{}, nil)
	ctx := context.Background()
	assert.ErrorIs(t, s.Advance(ctx), ErrNotStarted)
	assert.ErrorIs(t, s.Select(ctx), ErrNotStarted)
	_, err := s.Snapshot()
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = s.Result()
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestSession_ResultBeforeFinish(t *testing.T) {
	s := New(Config{}, nil)
	require.NoError(t, s.Start(context.Background()))
	_, err := s.Result()
	assert.ErrorIs(t, err, ErrNotFinished)
}

func TestSession_CriteriaChangeForcesCustomization(t *testing.T) {
	ctx := context.Background()
	s := New(Config{TotalCandidates: 10}, nil)
	assert.False(t, s.Customizing())
	assert.ErrorIs(t, s.Rename(ctx, 1, "x"), ErrNotCustomizing)

	// WHEN a criterion is added
	c, err := s.AddCriterion("  Humor ")
	require.NoError(t, err)
	assert.Equal(t, sim.Criterion("Humor"), c)

	// THEN customization is forced and the roster starts at the default rating
	assert.True(t, s.Customizing())
	roster := s.Roster(ctx)
	require.Len(t, roster, 10)
	for _, cand := range roster {
		assert.Len(t, cand.Ratings, 4)
		assert.Equal(t, float64(sim.DefaultRating), cand.Score)
	}

	_, err = s.AddCriterion("Humor")
	assert.ErrorIs(t, err, sim.ErrDuplicateCriterion)
	assert.ErrorIs(t, s.RemoveCriterion("Personality"), sim.ErrDefaultCriterion)

	// AND reset lifts the forcing
	s.Reset()
	assert.False(t, s.Customizing())
	assert.Contains(t, s.Criteria(), sim.Criterion("Humor"))
}

func TestSession_CustomizeRoster(t *testing.T) {
	ctx := context.Background()
	s := New(Config{TotalCandidates: 10, Customize: true}, nil)

	require.NoError(t, s.Rename(ctx, 2, "Ada"))
	require.NoError(t, s.SetRating(ctx, 2, "Personality", 42))
	require.NoError(t, s.SetRating(ctx, 2, "Interests", -3))

	roster := s.Roster(ctx)
	ada := roster[1]
	assert.Equal(t, "Ada", ada.Name)
	assert.Equal(t, sim.MaxRating, ada.Ratings["Personality"])
	assert.Equal(t, sim.MinRating, ada.Ratings["Interests"])
	assert.Equal(t, 5.0, ada.Score) // (10+0+5)/3

	assert.ErrorIs(t, s.Rename(ctx, 11, "x"), ErrUnknownCandidate)
	assert.ErrorIs(t, s.Rename(ctx, 0, "x"), ErrUnknownCandidate)
	assert.ErrorIs(t, s.SetRating(ctx, 1, "Humor", 3), sim.ErrUnknownCriterion)

	// AND the roster returned is a copy
	roster[0].Ratings["Personality"] = 1
	assert.Equal(t, sim.DefaultRating, s.Roster(ctx)[0].Ratings["Personality"])
}

func TestSession_AddCriterionBackfillsEditedRoster(t *testing.T) {
	ctx := context.Background()
	s := New(Config{TotalCandidates: 10, Customize: true}, nil)
	require.NoError(t, s.SetRating(ctx, 1, "Personality", 8))

	_, err := s.AddCriterion("Humor")
	require.NoError(t, err)

	c := s.Roster(ctx)[0]
	assert.Equal(t, 8, c.Ratings["Personality"], "edits survive")
	assert.Equal(t, sim.DefaultRating, c.Ratings["Humor"])
	assert.Equal(t, 5.8, c.Score) // (8+5+5+5)/4 = 5.75
}

func TestSession_RemoveCriterionDropsRatingsFromRoster(t *testing.T) {
	ctx := context.Background()
	// GIVEN an edited roster rated on an added criterion
	s := New(Config{TotalCandidates: 10, Customize: true}, nil)
	_, err := s.AddCriterion("Humor")
	require.NoError(t, err)
	require.NoError(t, s.SetRating(ctx, 1, "Humor", 9))
	require.Equal(t, 6.0, s.Roster(ctx)[0].Score) // (5+5+5+9)/4

	// WHEN the criterion is removed
	require.NoError(t, s.RemoveCriterion("Humor"))

	// THEN no candidate keeps a Humor rating and scores cover the defaults only
	for _, c := range s.Roster(ctx) {
		assert.NotContains(t, c.Ratings, sim.Criterion("Humor"))
		assert.Len(t, c.Ratings, 3)
		assert.Equal(t, float64(sim.DefaultRating), c.Score)
	}

	// AND re-adding it backfills the default instead of the old edit
	_, err = s.AddCriterion("Humor")
	require.NoError(t, err)
	assert.Equal(t, sim.DefaultRating, s.Roster(ctx)[0].Ratings["Humor"])

	// AND after a final removal the running snapshot shows active criteria only
	require.NoError(t, s.RemoveCriterion("Humor"))
	require.NoError(t, s.Start(ctx))
	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.NotNil(t, snap.Current)
	assert.Len(t, snap.Current.Ratings, len(s.Criteria()))
	assert.NotContains(t, snap.Current.Ratings, sim.Criterion("Humor"))
}

func TestSession_SetCustomizeKeepsEditsWhileForced(t *testing.T) {
	ctx := context.Background()
	// GIVEN customization forced by a criteria change and a hand edit
	s := New(Config{TotalCandidates: 10}, nil)
	_, err := s.AddCriterion("Humor")
	require.NoError(t, err)
	require.NoError(t, s.Rename(ctx, 1, "Ada"))

	// WHEN customization is switched off
	require.NoError(t, s.SetCustomize(false))

	// THEN it stays on and the edit survives
	assert.True(t, s.Customizing())
	assert.Equal(t, "Ada", s.Roster(ctx)[0].Name)
}

func TestSession_SetCustomizeRegeneratesRoster(t *testing.T) {
	ctx := context.Background()
	s := New(Config{TotalCandidates: 10, Customize: true}, nil)
	require.NoError(t, s.Rename(ctx, 1, "Ada"))

	require.NoError(t, s.SetCustomize(false))

	assert.False(t, s.Customizing())
	assert.Equal(t, sim.DefaultName(1), s.Roster(ctx)[0].Name)
}

func TestSession_SetupLockedDuringRun(t *testing.T) {
	ctx := context.Background()
	s := New(Config{Customize: true}, nil)
	require.NoError(t, s.Start(ctx))

	_, err := s.AddCriterion("Humor")
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.ErrorIs(t, s.RemoveCriterion("Humor"), ErrRunInProgress)
	assert.ErrorIs(t, s.Rename(ctx, 1, "x"), ErrRunInProgress)
	assert.ErrorIs(t, s.SetCustomize(false), ErrRunInProgress)
	_, err = s.SetTotalCandidates(20)
	assert.ErrorIs(t, err, ErrRunInProgress)
}

func TestSession_SameSeedSameRun(t *testing.T) {
	order := func() []int {
		s := New(Config{TotalCandidates: 25, Seed: 99}, nil)
		require.NoError(t, s.Start(context.Background()))
		ids := make([]int, 0, 25)
		for {
			snap, err := s.Snapshot()
			require.NoError(t, err)
			if snap.Current == nil {
				return ids
			}
			ids = append(ids, snap.Current.ID)
			require.NoError(t, s.Advance(context.Background()))
		}
	}
	assert.Equal(t, order(), order())
}

func TestSession_ResetStartsFreshRun(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, Config{}, nil)
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Advance(ctx))
	first := s.RunID()

	s.Reset()
	assert.False(t, s.Running())
	assert.Empty(t, s.RunID())

	require.NoError(t, s.Start(ctx))
	assert.NotEqual(t, first, s.RunID())
	snap, _ := s.Snapshot()
	assert.Equal(t, 0, snap.Index)
}

type loaderSink struct {
	*sink.MockSink
	*sink.MockLoader
}

func TestSession_ReuseRosterFromLoader(t *testing.T) {
	ctrl := gomock.NewController(t)
	ls := loaderSink{MockSink: sink.NewMockSink(ctrl), MockLoader: sink.NewMockLoader(ctrl)}
	ctx := context.Background()

	ls.MockLoader.EXPECT().LatestCandidates(gomock.Any(), 10).Return([]sink.CandidateRecord{
		{Name: "Ada", CriteriaValues: map[string]int{"Personality": 9, "Interests": 9, "Appearance": 9}},
		{Name: "Bo", CriteriaValues: map[string]int{"Personality": 1}},
	}, nil)

	s := New(Config{TotalCandidates: 10, ReuseRoster: true, Seed: 3}, ls)
	roster := s.Roster(ctx)
	require.Len(t, roster, 10)
	assert.Equal(t, "Ada", roster[0].Name)
	assert.Equal(t, 9.0, roster[0].Score)
	assert.Equal(t, "Bo", roster[1].Name)
	assert.Equal(t, sim.DefaultRating, roster[1].Ratings["Appearance"], "backfilled")
	assert.Equal(t, 2, roster[1].ID)
	assert.Equal(t, sim.DefaultName(3), roster[2].Name, "remaining slots are generated")
}

func TestSession_ReuseRosterLoaderFailureFallsBack(t *testing.T) {
	ctrl := gomock.NewController(t)
	ls := loaderSink{MockSink: sink.NewMockSink(ctrl), MockLoader: sink.NewMockLoader(ctrl)}
	ls.MockLoader.EXPECT().LatestCandidates(gomock.Any(), gomock.Any()).Return(nil, errors.New("no table"))

	s := New(Config{ReuseRoster: true}, ls)
	roster := s.Roster(context.Background())
	require.Len(t, roster, sim.MinCandidates)
	assert.Equal(t, sim.DefaultName(1), roster[0].Name)
}

func TestSession_SetTotalCandidatesClamps(t *testing.T) {
	s := New(Config{}, nil)
	n, err := s.SetTotalCandidates(4)
	require.NoError(t, err)
	assert.Equal(t, sim.MinCandidates, n)
	n, err = s.SetTotalCandidates(50)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
	assert.Len(t, s.Roster(context.Background()), 50)
}

func TestSession_TraceRecordsDecisions(t *testing.T) {
	ctx := context.Background()
	s := New(Config{TotalCandidates: 10, Seed: 4, TraceLevel: trace.TraceLevelDecisions}, nil)
	require.NoError(t, s.Start(ctx))
	advanceTo(t, s, sim.PhaseSelection)
	require.NoError(t, s.Select(ctx))

	rt := s.Trace()
	require.NotNil(t, rt)
	require.Len(t, rt.Decisions, 4)
	for i, d := range rt.Decisions[:3] {
		assert.Equal(t, i, d.Index)
		assert.Equal(t, trace.ActionSkip, d.Action)
		assert.Equal(t, string(sim.PhaseObservation), d.Phase)
		assert.False(t, d.Signaled, "no signal while observing")
	}
	last := rt.Decisions[3]
	assert.Equal(t, trace.ActionSelect, last.Action)

	res, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, res.Selected.ID, last.CandidateID)
	assert.Equal(t, 3, trace.Summarize(rt).SelectedIndex)

	s.Reset()
	assert.Nil(t, s.Trace())
}

func TestSession_TraceOffByDefault(t *testing.T) {
	s := New(Config{}, nil)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Advance(context.Background()))
	assert.Nil(t, s.Trace())
}
