// Package session manages the lifecycle of one player's runs: setup,
// optional roster customization, the run itself and reset.
//
// Persistence happens at three points only: run start, candidates finalized
// and result finalized. Sink errors are logged and never change run state;
// callers normally pass a sink.Async so that writes do not block either.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/secretary-sim/secretary-sim/sim"
	"github.com/secretary-sim/secretary-sim/sim/sink"
	"github.com/secretary-sim/secretary-sim/sim/trace"
)

var (
	ErrNotStarted       = errors.New("session: no run in progress")
	ErrRunInProgress    = errors.New("session: run in progress; reset first")
	ErrNotFinished      = errors.New("session: run has not reached results")
	ErrNotCustomizing   = errors.New("session: candidate customization is off")
	ErrUnknownCandidate = errors.New("session: unknown candidate")
)

// Config holds the setup values of a session.
type Config struct {
	TotalCandidates   int              // clamped to sim.MinCandidates
	Criteria          *sim.CriteriaSet // nil → sim.NewCriteriaSet()
	Customize         bool             // roster starts at sim.DefaultRating and is user-edited
	ReuseRoster       bool             // seed the roster from the sink's latest stored candidates
	PermitEarlySelect bool
	Seed              int64
	TraceLevel        trace.TraceLevel // decisions: record every skip and select
}

// Session owns configuration and at most one active run.
//
// Thread-safety: NOT thread-safe.
type Session struct {
	cfg      Config
	sink     sink.Sink
	rng      *sim.PartitionedRNG
	newRunID func() string

	criteriaChanged bool
	roster          []sim.Candidate // generation order, IDs 1..N

	runID    string
	engine   *sim.Engine
	result   *sim.Result
	recorded bool
	trace    *trace.RunTrace
}

// New creates a session in setup. A nil sink discards records.
func New(cfg Config, s sink.Sink) *Session {
	if cfg.Criteria == nil {
		cfg.Criteria = sim.NewCriteriaSet()
	} else {
		cfg.Criteria = cfg.Criteria.Clone()
	}
	cfg.TotalCandidates = sim.ClampCandidateCount(cfg.TotalCandidates)
	if s == nil {
		s = sink.Nop{}
	}
	return &Session{
		cfg:      cfg,
		sink:     s,
		rng:      sim.NewPartitionedRNG(sim.NewRunKey(cfg.Seed)),
		newRunID: uuid.NewString,
	}
}

// === Setup ===

// Criteria returns the active criteria in scoring order.
func (s *Session) Criteria() []sim.Criterion { return s.cfg.Criteria.List() }

// CriteriaSet returns a copy of the active criteria set.
func (s *Session) CriteriaSet() *sim.CriteriaSet { return s.cfg.Criteria.Clone() }

// TotalCandidates returns the configured pool size.
func (s *Session) TotalCandidates() int { return s.cfg.TotalCandidates }

// Threshold returns the observation window for the configured pool size.
func (s *Session) Threshold() int { return sim.Threshold(s.cfg.TotalCandidates) }

// Customizing reports whether the roster is user-edited. Changing the
// criteria forces customization until the next reset.
func (s *Session) Customizing() bool { return s.cfg.Customize || s.criteriaChanged }

// SetCustomize toggles customization. While a criteria change forces it the
// setting is stored for after reset and the edited roster is kept.
func (s *Session) SetCustomize(on bool) error {
	if s.engine != nil {
		return ErrRunInProgress
	}
	was := s.Customizing()
	s.cfg.Customize = on
	if s.Customizing() != was {
		s.roster = nil
	}
	return nil
}

// SetTotalCandidates changes the pool size, clamping to sim.MinCandidates,
// and returns the value applied.
func (s *Session) SetTotalCandidates(n int) (int, error) {
	if s.engine != nil {
		return s.cfg.TotalCandidates, ErrRunInProgress
	}
	n = sim.ClampCandidateCount(n)
	if n != s.cfg.TotalCandidates {
		s.roster = nil
	}
	s.cfg.TotalCandidates = n
	return n, nil
}

// AddCriterion appends a criterion. An existing roster is backfilled.
func (s *Session) AddCriterion(name string) (sim.Criterion, error) {
	if s.engine != nil {
		return "", ErrRunInProgress
	}
	c, err := s.cfg.Criteria.Add(name)
	if err != nil {
		return "", err
	}
	s.criteriaChanged = true
	sim.BackfillPool(s.roster, s.cfg.Criteria.List())
	logrus.Debugf("session: criterion %q added", c)
	return c, nil
}

// RemoveCriterion drops a non-default criterion. Its ratings are removed from
// an existing roster, which is rescored.
func (s *Session) RemoveCriterion(name string) error {
	if s.engine != nil {
		return ErrRunInProgress
	}
	if err := s.cfg.Criteria.Remove(name); err != nil {
		return err
	}
	s.criteriaChanged = true
	sim.BackfillPool(s.roster, s.cfg.Criteria.List())
	return nil
}

// Roster returns the candidates the next run will use, in generation order,
// preparing them on first call.
func (s *Session) Roster(ctx context.Context) []sim.Candidate {
	if s.roster == nil {
		s.roster = s.prepareRoster(ctx)
	}
	out := make([]sim.Candidate, len(s.roster))
	for i, c := range s.roster {
		out[i] = c.Clone()
	}
	return out
}

// Rename sets a candidate's display name. Requires customization.
func (s *Session) Rename(ctx context.Context, id int, name string) error {
	c, err := s.editable(ctx, id)
	if err != nil {
		return err
	}
	c.Name = name
	return nil
}

// SetRating sets one rating, clamped to [sim.MinRating, sim.MaxRating].
// Requires customization.
func (s *Session) SetRating(ctx context.Context, id int, criterion sim.Criterion, v int) error {
	if !s.cfg.Criteria.Contains(criterion) {
		return fmt.Errorf("%w: %q", sim.ErrUnknownCriterion, criterion)
	}
	c, err := s.editable(ctx, id)
	if err != nil {
		return err
	}
	c.Ratings[criterion] = sim.ClampRating(v)
	c.Score = sim.Score(c.Ratings, s.cfg.Criteria.List())
	return nil
}

func (s *Session) editable(ctx context.Context, id int) (*sim.Candidate, error) {
	if s.engine != nil {
		return nil, ErrRunInProgress
	}
	if !s.Customizing() {
		return nil, ErrNotCustomizing
	}
	if s.roster == nil {
		s.roster = s.prepareRoster(ctx)
	}
	if id < 1 || id > len(s.roster) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCandidate, id)
	}
	return &s.roster[id-1], nil
}

func (s *Session) prepareRoster(ctx context.Context) []sim.Candidate {
	n := s.cfg.TotalCandidates
	criteria := s.cfg.Criteria.List()

	var source sim.RatingSource = sim.NewRandomRatings(s.rng.ForSubsystem(sim.SubsystemRatings))
	if s.Customizing() {
		source = sim.ConstantRatings(sim.DefaultRating)
	}
	roster := sim.Generate(n, criteria, source)

	if s.cfg.ReuseRoster {
		if stored := s.loadStored(ctx, n, criteria); len(stored) > 0 {
			copy(roster, stored)
			logrus.Infof("session: reusing %d stored candidates", len(stored))
		}
	}
	return roster
}

func (s *Session) loadStored(ctx context.Context, n int, criteria []sim.Criterion) []sim.Candidate {
	loader, ok := s.sink.(sink.Loader)
	if !ok {
		return nil
	}
	recs, err := loader.LatestCandidates(ctx, n)
	if err != nil {
		logrus.WithField("op", "latest_candidates").Warnf("could not load stored roster: %v", err)
		return nil
	}
	if len(recs) > n {
		recs = recs[:n]
	}
	return sink.Candidates(recs, criteria)
}

// === Run ===

// Start finalizes the roster, records the run and begins observation.
func (s *Session) Start(ctx context.Context) error {
	if s.engine != nil {
		return ErrRunInProgress
	}
	roster := s.Roster(ctx)
	criteria := s.cfg.Criteria.List()

	pool := sim.Shuffle(roster, s.rng.ForSubsystem(sim.SubsystemShuffle))
	engine, err := sim.NewEngine(pool, sim.EngineOptions{PermitEarlySelect: s.cfg.PermitEarlySelect})
	if err != nil {
		return err
	}

	runID := s.newRunID()
	desc := sink.RunDescriptor{
		ID:                   runID,
		TotalCandidates:      len(pool),
		Criteria:             s.cfg.Criteria.Strings(),
		ObservationThreshold: engine.Threshold(),
	}
	if id, err := s.sink.StartRun(ctx, desc); err != nil {
		logrus.WithFields(logrus.Fields{"op": "start_run", "run_id": runID}).Warnf("could not record run: %v", err)
	} else if id != "" {
		runID = id
	}
	if err := s.sink.SaveCandidates(ctx, runID, sink.CandidateRecords(roster, criteria)); err != nil {
		logrus.WithFields(logrus.Fields{"op": "save_candidates", "run_id": runID}).Warnf("could not record candidates: %v", err)
	}

	s.runID = runID
	s.engine = engine
	s.result = nil
	s.recorded = false
	s.trace = nil
	if s.cfg.TraceLevel.Enabled() {
		s.trace = trace.NewRunTrace(s.cfg.TraceLevel)
	}
	logrus.WithField("run_id", runID).Infof("run started: %d candidates, observing %d", len(pool), engine.Threshold())
	return nil
}

// Advance skips the current candidate.
func (s *Session) Advance(ctx context.Context) error {
	if s.engine == nil {
		return ErrNotStarted
	}
	before := s.engine.Snapshot()
	if err := s.engine.Advance(); err != nil {
		return err
	}
	s.record(before, trace.ActionSkip)
	s.finalize(ctx)
	return nil
}

// Select accepts the current candidate.
func (s *Session) Select(ctx context.Context) error {
	if s.engine == nil {
		return ErrNotStarted
	}
	before := s.engine.Snapshot()
	if err := s.engine.Select(); err != nil {
		return err
	}
	s.record(before, trace.ActionSelect)
	s.finalize(ctx)
	return nil
}

func (s *Session) record(snap sim.Snapshot, action trace.Action) {
	if s.trace == nil || snap.Current == nil {
		return
	}
	s.trace.Record(trace.DecisionRecord{
		Index:        snap.Index,
		CandidateID:  snap.Current.ID,
		Phase:        string(snap.Phase),
		Action:       action,
		Score:        snap.Current.Score,
		BestObserved: snap.BestObservedScore,
		Signaled:     snap.IsOptimal,
	})
}

func (s *Session) finalize(ctx context.Context) {
	if s.engine.Phase() != sim.PhaseResults || s.result != nil {
		return
	}
	res := sim.Evaluate(s.engine.Selected(), s.engine.Pool(), s.cfg.Criteria.List())
	s.result = &res
	log := logrus.WithField("run_id", s.runID)
	if !res.HasSelection() {
		log.Info("run finished without a selection")
		return
	}
	log.Infof("run finished: %s selected, rank %d of %d", res.Selected.Name, res.Rank, res.TotalCandidates)

	rec, _ := sink.ResultFromEvaluation(res)
	if err := s.sink.SaveResult(ctx, s.runID, rec); err != nil {
		log.WithField("op", "save_result").Warnf("could not record result: %v", err)
		return
	}
	s.recorded = true
}

// Snapshot returns the presentation state of the active run.
func (s *Session) Snapshot() (sim.Snapshot, error) {
	if s.engine == nil {
		return sim.Snapshot{}, ErrNotStarted
	}
	return s.engine.Snapshot(), nil
}

// Result returns the evaluation of a finished run.
func (s *Session) Result() (sim.Result, error) {
	if s.engine == nil {
		return sim.Result{}, ErrNotStarted
	}
	if s.result == nil {
		return sim.Result{}, ErrNotFinished
	}
	return *s.result, nil
}

// Recorded reports whether the finished run's result was handed to the sink
// without error.
func (s *Session) Recorded() bool { return s.recorded }

// Trace returns the decision trace of the active run, or nil when tracing
// is off.
func (s *Session) Trace() *trace.RunTrace { return s.trace }

// RunID returns the identifier of the active run, or "" in setup.
func (s *Session) RunID() string { return s.runID }

// Running reports whether a run is active (including one in results).
func (s *Session) Running() bool { return s.engine != nil }

// Reset discards the active run and the prepared roster. Configuration is
// kept, except that a criteria change no longer forces customization.
func (s *Session) Reset() {
	if s.runID != "" {
		logrus.WithField("run_id", s.runID).Debug("run discarded")
	}
	s.engine = nil
	s.result = nil
	s.runID = ""
	s.recorded = false
	s.trace = nil
	s.roster = nil
	s.criteriaChanged = false
}
