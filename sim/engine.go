// Implements the stopping engine: the Observation → Selection → Results state
// machine driven by one Advance or Select call per user decision.

package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Phase is the lifecycle phase of a run.
type Phase string

const (
	PhaseObservation Phase = "observation"
	PhaseSelection   Phase = "selection"
	PhaseResults     Phase = "results"
)

// Threshold returns the observation window size floor(n/e) for a pool of n
// candidates. Returns 0 when n <= 0.
func Threshold(n int) int {
	if n <= 0 {
		return 0
	}
	return int(math.Floor(float64(n) / math.E))
}

// EngineOptions tunes invariants enforced by the engine.
type EngineOptions struct {
	// PermitEarlySelect allows Select during Observation. Off by default,
	// in which case Select returns ErrObservationPhase.
	PermitEarlySelect bool
}

// Snapshot is everything a presentation layer needs for one render cycle.
type Snapshot struct {
	Phase             Phase      `json:"phase"`
	Index             int        `json:"index"`
	Total             int        `json:"total"`
	Threshold         int        `json:"threshold"`
	BestObservedScore float64    `json:"best_observed_score"`
	Current           *Candidate `json:"current,omitempty"` // nil in PhaseResults
	IsOptimal         bool       `json:"is_optimal"`
	CanSelect         bool       `json:"can_select"`
}

// Engine holds the state of one run over a fixed, already-shuffled pool.
//
// Thread-safety: NOT thread-safe. One goroutine drives one Engine.
type Engine struct {
	pool      []Candidate
	threshold int
	index     int
	phase     Phase
	best      float64
	selected  *Candidate
	opts      EngineOptions
}

// NewEngine starts a run over pool in presentation order. The pool must be
// non-empty.
func NewEngine(pool []Candidate, opts EngineOptions) (*Engine, error) {
	if len(pool) == 0 {
		return nil, ErrEmptyPool
	}
	e := &Engine{
		pool:      pool,
		threshold: Threshold(len(pool)),
		phase:     PhaseObservation,
		opts:      opts,
	}
	if e.threshold == 0 {
		e.phase = PhaseSelection
	}
	logrus.Debugf("engine: %d candidates, observation threshold %d, initial phase %s", len(pool), e.threshold, e.phase)
	return e, nil
}

// Advance rejects the current candidate and moves to the next one.
// Reaching the end of the pool without a selection enters PhaseResults.
func (e *Engine) Advance() error {
	if e.phase == PhaseResults {
		return ErrRunComplete
	}
	if e.phase == PhaseObservation && e.pool[e.index].Score > e.best {
		e.best = e.pool[e.index].Score
	}
	e.index++
	if e.index == e.threshold {
		e.phase = PhaseSelection
	}
	if e.index == len(e.pool) {
		e.phase = PhaseResults
		logrus.Debugf("engine: pool exhausted without a selection")
	}
	return nil
}

// Select accepts the current candidate and ends the run.
func (e *Engine) Select() error {
	switch e.phase {
	case PhaseResults:
		return ErrRunComplete
	case PhaseObservation:
		if !e.opts.PermitEarlySelect {
			return fmt.Errorf("%w (index %d < threshold %d)", ErrObservationPhase, e.index, e.threshold)
		}
	}
	chosen := e.pool[e.index].Clone()
	e.selected = &chosen
	e.phase = PhaseResults
	logrus.Debugf("engine: selected %s at index %d", chosen.Name, e.index)
	return nil
}

// IsOptimal reports whether the current candidate beats every candidate seen
// during observation. Advisory only; it never gates Select.
func (e *Engine) IsOptimal() bool {
	if e.index >= len(e.pool) {
		return false
	}
	return e.pool[e.index].Score > e.best
}

// CanSelect reports whether Select would succeed now.
func (e *Engine) CanSelect() bool {
	switch e.phase {
	case PhaseSelection:
		return true
	case PhaseObservation:
		return e.opts.PermitEarlySelect
	}
	return false
}

// Current returns the candidate being shown. ok is false once the run is over.
func (e *Engine) Current() (c Candidate, ok bool) {
	if e.phase == PhaseResults {
		return Candidate{}, false
	}
	return e.pool[e.index], true
}

// Selected returns the accepted candidate, or nil when none was selected.
func (e *Engine) Selected() *Candidate {
	return e.selected
}

func (e *Engine) Phase() Phase { return e.phase }

func (e *Engine) Index() int { return e.index }

func (e *Engine) Threshold() int { return e.threshold }

func (e *Engine) BestObservedScore() float64 { return e.best }

// Pool returns the candidates in presentation order. Callers must not modify it.
func (e *Engine) Pool() []Candidate { return e.pool }

// Snapshot captures the current state for presentation.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Phase:             e.phase,
		Index:             e.index,
		Total:             len(e.pool),
		Threshold:         e.threshold,
		BestObservedScore: e.best,
		CanSelect:         e.CanSelect(),
	}
	if cur, ok := e.Current(); ok {
		cur = cur.Clone()
		s.Current = &cur
		s.IsOptimal = e.phase == PhaseSelection && e.IsOptimal()
	}
	return s
}
