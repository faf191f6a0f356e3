package experiment

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/secretary-sim/secretary-sim/sim"
)

// Decider is consulted once per presented candidate and returns true to
// select it.
type Decider func(snap sim.Snapshot) bool

// Strategy plays runs automatically.
type Strategy interface {
	Name() string
	// NewTrial returns a fresh decider for a run over n candidates.
	NewTrial(n int, rng *rand.Rand) Decider
}

// ThresholdStrategy applies the 1/e rule: skip the observation window, then
// take the first candidate scoring above everyone observed.
type ThresholdStrategy struct{}

func (ThresholdStrategy) Name() string { return "threshold" }

func (ThresholdStrategy) NewTrial(int, *rand.Rand) Decider {
	return func(snap sim.Snapshot) bool {
		return snap.CanSelect && snap.IsOptimal
	}
}

// FirstStrategy always takes the first candidate presented.
type FirstStrategy struct{}

func (FirstStrategy) Name() string { return "first" }

func (FirstStrategy) NewTrial(int, *rand.Rand) Decider {
	return func(snap sim.Snapshot) bool { return snap.CanSelect }
}

// RandomStrategy takes the candidate at a uniformly random position.
type RandomStrategy struct{}

func (RandomStrategy) Name() string { return "random" }

func (RandomStrategy) NewTrial(n int, rng *rand.Rand) Decider {
	pick := rng.Intn(n)
	return func(snap sim.Snapshot) bool {
		return snap.CanSelect && snap.Index == pick
	}
}

var strategies = map[string]Strategy{
	"threshold": ThresholdStrategy{},
	"first":     FirstStrategy{},
	"random":    RandomStrategy{},
}

// StrategyNames returns the registered strategy names in sorted order.
func StrategyNames() []string {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewStrategy returns the named strategy.
func NewStrategy(name string) (Strategy, error) {
	s, ok := strategies[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q; valid options: %v", name, StrategyNames())
	}
	return s, nil
}
