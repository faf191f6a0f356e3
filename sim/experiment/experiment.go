// Package experiment plays batches of runs with automated strategies and
// aggregates how often each strategy finds the best candidate.
//
// Every trial draws its own pool and presentation order from a seed derived
// from the batch seed, so a batch is reproducible regardless of how many
// workers execute it.
package experiment

import (
	"context"
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/secretary-sim/secretary-sim/sim"
)

// DefaultConfidenceLevel is used when Config.ConfidenceLevel is unset.
const DefaultConfidenceLevel = 0.95

// Config describes one batch.
type Config struct {
	Trials          int
	Candidates      int
	Criteria        []sim.Criterion // nil → sim.DefaultCriteria
	Seed            int64
	Workers         int     // <= 0 → runtime.NumCPU()
	ConfidenceLevel float64 // 0 → DefaultConfidenceLevel
}

// Trial is the outcome of one automated run.
type Trial struct {
	Index       int     `json:"index"`
	Picked      bool    `json:"picked"`
	PickedAt    int     `json:"picked_at"` // presentation index; -1 when nothing was picked
	Rank        int     `json:"rank"`      // 0 when nothing was picked
	SuccessRate float64 `json:"success_rate"`
}

// Summary aggregates a batch.
type Summary struct {
	Strategy     string             `json:"strategy"`
	Trials       int                `json:"trials"`
	Candidates   int                `json:"candidates"`
	Threshold    int                `json:"threshold"`
	Picks        int                `json:"picks"`
	BestPicks    int                `json:"best_picks"`
	BestPickRate float64            `json:"best_pick_rate"`
	NoPickRate   float64            `json:"no_pick_rate"`
	MeanRank     float64            `json:"mean_rank"` // over trials with a pick
	SuccessRate  ConfidenceInterval `json:"success_rate"`
}

// Run plays cfg.Trials runs with strategy and summarizes them. Trials are
// returned in index order.
func Run(ctx context.Context, cfg Config, strategy Strategy) (Summary, []Trial, error) {
	if cfg.Trials <= 0 {
		return Summary{}, nil, fmt.Errorf("trials must be positive, got %d", cfg.Trials)
	}
	if cfg.Candidates <= 0 {
		return Summary{}, nil, fmt.Errorf("candidates must be positive, got %d", cfg.Candidates)
	}
	criteria := cfg.Criteria
	if criteria == nil {
		criteria = sim.DefaultCriteria
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	level := cfg.ConfidenceLevel
	if level == 0 {
		level = DefaultConfidenceLevel
	}

	root := sim.NewPartitionedRNG(sim.NewRunKey(cfg.Seed))
	seeds := make([]int64, cfg.Trials)
	for i := range seeds {
		seeds[i] = root.Seed(sim.SubsystemTrial(i))
	}

	trials := make([]Trial, cfg.Trials)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trials {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := playTrial(seeds[i], cfg.Candidates, criteria, strategy)
			if err != nil {
				return fmt.Errorf("trial %d: %w", i, err)
			}
			t.Index = i
			trials[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, nil, err
	}

	sum := summarize(strategy.Name(), cfg.Candidates, trials, level, root)
	logrus.Debugf("experiment: %s over %d trials, best pick rate %.3f", sum.Strategy, sum.Trials, sum.BestPickRate)
	return sum, trials, nil
}

func playTrial(seed int64, n int, criteria []sim.Criterion, strategy Strategy) (Trial, error) {
	rng := sim.NewPartitionedRNG(sim.NewRunKey(seed))
	pool := sim.Generate(n, criteria, sim.NewRandomRatings(rng.ForSubsystem(sim.SubsystemRatings)))
	pool = sim.Shuffle(pool, rng.ForSubsystem(sim.SubsystemShuffle))

	engine, err := sim.NewEngine(pool, sim.EngineOptions{PermitEarlySelect: true})
	if err != nil {
		return Trial{}, err
	}
	decide := strategy.NewTrial(n, rng.ForSubsystem(sim.SubsystemStrategy))

	pickedAt := -1
	for engine.Phase() != sim.PhaseResults {
		snap := engine.Snapshot()
		if decide(snap) {
			pickedAt = snap.Index
			err = engine.Select()
		} else {
			err = engine.Advance()
		}
		if err != nil {
			return Trial{}, err
		}
	}

	res := sim.Evaluate(engine.Selected(), engine.Pool(), criteria)
	return Trial{
		Picked:      res.HasSelection(),
		PickedAt:    pickedAt,
		Rank:        res.Rank,
		SuccessRate: res.SuccessRate,
	}, nil
}

func summarize(name string, n int, trials []Trial, level float64, root *sim.PartitionedRNG) Summary {
	s := Summary{
		Strategy:   name,
		Trials:     len(trials),
		Candidates: n,
		Threshold:  sim.Threshold(n),
	}
	rates := make([]float64, len(trials))
	rankSum := 0
	for i, t := range trials {
		rates[i] = t.SuccessRate
		if !t.Picked {
			continue
		}
		s.Picks++
		rankSum += t.Rank
		if t.Rank == 1 {
			s.BestPicks++
		}
	}
	total := float64(len(trials))
	s.BestPickRate = float64(s.BestPicks) / total
	s.NoPickRate = float64(len(trials)-s.Picks) / total
	if s.Picks > 0 {
		s.MeanRank = float64(rankSum) / float64(s.Picks)
	}
	s.SuccessRate = BootstrapCI(rates, level, root.ForSubsystem("bootstrap"))
	return s
}
