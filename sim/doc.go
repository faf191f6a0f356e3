// Package sim provides the optimal-stopping decision engine for the
// secretary-problem simulator.
//
// # Reading Guide
//
// Start with these files to understand a run:
//   - candidate.go: Candidate records and the ordered CriteriaSet they are rated on
//   - pool.go: candidate generation (RatingSource) and presentation-order shuffling
//   - engine.go: the Observation → Selection → Results state machine
//   - result.go: post-hoc rank and success rate of the final choice
//
// # Architecture
//
// The sim package is pure and synchronous; everything with side effects lives
// in sub-packages:
//   - sim/session/: run lifecycle (setup, roster customization, reset) wired to a sink
//   - sim/sink/: persistence sink interface, async wrapper and implementations
//   - sim/experiment/: automated trial batches over pluggable strategies
//   - sim/trace/: optional per-decision record of a run and its summary
//
// Randomness is drawn from a PartitionedRNG so that rating generation and
// shuffling are independently reproducible from a single seed.
package sim
