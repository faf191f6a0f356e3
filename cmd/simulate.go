package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/secretary-sim/secretary-sim/sim/experiment"
)

var (
	simTrials     int
	simCandidates int
	simStrategy   string
	simWorkers    int
	simCriteria   []string
	simJSON       bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Play many runs automatically and report how often each strategy finds the best candidate",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		exp := cfg.Experiment
		if cmd.Flags().Changed("trials") {
			exp.Trials = simTrials
		}
		if cmd.Flags().Changed("candidates") {
			exp.Candidates = simCandidates
		}
		if cmd.Flags().Changed("strategy") {
			exp.Strategy = simStrategy
		}
		if cmd.Flags().Changed("workers") {
			exp.Workers = simWorkers
		}
		exp.Seed = runSeed(cmd, exp.Seed)

		game := cfg.Game
		if cmd.Flags().Changed("criteria") {
			game.Criteria = simCriteria
		}
		criteria, err := game.criteriaSet()
		if err != nil {
			logrus.Fatalf("invalid criteria: %v", err)
		}

		strategies, err := resolveStrategies(exp.Strategy)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		var summaries []experiment.Summary
		for _, s := range strategies {
			sum, _, err := experiment.Run(cmd.Context(), experiment.Config{
				Trials:          exp.Trials,
				Candidates:      exp.Candidates,
				Criteria:        criteria.List(),
				Seed:            exp.Seed,
				Workers:         exp.Workers,
				ConfidenceLevel: exp.ConfidenceLevel,
			}, s)
			if err != nil {
				logrus.Fatalf("simulation failed: %v", err)
			}
			summaries = append(summaries, sum)
		}
		if err := writeSummaries(os.Stdout, summaries, simJSON); err != nil {
			logrus.Fatalf("writing summary: %v", err)
		}
	},
}

func resolveStrategies(name string) ([]experiment.Strategy, error) {
	if name == "all" {
		var out []experiment.Strategy
		for _, n := range experiment.StrategyNames() {
			s, _ := experiment.NewStrategy(n)
			out = append(out, s)
		}
		return out, nil
	}
	s, err := experiment.NewStrategy(name)
	if err != nil {
		return nil, err
	}
	return []experiment.Strategy{s}, nil
}

func writeSummaries(w io.Writer, summaries []experiment.Summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}
	if len(summaries) > 0 {
		s := summaries[0]
		fmt.Fprintf(w, "%d trials, %d candidates, observation window %d\n\n", s.Trials, s.Candidates, s.Threshold)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tBEST PICK\tNO PICK\tMEAN RANK\tSUCCESS RATE\tCI")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%.2f\t%.1f%%\t[%.1f, %.1f]\n",
			s.Strategy, s.BestPickRate, s.NoPickRate, s.MeanRank,
			s.SuccessRate.Mean, s.SuccessRate.Lower, s.SuccessRate.Upper)
	}
	return tw.Flush()
}

func init() {
	simulateCmd.Flags().IntVar(&simTrials, "trials", 1000, "Number of runs per strategy")
	simulateCmd.Flags().IntVar(&simCandidates, "candidates", 100, "Candidates per run")
	simulateCmd.Flags().StringVar(&simStrategy, "strategy", "all", "Strategy: threshold, first, random or all")
	simulateCmd.Flags().IntVar(&simWorkers, "workers", 0, "Parallel trials (0: one per CPU)")
	simulateCmd.Flags().StringSliceVar(&simCriteria, "criteria", nil, "Extra criteria after Personality, Interests, Appearance")
	simulateCmd.Flags().BoolVar(&simJSON, "json", false, "Print summaries as JSON")

	rootCmd.AddCommand(simulateCmd)
}
