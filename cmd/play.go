package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/secretary-sim/secretary-sim/sim"
	"github.com/secretary-sim/secretary-sim/sim/session"
	"github.com/secretary-sim/secretary-sim/sim/trace"
)

var (
	playCandidates  int
	playCriteria    []string
	playCustomize   bool
	playEarlySelect bool
	playReuse       bool
	playSkipSetup   bool
)

type decision int

const (
	decideNext decision = iota
	decideSelect
	decideQuit
)

// setupAnswers is what the setup form collects.
type setupAnswers struct {
	TotalCandidates int
	ExtraCriteria   []string
	Customize       bool
}

// prompter is the interactive boundary of a game. The huh implementation
// drives a terminal; tests script it.
type prompter interface {
	Setup(current setupAnswers, criteria []sim.Criterion) (setupAnswers, error)
	EditCandidate(c sim.Candidate, criteria []sim.Criterion) (name string, ratings map[sim.Criterion]int, err error)
	Decide(snap sim.Snapshot) (decision, error)
	PlayAgain() (bool, error)
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play the game interactively in the terminal",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		game := cfg.Game
		if cmd.Flags().Changed("candidates") {
			game.TotalCandidates = playCandidates
		}
		if cmd.Flags().Changed("criteria") {
			game.Criteria = playCriteria
		}
		if cmd.Flags().Changed("customize") {
			game.Customize = playCustomize
		}
		if cmd.Flags().Changed("early-select") {
			game.PermitEarlySelect = playEarlySelect
		}
		if cmd.Flags().Changed("reuse-roster") {
			game.ReuseRoster = playReuse
		}
		criteria, err := game.criteriaSet()
		if err != nil {
			logrus.Fatalf("invalid criteria: %v", err)
		}

		ctx := cmd.Context()
		out, err := openSink(ctx, cfg.Sink)
		if err != nil {
			logrus.Fatalf("unable to open sink: %v", err)
		}
		defer closeSink(out)

		sess := session.New(session.Config{
			TotalCandidates:   game.TotalCandidates,
			Criteria:          criteria,
			Customize:         game.Customize,
			ReuseRoster:       game.ReuseRoster,
			PermitEarlySelect: game.PermitEarlySelect,
			Seed:              runSeed(cmd, clockSeed()),
			TraceLevel:        trace.TraceLevelDecisions,
		}, out)

		p := newHuhPrompter(os.Stdin, os.Stdout)
		if err := playLoop(ctx, sess, p, os.Stdout, !playSkipSetup); err != nil && !errors.Is(err, errQuit) {
			logrus.Errorf("game ended: %v", err)
		}
	},
}

// playLoop runs games until the player declines another or quits.
func playLoop(ctx context.Context, sess *session.Session, p prompter, out io.Writer, setup bool) error {
	for {
		if setup {
			if err := runSetup(ctx, sess, p, out); err != nil {
				return err
			}
		}
		if sess.Customizing() {
			if err := runCustomize(ctx, sess, p); err != nil {
				return err
			}
		}
		if err := sess.Start(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d candidates. The first %d are for observation only.\n", sess.TotalCandidates(), sess.Threshold())

		quit, err := runGame(ctx, sess, p, out)
		if err != nil || quit {
			return err
		}
		res, err := sess.Result()
		if err != nil {
			return err
		}
		renderResult(out, res)
		renderTrace(out, trace.Summarize(sess.Trace()))

		again, err := p.PlayAgain()
		if err != nil || !again {
			return err
		}
		sess.Reset()
	}
}

func runSetup(ctx context.Context, sess *session.Session, p prompter, out io.Writer) error {
	answers, err := p.Setup(setupAnswers{
		TotalCandidates: sess.TotalCandidates(),
		Customize:       sess.Customizing(),
	}, sess.Criteria())
	if err != nil {
		return err
	}
	if n, _ := sess.SetTotalCandidates(answers.TotalCandidates); n != answers.TotalCandidates {
		fmt.Fprintf(out, "Using the minimum of %d candidates.\n", n)
	}
	for _, name := range answers.ExtraCriteria {
		if _, err := sess.AddCriterion(name); err != nil {
			fmt.Fprintf(out, "Skipping criterion %q: %v\n", name, err)
		}
	}
	if err := sess.SetCustomize(answers.Customize); err != nil {
		return err
	}
	if sess.Customizing() && !answers.Customize {
		fmt.Fprintln(out, "Criteria changed, so candidates must be rated by hand.")
	}
	return nil
}

func runCustomize(ctx context.Context, sess *session.Session, p prompter) error {
	criteria := sess.Criteria()
	for _, c := range sess.Roster(ctx) {
		name, ratings, err := p.EditCandidate(c, criteria)
		if err != nil {
			return err
		}
		if name = strings.TrimSpace(name); name != "" {
			if err := sess.Rename(ctx, c.ID, name); err != nil {
				return err
			}
		}
		for _, cr := range criteria {
			v, ok := ratings[cr]
			if !ok {
				continue
			}
			if err := sess.SetRating(ctx, c.ID, cr, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// runGame presents candidates until the run reaches results. quit is true
// when the player abandoned the run.
func runGame(ctx context.Context, sess *session.Session, p prompter, out io.Writer) (quit bool, err error) {
	for {
		snap, err := sess.Snapshot()
		if err != nil {
			return false, err
		}
		if snap.Phase == sim.PhaseResults {
			return false, nil
		}
		renderSnapshot(out, snap, sess.Criteria())

		d, err := p.Decide(snap)
		if err != nil {
			return false, err
		}
		switch d {
		case decideQuit:
			return true, nil
		case decideSelect:
			err = sess.Select(ctx)
		default:
			err = sess.Advance(ctx)
		}
		if errors.Is(err, sim.ErrObservationPhase) {
			fmt.Fprintln(out, "Still observing; you cannot select yet.")
			continue
		}
		if err != nil {
			return false, err
		}
	}
}

func renderSnapshot(w io.Writer, snap sim.Snapshot, criteria []sim.Criterion) {
	fmt.Fprintf(w, "\n[%s] Candidate %d of %d", snap.Phase, snap.Index+1, snap.Total)
	if snap.Phase == sim.PhaseObservation {
		fmt.Fprintf(w, " (observing %d)", snap.Threshold)
	}
	fmt.Fprintln(w)
	if snap.Current == nil {
		return
	}
	fmt.Fprintf(w, "  %s  score %.1f\n", snap.Current.Name, snap.Current.Score)
	for _, c := range criteria {
		fmt.Fprintf(w, "    %-12s %d\n", c, snap.Current.Ratings[c])
	}
	fmt.Fprintf(w, "  best observed: %.1f\n", snap.BestObservedScore)
	if snap.IsOptimal {
		fmt.Fprintln(w, "  This candidate beats everyone you have observed.")
	}
}

func renderResult(w io.Writer, res sim.Result) {
	fmt.Fprintln(w, "\n=== Result ===")
	if !res.HasSelection() {
		fmt.Fprintf(w, "No candidate selected out of %d.\n", res.TotalCandidates)
		return
	}
	fmt.Fprintf(w, "Selected:     %s\n", res.Selected.Name)
	fmt.Fprintf(w, "Total score:  %d of %d\n", res.TotalScore, res.CriteriaCount*sim.MaxRating)
	fmt.Fprintf(w, "Success rate: %.1f%%\n", res.SuccessRate)
	fmt.Fprintf(w, "Rank:         %d of %d\n", res.Rank, res.TotalCandidates)
	if res.IsBest() {
		fmt.Fprintln(w, "You found the best candidate.")
	}
}

func renderTrace(w io.Writer, summary *trace.TraceSummary) {
	if summary.MissedSignals > 0 {
		fmt.Fprintf(w, "You passed over %d candidate(s) that beat everyone you had observed.\n", summary.MissedSignals)
	}
	if summary.Regret > 0 {
		fmt.Fprintf(w, "The best score you saw was %.1f, %.1f above your pick.\n", summary.BestSeen, summary.Regret)
	}
}

// huhPrompter drives the game with huh forms.
type huhPrompter struct {
	in         io.Reader
	out        io.Writer
	accessible bool
}

func newHuhPrompter(in io.Reader, out io.Writer) *huhPrompter {
	f, ok := in.(*os.File)
	return &huhPrompter{
		in:  in,
		out: out,
		// Use accessible mode for non-TTY input (e.g., piped input).
		accessible: !ok || !term.IsTerminal(int(f.Fd())),
	}
}

func (p *huhPrompter) run(groups ...*huh.Group) error {
	err := huh.NewForm(groups...).
		WithInput(p.in).
		WithOutput(p.out).
		WithAccessible(p.accessible).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return errQuit
	}
	return err
}

var errQuit = errors.New("quit")

func (p *huhPrompter) Setup(current setupAnswers, criteria []sim.Criterion) (setupAnswers, error) {
	total := strconv.Itoa(current.TotalCandidates)
	extra := ""
	customize := current.Customize

	names := make([]string, len(criteria))
	for i, c := range criteria {
		names[i] = string(c)
	}

	err := p.run(huh.NewGroup(
		huh.NewInput().
			Title("Number of candidates").
			Description(fmt.Sprintf("At least %d", sim.MinCandidates)).
			Value(&total).
			Validate(validateInt),
		huh.NewInput().
			Title("Additional criteria").
			Description("Comma-separated; current: "+strings.Join(names, ", ")).
			Value(&extra),
		huh.NewConfirm().
			Title("Enter candidates by hand?").
			Affirmative("Yes").
			Negative("No").
			Value(&customize),
	))
	if err != nil {
		return setupAnswers{}, err
	}
	n, _ := strconv.Atoi(strings.TrimSpace(total))
	return setupAnswers{
		TotalCandidates: n,
		ExtraCriteria:   splitAndTrim(extra),
		Customize:       customize,
	}, nil
}

func (p *huhPrompter) EditCandidate(c sim.Candidate, criteria []sim.Criterion) (string, map[sim.Criterion]int, error) {
	name := c.Name
	raw := make([]string, len(criteria))
	fields := []huh.Field{
		huh.NewInput().Title(fmt.Sprintf("Candidate %d name", c.ID)).Value(&name),
	}
	for i, cr := range criteria {
		raw[i] = strconv.Itoa(c.Ratings[cr])
		fields = append(fields, huh.NewInput().
			Title(fmt.Sprintf("%s (%d-%d)", cr, sim.MinRating, sim.MaxRating)).
			Value(&raw[i]).
			Validate(validateInt))
	}
	if err := p.run(huh.NewGroup(fields...)); err != nil {
		return "", nil, err
	}
	ratings := make(map[sim.Criterion]int, len(criteria))
	for i, cr := range criteria {
		v, _ := strconv.Atoi(strings.TrimSpace(raw[i]))
		ratings[cr] = v
	}
	return name, ratings, nil
}

func (p *huhPrompter) Decide(snap sim.Snapshot) (decision, error) {
	d := decideNext
	opts := []huh.Option[decision]{huh.NewOption("Next candidate", decideNext)}
	if snap.CanSelect {
		opts = append(opts, huh.NewOption("Select this candidate", decideSelect))
	}
	opts = append(opts, huh.NewOption("Quit", decideQuit))

	err := p.run(huh.NewGroup(
		huh.NewSelect[decision]().
			Title("Your move").
			Options(opts...).
			Value(&d),
	))
	if errors.Is(err, errQuit) {
		return decideQuit, nil
	}
	return d, err
}

func (p *huhPrompter) PlayAgain() (bool, error) {
	again := false
	err := p.run(huh.NewGroup(
		huh.NewConfirm().
			Title("Play again?").
			Affirmative("Yes").
			Negative("No").
			Value(&again),
	))
	if errors.Is(err, errQuit) {
		return false, nil
	}
	return again, err
}

func validateInt(s string) error {
	if _, err := strconv.Atoi(strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("enter a whole number")
	}
	return nil
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func init() {
	playCmd.Flags().IntVar(&playCandidates, "candidates", sim.MinCandidates, "Number of candidates (minimum 10)")
	playCmd.Flags().StringSliceVar(&playCriteria, "criteria", nil, "Extra criteria after Personality, Interests, Appearance")
	playCmd.Flags().BoolVar(&playCustomize, "customize", false, "Enter candidate names and ratings by hand")
	playCmd.Flags().BoolVar(&playEarlySelect, "early-select", false, "Allow selecting during the observation phase")
	playCmd.Flags().BoolVar(&playReuse, "reuse-roster", false, "Start from the last stored roster")
	playCmd.Flags().BoolVar(&playSkipSetup, "skip-setup", false, "Skip the setup form and use config and flag values")

	rootCmd.AddCommand(playCmd)
}
