package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	m "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/secretary-sim/secretary-sim/sim"
	"github.com/secretary-sim/secretary-sim/sim/session"
	"github.com/secretary-sim/secretary-sim/sim/sink"
	"github.com/secretary-sim/secretary-sim/sim/trace"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve runs over an HTTP JSON API",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		addr := cfg.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out, err := openSink(ctx, cfg.Sink)
		if err != nil {
			logrus.Fatalf("unable to open sink: %v", err)
		}
		defer closeSink(out)

		srv := &http.Server{
			Addr:              addr,
			Handler:           newServer(cfg.Game, out, runSeed(cmd, clockSeed())).routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		logrus.Infof("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	},
}

// server holds the runs created over HTTP, keyed by run id.
type server struct {
	mu    sync.Mutex
	runs  map[string]*session.Session
	game  GameConfig
	sink  sink.Sink
	seeds *rand.Rand
}

func newServer(game GameConfig, s sink.Sink, seed int64) *server {
	return &server{
		runs:  make(map[string]*session.Session),
		game:  game,
		sink:  s,
		seeds: sim.NewPartitionedRNG(sim.NewRunKey(seed)).ForSubsystem("server"),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(m.RequestID, m.RealIP, requestLogger, m.Recoverer)

	r.Post("/runs", s.createRun)
	r.Route("/runs/{id}", func(r chi.Router) {
		r.Get("/", s.getRun)
		r.Post("/advance", s.advance)
		r.Post("/select", s.selectCurrent)
		r.Get("/result", s.getResult)
		r.Get("/trace", s.getTrace)
		r.Delete("/", s.deleteRun)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

type createRunReq struct {
	TotalCandidates   *int     `json:"total_candidates"`
	Criteria          []string `json:"criteria"` // extra criteria
	PermitEarlySelect *bool    `json:"permit_early_select"`
	Seed              *int64   `json:"seed"`
}

type runResp struct {
	ID       string          `json:"id"`
	Criteria []sim.Criterion `json:"criteria"`
	Snapshot sim.Snapshot    `json:"snapshot"`
}

type resultResp struct {
	ID     string     `json:"id"`
	Result sim.Result `json:"result"`
}

type traceResp struct {
	ID        string                 `json:"id"`
	Decisions []trace.DecisionRecord `json:"decisions"`
	Summary   *trace.TraceSummary    `json:"summary"`
}

type errResp struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errResp{err.Error()})
}

// statusFor maps run errors onto HTTP status codes. Commands the engine
// rejects in the current phase are conflicts.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sim.ErrRunComplete),
		errors.Is(err, sim.ErrObservationPhase),
		errors.Is(err, session.ErrNotFinished):
		return http.StatusConflict
	case errors.Is(err, sim.ErrEmptyCriterion),
		errors.Is(err, sim.ErrDuplicateCriterion),
		errors.Is(err, sim.ErrDefaultCriterion),
		errors.Is(err, sim.ErrUnknownCriterion):
		return http.StatusBadRequest
	case errors.Is(err, errRunNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

var errRunNotFound = errors.New("run not found")

// maxRequestCandidates caps total_candidates on POST /runs.
const maxRequestCandidates = 10000

func (s *server) createRun(w http.ResponseWriter, r *http.Request) {
	var req createRunReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errResp{err.Error()})
		return
	}

	game := s.game
	if req.TotalCandidates != nil {
		if *req.TotalCandidates > maxRequestCandidates {
			writeJSON(w, http.StatusBadRequest, errResp{fmt.Sprintf("total_candidates must be at most %d", maxRequestCandidates)})
			return
		}
		game.TotalCandidates = *req.TotalCandidates
	}
	if req.Criteria != nil {
		game.Criteria = req.Criteria
	}
	if req.PermitEarlySelect != nil {
		game.PermitEarlySelect = *req.PermitEarlySelect
	}
	criteria, err := game.criteriaSet()
	if err != nil {
		writeError(w, err)
		return
	}

	key := s.nextSeed()
	if req.Seed != nil {
		key = *req.Seed
	}
	// Rosters are never hand-edited over HTTP. The session is private until
	// it is registered, so Start (which may read a stored roster) runs unlocked.
	sess := session.New(session.Config{
		TotalCandidates:   game.TotalCandidates,
		Criteria:          criteria,
		ReuseRoster:       game.ReuseRoster,
		PermitEarlySelect: game.PermitEarlySelect,
		Seed:              key,
		TraceLevel:        trace.TraceLevelDecisions,
	}, s.sink)
	if err := sess.Start(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	resp := s.describe(sess)

	s.mu.Lock()
	s.runs[sess.RunID()] = sess
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, resp)
}

func (s *server) nextSeed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeds.Int63()
}

func (s *server) describe(sess *session.Session) runResp {
	snap, _ := sess.Snapshot()
	return runResp{ID: sess.RunID(), Criteria: sess.Criteria(), Snapshot: snap}
}

// withRun runs fn on the run named in the URL while holding the lock.
func (s *server) withRun(w http.ResponseWriter, r *http.Request, fn func(*session.Session)) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.runs[id]
	if !ok {
		writeError(w, errRunNotFound)
		return
	}
	fn(sess)
}

func (s *server) getRun(w http.ResponseWriter, r *http.Request) {
	s.withRun(w, r, func(sess *session.Session) {
		writeJSON(w, http.StatusOK, s.describe(sess))
	})
}

func (s *server) advance(w http.ResponseWriter, r *http.Request) {
	s.withRun(w, r, func(sess *session.Session) {
		if err := sess.Advance(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.describe(sess))
	})
}

func (s *server) selectCurrent(w http.ResponseWriter, r *http.Request) {
	s.withRun(w, r, func(sess *session.Session) {
		if err := sess.Select(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.describe(sess))
	})
}

func (s *server) getResult(w http.ResponseWriter, r *http.Request) {
	s.withRun(w, r, func(sess *session.Session) {
		res, err := sess.Result()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resultResp{ID: sess.RunID(), Result: res})
	})
}

func (s *server) getTrace(w http.ResponseWriter, r *http.Request) {
	s.withRun(w, r, func(sess *session.Session) {
		rt := sess.Trace()
		resp := traceResp{ID: sess.RunID(), Decisions: []trace.DecisionRecord{}, Summary: trace.Summarize(rt)}
		if rt != nil {
			resp.Decisions = rt.Decisions
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

func (s *server) deleteRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.runs[id]
	if !ok {
		writeError(w, errRunNotFound)
		return
	}
	sess.Reset()
	delete(s.runs, id)
	w.WriteHeader(http.StatusNoContent)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := m.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logrus.WithFields(logrus.Fields{
			"request_id": m.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
		}).Debug("http request")
	})
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8000", "Listen address")

	rootCmd.AddCommand(serveCmd)
}
