// Package postgres implements a sink backed by PostgreSQL through sqlx and
// the pgx stdlib driver.
//
// The store expects these tables to exist; it does not create or migrate them:
//
//	sessions   (id uuid primary key, total_candidates int, criteria jsonb,
//	            observation_threshold int, created_at timestamptz default now())
//	candidates (id bigserial primary key, session_id uuid, name text,
//	            criteria_values jsonb, created_at timestamptz default now())
//	results    (id bigserial primary key, session_id uuid, score int,
//	            total_questions int, success_rate numeric, selected_candidate_name text,
//	            selected_candidate_scores jsonb, total_candidates int, rank_position int,
//	            created_at timestamptz default now())
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/secretary-sim/secretary-sim/sim/sink"
)

// EnvDSN names the environment variable read when no DSN is configured.
const EnvDSN = "DATABASE_URL"

type sessionRow struct {
	ID                   string         `db:"id"`
	TotalCandidates      int            `db:"total_candidates"`
	Criteria             types.JSONText `db:"criteria"`
	ObservationThreshold int            `db:"observation_threshold"`
}

type candidateRow struct {
	SessionID      string         `db:"session_id"`
	Name           string         `db:"name"`
	CriteriaValues types.JSONText `db:"criteria_values"`
}

type resultRow struct {
	SessionID               string         `db:"session_id"`
	Score                   int            `db:"score"`
	TotalQuestions          int            `db:"total_questions"`
	SuccessRate             float64        `db:"success_rate"`
	SelectedCandidateName   string         `db:"selected_candidate_name"`
	SelectedCandidateScores types.JSONText `db:"selected_candidate_scores"`
	TotalCandidates         int            `db:"total_candidates"`
	RankPosition            int            `db:"rank_position"`
}

const (
	insertSession = `INSERT INTO sessions (id, total_candidates, criteria, observation_threshold)
VALUES (:id, :total_candidates, :criteria, :observation_threshold)`

	insertCandidate = `INSERT INTO candidates (session_id, name, criteria_values)
VALUES (:session_id, :name, :criteria_values)`

	insertResult = `INSERT INTO results (session_id, score, total_questions, success_rate,
selected_candidate_name, selected_candidate_scores, total_candidates, rank_position)
VALUES (:session_id, :score, :total_questions, :success_rate,
:selected_candidate_name, :selected_candidate_scores, :total_candidates, :rank_position)`

	selectLatestCandidates = `SELECT session_id, name, criteria_values FROM candidates
WHERE session_id = (SELECT session_id FROM candidates ORDER BY created_at DESC, id DESC LIMIT 1)
ORDER BY id
LIMIT $1`
)

// Store writes run records to PostgreSQL.
type Store struct {
	DB *sqlx.DB
}

// Open connects to dsn, falling back to $DATABASE_URL when dsn is empty.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = os.Getenv(EnvDSN)
	}
	if dsn == "" {
		return nil, fmt.Errorf("postgres sink: no DSN given and %s is not set", EnvDSN)
	}
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres sink: connect: %w", err)
	}
	return New(db), nil
}

// New wraps an existing connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) StartRun(ctx context.Context, run sink.RunDescriptor) (string, error) {
	row, err := toSessionRow(run)
	if err != nil {
		return "", err
	}
	if _, err := s.DB.NamedExecContext(ctx, insertSession, row); err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return run.ID, nil
}

func (s *Store) SaveCandidates(ctx context.Context, runID string, candidates []sink.CandidateRecord) error {
	if len(candidates) == 0 {
		return nil
	}
	rows, err := toCandidateRows(runID, candidates)
	if err != nil {
		return err
	}
	return WithTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insertCandidate, rows); err != nil {
			return fmt.Errorf("insert candidates: %w", err)
		}
		return nil
	})
}

func (s *Store) SaveResult(ctx context.Context, runID string, result sink.ResultRecord) error {
	row, err := toResultRow(runID, result)
	if err != nil {
		return err
	}
	if _, err := s.DB.NamedExecContext(ctx, insertResult, row); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// LatestCandidates returns the roster of the most recent session that saved
// candidates, in insertion order.
func (s *Store) LatestCandidates(ctx context.Context, limit int) ([]sink.CandidateRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	var rows []candidateRow
	if err := s.DB.SelectContext(ctx, &rows, selectLatestCandidates, limit); err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	return fromCandidateRows(rows)
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// WithTx runs fn inside a transaction, rolling back when fn fails.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func toSessionRow(run sink.RunDescriptor) (sessionRow, error) {
	criteria, err := json.Marshal(run.Criteria)
	if err != nil {
		return sessionRow{}, fmt.Errorf("encode criteria: %w", err)
	}
	return sessionRow{
		ID:                   run.ID,
		TotalCandidates:      run.TotalCandidates,
		Criteria:             types.JSONText(criteria),
		ObservationThreshold: run.ObservationThreshold,
	}, nil
}

func toCandidateRows(runID string, candidates []sink.CandidateRecord) ([]candidateRow, error) {
	rows := make([]candidateRow, len(candidates))
	for i, c := range candidates {
		values, err := json.Marshal(c.CriteriaValues)
		if err != nil {
			return nil, fmt.Errorf("encode criteria values of %q: %w", c.Name, err)
		}
		rows[i] = candidateRow{SessionID: runID, Name: c.Name, CriteriaValues: types.JSONText(values)}
	}
	return rows, nil
}

func fromCandidateRows(rows []candidateRow) ([]sink.CandidateRecord, error) {
	out := make([]sink.CandidateRecord, len(rows))
	for i, r := range rows {
		values := map[string]int{}
		if len(r.CriteriaValues) > 0 {
			if err := r.CriteriaValues.Unmarshal(&values); err != nil {
				return nil, fmt.Errorf("decode criteria values of %q: %w", r.Name, err)
			}
		}
		out[i] = sink.CandidateRecord{Name: r.Name, CriteriaValues: values}
	}
	return out, nil
}

func toResultRow(runID string, result sink.ResultRecord) (resultRow, error) {
	scores, err := json.Marshal(result.SelectedCandidateScore)
	if err != nil {
		return resultRow{}, fmt.Errorf("encode selected scores: %w", err)
	}
	return resultRow{
		SessionID:               runID,
		Score:                   result.Score,
		TotalQuestions:          result.TotalQuestions,
		SuccessRate:             result.SuccessRate,
		SelectedCandidateName:   result.SelectedCandidateName,
		SelectedCandidateScores: types.JSONText(scores),
		TotalCandidates:         result.TotalCandidates,
		RankPosition:            result.RankPosition,
	}, nil
}
