// Package ndjson implements a file sink that appends run records as
// newline-delimited JSON.
package ndjson

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/secretary-sim/secretary-sim/sim/sink"
)

// EventType identifies the kind of record on a line.
type EventType string

const (
	EventRunStart   EventType = "run_start"
	EventCandidates EventType = "candidates"
	EventResult     EventType = "result"
)

// Event is a single timestamped line of the log.
type Event struct {
	Timestamp  time.Time              `json:"timestamp"`
	Type       EventType              `json:"type"`
	RunID      string                 `json:"run_id"`
	Run        *sink.RunDescriptor    `json:"run,omitempty"`
	Candidates []sink.CandidateRecord `json:"candidates,omitempty"`
	Result     *sink.ResultRecord     `json:"result,omitempty"`
}

// Store appends events to one file.
type Store struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	path string
	now  func() time.Time
}

// Open creates a store appending to path. Parent directories are created
// automatically.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating run log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening run log: %w", err)
	}
	return &Store{
		file: f,
		enc:  json.NewEncoder(f),
		path: path,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Store) write(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.Timestamp = s.now()
	return s.enc.Encode(ev)
}

func (s *Store) StartRun(_ context.Context, run sink.RunDescriptor) (string, error) {
	if err := s.write(Event{Type: EventRunStart, RunID: run.ID, Run: &run}); err != nil {
		return "", err
	}
	return run.ID, nil
}

func (s *Store) SaveCandidates(_ context.Context, runID string, candidates []sink.CandidateRecord) error {
	return s.write(Event{Type: EventCandidates, RunID: runID, Candidates: candidates})
}

func (s *Store) SaveResult(_ context.Context, runID string, result sink.ResultRecord) error {
	return s.write(Event{Type: EventResult, RunID: runID, Result: &result})
}

// LatestCandidates returns up to limit records from the last candidates line
// in the file. A missing file yields no records.
func (s *Store) LatestCandidates(_ context.Context, limit int) ([]sink.CandidateRecord, error) {
	events, err := ReadEvents(s.path)
	if err != nil {
		return nil, err
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type != EventCandidates {
			continue
		}
		recs := events[i].Candidates
		if limit > 0 && len(recs) > limit {
			recs = recs[:limit]
		}
		return recs, nil
	}
	return nil, nil
}

// Close closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// Path returns the file path of the run log.
func (s *Store) Path() string {
	return s.path
}

// ReadEvents parses every line of the log at path.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening run log: %w", err)
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("parsing run log line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading run log: %w", err)
	}
	return events, nil
}

// DefaultPath returns a timestamped run log path inside dir.
func DefaultPath(dir string) string {
	ts := time.Now().UTC().Format("20060102T150405Z")
	return filepath.Join(dir, fmt.Sprintf("%s-runs.jsonl", ts))
}
