package sink

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrUnsupported is returned by Async.LatestCandidates when the wrapped sink
// cannot load rosters.
var ErrUnsupported = errors.New("sink: operation not supported")

const (
	DefaultQueueSize    = 64
	DefaultWriteTimeout = 10 * time.Second
)

type job struct {
	op    string
	runID string
	fn    func(ctx context.Context) error
}

// Async wraps a Sink so that writes never block the caller. Writes run in
// order on one background goroutine, each bounded by a timeout; failures are
// logged and dropped. StartRun returns the ID proposed in the descriptor,
// so wrapped sinks must store runs under that ID.
type Async struct {
	next    Sink
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	jobs   chan job
	done   chan struct{}

	dropped atomic.Int64
	failed  atomic.Int64
}

// NewAsync starts the background writer. queueSize <= 0 selects
// DefaultQueueSize; timeout <= 0 selects DefaultWriteTimeout.
func NewAsync(next Sink, queueSize int, timeout time.Duration) *Async {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	a := &Async{
		next:    next,
		timeout: timeout,
		jobs:    make(chan job, queueSize),
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for j := range a.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := j.fn(ctx)
		cancel()
		if err != nil {
			a.failed.Add(1)
			logrus.WithFields(logrus.Fields{"op": j.op, "run_id": j.runID}).Warnf("sink write failed: %v", err)
		}
	}
}

func (a *Async) enqueue(j job) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		a.dropped.Add(1)
		logrus.WithFields(logrus.Fields{"op": j.op, "run_id": j.runID}).Warn("sink closed; write dropped")
		return
	}
	select {
	case a.jobs <- j:
	default:
		a.dropped.Add(1)
		logrus.WithFields(logrus.Fields{"op": j.op, "run_id": j.runID}).Warn("sink queue full; write dropped")
	}
}

func (a *Async) StartRun(_ context.Context, run RunDescriptor) (string, error) {
	a.enqueue(job{op: "start_run", runID: run.ID, fn: func(ctx context.Context) error {
		_, err := a.next.StartRun(ctx, run)
		return err
	}})
	return run.ID, nil
}

func (a *Async) SaveCandidates(_ context.Context, runID string, candidates []CandidateRecord) error {
	a.enqueue(job{op: "save_candidates", runID: runID, fn: func(ctx context.Context) error {
		return a.next.SaveCandidates(ctx, runID, candidates)
	}})
	return nil
}

func (a *Async) SaveResult(_ context.Context, runID string, result ResultRecord) error {
	a.enqueue(job{op: "save_result", runID: runID, fn: func(ctx context.Context) error {
		return a.next.SaveResult(ctx, runID, result)
	}})
	return nil
}

// LatestCandidates reads synchronously from the wrapped sink.
func (a *Async) LatestCandidates(ctx context.Context, limit int) ([]CandidateRecord, error) {
	l, ok := a.next.(Loader)
	if !ok {
		return nil, ErrUnsupported
	}
	return l.LatestCandidates(ctx, limit)
}

// Close drains queued writes and closes the wrapped sink. Safe to call twice.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return nil
	}
	a.closed = true
	close(a.jobs)
	a.mu.Unlock()

	<-a.done
	return a.next.Close()
}

// Dropped returns the number of writes discarded because the queue was full
// or the sink was closed.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Failed returns the number of writes the wrapped sink rejected.
func (a *Async) Failed() int64 { return a.failed.Load() }
