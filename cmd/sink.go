package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/secretary-sim/secretary-sim/sim/sink"
	"github.com/secretary-sim/secretary-sim/sim/sink/ndjson"
	"github.com/secretary-sim/secretary-sim/sim/sink/postgres"
)

// openSink builds the configured sink behind a non-blocking writer.
func openSink(ctx context.Context, cfg SinkConfig) (*sink.Async, error) {
	var next sink.Sink
	switch cfg.Kind {
	case "none", "":
		next = sink.Nop{}
	case "ndjson":
		path := cfg.Path
		if path == "" {
			path = ndjson.DefaultPath(cfg.Dir)
		}
		store, err := ndjson.Open(path)
		if err != nil {
			return nil, err
		}
		logrus.Infof("recording runs to %s", store.Path())
		next = store
	case "postgres":
		store, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		logrus.Info("recording runs to postgres")
		next = store
	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Kind)
	}
	return sink.NewAsync(next, cfg.QueueSize, cfg.WriteTimeout), nil
}

func closeSink(s *sink.Async) {
	if err := s.Close(); err != nil {
		logrus.Warnf("closing sink: %v", err)
	}
	if n := s.Dropped(); n > 0 {
		logrus.Warnf("%d run records dropped", n)
	}
	if n := s.Failed(); n > 0 {
		logrus.Warnf("%d run records failed to write", n)
	}
}
