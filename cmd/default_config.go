package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/secretary-sim/secretary-sim/sim"
	"github.com/secretary-sim/secretary-sim/sim/sink"
)

// GameConfig holds the setup defaults of an interactive run.
type GameConfig struct {
	TotalCandidates   int      `yaml:"total_candidates"`
	Criteria          []string `yaml:"criteria"` // appended after the default criteria
	Customize         bool     `yaml:"customize"`
	PermitEarlySelect bool     `yaml:"permit_early_select"`
	ReuseRoster       bool     `yaml:"reuse_roster"`
}

// SinkConfig selects where run records go.
type SinkConfig struct {
	Kind         string        `yaml:"kind"` // none | ndjson | postgres
	Path         string        `yaml:"path"` // ndjson: run log file
	Dir          string        `yaml:"dir"`  // ndjson: directory for a timestamped log when path is empty
	DSN          string        `yaml:"dsn"`  // postgres: falls back to $DATABASE_URL
	QueueSize    int           `yaml:"queue_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ExperimentConfig holds trial batch defaults.
type ExperimentConfig struct {
	Trials          int     `yaml:"trials"`
	Candidates      int     `yaml:"candidates"`
	Strategy        string  `yaml:"strategy"` // a strategy name or "all"
	Seed            int64   `yaml:"seed"`
	Workers         int     `yaml:"workers"`
	ConfidenceLevel float64 `yaml:"confidence_level"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Config represents the full defaults.yaml structure.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Config struct {
	Version    string           `yaml:"version"`
	Game       GameConfig       `yaml:"game"`
	Sink       SinkConfig       `yaml:"sink"`
	Experiment ExperimentConfig `yaml:"experiment"`
	Server     ServerConfig     `yaml:"server"`
}

// defaultConfig mirrors defaults.yaml for runs without a config file.
func defaultConfig() Config {
	return Config{
		Version: "1",
		Game:    GameConfig{TotalCandidates: sim.MinCandidates},
		Sink: SinkConfig{
			Kind:         "ndjson",
			Path:         "runs/runs.jsonl",
			Dir:          "runs",
			QueueSize:    sink.DefaultQueueSize,
			WriteTimeout: sink.DefaultWriteTimeout,
		},
		Experiment: ExperimentConfig{
			Trials:          1000,
			Candidates:      100,
			Strategy:        "all",
			Seed:            42,
			ConfidenceLevel: 0.95,
		},
		Server: ServerConfig{Addr: ":8000"},
	}
}

// loadDefaultsConfig parses path over the built-in defaults. A missing file
// yields the built-in defaults unchanged. Uses strict field checking.
func loadDefaultsConfig(path string) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logrus.Debugf("no defaults file at %s, using built-in defaults", path)
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read defaults file: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse defaults YAML %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Sink.Kind {
	case "none", "ndjson", "postgres":
	default:
		return fmt.Errorf("sink.kind %q; valid options: none, ndjson, postgres", c.Sink.Kind)
	}
	if c.Experiment.ConfidenceLevel <= 0 || c.Experiment.ConfidenceLevel >= 1 {
		return fmt.Errorf("experiment.confidence_level must be in (0, 1), got %v", c.Experiment.ConfidenceLevel)
	}
	return nil
}

// criteriaSet builds the default criteria followed by the configured extras.
func (g GameConfig) criteriaSet() (*sim.CriteriaSet, error) {
	set := sim.NewCriteriaSet()
	for _, name := range g.Criteria {
		if _, err := set.Add(name); err != nil {
			return nil, fmt.Errorf("game.criteria: %w", err)
		}
	}
	return set, nil
}
