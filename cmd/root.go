package cmd

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel    string // Log verbosity level
	configPath  string // Path to defaults.yaml
	seed        int64  // Seed for ratings, presentation order and strategies
	sinkKind    string // Overrides sink.kind
	sinkPath    string // Overrides sink.path
	databaseURL string // Overrides sink.dsn
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "secretary-sim",
	Short: "Interactive optimal-stopping (secretary problem) simulator",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return nil
	},
	SilenceUsage: true,
}

// loadConfig reads the defaults file and applies persistent flag overrides.
// Flags win only when the user set them explicitly.
func loadConfig(cmd *cobra.Command) Config {
	cfg, err := loadDefaultsConfig(configPath)
	if err != nil {
		logrus.Fatalf("unable to load config: %v", err)
	}
	flags := cmd.Flags()
	if flags.Changed("sink") {
		cfg.Sink.Kind = sinkKind
	}
	if flags.Changed("sink-path") {
		cfg.Sink.Path = sinkPath
	}
	if flags.Changed("database-url") {
		cfg.Sink.DSN = databaseURL
	}
	if err := cfg.validate(); err != nil {
		logrus.Fatalf("invalid config: %v", err)
	}
	return cfg
}

// runSeed returns --seed when given, otherwise fallback.
func runSeed(cmd *cobra.Command, fallback int64) int64 {
	if cmd.Flags().Changed("seed") {
		return seed
	}
	return fallback
}

// clockSeed seeds interactive runs that were not given --seed.
func clockSeed() int64 {
	return time.Now().UnixNano()
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up persistent flags
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "defaults.yaml", "Path to the defaults YAML file")
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", 0, "Seed for generated ratings and presentation order (default: clock for play/serve, config for simulate)")
	rootCmd.PersistentFlags().StringVar(&sinkKind, "sink", "", "Run record sink: none, ndjson, postgres (default from config)")
	rootCmd.PersistentFlags().StringVar(&sinkPath, "sink-path", "", "NDJSON run log file (default from config)")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL DSN (default from config or $DATABASE_URL)")
}
