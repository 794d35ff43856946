// Package main is the entry point for the spaceship comparator.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spaceshipgen/comparator/internal/config"
	"github.com/spaceshipgen/comparator/internal/domain"
	"github.com/spaceshipgen/comparator/internal/store"
	"github.com/spaceshipgen/comparator/internal/structure"
	"github.com/spaceshipgen/comparator/internal/workflow"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	// Global flags
	verbose     bool
	configPath  string
	dbPath      string
	builderName string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "comparator",
	Short: "Blind side-by-side comparison of generated spaceships",
	Long: `comparator runs the spaceship comparison experiment.

Participants upload three spaceships, one per experiment slot, each produced
by a different generation strategy. The strategy behind each slot is hidden;
after ranking the three ships the session is exported, mapping every rank
back to its strategy.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, path, err := config.LoadOrDefault(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		if dbPath != "" {
			cfg.DBPath = dbPath
		}

		logger, err = newLogger(cfg.LogLevel, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if path != "" {
			logger.Debug("config loaded", zap.String("path", path))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "comparator %s (commit=%s, built=%s)\n", version, commit, date)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $"+config.EnvConfigPath+" or config.yaml next to the binary)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides db_path)")
	rootCmd.PersistentFlags().StringVar(&builderName, "builder", "", "Structure builder to use (default: default_builder)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(tallyCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(batchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level string, debug bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zc.Level = lvl
	if debug {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build()
}

// newReconstructor builds the cached reconstructor for the selected builder.
// Without a configured builder every reconstruction fails with
// ErrBuilderUnavailable while decoding and sessions keep working.
func newReconstructor(c *config.Config) (structure.Reconstructor, error) {
	descriptors, err := c.DescriptorSet()
	if err != nil {
		return nil, err
	}
	name := builderName
	if name == "" {
		name = c.DefaultBuilder
	}

	var b structure.Builder
	if name == "" {
		b = structure.BuilderFunc(func(context.Context, string) (*structure.Structure, error) {
			return nil, domain.NewEngineError(domain.ErrBuilderUnavailable.Code,
				domain.ErrBuilderUnavailable.Message+": no builder configured")
		})
	} else {
		reg, err := c.Registry()
		if err != nil {
			return nil, err
		}
		pb, err := reg.Builder(name)
		if err != nil {
			return nil, fmt.Errorf("builder %q: %w", name, err)
		}
		b = pb
	}

	var r structure.Reconstructor = structure.NewAssembler(b, descriptors)
	if c.CacheSize > 0 {
		r = structure.NewCache(r, c.CacheSize)
	}
	return r, nil
}

// openEngine opens the database and wires the engine. reg may be nil.
func openEngine(c *config.Config, reg prometheus.Registerer) (*workflow.Engine, *sql.DB, error) {
	r, err := newReconstructor(c)
	if err != nil {
		return nil, nil, err
	}
	db, err := store.NewDB(c.DBPath)
	if err != nil {
		return nil, nil, err
	}
	eng := workflow.NewEngine(db, r, workflow.EngineConfig{
		Labels:           c.Labels,
		StrictRanks:      c.StrictRanks,
		UploadsPerMinute: c.UploadsPerMinute,
		ExportDir:        c.ExportDir,
	})
	eng.Logger = logger
	if reg != nil {
		eng.Metrics = workflow.NewMetrics(reg)
	}
	return eng, db, nil
}

// parseRanks reads "1=3,2=1,3=2" into slot ranks.
func parseRanks(s string) (domain.Ranks, error) {
	ranks := make(domain.Ranks)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("rank %q must be slot=rank", part)
		}
		slot, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("rank %q: bad slot: %w", part, err)
		}
		rank, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("rank %q: bad rank: %w", part, err)
		}
		ranks[domain.Slot(slot)] = rank
	}
	return ranks, nil
}
