// lasertagctl drives combat-vehicle policy training runs: train, evaluate,
// list and export runs, inspect checkpoints.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"lasertag/internal/config"
	"lasertag/internal/logging"
	lasertag "lasertag/pkg/lasertag"
)

func main() {
	// .env is optional; flags and the config file win over it.
	_ = godotenv.Load()

	// SIGINT/SIGTERM cancel the context; running commands observe it at a
	// whole-step boundary and write an interrupted checkpoint.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// rootFlags are the global options every subcommand resolves its
// configuration through.
type rootFlags struct {
	configPath    string
	store         string
	dbPath        string
	runsDir       string
	checkpointDir string
	logLevel      string
	logFormat     string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "lasertagctl",
		Short:         "Train and evaluate combat-vehicle policies in the laser-tag arena",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", os.Getenv("LASERTAG_CONFIG"), "path to a YAML config file")
	root.PersistentFlags().StringVar(&flags.store, "store", "", "run-record backend (memory or sqlite)")
	root.PersistentFlags().StringVar(&flags.dbPath, "db-path", "", "sqlite database path")
	root.PersistentFlags().StringVar(&flags.runsDir, "runs-dir", "", "directory run artifacts are written under")
	root.PersistentFlags().StringVar(&flags.checkpointDir, "checkpoint-dir", "", "directory checkpoints are written under")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (trace..error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format (console or json)")

	root.AddCommand(
		newTrainCmd(flags),
		newEvalCmd(flags),
		newRunsCmd(flags),
		newExportCmd(flags),
		newInspectCmd(flags),
	)
	return root
}

// loadConfig reads the config file (or defaults) and overlays the global
// flags that were set explicitly.
func (f *rootFlags) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	persistent := cmd.Root().PersistentFlags()
	if persistent.Changed("store") {
		cfg.Store = f.store
	}
	if persistent.Changed("db-path") {
		cfg.DBPath = f.dbPath
	}
	if persistent.Changed("runs-dir") {
		cfg.RunsDir = f.runsDir
	}
	if persistent.Changed("checkpoint-dir") {
		cfg.CheckpointDir = f.checkpointDir
	}
	if persistent.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if persistent.Changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newClient builds the facade client for a resolved configuration. The caller
// owns Close.
func newClient(cfg config.Config) (*lasertag.Client, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return lasertag.New(lasertag.Options{
		StoreKind:     cfg.Store,
		DBPath:        cfg.DBPath,
		RunsDir:       cfg.RunsDir,
		CheckpointDir: cfg.CheckpointDir,
		Logger:        logger,
	})
}

func opponentOverride(cfg config.Config) lasertag.OpponentOverride {
	return lasertag.OpponentOverride{
		Tier:       cfg.Opponent.Tier,
		NoiseScale: cfg.Opponent.NoiseScale,
	}
}
