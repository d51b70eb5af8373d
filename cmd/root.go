// Package cmd is the narr command tree.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/metcalfc/narr/internal/config"
	"github.com/metcalfc/narr/internal/logging"
	"github.com/metcalfc/narr/internal/store"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// BuildInfo is injected via ldflags.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// annotation that keeps logs off the terminal for interactive commands.
const fileLogsOnly = "narr/file-logs-only"

type app struct {
	flags struct {
		config   string
		store    string
		dataDir  string
		logLevel string
	}

	cfg      *config.Config
	log      *zap.Logger
	closeLog func() error
	store    store.Store
}

// NewRootCmd builds the command tree.
func NewRootCmd(build BuildInfo) *cobra.Command {
	a := &app{log: zap.NewNop()}

	root := &cobra.Command{
		Use:   "narr",
		Short: "Narr reads EPUB books aloud from the terminal.",
		Long: `Narr imports EPUB books into a local library and narrates them sentence by
sentence through a text-to-speech program, remembering where you stopped.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", build.Version, build.Commit, build.Date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetVersionTemplate("narr {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.config, "config", "", "config file (default "+config.DefaultPath()+")")
	pf.StringVar(&a.flags.store, "store", "", "record store: file, sqlite, pebble, redis or memory")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "directory for the library and logs")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newImportCmd(a),
		newListCmd(a),
		newChaptersCmd(a),
		newPlayCmd(a),
		newPositionCmd(a),
		newRemoveCmd(a),
		newVoicesCmd(a),
	)
	return root
}

// Execute runs the command tree and exits non-zero on failure.
func Execute(build BuildInfo) {
	ctx := context.Background()
	if err := NewRootCmd(build).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.flags.config)
	if err != nil {
		return err
	}
	if a.flags.store != "" {
		cfg.Store.Type = a.flags.store
	}
	if a.flags.dataDir != "" {
		cfg.DataDir = a.flags.dataDir
	}
	if a.flags.logLevel != "" {
		cfg.Log.Level = a.flags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	a.cfg = cfg

	var console io.Writer
	if cfg.Log.Console && cmd.Annotations[fileLogsOnly] == "" {
		console = cmd.ErrOrStderr()
	}
	log, closeLog, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.LogFile(),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Console:    console,
	})
	if err != nil {
		return err
	}
	a.log, a.closeLog = log, closeLog

	s, err := openStore(cmd.Context(), cfg, log)
	if err != nil {
		_ = a.teardown()
		return errors.Wrapf(err, "open %s store", cfg.Store.Type)
	}
	a.store = s
	log.Debug("store opened", zap.String("type", cfg.Store.Type), zap.String("path", cfg.StorePath()))
	return nil
}

// run wraps a command body so the store and logs are closed however it ends.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if cerr := a.teardown(); err == nil {
			err = cerr
		}
		return err
	}
}

func (a *app) teardown() error {
	var first error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			first = errors.Wrap(err, "close store")
		}
		a.store = nil
	}
	if a.closeLog != nil {
		if err := a.closeLog(); err != nil && first == nil {
			first = err
		}
		a.closeLog = nil
	}
	return first
}
