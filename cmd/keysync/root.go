package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dshills/keysync/internal/app"
	"github.com/dshills/keysync/internal/config"
	"github.com/dshills/keysync/internal/logging"
)

type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	noLSP      bool
	noGit      bool
	noWatch    bool
	debounce   time.Duration
	tick       time.Duration
	open       []string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "keysync [root]",
		Short: "Keep open documents in sync with disk, git and language servers",
		Long: `keysync runs the sync core against a project directory.

It watches the tree for external changes, reloads clean documents that
changed on disk, raises conflicts for dirty ones, refreshes git status in
the background and autosaves unsaved buffers. Files passed with --open are
opened at startup and announced to their language servers.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			return runSync(cmd.Context(), root, flags)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&flags.configPath, "config", "c", "", "Path to configuration file")
	f.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.StringVar(&flags.logFormat, "log-format", "", "Log format (text, json)")

	cmd.Flags().BoolVar(&flags.noLSP, "no-lsp", false, "Disable language servers")
	cmd.Flags().BoolVar(&flags.noGit, "no-git", false, "Disable the git worker")
	cmd.Flags().BoolVar(&flags.noWatch, "no-watch", false, "Do not watch the filesystem")
	cmd.Flags().DurationVar(&flags.debounce, "debounce", 0, "Override the refresh debounce window")
	cmd.Flags().DurationVar(&flags.tick, "tick", 50*time.Millisecond, "Event loop tick interval")
	cmd.Flags().StringSliceVar(&flags.open, "open", nil, "Files to open at startup")

	cmd.AddCommand(newGitCmd(&flags))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// loadConfig loads the configuration and applies the flags shared by every
// subcommand, then configures logging from the result.
func loadConfig(flags *rootFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return cfg, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}
	logging.Configure(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	return cfg, nil
}

func runSync(ctx context.Context, root string, flags rootFlags) error {
	cfg, err := loadConfig(&flags)
	if err != nil {
		return err
	}
	if flags.noLSP {
		cfg.LSP.Enabled = false
	}
	if flags.noGit {
		cfg.Git.Enabled = false
	}
	if flags.debounce > 0 {
		cfg.Watch.Debounce = flags.debounce
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if flags.tick <= 0 {
		flags.tick = 50 * time.Millisecond
	}

	log := logging.NewLogger("main")

	application, err := app.New(app.Options{
		Root:    root,
		Config:  &cfg,
		NoWatch: flags.noWatch,
	})
	if err != nil {
		return err
	}
	defer application.Shutdown()

	for _, path := range flags.open {
		if _, err := application.Open(path); err != nil {
			log.WithError(err).Warn("open failed")
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("root", application.Root()).Info("sync started")
	ticker := time.NewTicker(flags.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m := application.Metrics().Snapshot()
			log.WithFields(logrus.Fields{
				"uptime":    m.Uptime.Round(time.Millisecond).String(),
				"ticks":     m.Ticks,
				"refreshes": m.Refreshes,
				"reloads":   m.Reloads,
				"conflicts": m.Conflicts,
				"git_runs":  m.GitRuns,
				"autosaves": m.AutosaveWrites,
			}).Info("sync stopped")
			return nil
		case now := <-ticker.C:
			application.Tick(now)
		}
	}
}
