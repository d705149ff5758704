// Command teamboard serves and administers a teamboard data directory.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/teamboard/internal/config"
	"github.com/mschirtzinger/teamboard/internal/logging"
	"github.com/mschirtzinger/teamboard/internal/service"
	"github.com/mschirtzinger/teamboard/internal/ui"
)

// Set with -ldflags at release time.
var (
	Version = "dev"
	Commit  = "unknown"
)

var (
	cfgFile string
	noColor bool
	dataDir string

	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "teamboard",
	Short:         "Team task and assignment board",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.Setup(os.Stdout, noColor)

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if dataDir != "" {
			loaded.Storage.DataDir = dataDir
		}
		cfg = loaded

		logger, logCloser, err = logging.New(cfg.Log, os.Stderr)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "server", Title: "Server:"},
		&cobra.Group{ID: "data", Title: "Data directory:"},
		&cobra.Group{ID: "remote", Title: "Talk to a running server:"},
	)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./"+config.DefaultFileName+")")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override storage.dataDir")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// openApp opens the data directory described by cfg.
func openApp(ctx context.Context, opts service.Options) (*service.App, error) {
	opts.DataDir = cfg.Storage.DataDir
	opts.FailFast = cfg.Storage.FailFast
	opts.Lock = cfg.Storage.Lock
	opts.IndexPath = cfg.ResolvedIndexPath()
	opts.Logger = logger
	return service.Open(ctx, opts)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.Failure.Render("Error:"), err)
		os.Exit(1)
	}
}
