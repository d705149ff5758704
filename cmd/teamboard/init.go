package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mschirtzinger/teamboard/internal/config"
	"github.com/mschirtzinger/teamboard/internal/service"
	"github.com/mschirtzinger/teamboard/internal/ui"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "data",
	Short:   "Write a config file and create the data directory",
	Long: `Write a teamboard config file and create every document in the data
directory at its current schema version.

On a terminal the settings are asked for interactively; pass --yes to accept
the defaults (and any --data-dir override) without prompting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultFileName
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && term.IsTerminal(int(os.Stdin.Fd())) {
			if err := askConfig(cfg); err != nil {
				return err
			}
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Write(path, cfg); err != nil {
			return err
		}

		app, err := openApp(cmd.Context(), service.Options{})
		if err != nil {
			return err
		}
		defer app.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s Wrote %s\n", ui.Success.Render("✓"), path)
		fmt.Fprintf(out, "%s Initialized %s\n", ui.Success.Render("✓"), app.DataDir())
		for _, c := range app.Collections() {
			fmt.Fprintf(out, "   %-12s v%d  %s\n", c.Kind().Plural(), c.Version(), c.Path())
		}
		return nil
	},
}

func askConfig(c *config.Config) error {
	port := strconv.Itoa(c.Server.Port)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Data directory").
				Description("Where the YAML documents live").
				Value(&c.Storage.DataDir).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("data directory is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Port").
				Value(&port).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 1 || n > 65535 {
						return errors.New("port must be between 1 and 65535")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Index the audit log in SQLite?").
				Value(&c.Audit.Index),
			huh.NewConfirm().
				Title("Reload documents edited on disk?").
				Value(&c.Storage.Watch),
			huh.NewConfirm().
				Title("Serve MCP tools over HTTP?").
				Value(&c.MCP.Enabled),
			huh.NewSelect[string]().
				Title("Log format").
				Options(huh.NewOptions("text", "json")...).
				Value(&c.Log.Format),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}
	c.Server.Port, _ = strconv.Atoi(port)
	return nil
}

func init() {
	initCmd.Flags().BoolP("yes", "y", false, "accept defaults without prompting")
	initCmd.Flags().Bool("force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
