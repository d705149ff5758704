package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/teamboard/internal/schema"
	"github.com/mschirtzinger/teamboard/internal/service"
	"github.com/mschirtzinger/teamboard/internal/ui"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	GroupID: "data",
	Short:   "Bring every document up to its current schema version",
	Long: `Load every document in the data directory, run pending migrations and
write the migrated documents back. Run it while the server is stopped; the
data directory lock makes it fail otherwise.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Migration failures must not be masked as empty collections.
		cfg.Storage.FailFast = true
		app, err := openApp(cmd.Context(), service.Options{})
		if err != nil {
			return err
		}
		defer app.Close()

		rows := make([][]string, 0, len(app.Collections())+1)
		for _, c := range app.Collections() {
			rows = append(rows, []string{
				c.Kind().Plural(),
				c.Path(),
				strconv.Itoa(c.Version()),
				strconv.Itoa(c.Len()),
			})
		}
		rows = append(rows, []string{
			schema.KindAuditLog.Plural(),
			app.AuditLogs.Path(),
			strconv.Itoa(app.AuditLogs.Version()),
			strconv.Itoa(app.AuditLogs.Len()),
		})

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.Table([]string{"Kind", "File", "Version", "Count"}, rows))
		if app.Index != nil {
			if err := app.SyncIndex(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s Audit index %s\n", ui.Success.Render("✓"), app.Index.Path())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
