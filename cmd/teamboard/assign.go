package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/teamboard/internal/datespec"
	"github.com/mschirtzinger/teamboard/internal/schema"
	"github.com/mschirtzinger/teamboard/internal/ui"
)

var assignCmd = &cobra.Command{
	Use:     "assign <task-id> <person-id>",
	GroupID: "remote",
	Short:   "Assign a task to a person for a day",
	Long: `Create an assignment on a running server.

--date accepts YYYY-MM-DD or natural language resolved against today:
  teamboard assign t-1 ada --date tomorrow
  teamboard assign t-1 ada --date "next friday"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("date")
		date, err := datespec.Format(raw, time.Now())
		if err != nil {
			return err
		}
		note, _ := cmd.Flags().GetString("note")

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		created, err := c.Create(cmd.Context(), schema.Assignment{
			TaskID:   args[0],
			PersonID: args[1],
			Date:     date,
			Note:     note,
		})
		if err != nil {
			return err
		}
		a := created.(schema.Assignment)
		fmt.Fprintf(cmd.OutOrStdout(), "%s Assigned %s to %s on %s %s\n",
			ui.Success.Render("✓"), a.TaskID, a.PersonID, a.Date, ui.Subtle.Render("("+a.ID+")"))
		return nil
	},
}

func init() {
	assignCmd.Flags().StringP("date", "d", "today", "day of the assignment")
	assignCmd.Flags().String("note", "", "optional note")
	addRemoteFlags(assignCmd)
	rootCmd.AddCommand(assignCmd)
}
