package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/teamboard/internal/ui"
)

var auditCmd = &cobra.Command{
	Use:     "audit",
	GroupID: "remote",
	Short:   "Show recent mutations",
	Long: `Print the audit log of a running server, newest first.

  teamboard audit --type tasks --limit 20
  teamboard audit --by ada --since "last monday"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		for flag, param := range map[string]string{
			"type":   "entityType",
			"id":     "entityId",
			"by":     "userId",
			"action": "action",
			"since":  "since",
			"until":  "until",
		} {
			if v, _ := cmd.Flags().GetString(flag); v != "" {
				q.Set(param, v)
			}
		}
		limit, _ := cmd.Flags().GetInt("limit")
		q.Set("limit", strconv.Itoa(limit))

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		entries, err := c.Audit(cmd.Context(), q)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), ui.Subtle.Render("No audit records"))
			return nil
		}

		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{
				e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				e.UserID,
				ui.Action(string(e.Action)),
				string(e.EntityType),
				e.TargetID,
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Table([]string{"Time", "User", "Action", "Kind", "Entity"}, rows))
		return nil
	},
}

func init() {
	auditCmd.Flags().String("type", "", "entity kind (task or tasks)")
	auditCmd.Flags().String("id", "", "entity id")
	auditCmd.Flags().String("by", "", "acting user id")
	auditCmd.Flags().String("action", "", "CREATE, UPDATE or DELETE")
	auditCmd.Flags().String("since", "", "only records at or after this date")
	auditCmd.Flags().String("until", "", "only records before this date")
	auditCmd.Flags().IntP("limit", "n", 50, "maximum records")
	addRemoteFlags(auditCmd)
	rootCmd.AddCommand(auditCmd)
}
