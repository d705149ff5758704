package main

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/teamboard/internal/service"
	"github.com/mschirtzinger/teamboard/internal/transport/mcp"
)

var mcpCmd = &cobra.Command{
	Use:     "mcp",
	GroupID: "data",
	Short:   "Serve MCP tools over stdio",
	Long: `Serve the teamboard MCP tools on stdin/stdout against the data
directory. Mutations are audited as user "mcp" (or --user). Logs go to
log.file or stderr, never stdout.

The data directory lock means this cannot run next to "teamboard serve";
enable mcp.enabled on the server to reach the tools over HTTP instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context(), service.Options{})
		if err != nil {
			return err
		}
		defer app.Close()

		user, _ := cmd.Flags().GetString("user")
		s := server.NewMCPServer("teamboard", Version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		)
		mcp.Register(s, app, user)
		return server.ServeStdio(s)
	},
}

func init() {
	mcpCmd.Flags().String("user", mcp.DefaultUser, "user id recorded on mutations")
	rootCmd.AddCommand(mcpCmd)
}
