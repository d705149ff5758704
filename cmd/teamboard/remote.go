package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/teamboard/internal/client"
)

// addRemoteFlags registers the flags shared by commands that talk to a
// running server.
func addRemoteFlags(cmd *cobra.Command) {
	cmd.Flags().String("server", "", "server URL (default http://localhost:<server.port>)")
	cmd.Flags().String("user", "", "acting user id (default $USER)")
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	serverURL, _ := cmd.Flags().GetString("server")
	if serverURL == "" {
		serverURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	user, _ := cmd.Flags().GetString("user")
	if user == "" {
		user = os.Getenv("USER")
	}
	return client.New(serverURL, user)
}
