package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/teamboard/internal/service"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "remote",
	Short:   "Download every collection as one document",
	Long: `Download the export document of a running server.

  teamboard export --format toml -o board.toml
  teamboard export --offline > board.yaml     # read the data directory directly`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		switch format {
		case service.FormatYAML, service.FormatJSON, service.FormatTOML:
		default:
			return fmt.Errorf("unknown format %q (want yaml, json or toml)", format)
		}

		var out io.Writer = cmd.OutOrStdout()
		if path, _ := cmd.Flags().GetString("output"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		if offline, _ := cmd.Flags().GetBool("offline"); offline {
			app, err := openApp(cmd.Context(), service.Options{})
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Export(out, format)
		}

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		return c.Export(cmd.Context(), format, out)
	},
}

func init() {
	exportCmd.Flags().StringP("format", "f", service.FormatYAML, "yaml, json or toml")
	exportCmd.Flags().StringP("output", "o", "", "write to a file instead of stdout")
	exportCmd.Flags().Bool("offline", false, "read the data directory instead of a server")
	addRemoteFlags(exportCmd)
	rootCmd.AddCommand(exportCmd)
}
