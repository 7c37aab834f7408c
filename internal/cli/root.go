// Package cli wires the cobra command tree for the dashboard binary.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "dashboard",
		Short:        "Monitoring dashboard for Claude Code team sessions",
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCmd())

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version != "" {
		cmd.Version = version
	} else {
		cmd.Version = "dev"
	}

	return cmd
}
