package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/emeryray2002/mcp-secops-v3/mcp"
)

// newToolsCommand prints the tools/list payload without contacting Chronicle.
func newToolsCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the MCP tools/list response as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bindConfig(v)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			out, err := mcp.BuildToolsListResponseJSON(cmd.Context(), cfg.MCP)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
