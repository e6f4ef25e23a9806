// Package main is finsightctl, the command line client for FinSight.
package main

import (
	"os"

	"github.com/kiranshivaraju/finsight/internal/cli"
	"github.com/spf13/cobra"
)

func main() {
	command := NewFinsightCtlCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewFinsightCtlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "finsightctl [flags] [options]",
		Short: "finsightctl submits reports to FinSight and manages its API keys.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdAnalyze())
	cmd.AddCommand(cli.NewCmdStatus())
	cmd.AddCommand(cli.NewCmdKeys())

	return cmd
}
