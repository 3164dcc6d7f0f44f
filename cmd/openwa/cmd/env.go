package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jdelaire/openwa/internal/config"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "List the environment variables openwa reads",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := config.Usage()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}
