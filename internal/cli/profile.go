package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/procspawn/internal/config"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Work with launch profiles",
	}
	cmd.AddCommand(newProfileLintCmd())
	return cmd
}

func newProfileLintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint <profile>...",
		Short: "Validate launch profiles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var firstErr error
			for _, path := range args {
				if _, err := config.Load(path); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", path)
			}
			if firstErr != nil {
				return &exitError{code: 1}
			}
			return nil
		},
	}
}
