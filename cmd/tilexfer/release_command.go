package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReleaseCommand(cc *commandContext) *cobra.Command {
	var dbTimeoutMsec int

	cmd := &cobra.Command{
		Use:   "release DB",
		Short: "Return all leased jobs to the pool immediately",
		Long: "Clears every lease without waiting for expiry. Use after killing " +
			"workers so the remaining fleet can pick their jobs up right away.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cc.openStore(args[0], dbTimeoutMsec)
			if err != nil {
				return err
			}
			defer store.Close()

			released, err := store.Release(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "released %d leases\n", released)
			return nil
		},
	}

	cmd.Flags().IntVar(&dbTimeoutMsec, "db-timeout", 0, "SQLite busy timeout in milliseconds")
	return cmd
}
