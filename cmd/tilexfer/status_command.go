package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newStatusCommand(cc *commandContext) *cobra.Command {
	var dbTimeoutMsec int

	cmd := &cobra.Command{
		Use:   "status DB",
		Short: "Show transfer progress counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cc.openStore(args[0], dbTimeoutMsec)
			if err != nil {
				return err
			}
			defer store.Close()

			counts, err := store.CountSummary(cmd.Context())
			if err != nil {
				return err
			}
			rows := [][2]string{
				{"total", strconv.Itoa(counts.Total)},
				{"done", strconv.Itoa(counts.Done)},
				{"failed", strconv.Itoa(counts.Failed)},
				{"skipped_resin", strconv.Itoa(counts.Skipped)},
				{"leased", strconv.Itoa(counts.Leased)},
				{"available", strconv.Itoa(counts.Available)},
				{"remaining", strconv.Itoa(counts.Remaining())},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderCounts(rows))
			return nil
		},
	}

	cmd.Flags().IntVar(&dbTimeoutMsec, "db-timeout", 0, "SQLite busy timeout in milliseconds")
	return cmd
}
