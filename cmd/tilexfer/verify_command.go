package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tilexfer/internal/storage"
	"tilexfer/internal/verify"
)

func newVerifyCommand(cc *commandContext) *cobra.Command {
	var dbTimeoutMsec int

	cmd := &cobra.Command{
		Use:   "verify DB",
		Short: "Check that every source tile is accounted for",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cc.openStore(args[0], dbTimeoutMsec)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			meta, err := store.Meta(ctx)
			if err != nil {
				return err
			}
			report, err := verify.Run(ctx, store,
				storage.NewLocal(meta.Source), storage.NewLocal(meta.Dest))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if report.OK() {
				fmt.Fprintln(out, report.Summary())
				return nil
			}
			printList(out, "missing artifacts", report.Missing)
			printList(out, "unexpected artifacts", report.Extra)
			printList(out, "empty artifacts", report.Empty)
			printList(out, "incomplete in ledger", report.LedgerIncomplete)
			return errors.New(report.Summary())
		},
	}

	cmd.Flags().IntVar(&dbTimeoutMsec, "db-timeout", 0, "SQLite busy timeout in milliseconds")
	return cmd
}

func printList(out io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "%s (%d):\n", title, len(items))
	for _, item := range items {
		fmt.Fprintf(out, "  %s\n", item)
	}
}
