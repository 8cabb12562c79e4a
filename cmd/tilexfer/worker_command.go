package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"tilexfer/internal/ledger"
	"tilexfer/internal/resin"
	"tilexfer/internal/storage"
	"tilexfer/internal/worker"
)

func newWorkerCommand(cc *commandContext) *cobra.Command {
	var (
		blockSize     int
		leaseMsec     int
		dbTimeoutMsec int
		rampSec       int
		codecThreads  int
		detector      string
		progress      bool
		cleanup       bool
	)

	cmd := &cobra.Command{
		Use:   "worker DB",
		Short: "Process jobs from a transfer ledger until it is drained",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cc.ensureLogger()
			if err != nil {
				return err
			}
			if blockSize <= 0 {
				blockSize = cfg.Transfer.BlockSize
			}
			if leaseMsec <= 0 {
				leaseMsec = cfg.Transfer.LeaseMsec
			}
			if rampSec < 0 {
				rampSec = cfg.Transfer.RampSec
			}
			if codecThreads <= 0 {
				codecThreads = cfg.Transfer.CodecThreads
			}

			store, err := cc.openStore(args[0], dbTimeoutMsec)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			meta, err := store.Meta(ctx)
			if err != nil {
				return err
			}
			source := storage.NewLocal(meta.Source)
			dest := storage.NewLocal(meta.Dest)

			var gate *resin.Gate
			if meta.ResinAction != ledger.ActionNoop {
				detect, err := resin.LookupDetector(detector)
				if err != nil {
					return err
				}
				gate, err = resin.NewGate(resin.Options{
					Action:  meta.ResinAction,
					Detect:  detect,
					Source:  meta.Source,
					Backend: source,
					LogDir:  cfg.Paths.LogDir,
					Logger:  logger,
				})
				if err != nil {
					return err
				}
			}

			w, err := worker.New(worker.Options{
				Store:         store,
				Source:        source,
				Dest:          dest,
				Gate:          gate,
				BlockSize:     blockSize,
				LeaseDuration: time.Duration(leaseMsec) * time.Millisecond,
				RampUp:        time.Duration(rampSec) * time.Second,
				CodecThreads:  codecThreads,
				Cleanup:       cleanup,
				ShowProgress:  progress && isatty.IsTerminal(os.Stderr.Fd()),
				Logger:        logger,
			})
			if err != nil {
				return err
			}
			return w.Run(ctx)
		},
	}

	cmd.Flags().IntVar(&blockSize, "block-size", 0, "Jobs claimed per batch (0 = config default)")
	cmd.Flags().IntVar(&leaseMsec, "lease-msec", 0, "Lease duration in milliseconds (0 = config default)")
	cmd.Flags().IntVar(&dbTimeoutMsec, "db-timeout", 0, "SQLite busy timeout in milliseconds")
	cmd.Flags().IntVar(&rampSec, "ramp-sec", -1, "Seconds to ramp the batch size up to --block-size")
	cmd.Flags().IntVar(&codecThreads, "codec-threads", 0, "Encoder thread hint (0 = config default)")
	cmd.Flags().StringVar(&detector, "detector", "tem", "Resin detector to use when the batch enables resin handling")
	cmd.Flags().BoolVar(&progress, "progress", false, "Show a progress bar (TTY only)")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Remove source tiles after confirmed transfer")

	return cmd
}
