package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"tilexfer/internal/codec"
	"tilexfer/internal/ledger"
	"tilexfer/internal/logging"
	"tilexfer/internal/storage"
)

func newInitCommand(cc *commandContext) *cobra.Command {
	var (
		dbPath        string
		ext           string
		encoding      string
		compression   string
		level         int
		jxlEffort     int
		jxlSpeed      int
		resinAction   string
		cleanup       bool
		maxAttempts   int
		dbTimeoutMsec int
	)

	cmd := &cobra.Command{
		Use:   "init SOURCE DEST",
		Short: "Enumerate source tiles and populate a transfer ledger",
		Long: "Scans SOURCE for tiles, records the batch configuration, and inserts " +
			"one pending job per tile. Re-running against the same ledger is " +
			"idempotent: existing jobs and configuration are kept.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, dest := args[0], args[1]
			if dbPath == "" {
				return errors.New("--db is required")
			}
			if encoding == "" {
				return errors.New("--encoding is required")
			}
			action, err := ledger.ParseAction(resinAction)
			if err != nil {
				return err
			}
			compression, err = codec.ParseCompression(compression)
			if err != nil {
				return err
			}
			if level < 0 || level > 100 {
				return fmt.Errorf("--level %d out of range (0-100)", level)
			}
			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}
			if maxAttempts <= 0 {
				maxAttempts = cfg.Transfer.MaxAttempts
			}
			logger, err := cc.ensureLogger()
			if err != nil {
				return err
			}
			logger = logging.NewComponentLogger(logger, "init")

			// Serialize concurrent inits against the same ledger.
			lock := flock.New(dbPath + ".lock")
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire init lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another init holds the lock for %s", dbPath)
			}
			defer lock.Unlock()

			store, err := cc.openStore(dbPath, dbTimeoutMsec)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			err = store.CreateMeta(ctx, ledger.Meta{
				Source:           source,
				Dest:             dest,
				Encoding:         codec.Normalize(encoding),
				Compression:      compression,
				Level:            level,
				JXLEffort:        jxlEffort,
				JXLDecodingSpeed: jxlSpeed,
				Ext:              ext,
				ResinAction:      action,
				Cleanup:          cleanup,
				MaxAttempts:      maxAttempts,
			})
			if err != nil {
				return err
			}

			var exts []string
			if ext != "" {
				exts = append(exts, ext)
			}
			infos, err := storage.NewLocal(source).List(ctx, exts...)
			if err != nil {
				return err
			}
			jobs := make([]ledger.NewJob, 0, len(infos))
			for _, info := range infos {
				jobs = append(jobs, ledger.NewJob{
					ID:         info.Name,
					SourcePath: info.Name,
					DestPath:   codec.DestName(info.Name, encoding),
				})
			}
			inserted, err := store.Enqueue(ctx, jobs)
			if err != nil {
				return err
			}

			logger.Info("ledger initialized",
				logging.String("db", filepath.Clean(dbPath)),
				logging.Int("found", len(jobs)),
				logging.Int64("inserted", inserted))
			fmt.Fprintf(cmd.OutOrStdout(), "found %d tiles, inserted %d new jobs\n", len(jobs), inserted)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Ledger database path")
	cmd.Flags().StringVar(&ext, "ext", "", "Only enqueue tiles with this extension")
	cmd.Flags().StringVar(&encoding, "encoding", "", "Target encoding (png, jpeg, jxl, tiff, bmp)")
	cmd.Flags().StringVar(&compression, "compression", "", "Extra compression mode (only \"none\" is implemented)")
	cmd.Flags().IntVar(&level, "level", 0, "Quality/compression level, 0-100 (0 = codec default)")
	cmd.Flags().IntVar(&jxlEffort, "jxl-effort", 3, "JPEG XL encode effort")
	cmd.Flags().IntVar(&jxlSpeed, "jxl-decoding-speed", 0, "JPEG XL decoding speed tier")
	cmd.Flags().StringVar(&resinAction, "resin", "", "Resin handling: noop, log, stay, move")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Remove source tiles after confirmed transfer")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Retry ceiling per job (0 = config default)")
	cmd.Flags().IntVar(&dbTimeoutMsec, "db-timeout", 0, "SQLite busy timeout in milliseconds")

	return cmd
}
