// Package verify reconciles the source tree, the destination tree, and
// the ledger after a transfer. Identities are extension-stripped names,
// so re-encoded artifacts still match their sources.
package verify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tilexfer/internal/codec"
	"tilexfer/internal/ledger"
	"tilexfer/internal/storage"
)

// Report lists every discrepancy found.
type Report struct {
	// Missing are source tiles with no destination artifact.
	Missing []string
	// Extra are destination artifacts with no matching source or job,
	// including artifacts for tiles the resin gate skipped.
	Extra []string
	// Empty are zero-byte artifacts whose source was not recorded empty.
	Empty []string
	// LedgerIncomplete are source tiles whose job is absent or not in a
	// terminal success state.
	LedgerIncomplete []string
}

// OK reports a clean reconciliation.
func (r *Report) OK() bool {
	return len(r.Missing) == 0 && len(r.Extra) == 0 &&
		len(r.Empty) == 0 && len(r.LedgerIncomplete) == 0
}

// Summary renders the discrepancy counts on one line.
func (r *Report) Summary() string {
	if r.OK() {
		return "verified: complete"
	}
	return fmt.Sprintf("missing=%d extra=%d empty=%d ledger=%d",
		len(r.Missing), len(r.Extra), len(r.Empty), len(r.LedgerIncomplete))
}

// Run reconciles src against dst using the ledger's record of the batch.
func Run(ctx context.Context, store *ledger.Store, src, dst storage.Backend) (*Report, error) {
	meta, err := store.Meta(ctx)
	if err != nil {
		return nil, fmt.Errorf("load transfer meta: %w", err)
	}

	var srcExts []string
	if meta.Ext != "" {
		srcExts = append(srcExts, meta.Ext)
	}
	srcInfos, err := src.List(ctx, srcExts...)
	if err != nil {
		return nil, fmt.Errorf("list source: %w", err)
	}
	destExt := strings.TrimPrefix(codec.ExtFor(meta.Encoding), ".")
	dstInfos, err := dst.List(ctx, destExt)
	if err != nil {
		return nil, fmt.Errorf("list destination: %w", err)
	}

	jobs, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobByIdent := make(map[string]*ledger.Job, len(jobs))
	for _, job := range jobs {
		jobByIdent[codec.Identifier(job.ID)] = job
	}

	srcIdents := make(map[string]struct{}, len(srcInfos))
	for _, info := range srcInfos {
		srcIdents[codec.Identifier(info.Name)] = struct{}{}
	}
	dstIdents := make(map[string]struct{}, len(dstInfos))
	for _, info := range dstInfos {
		dstIdents[codec.Identifier(info.Name)] = struct{}{}
	}

	report := &Report{}
	for ident := range srcIdents {
		job, ok := jobByIdent[ident]
		if !ok || (job.Status != ledger.StatusDone && job.Status != ledger.StatusSkippedResin) {
			report.LedgerIncomplete = append(report.LedgerIncomplete, ident)
			continue
		}
		_, present := dstIdents[ident]
		if job.Status == ledger.StatusSkippedResin {
			if present {
				report.Extra = append(report.Extra, ident)
			}
			continue
		}
		if !present {
			report.Missing = append(report.Missing, ident)
		}
	}

	for ident := range dstIdents {
		if _, ok := srcIdents[ident]; ok {
			continue
		}
		// Cleanup removes completed sources; the ledger still vouches
		// for those artifacts.
		if job, ok := jobByIdent[ident]; ok && job.Status == ledger.StatusDone {
			continue
		}
		report.Extra = append(report.Extra, ident)
	}

	for _, info := range dstInfos {
		if info.Size != 0 {
			continue
		}
		ident := codec.Identifier(info.Name)
		if job, ok := jobByIdent[ident]; ok && job.Status == ledger.StatusDone && job.ResultSize == 0 {
			continue
		}
		report.Empty = append(report.Empty, ident)
	}

	sort.Strings(report.Missing)
	sort.Strings(report.Extra)
	sort.Strings(report.Empty)
	sort.Strings(report.LedgerIncomplete)
	return report, nil
}
