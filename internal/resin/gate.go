// Package resin decides what happens to tiles that carry no tissue, only
// embedding resin. The classifier runs on the pixels the codec already
// decoded; the configured action then logs, strands, or relocates the
// tile instead of transcoding it.
package resin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tilexfer/internal/codec"
	"tilexfer/internal/ledger"
	"tilexfer/internal/logging"
	"tilexfer/internal/storage"
)

// ErrSkipTranscode signals that the gate disposed of the tile and the
// worker must not produce an artifact for it.
var ErrSkipTranscode = errors.New("resin disposition skips transcoding")

// Detector reports whether a decoded tile contains tissue. Tiles without
// tissue are pure resin.
type Detector func(img *codec.Image) bool

// Options configure a gate.
type Options struct {
	Action ledger.Action
	Detect Detector
	// Source is the source root recorded at init; move dispositions land
	// in a resin/ directory beside it.
	Source string
	// Backend performs the relocation for the move action.
	Backend storage.Backend
	// LogDir receives the per-process detection log for log and stay.
	LogDir string
	Logger *slog.Logger
}

// Gate applies the configured resin disposition.
type Gate struct {
	action  ledger.Action
	detect  Detector
	source  string
	backend storage.Backend
	logger  *slog.Logger

	logMu   sync.Mutex
	logPath string
}

// NewGate builds a gate. With ActionNoop or no detector the gate is
// disabled and every tile classifies as unknown. The detection log for
// log and stay is opened eagerly so a misconfigured log directory fails
// at startup, not mid-batch.
func NewGate(opts Options) (*Gate, error) {
	g := &Gate{
		action:  opts.Action,
		detect:  opts.Detect,
		source:  opts.Source,
		backend: opts.Backend,
		logger:  logging.NewComponentLogger(opts.Logger, "resin"),
	}
	if !g.Enabled() {
		return g, nil
	}
	if g.action == ledger.ActionMove && g.backend == nil {
		return nil, errors.New("resin move requires a storage backend")
	}
	if g.action == ledger.ActionLog || g.action == ledger.ActionStay {
		dir := opts.LogDir
		if dir == "" {
			dir = "."
		}
		g.logPath = filepath.Join(dir, fmt.Sprintf("transcoder.resin.%d.log", os.Getpid()))
		if err := g.writeLogHeader(); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Enabled reports whether classification runs at all.
func (g *Gate) Enabled() bool {
	return g.detect != nil && g.action != ledger.ActionNoop
}

// Classify runs the detector over decoded pixels.
func (g *Gate) Classify(img *codec.Image) ledger.Verdict {
	if !g.Enabled() {
		return ledger.VerdictUnknown
	}
	if g.detect(img) {
		return ledger.VerdictClean
	}
	return ledger.VerdictResin
}

// Handle applies the configured action to a resin tile and reports
// whether transcoding must be skipped. Verdicts other than resin are
// no-ops.
func (g *Gate) Handle(ctx context.Context, name string, verdict ledger.Verdict) (bool, error) {
	if verdict != ledger.VerdictResin {
		return false, nil
	}
	switch g.action {
	case ledger.ActionLog, ledger.ActionStay:
		if err := g.appendLog(name); err != nil {
			return false, err
		}
	case ledger.ActionMove:
		dest := g.MovePath(name)
		if err := g.backend.Move(ctx, name, dest); err != nil {
			return false, fmt.Errorf("relocate resin tile: %w", err)
		}
		g.logger.Info("moved resin tile",
			logging.String(logging.FieldJobID, name),
			logging.String("dest", dest))
	}
	return g.action.Skips(), nil
}

// MovePath returns the destination for the move action: a resin/
// directory beside the source root, preserving the tile's relative path.
func (g *Gate) MovePath(name string) string {
	return filepath.Join(filepath.Dir(g.source), "resin", filepath.FromSlash(name))
}

// LogPath returns the detection log location, empty when the action does
// not log.
func (g *Gate) LogPath() string {
	return g.logPath
}

func (g *Gate) writeLogHeader() error {
	header := fmt.Sprintf(
		"# LOGTYPE: RESIN\n"+
			"# DESCRIPTION: The following files did not appear to contain tissue.\n"+
			"# SOURCE: %s\n"+
			"# DATE: %s\n",
		g.source, time.Now().Format(time.RFC3339))
	return g.appendRaw(header)
}

func (g *Gate) appendLog(name string) error {
	return g.appendRaw(name + "\n")
}

func (g *Gate) appendRaw(text string) error {
	g.logMu.Lock()
	defer g.logMu.Unlock()
	f, err := os.OpenFile(g.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open resin log: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		return fmt.Errorf("write resin log: %w", err)
	}
	return nil
}
