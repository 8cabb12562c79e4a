package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateMeta records the batch configuration. It is written once by init;
// re-running init against the same ledger keeps the existing row so the
// operation stays idempotent.
func (s *Store) CreateMeta(ctx context.Context, meta Meta) error {
	if meta.MaxAttempts <= 0 {
		return errors.New("max attempts must be positive")
	}
	if meta.ResinAction == "" {
		meta.ResinAction = ActionNoop
	}
	created := meta.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO transfer_meta (
            id, source, dest, encoding, compression, level,
            jxl_effort, jxl_decoding_speed, ext, resin_action, cleanup,
            max_attempts, created_at
        ) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO NOTHING`,
		meta.Source,
		meta.Dest,
		meta.Encoding,
		nullableString(meta.Compression),
		meta.Level,
		meta.JXLEffort,
		meta.JXLDecodingSpeed,
		nullableString(meta.Ext),
		string(meta.ResinAction),
		boolToInt(meta.Cleanup),
		meta.MaxAttempts,
		created.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record transfer meta: %w", err)
	}
	return nil
}

// Meta returns the batch configuration recorded at init. The row is
// immutable, so it is cached after the first read.
func (s *Store) Meta(ctx context.Context) (*Meta, error) {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	if s.meta != nil {
		cp := *s.meta
		return &cp, nil
	}

	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT source, dest, encoding, compression, level, jxl_effort,
            jxl_decoding_speed, ext, resin_action, cleanup, max_attempts, created_at
         FROM transfer_meta WHERE id = 1`,
	)

	var (
		meta        Meta
		compression sql.NullString
		ext         sql.NullString
		action      string
		cleanup     int
		createdRaw  string
	)
	err := row.Scan(
		&meta.Source,
		&meta.Dest,
		&meta.Encoding,
		&compression,
		&meta.Level,
		&meta.JXLEffort,
		&meta.JXLDecodingSpeed,
		&ext,
		&action,
		&cleanup,
		&meta.MaxAttempts,
		&createdRaw,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoMeta
	}
	if err != nil {
		return nil, fmt.Errorf("read transfer meta: %w", err)
	}
	meta.Compression = compression.String
	meta.Ext = ext.String
	meta.ResinAction = Action(action)
	meta.Cleanup = cleanup != 0
	if created, err := parseTimeString(createdRaw); err == nil {
		meta.CreatedAt = created
	}

	s.meta = &meta
	cp := meta
	return &cp, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
