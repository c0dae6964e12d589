package store

import (
	"context"
	"fmt"
	"time"
)

const sqlMarkStaleProcessing = `
UPDATE processed_calls
SET phase = ?
WHERE phase = ? AND posted = 0 AND claimed_at < ?
`

// MarkStaleProcessing flips processing claims older than the cutoff to
// failed so they stop counting as in-flight. Returns the number of rows
// changed.
func (s *Store) MarkStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, sqlMarkStaleProcessing, PhaseFailed, PhaseProcessing, cutoff)
	if err != nil {
		s.logger.Error(ctx, "failed to mark stale claims", err)
		return 0, fmt.Errorf("failed to mark stale claims: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count marked claims: %w", err)
	}
	return n, nil
}

const sqlDeleteUnposted = `
DELETE FROM processed_calls WHERE posted = 0
`

// DeleteUnposted removes every record that never produced a notification.
func (s *Store) DeleteUnposted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, sqlDeleteUnposted)
	if err != nil {
		s.logger.Error(ctx, "failed to delete unposted calls", err)
		return 0, fmt.Errorf("failed to delete unposted calls: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted calls: %w", err)
	}
	return n, nil
}

const sqlResetUnposted = `
UPDATE processed_calls
SET phase = ?, claimed_at = '1970-01-01T00:00:00Z'
WHERE posted = 0
`

// ResetUnposted backdates every unposted record so redelivered webhooks can
// claim them again immediately.
func (s *Store) ResetUnposted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, sqlResetUnposted, PhaseFailed)
	if err != nil {
		s.logger.Error(ctx, "failed to reset unposted calls", err)
		return 0, fmt.Errorf("failed to reset unposted calls: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reset calls: %w", err)
	}
	return n, nil
}
