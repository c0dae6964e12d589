package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"
)

// ClaimParams carries the call metadata and the staleness windows for a
// claim attempt.
type ClaimParams struct {
	CallID         string
	FromNumber     string
	ToNumber       string
	Duration       int
	EventTimestamp string

	// ClaimTimeout bounds how long an in-flight processing claim blocks
	// before it is presumed abandoned.
	ClaimTimeout time.Duration
	// FailureCooldown is the retry window after a finished attempt that
	// did not post.
	FailureCooldown time.Duration
}

// OutcomeParams carries the final state of a processed call. Phase is
// derived from Posted so a posted record is always completed.
type OutcomeParams struct {
	CallID         string
	FromNumber     string
	ToNumber       string
	Duration       int
	EventTimestamp string
	Transcript     string
	Posted         bool
}

const sqlGetCallForClaim = `
SELECT call_id, from_number, to_number, duration, event_timestamp, claimed_at, transcript, posted, phase
FROM processed_calls
WHERE call_id = ?
`

const sqlInsertClaim = `
INSERT INTO processed_calls (call_id, from_number, to_number, duration, event_timestamp, claimed_at, transcript, posted, phase)
VALUES (?, ?, ?, ?, ?, ?, '', 0, ?)
`

const sqlRefreshClaim = `
UPDATE processed_calls
SET from_number = ?, to_number = ?, duration = ?, event_timestamp = ?, claimed_at = ?, transcript = '', posted = 0, phase = ?
WHERE call_id = ?
`

// TryClaim atomically checks for an existing record and either claims the
// call or reports why it is blocked. Posted calls block forever; an
// in-flight claim blocks until ClaimTimeout has passed; a finished but
// unposted attempt blocks until FailureCooldown has passed. The whole
// check-then-claim sequence runs under one lock and one transaction so two
// concurrent attempts for the same call can never both win.
func (s *Store) TryClaim(ctx context.Context, params ClaimParams) (ClaimResult, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.Error(ctx, "failed to begin claim transaction", err)
		return ClaimResult{}, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var rec CallRecord
	err = tx.GetContext(ctx, &rec, sqlGetCallForClaim, params.CallID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error(ctx, "failed to look up call for claim", err)
			return ClaimResult{}, fmt.Errorf("failed to look up call for claim: %w", err)
		}
		_, err = tx.ExecContext(ctx, sqlInsertClaim,
			params.CallID,
			params.FromNumber,
			params.ToNumber,
			params.Duration,
			params.EventTimestamp,
			now.Format(time.RFC3339),
			PhaseProcessing)
		if err != nil {
			s.logger.Error(ctx, "failed to insert claim", err)
			return ClaimResult{}, fmt.Errorf("failed to insert claim: %w", err)
		}
		if err := tx.Commit(); err != nil {
			s.logger.Error(ctx, "failed to commit claim", err)
			return ClaimResult{}, fmt.Errorf("failed to commit claim: %w", err)
		}
		return ClaimResult{Claimed: true}, nil
	}

	if rec.Posted {
		return ClaimResult{Reason: BlockAlreadyPosted}, nil
	}

	age := claimAge(rec.ClaimedAt, now)
	if rec.Phase == PhaseProcessing && age < params.ClaimTimeout {
		return ClaimResult{Reason: BlockInFlight}, nil
	}
	if rec.Phase != PhaseProcessing && age < params.FailureCooldown {
		return ClaimResult{Reason: BlockRecentFailure}, nil
	}

	// Stale claim or expired cool-down: take the call over.
	_, err = tx.ExecContext(ctx, sqlRefreshClaim,
		params.FromNumber,
		params.ToNumber,
		params.Duration,
		params.EventTimestamp,
		now.Format(time.RFC3339),
		PhaseProcessing,
		params.CallID)
	if err != nil {
		s.logger.Error(ctx, "failed to refresh claim", err)
		return ClaimResult{}, fmt.Errorf("failed to refresh claim: %w", err)
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error(ctx, "failed to commit claim", err)
		return ClaimResult{}, fmt.Errorf("failed to commit claim: %w", err)
	}
	return ClaimResult{Claimed: true}, nil
}

// claimAge returns how long ago a claim timestamp was written.
// Unparseable timestamps count as infinitely old so they never wedge a call.
func claimAge(claimedAt string, now time.Time) time.Duration {
	t, err := time.Parse(time.RFC3339, claimedAt)
	if err != nil {
		return time.Duration(math.MaxInt64)
	}
	return now.Sub(t)
}

const sqlCommitOutcome = `
INSERT OR REPLACE INTO processed_calls (call_id, from_number, to_number, duration, event_timestamp, claimed_at, transcript, posted, phase)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// CommitOutcome writes the final state for a call. It overwrites
// unconditionally and is safe to repeat; the cool-down clock restarts at
// commit time.
func (s *Store) CommitOutcome(ctx context.Context, params OutcomeParams) error {
	phase := PhaseFailed
	if params.Posted {
		phase = PhaseCompleted
	}
	_, err := s.db.ExecContext(ctx, sqlCommitOutcome,
		params.CallID,
		params.FromNumber,
		params.ToNumber,
		params.Duration,
		params.EventTimestamp,
		time.Now().UTC().Format(time.RFC3339),
		params.Transcript,
		params.Posted,
		phase)
	if err != nil {
		s.logger.Error(ctx, "failed to commit call outcome", err)
		return fmt.Errorf("failed to commit call outcome: %w", err)
	}
	return nil
}

const sqlIsPosted = `
SELECT posted FROM processed_calls WHERE call_id = ?
`

// IsPosted reports whether a notification already went out for the call.
// A missing record counts as not posted.
func (s *Store) IsPosted(ctx context.Context, callID string) (bool, error) {
	var posted bool
	err := s.db.GetContext(ctx, &posted, sqlIsPosted, callID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		s.logger.Error(ctx, "failed to check posted flag", err)
		return false, fmt.Errorf("failed to check posted flag: %w", err)
	}
	return posted, nil
}

const sqlGetCall = `
SELECT call_id, from_number, to_number, duration, event_timestamp, claimed_at, transcript, posted, phase
FROM processed_calls
WHERE call_id = ?
`

// GetCall retrieves a processed call by ID
func (s *Store) GetCall(ctx context.Context, callID string) (CallRecord, error) {
	var rec CallRecord
	err := s.db.GetContext(ctx, &rec, sqlGetCall, callID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrNotFound
		}
		s.logger.Error(ctx, "failed to get call", err)
		return CallRecord{}, fmt.Errorf("failed to get call: %w", err)
	}
	return rec, nil
}

const sqlStats = `
SELECT COUNT(*) AS total_processed,
       COALESCE(SUM(CASE WHEN posted THEN 1 ELSE 0 END), 0) AS successfully_posted,
       COALESCE(SUM(CASE WHEN phase = 'failed' THEN 1 ELSE 0 END), 0) AS failed
FROM processed_calls
`

// Stats returns processing totals for the stats endpoint
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.db.GetContext(ctx, &stats, sqlStats)
	if err != nil {
		s.logger.Error(ctx, "failed to get call stats", err)
		return Stats{}, fmt.Errorf("failed to get call stats: %w", err)
	}
	return stats, nil
}
