package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClaimParams returns claim parameters with the default windows
func testClaimParams(callID string) ClaimParams {
	return ClaimParams{
		CallID:          callID,
		FromNumber:      "+919876543210",
		ToNumber:        "09631084471",
		Duration:        45,
		EventTimestamp:  "2026-08-25T10:00:00Z",
		ClaimTimeout:    15 * time.Minute,
		FailureCooldown: time.Hour,
	}
}

// backdateClaim rewrites claimed_at so staleness windows can be crossed in tests
func backdateClaim(t *testing.T, testDB *TestDB, callID string, age time.Duration) {
	t.Helper()
	past := time.Now().UTC().Add(-age).Format(time.RFC3339)
	testDB.MustExec(t, "UPDATE processed_calls SET claimed_at = ? WHERE call_id = ?", past, callID)
}

func TestStore_TryClaim_NewCall(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t)
	ctx := context.Background()

	result, err := testDB.Store.TryClaim(ctx, testClaimParams("CAnew1"))
	require.NoError(t, err)
	assert.True(t, result.Claimed)

	rec, err := testDB.Store.GetCall(ctx, "CAnew1")
	require.NoError(t, err)
	assert.Equal(t, PhaseProcessing, rec.Phase)
	assert.False(t, rec.Posted)
	assert.Equal(t, "+919876543210", rec.FromNumber)
}

func TestStore_TryClaim_Blocked(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		callID     string
		setup      func(t *testing.T, callID string)
		wantReason BlockReason
	}{
		{
			name:   "posted call blocks forever",
			callID: "CAposted",
			setup: func(t *testing.T, callID string) {
				_, err := testDB.Store.TryClaim(ctx, testClaimParams(callID))
				require.NoError(t, err)
				err = testDB.Store.CommitOutcome(ctx, OutcomeParams{
					CallID:     callID,
					Transcript: "done",
					Posted:     true,
				})
				require.NoError(t, err)
				// Even ancient posted records stay blocked.
				backdateClaim(t, testDB, callID, 72*time.Hour)
			},
			wantReason: BlockAlreadyPosted,
		},
		{
			name:   "in-flight claim blocks",
			callID: "CAinflight",
			setup: func(t *testing.T, callID string) {
				_, err := testDB.Store.TryClaim(ctx, testClaimParams(callID))
				require.NoError(t, err)
			},
			wantReason: BlockInFlight,
		},
		{
			name:   "recent failure blocks",
			callID: "CAfailed",
			setup: func(t *testing.T, callID string) {
				_, err := testDB.Store.TryClaim(ctx, testClaimParams(callID))
				require.NoError(t, err)
				err = testDB.Store.CommitOutcome(ctx, OutcomeParams{
					CallID:     callID,
					Transcript: "Recording fetch failed: 404",
					Posted:     false,
				})
				require.NoError(t, err)
			},
			wantReason: BlockRecentFailure,
		},
		{
			name:   "completed but unposted blocks like a failure",
			callID: "CAunposted",
			setup: func(t *testing.T, callID string) {
				_, err := testDB.Store.TryClaim(ctx, testClaimParams(callID))
				require.NoError(t, err)
				err = testDB.Store.CommitOutcome(ctx, OutcomeParams{
					CallID:     callID,
					Transcript: "transcribed fine, chat post failed",
					Posted:     false,
				})
				require.NoError(t, err)
				// Legacy rows can carry completed without posted.
				testDB.MustExec(t, "UPDATE processed_calls SET phase = 'completed' WHERE call_id = ?", callID)
			},
			wantReason: BlockRecentFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup(t, tt.callID)

			result, err := testDB.Store.TryClaim(ctx, testClaimParams(tt.callID))
			require.NoError(t, err)
			assert.False(t, result.Claimed)
			assert.Equal(t, tt.wantReason, result.Reason)
		})
	}
}

func TestStore_TryClaim_StaleProcessingReclaim(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t)
	ctx := context.Background()

	_, err := testDB.Store.TryClaim(ctx, testClaimParams("CAstale"))
	require.NoError(t, err)

	// Within the timeout the claim still counts as in flight.
	result, err := testDB.Store.TryClaim(ctx, testClaimParams("CAstale"))
	require.NoError(t, err)
	require.False(t, result.Claimed)

	backdateClaim(t, testDB, "CAstale", 20*time.Minute)

	result, err = testDB.Store.TryClaim(ctx, testClaimParams("CAstale"))
	require.NoError(t, err)
	assert.True(t, result.Claimed, "abandoned claim should be reclaimable after the timeout")

	rec, err := testDB.Store.GetCall(ctx, "CAstale")
	require.NoError(t, err)
	assert.Equal(t, PhaseProcessing, rec.Phase)
	assert.Empty(t, rec.Transcript)
}

func TestStore_TryClaim_FailureCooldownExpires(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t)
	ctx := context.Background()

	_, err := testDB.Store.TryClaim(ctx, testClaimParams("CAretry"))
	require.NoError(t, err)
	err = testDB.Store.CommitOutcome(ctx, OutcomeParams{
		CallID:     "CAretry",
		Transcript: "Recording fetch failed: timeout",
		Posted:     false,
	})
	require.NoError(t, err)

	result, err := testDB.Store.TryClaim(ctx, testClaimParams("CAretry"))
	require.NoError(t, err)
	require.False(t, result.Claimed)
	require.Equal(t, BlockRecentFailure, result.Reason)

	backdateClaim(t, testDB, "CAretry", 2*time.Hour)

	result, err = testDB.Store.TryClaim(ctx, testClaimParams("CAretry"))
	require.NoError(t, err)
	assert.True(t, result.Claimed, "failed call should be reclaimable after the cool-down")
}

func TestStore_TryClaim_Concurrent(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t)
	ctx := context.Background()

	const attempts = 20
	results := make([]ClaimResult, attempts)
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = testDB.Store.TryClaim(ctx, testClaimParams("CAracy"))
		}(i)
	}
	wg.Wait()

	claimed := 0
	for i := 0; i < attempts; i++ {
		require.NoError(t, errs[i])
		if results[i].Claimed {
			claimed++
		} else {
			assert.Equal(t, BlockInFlight, results[i].Reason)
		}
	}
	assert.Equal(t, 1, claimed, "exactly one concurrent attempt should win the claim")
}

func TestStore_CommitOutcome_Overwrites(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t)
	ctx := context.Background()

	_, err := testDB.Store.TryClaim(ctx, testClaimParams("CAcommit"))
	require.NoError(t, err)

	outcome := OutcomeParams{
		CallID:         "CAcommit",
		FromNumber:     "+919876543210",
		ToNumber:       "09631084471",
		Duration:       45,
		EventTimestamp: "2026-08-25T10:00:00Z",
		Transcript:     "first pass",
		Posted:         false,
	}
	require.NoError(t, testDB.Store.CommitOutcome(ctx, outcome))

	rec, err := testDB.Store.GetCall(ctx, "CAcommit")
	require.NoError(t, err)
	assert.Equal(t, PhaseFailed, rec.Phase, "unposted outcome lands as failed")

	// Repeating the commit with a different outcome just overwrites.
	outcome.Transcript = "second pass"
	outcome.Posted = true
	require.NoError(t, testDB.Store.CommitOutcome(ctx, outcome))

	rec, err = testDB.Store.GetCall(ctx, "CAcommit")
	require.NoError(t, err)
	assert.Equal(t, "second pass", rec.Transcript)
	assert.True(t, rec.Posted)
	assert.Equal(t, PhaseCompleted, rec.Phase)
}

func TestStore_IsPosted(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t)
	ctx := context.Background()

	posted, err := testDB.Store.IsPosted(ctx, "CAmissing")
	require.NoError(t, err)
	assert.False(t, posted, "missing record should count as not posted")

	_, err = testDB.Store.TryClaim(ctx, testClaimParams("CAdone"))
	require.NoError(t, err)
	posted, err = testDB.Store.IsPosted(ctx, "CAdone")
	require.NoError(t, err)
	assert.False(t, posted)

	err = testDB.Store.CommitOutcome(ctx, OutcomeParams{
		CallID: "CAdone",
		Posted: true,
	})
	require.NoError(t, err)

	posted, err = testDB.Store.IsPosted(ctx, "CAdone")
	require.NoError(t, err)
	assert.True(t, posted)
}

func TestStore_GetCall_NotFound(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t)

	_, err := testDB.Store.GetCall(context.Background(), "CAghost")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_Stats(t *testing.T) {
	t.Parallel()
	testDB := SetupTestDB(t)
	ctx := context.Background()

	stats, err := testDB.Store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)

	seed := []OutcomeParams{
		{CallID: "CAs1", Posted: true},
		{CallID: "CAs2", Posted: true},
		{CallID: "CAs3", Posted: false},
	}
	for _, o := range seed {
		require.NoError(t, testDB.Store.CommitOutcome(ctx, o))
	}
	_, err = testDB.Store.TryClaim(ctx, testClaimParams("CAs4"))
	require.NoError(t, err)

	stats, err = testDB.Store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalProcessed)
	assert.Equal(t, 2, stats.SuccessfullyPosted)
	assert.Equal(t, 1, stats.Failed)
}
