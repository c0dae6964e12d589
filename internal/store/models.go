package store

// Phase tracks where a call is in its processing lifecycle.
type Phase string

const (
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// BlockReason explains why a claim attempt was refused.
type BlockReason string

const (
	// BlockAlreadyPosted means a notification already went out for this call.
	// This block never expires.
	BlockAlreadyPosted BlockReason = "already_posted"
	// BlockInFlight means another claim is currently processing the call.
	BlockInFlight BlockReason = "in_flight"
	// BlockRecentFailure means a previous attempt finished without posting
	// and the cool-down window has not elapsed yet.
	BlockRecentFailure BlockReason = "recent_failure"
)

// ClaimResult is the outcome of a TryClaim call.
type ClaimResult struct {
	Claimed bool
	Reason  BlockReason
}

// CallRecord represents a row in processed_calls.
type CallRecord struct {
	CallID         string `db:"call_id" json:"call_id"`
	FromNumber     string `db:"from_number" json:"from_number"`
	ToNumber       string `db:"to_number" json:"to_number"`
	Duration       int    `db:"duration" json:"duration"`
	EventTimestamp string `db:"event_timestamp" json:"event_timestamp"`
	ClaimedAt      string `db:"claimed_at" json:"claimed_at"`
	Transcript     string `db:"transcript" json:"transcript"`
	Posted         bool   `db:"posted" json:"posted"`
	Phase          Phase  `db:"phase" json:"phase"`
}

// Stats summarizes the processed_calls table.
type Stats struct {
	TotalProcessed     int `db:"total_processed" json:"total_processed"`
	SuccessfullyPosted int `db:"successfully_posted" json:"successfully_posted"`
	Failed             int `db:"failed" json:"failed"`
}
