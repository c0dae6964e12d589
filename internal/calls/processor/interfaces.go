package processor

import (
	"context"

	"call-relay/internal/customers"
	"call-relay/internal/roster"
	"call-relay/internal/store"
)

// RecordingFetcher downloads call audio from the telephony provider.
type RecordingFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Transcriber converts call audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Summarizer condenses a transcript into a short customer concern.
// IsRateLimited classifies errors the pipeline should retry with backoff.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string, callContext string) (string, error)
	IsRateLimited(err error) bool
}

// Notifier delivers a formatted message to the team channel. Delivery
// failures are reported as false, never as a panic or error.
type Notifier interface {
	Post(ctx context.Context, text string) bool
}

// CustomerLookup resolves a phone number to a customer record. Misses and
// backend failures both come back as not found.
type CustomerLookup interface {
	Lookup(ctx context.Context, phone string) (customers.Customer, bool)
}

// Mailer sends transcript copies by email.
type Mailer interface {
	SendEmail(ctx context.Context, from string, to string, subject string, htmlContent string) (string, error)
}

// AgentDirectory answers who is on our side of a call.
type AgentDirectory interface {
	AgentInfo(phone string) roster.Agent
	Direction(fromNumber string) string
}

// OutcomeStore is the slice of the call record store the pipeline needs:
// the final duplicate re-check and the terminal outcome write.
type OutcomeStore interface {
	IsPosted(ctx context.Context, callID string) (bool, error)
	CommitOutcome(ctx context.Context, params store.OutcomeParams) error
}
