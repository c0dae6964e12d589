package processor

import (
	"context"
	"fmt"
	"time"

	"call-relay/internal/calls"
	"call-relay/internal/customers"
	"call-relay/internal/observability"
	"call-relay/internal/roster"
	"call-relay/internal/store"
)

const (
	defaultSummaryAttempts = 3
	defaultSummaryBackoff  = time.Second
)

// Config tunes the pipeline.
type Config struct {
	// MinCallDuration in seconds; shorter calls skip transcription.
	MinCallDuration int
	// SummaryAttempts bounds retries for rate-limited summarization.
	SummaryAttempts int
	// SummaryBackoff is the first retry delay; it doubles per attempt.
	SummaryBackoff time.Duration
	// EmailSender is the from address for transcript copies; empty disables
	// them.
	EmailSender string
}

// Collaborators are the external services the pipeline drives.
type Collaborators struct {
	Store       OutcomeStore
	Recordings  RecordingFetcher
	Transcriber Transcriber
	Summarizer  Summarizer
	Notifier    Notifier
	Customers   CustomerLookup
	Agents      AgentDirectory
	// Mailer may be nil; transcript copies are then skipped.
	Mailer Mailer
}

// Processor runs the per-call pipeline for a claimed call: classify, fetch
// the recording, transcribe, summarize, re-check for a duplicate post,
// notify, and commit exactly one terminal outcome. Stage failures degrade
// into recorded error text instead of aborting the run.
type Processor struct {
	deps   Collaborators
	config Config
	logger *observability.Logger
}

func New(deps Collaborators, config Config, logger *observability.Logger) *Processor {
	return &Processor{
		deps:   deps,
		config: config,
		logger: logger,
	}
}

func (p *Processor) Name() string {
	return "call-processor"
}

// Process settles one claimed call. A non-nil error means the terminal
// outcome could not be recorded; every handled stage failure still ends in
// a commit.
func (p *Processor) Process(ctx context.Context, job calls.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(ctx, "call processing panicked", fmt.Errorf("%v", r))
			text := fmt.Sprintf("Processing panicked: %v", r)
			if commitErr := p.commit(ctx, job, text, false); commitErr != nil {
				p.logger.Error(ctx, "failed to record panic outcome", commitErr)
			}
			err = fmt.Errorf("call processing panicked: %v", r)
		}
	}()

	class := calls.Classify(job, p.config.MinCallDuration)
	direction := p.deps.Agents.Direction(job.FromNumber)
	customerNumber, agentNumber := job.FromNumber, job.ToNumber
	if direction == roster.DirectionOutgoing {
		customerNumber, agentNumber = job.ToNumber, job.FromNumber
	}
	agent := p.deps.Agents.AgentInfo(agentNumber)
	customer, customerKnown := p.deps.Customers.Lookup(ctx, customerNumber)

	var transcript, summary string
	if class == calls.ClassNormal {
		audio, fetchErr := p.deps.Recordings.Fetch(ctx, job.RecordingURL)
		if fetchErr != nil {
			p.logger.InfoWithError(ctx, "recording fetch failed, settling call as failed", fetchErr)
			text := fmt.Sprintf("Recording download failed: %v", fetchErr)
			return p.settleFetchFailure(ctx, job, text)
		}
		transcript = p.transcribe(ctx, audio)
		summary = p.summarize(ctx, transcript, summaryContext(direction, customer, customerKnown))
	}

	// A redelivery can race past admission while this run was in flight;
	// never post the same call twice.
	posted, postedErr := p.deps.Store.IsPosted(ctx, job.CallID)
	if postedErr != nil {
		p.logger.InfoWithError(ctx, "posted re-check failed, assuming not posted", postedErr)
	}
	if posted {
		p.logger.Info(ctx, "call already posted by another run, skipping notification")
		return nil
	}

	message := formatMessage(job, class, direction, agent, customer, customerKnown, summary, transcript)
	notified := p.deps.Notifier.Post(ctx, message)
	if !notified {
		p.logger.Info(ctx, "notification delivery failed, call stays retryable")
	}

	if notified && class == calls.ClassNormal {
		p.sendTranscriptCopy(ctx, job, customer, summary, transcript)
	}

	return p.commit(ctx, job, outcomeText(class, transcript), notified)
}

// settleFetchFailure records a download failure without marking the call
// posted, so the next delivery after the cool-down can retry it. The channel
// still gets a notice unless another run already posted the call.
func (p *Processor) settleFetchFailure(ctx context.Context, job calls.Job, text string) error {
	posted, err := p.deps.Store.IsPosted(ctx, job.CallID)
	if err != nil {
		p.logger.InfoWithError(ctx, "posted re-check failed, assuming not posted", err)
	}
	if posted {
		return nil
	}
	p.deps.Notifier.Post(ctx, formatFetchFailure(job, text))
	return p.commit(ctx, job, text, false)
}

// transcribe degrades a transcription failure into error text so downstream
// stages always have something to work with.
func (p *Processor) transcribe(ctx context.Context, audio []byte) string {
	text, err := p.deps.Transcriber.Transcribe(ctx, audio)
	if err != nil {
		p.logger.InfoWithError(ctx, "transcription failed, recording the error text", err)
		return fmt.Sprintf("Transcription failed: %v", err)
	}
	return text
}

// summarize retries rate-limited attempts with doubling backoff, then falls
// back to a deterministic summary cut from the transcript itself.
func (p *Processor) summarize(ctx context.Context, transcript, callContext string) string {
	attempts := p.config.SummaryAttempts
	if attempts <= 0 {
		attempts = defaultSummaryAttempts
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		summary, err := p.deps.Summarizer.Summarize(ctx, transcript, callContext)
		if err == nil {
			if summary != "" {
				return summary
			}
			break
		}
		if !p.deps.Summarizer.IsRateLimited(err) {
			p.logger.InfoWithError(ctx, "summarization failed, using fallback summary", err)
			break
		}
		p.logger.InfoWithError(ctx, "summarization rate limited, backing off", err)
		if attempt < attempts {
			select {
			case <-time.After(p.summaryBackoff(attempt)):
			case <-ctx.Done():
				return fallbackSummary(transcript)
			}
		}
	}
	return fallbackSummary(transcript)
}

func (p *Processor) summaryBackoff(attempt int) time.Duration {
	base := p.config.SummaryBackoff
	if base <= 0 {
		base = defaultSummaryBackoff
	}
	return base << (attempt - 1)
}

func (p *Processor) sendTranscriptCopy(ctx context.Context, job calls.Job, customer customers.Customer, summary, transcript string) {
	if p.deps.Mailer == nil || p.config.EmailSender == "" || customer.CAEmail == "" {
		return
	}
	subject, html := formatTranscriptEmail(job, customer, summary, transcript)
	if _, err := p.deps.Mailer.SendEmail(ctx, p.config.EmailSender, customer.CAEmail, subject, html); err != nil {
		p.logger.InfoWithError(ctx, "transcript copy email failed", err)
	}
}

func (p *Processor) commit(ctx context.Context, job calls.Job, text string, posted bool) error {
	err := p.deps.Store.CommitOutcome(ctx, store.OutcomeParams{
		CallID:         job.CallID,
		FromNumber:     job.FromNumber,
		ToNumber:       job.ToNumber,
		Duration:       job.Duration,
		EventTimestamp: job.Timestamp,
		Transcript:     text,
		Posted:         posted,
	})
	if err != nil {
		return fmt.Errorf("failed to record outcome for call %s: %w", job.CallID, err)
	}
	return nil
}

// outcomeText picks what lands in the record's text column.
func outcomeText(class calls.Class, transcript string) string {
	if class == calls.ClassShort {
		return "Short call, no transcription"
	}
	return transcript
}

func summaryContext(direction string, customer customers.Customer, known bool) string {
	if !known {
		return fmt.Sprintf("%s call, customer not in the directory", direction)
	}
	if customer.Company != "" {
		return fmt.Sprintf("%s call with %s (%s)", direction, customer.Name, customer.Company)
	}
	return fmt.Sprintf("%s call with %s", direction, customer.Name)
}
