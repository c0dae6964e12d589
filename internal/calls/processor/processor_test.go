package processor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-relay/internal/calls"
	"call-relay/internal/customers"
	"call-relay/internal/observability"
	"call-relay/internal/roster"
	"call-relay/internal/store"
)

type fakeStore struct {
	posted    bool
	postedErr error
	commitErr error
	commits   []store.OutcomeParams
}

func (f *fakeStore) IsPosted(_ context.Context, _ string) (bool, error) {
	return f.posted, f.postedErr
}

func (f *fakeStore) CommitOutcome(_ context.Context, params store.OutcomeParams) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.commits = append(f.commits, params)
	return nil
}

type fakeFetcher struct {
	audio []byte
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	f.calls++
	return f.audio, f.err
}

type fakeTranscriber struct {
	text     string
	err      error
	panicMsg string
	calls    int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte) (string, error) {
	f.calls++
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.text, f.err
}

type fakeSummarizer struct {
	text        string
	err         error
	rateLimited bool
	calls       int
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ string, _ string) (string, error) {
	f.calls++
	return f.text, f.err
}

func (f *fakeSummarizer) IsRateLimited(_ error) bool {
	return f.rateLimited
}

type fakeNotifier struct {
	ok       bool
	messages []string
}

func (f *fakeNotifier) Post(_ context.Context, text string) bool {
	f.messages = append(f.messages, text)
	return f.ok
}

type fakeCustomers struct {
	customer customers.Customer
	found    bool
	lookedUp []string
}

func (f *fakeCustomers) Lookup(_ context.Context, phone string) (customers.Customer, bool) {
	f.lookedUp = append(f.lookedUp, phone)
	return f.customer, f.found
}

type fakeDirectory struct {
	direction string
	agent     roster.Agent
}

func (f *fakeDirectory) AgentInfo(_ string) roster.Agent { return f.agent }
func (f *fakeDirectory) Direction(_ string) string       { return f.direction }

type sentEmail struct {
	from, to, subject, html string
}

type fakeMailer struct {
	err  error
	sent []sentEmail
}

func (f *fakeMailer) SendEmail(_ context.Context, from, to, subject, htmlContent string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentEmail{from: from, to: to, subject: subject, html: htmlContent})
	return "email-id", nil
}

type fixture struct {
	store       *fakeStore
	fetcher     *fakeFetcher
	transcriber *fakeTranscriber
	summarizer  *fakeSummarizer
	notifier    *fakeNotifier
	customers   *fakeCustomers
	directory   *fakeDirectory
	mailer      *fakeMailer
	processor   *Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:       &fakeStore{},
		fetcher:     &fakeFetcher{audio: []byte("audio-bytes")},
		transcriber: &fakeTranscriber{text: "Customer needs a copy of last month's invoice.\nAgent promised to email it."},
		summarizer:  &fakeSummarizer{text: "Customer wants an invoice copy."},
		notifier:    &fakeNotifier{ok: true},
		customers: &fakeCustomers{
			customer: customers.Customer{
				Name:    "Aisha Khan",
				Phone:   "+915550001111",
				Company: "Northwind Traders",
				CAEmail: "aisha.ca@example.com",
			},
			found: true,
		},
		directory: &fakeDirectory{
			direction: roster.DirectionIncoming,
			agent:     roster.Agent{Name: "Priya Sharma", SlackHandle: "@priya"},
		},
		mailer: &fakeMailer{},
	}
	f.processor = New(Collaborators{
		Store:       f.store,
		Recordings:  f.fetcher,
		Transcriber: f.transcriber,
		Summarizer:  f.summarizer,
		Notifier:    f.notifier,
		Customers:   f.customers,
		Agents:      f.directory,
		Mailer:      f.mailer,
	}, Config{
		MinCallDuration: 5,
		SummaryAttempts: 3,
		SummaryBackoff:  time.Millisecond,
		EmailSender:     "calls@example.com",
	}, observability.NewLogger())
	return f
}

func normalJob() calls.Job {
	return calls.Job{
		CallID:       "CAnormal1",
		FromNumber:   "+915550001111",
		ToNumber:     "09631084471",
		Duration:     42,
		RecordingURL: "https://recordings.example.com/CAnormal1.wav",
		Timestamp:    "2026-08-25T10:00:00Z",
		Status:       "completed",
	}
}

func TestProcessor_NormalCallPostsAndCommits(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	err := f.processor.Process(context.Background(), normalJob())
	require.NoError(t, err)

	assert.Equal(t, 1, f.fetcher.calls)
	assert.Equal(t, 1, f.transcriber.calls)
	assert.Equal(t, 1, f.summarizer.calls)

	require.Len(t, f.notifier.messages, 1)
	message := f.notifier.messages[0]
	assert.Contains(t, message, "Customer wants an invoice copy.")
	assert.Contains(t, message, "invoice")
	assert.Contains(t, message, "Aisha Khan")
	assert.Contains(t, message, "@priya")

	require.Len(t, f.store.commits, 1)
	commit := f.store.commits[0]
	assert.Equal(t, "CAnormal1", commit.CallID)
	assert.True(t, commit.Posted)
	assert.Equal(t, f.transcriber.text, commit.Transcript)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "aisha.ca@example.com", f.mailer.sent[0].to)
	assert.Equal(t, "calls@example.com", f.mailer.sent[0].from)
}

func TestProcessor_ShortCallSkipsTranscription(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	job := normalJob()
	job.Duration = 3

	require.NoError(t, f.processor.Process(context.Background(), job))

	assert.Equal(t, 0, f.fetcher.calls)
	assert.Equal(t, 0, f.transcriber.calls)
	assert.Equal(t, 0, f.summarizer.calls)

	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "Short call")

	require.Len(t, f.store.commits, 1)
	assert.True(t, f.store.commits[0].Posted)
	assert.Equal(t, "Short call, no transcription", f.store.commits[0].Transcript)
	assert.Empty(t, f.mailer.sent, "short calls carry no transcript to copy")
}

func TestProcessor_MissingRecordingURLTreatedAsShort(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	job := normalJob()
	job.RecordingURL = ""

	require.NoError(t, f.processor.Process(context.Background(), job))

	assert.Equal(t, 0, f.fetcher.calls)
	require.Len(t, f.store.commits, 1)
	assert.True(t, f.store.commits[0].Posted)
}

func TestProcessor_RecordingFetchFailureSettlesAsFailed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.fetcher.err = errors.New("status 404")

	require.NoError(t, f.processor.Process(context.Background(), normalJob()))

	assert.Equal(t, 0, f.transcriber.calls)
	assert.Equal(t, 0, f.summarizer.calls)

	require.Len(t, f.store.commits, 1)
	commit := f.store.commits[0]
	assert.False(t, commit.Posted)
	assert.Contains(t, commit.Transcript, "Recording download failed")
	assert.Contains(t, commit.Transcript, "status 404")

	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "Call processing failed")
}

func TestProcessor_TranscriptionFailureStillPosts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.transcriber.err = errors.New("whisper unavailable")
	f.transcriber.text = ""

	require.NoError(t, f.processor.Process(context.Background(), normalJob()))

	require.Len(t, f.store.commits, 1)
	commit := f.store.commits[0]
	assert.True(t, commit.Posted, "degraded content still gets posted")
	assert.Contains(t, commit.Transcript, "Transcription failed")

	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "Transcription failed")
}

func TestProcessor_RateLimitedSummaryFallsBack(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.summarizer.text = ""
	f.summarizer.err = errors.New("429 resource exhausted")
	f.summarizer.rateLimited = true

	require.NoError(t, f.processor.Process(context.Background(), normalJob()))

	assert.Equal(t, 3, f.summarizer.calls, "rate-limited attempts retry up to the bound")

	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0],
		"Customer needs a copy of last month's invoice.",
		"fallback summary comes from the transcript's first line")

	require.Len(t, f.store.commits, 1)
	assert.True(t, f.store.commits[0].Posted)
	assert.NotEmpty(t, f.store.commits[0].Transcript)
}

func TestProcessor_NonRetryableSummaryFailureSingleAttempt(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.summarizer.text = ""
	f.summarizer.err = errors.New("invalid request")
	f.summarizer.rateLimited = false

	require.NoError(t, f.processor.Process(context.Background(), normalJob()))

	assert.Equal(t, 1, f.summarizer.calls)
	require.Len(t, f.store.commits, 1)
	assert.True(t, f.store.commits[0].Posted)
}

func TestProcessor_FallbackSummaryTruncatesLongLines(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 300)
	got := fallbackSummary(long + "\nsecond line")
	assert.Equal(t, fallbackSummaryLimit+3, len(got))
	assert.True(t, strings.HasSuffix(got, "..."))

	assert.Equal(t, "short line", fallbackSummary("\n\n  short line  \nmore"))
	assert.Equal(t, "", fallbackSummary("   "))
}

func TestProcessor_AlreadyPostedAbortsWithoutNotifyOrCommit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.store.posted = true

	require.NoError(t, f.processor.Process(context.Background(), normalJob()))

	assert.Empty(t, f.notifier.messages, "a posted call must never be posted again")
	assert.Empty(t, f.store.commits, "the other run's outcome is left untouched")
}

func TestProcessor_PostedRecheckErrorAssumesNotPosted(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.store.postedErr = errors.New("read timeout")

	require.NoError(t, f.processor.Process(context.Background(), normalJob()))

	require.Len(t, f.notifier.messages, 1)
	require.Len(t, f.store.commits, 1)
	assert.True(t, f.store.commits[0].Posted)
}

func TestProcessor_NotifyFailureStaysRetryable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.notifier.ok = false

	require.NoError(t, f.processor.Process(context.Background(), normalJob()))

	require.Len(t, f.store.commits, 1)
	assert.False(t, f.store.commits[0].Posted)
	assert.Empty(t, f.mailer.sent, "no email copy when the channel post failed")
}

func TestProcessor_AllCollaboratorsFailingStillCommitsOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.transcriber.err = errors.New("transcriber down")
	f.summarizer.err = errors.New("summarizer down")
	f.summarizer.text = ""
	f.notifier.ok = false
	f.customers.found = false
	f.mailer.err = errors.New("mailer down")

	require.NoError(t, f.processor.Process(context.Background(), normalJob()))

	require.Len(t, f.store.commits, 1, "a claimed call always reaches exactly one terminal commit")
	assert.False(t, f.store.commits[0].Posted)
}

func TestProcessor_PanicIsCommittedAsFailed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.transcriber.panicMsg = "nil map write"

	err := f.processor.Process(context.Background(), normalJob())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	require.Len(t, f.store.commits, 1)
	commit := f.store.commits[0]
	assert.False(t, commit.Posted)
	assert.Contains(t, commit.Transcript, "nil map write")
}

func TestProcessor_CommitFailurePropagates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.store.commitErr = errors.New("disk full")

	err := f.processor.Process(context.Background(), normalJob())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record outcome")
}

func TestProcessor_OutgoingCallLooksUpCallee(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.directory.direction = roster.DirectionOutgoing

	job := normalJob()
	job.FromNumber = "09631084471"
	job.ToNumber = "+915550001111"

	require.NoError(t, f.processor.Process(context.Background(), job))

	require.Len(t, f.customers.lookedUp, 1)
	assert.Equal(t, "+915550001111", f.customers.lookedUp[0],
		"outgoing calls resolve the customer from the callee side")
}

func TestProcessor_EmailCopySkippedWithoutAddress(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.customers.customer.CAEmail = ""

	require.NoError(t, f.processor.Process(context.Background(), normalJob()))

	assert.Empty(t, f.mailer.sent)
	require.Len(t, f.store.commits, 1)
	assert.True(t, f.store.commits[0].Posted)
}

func TestProcessor_NilMailerIsSafe(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.processor.deps.Mailer = nil

	require.NoError(t, f.processor.Process(context.Background(), normalJob()))
	require.Len(t, f.store.commits, 1)
	assert.True(t, f.store.commits[0].Posted)
}
