package processor

import (
	"fmt"
	"html"
	"strings"

	"call-relay/internal/calls"
	"call-relay/internal/customers"
	"call-relay/internal/roster"
)

const (
	// fallbackSummaryLimit caps the deterministic summary cut from the
	// transcript when the summarizer is unavailable.
	fallbackSummaryLimit = 200
	// messageTranscriptLimit keeps channel messages inside Slack's
	// comfortable rendering size.
	messageTranscriptLimit = 3000
)

// fallbackSummary takes the first non-empty transcript line, truncated.
func fallbackSummary(transcript string) string {
	text := strings.TrimSpace(transcript)
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			text = trimmed
			break
		}
	}
	if len(text) > fallbackSummaryLimit {
		return text[:fallbackSummaryLimit] + "..."
	}
	return text
}

func formatMessage(job calls.Job, class calls.Class, direction string, agent roster.Agent, customer customers.Customer, customerKnown bool, summary, transcript string) string {
	var b strings.Builder

	if class == calls.ClassShort {
		b.WriteString(":telephone_receiver: *Short call logged*\n")
	} else {
		b.WriteString(":telephone_receiver: *New call processed*\n")
	}

	fmt.Fprintf(&b, "*Direction:* %s\n", capitalize(direction))
	fmt.Fprintf(&b, "*Customer:* %s\n", customerLine(customer, customerKnown, job, direction))
	fmt.Fprintf(&b, "*Agent:* %s (%s)\n", agent.Name, agent.SlackHandle)
	fmt.Fprintf(&b, "*Duration:* %s\n", formatDuration(job.Duration))

	if class == calls.ClassShort {
		b.WriteString("No recording to transcribe.")
		return b.String()
	}

	if summary != "" {
		fmt.Fprintf(&b, "*Concern:* %s\n", summary)
	}
	fmt.Fprintf(&b, "*Transcript:*\n%s", truncate(transcript, messageTranscriptLimit))
	return b.String()
}

func formatFetchFailure(job calls.Job, text string) string {
	return fmt.Sprintf(":warning: *Call processing failed*\nCall %s from %s: %s\nIt stays retryable after the cool-down.",
		job.CallID, job.FromNumber, text)
}

func formatTranscriptEmail(job calls.Job, customer customers.Customer, summary, transcript string) (subject, htmlBody string) {
	subject = fmt.Sprintf("Call summary: %s", customer.Name)

	var b strings.Builder
	b.WriteString("<h3>Call summary</h3>")
	fmt.Fprintf(&b, "<p><b>Customer:</b> %s", html.EscapeString(customer.Name))
	if customer.Company != "" {
		fmt.Fprintf(&b, " (%s)", html.EscapeString(customer.Company))
	}
	b.WriteString("</p>")
	fmt.Fprintf(&b, "<p><b>Duration:</b> %s</p>", formatDuration(job.Duration))
	if summary != "" {
		fmt.Fprintf(&b, "<p><b>Concern:</b> %s</p>", html.EscapeString(summary))
	}
	fmt.Fprintf(&b, "<h4>Transcript</h4><p>%s</p>", html.EscapeString(transcript))
	return subject, b.String()
}

func customerLine(customer customers.Customer, known bool, job calls.Job, direction string) string {
	number := job.FromNumber
	if direction == roster.DirectionOutgoing {
		number = job.ToNumber
	}
	if !known {
		return number
	}
	if customer.Company != "" {
		return fmt.Sprintf("%s (%s) %s", customer.Name, customer.Company, number)
	}
	return fmt.Sprintf("%s %s", customer.Name, number)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatDuration(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
