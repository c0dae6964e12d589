package googleai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"call-relay/internal/observability"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const summaryModel = "gemini-2.0-flash"

// Client summarizes call transcripts with the Gemini API.
type Client struct {
	apiKey string
	logger *observability.Logger
}

func New(apiKey string, logger *observability.Logger) *Client {
	return &Client{apiKey: apiKey, logger: logger}
}

// Summarize generates a short concern summary for a call transcript.
// callContext carries customer metadata (segment, direction) for the prompt.
func (c *Client) Summarize(ctx context.Context, transcript string, callContext string) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer client.Close()

	prompt := fmt.Sprintf(`
Summarize the customer's concern from this support call transcript in one or
two sentences. State only what the customer needs. Avoid quotes.

Call context: %s

Transcript:
%s

Summary:`, callContext, transcript)

	model := client.GenerativeModel(summaryModel)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		c.logger.Error(ctx, "Failed to generate summary", err)
		return "", fmt.Errorf("failed to generate summary: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no summary returned from Gemini")
	}

	// Safely cast the part to Text and return
	part, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", fmt.Errorf("unexpected response format")
	}

	return strings.TrimSpace(string(part)), nil
}

func (c *Client) IsRateLimited(err error) bool {
	return IsRateLimited(err)
}

// IsRateLimited reports whether an error is a quota or rate-limit rejection
// worth retrying with backoff.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource exhausted")
}
