package recordings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"call-relay/internal/observability"
)

// maxRecordingBytes caps a download at the Whisper upload limit.
const maxRecordingBytes = 25 << 20

// Client downloads call recordings from the telephony provider.
// Recording URLs require basic auth with the provider API credentials.
type Client struct {
	apiKey     string
	apiToken   string
	logger     *observability.Logger
	httpClient *http.Client
}

func New(apiKey, apiToken string, logger *observability.Logger) *Client {
	return &Client{
		apiKey:   apiKey,
		apiToken: apiToken,
		logger:   logger,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Fetch downloads the recording at url and returns the raw audio bytes.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error(ctx, "failed to fetch recording", err)
		return nil, fmt.Errorf("failed to fetch recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("recording fetch returned status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordingBytes))
	if err != nil {
		c.logger.Error(ctx, "failed to read recording body", err)
		return nil, fmt.Errorf("failed to read recording body: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("recording is empty")
	}
	return audio, nil
}
