package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"call-relay/internal/observability"
)

// Client posts call notifications to a Slack incoming webhook.
type Client struct {
	webhookURL string
	logger     *observability.Logger
	httpClient *http.Client
}

func New(webhookURL string, logger *observability.Logger) *Client {
	return &Client{
		webhookURL: webhookURL,
		logger:     logger,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type message struct {
	Text string `json:"text"`
}

// Post delivers a notification to the chat webhook. It reports delivery as a
// plain bool; the caller decides what an undelivered notification means.
func (c *Client) Post(ctx context.Context, text string) bool {
	startTime := time.Now()

	payloadBytes, err := json.Marshal(message{Text: text})
	if err != nil {
		c.logger.Error(ctx, "failed to marshal notification payload", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.webhookURL, bytes.NewReader(payloadBytes))
	if err != nil {
		c.logger.Error(ctx, "failed to create notification request", err)
		return false
	}

	// Set headers
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Call-Relay-Webhook/1.0")

	// Send request
	resp, err := c.httpClient.Do(req)
	durationMs := int(time.Since(startTime).Milliseconds())

	if err != nil {
		c.logger.Error(ctx, "failed to post notification", err)
		return false
	}
	defer resp.Body.Close()

	// Read response body (limit to 10KB)
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 10240))
	if err != nil {
		c.logger.Warn(ctx, "failed to read notification response body")
		bodyBytes = nil
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "response_status", Value: resp.StatusCode},
		observability.Field{Key: "duration_ms", Value: durationMs},
	)

	// Check if request was successful (2xx status code)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Info(ctx, "notification delivered")
		return true
	}

	c.logger.Error(ctx, "notification rejected",
		fmt.Errorf("received non-2xx status code: %d (%s)", resp.StatusCode, string(bodyBytes)))
	return false
}
