package sheets

import (
	"context"
	"fmt"

	"call-relay/internal/observability"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// Client reads the customer directory from a Google Sheet.
type Client struct {
	sheetID   string
	readRange string
	apiKey    string
	logger    *observability.Logger
}

func New(sheetID, readRange, apiKey string, logger *observability.Logger) *Client {
	return &Client{
		sheetID:   sheetID,
		readRange: readRange,
		apiKey:    apiKey,
		logger:    logger,
	}
}

// Enabled reports whether the sheet lookup is configured.
func (c *Client) Enabled() bool {
	return c.sheetID != "" && c.apiKey != ""
}

// FetchRows reads the configured range and returns the raw row values.
func (c *Client) FetchRows(ctx context.Context) ([][]interface{}, error) {
	svc, err := gsheets.NewService(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	resp, err := svc.Spreadsheets.Values.Get(c.sheetID, c.readRange).Context(ctx).Do()
	if err != nil {
		c.logger.Error(ctx, "failed to read customer sheet", err)
		return nil, fmt.Errorf("failed to read customer sheet: %w", err)
	}
	return resp.Values, nil
}
