package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"call-relay/internal/observability"

	"github.com/openai/openai-go"
	openaiOption "github.com/openai/openai-go/option"
)

const transcribeTimeout = 120 * time.Second

// Client transcribes call recordings with the OpenAI Whisper API.
type Client struct {
	apiKey string
	logger *observability.Logger
}

func New(apiKey string, logger *observability.Logger) *Client {
	return &Client{apiKey: apiKey, logger: logger}
}

// Transcribe sends audio bytes to the Whisper API and returns the transcript.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("OpenAI API key not set")
	}
	ctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()

	client := openai.NewClient(
		openaiOption.WithAPIKey(c.apiKey),
	)

	file := openai.File(bytes.NewReader(audio), "audio.wav", "audio/wav")
	params := openai.AudioTranscriptionNewParams{
		Model: openai.AudioModelWhisper1,
		File:  file,
	}
	resp, err := client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		c.logger.Error(ctx, "Failed to transcribe audio", err)
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}
	return resp.Text, nil
}
