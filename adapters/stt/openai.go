package stt

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIWhisper transcribes audio through the OpenAI Whisper API.
// This is the online recognition backend of the fallback chain.
type OpenAIWhisper struct {
	client *openai.Client
	logger *zap.Logger
}

// NewOpenAIWhisper creates an OpenAI Whisper API transcriber
func NewOpenAIWhisper(apiKey string, logger *zap.Logger) (*OpenAIWhisper, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	return &OpenAIWhisper{
		client: openai.NewClient(apiKey),
		logger: logger,
	}, nil
}

func (o *OpenAIWhisper) Name() string {
	return "openai-whisper"
}

// Transcribe uploads the audio file to the Whisper API
func (o *OpenAIWhisper) Transcribe(ctx context.Context, audioPath string, language string) (string, error) {
	req := openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
		Language: whisperLanguage(language),
	}

	resp, err := o.client.CreateTranscription(ctx, req)
	if err != nil {
		return "", fmt.Errorf("createTranscription failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("whisper API returned no text")
	}

	return text, nil
}
