package stt

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/speakai/server/domain/repositories"
)

// MockTranscriber is a placeholder backend for development runs without
// any speech credentials configured
type MockTranscriber struct {
	logger *zap.Logger
}

// NewMockTranscriber creates a mock transcription backend
func NewMockTranscriber(logger *zap.Logger) repositories.Transcriber {
	return &MockTranscriber{logger: logger}
}

func (m *MockTranscriber) Name() string {
	return "mock"
}

// Transcribe returns a canned transcription based on the audio size
func (m *MockTranscriber) Transcribe(ctx context.Context, audioPath string, language string) (string, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat audio file: %w", err)
	}

	m.logger.Info("mock transcription",
		zap.String("path", audioPath),
		zap.Int64("size", info.Size()),
		zap.String("language", language))

	switch {
	case info.Size() > 1_000_000:
		return "Yesterday I went to the library and I studied English with my friends for two hours.", nil
	case info.Size() > 10_000:
		return "I go to school yesterday and I meet my teacher.", nil
	case info.Size() > 0:
		return "Hello, nice to meet you.", nil
	default:
		return "", fmt.Errorf("no audio data received")
	}
}
