package stt

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/speakai/server/domain/entities"
	"github.com/speakai/server/domain/repositories"
)

// Chain tries an ordered list of transcription backends until one succeeds.
// A TranscriptionError carrying every attempt is returned only when the
// whole list is exhausted.
type Chain struct {
	backends []repositories.Transcriber
	logger   *zap.Logger
}

var _ repositories.Transcriber = (*Chain)(nil)

// NewChain creates a fallback chain over the given backends, tried in order
func NewChain(logger *zap.Logger, backends ...repositories.Transcriber) *Chain {
	return &Chain{
		backends: backends,
		logger:   logger,
	}
}

func (c *Chain) Name() string {
	return "fallback-chain"
}

// Transcribe runs the fallback chain against an audio file on disk
func (c *Chain) Transcribe(ctx context.Context, audioPath string, language string) (string, error) {
	terr := &entities.TranscriptionError{}

	for _, backend := range c.backends {
		text, err := backend.Transcribe(ctx, audioPath, language)
		if err == nil && text != "" {
			c.logger.Info("transcription succeeded",
				zap.String("backend", backend.Name()))
			return text, nil
		}
		if err == nil {
			err = fmt.Errorf("empty transcription")
		}
		c.logger.Warn("transcription backend failed, falling back",
			zap.String("backend", backend.Name()),
			zap.Error(err))
		terr.Attempts = append(terr.Attempts, entities.BackendFailure{
			Backend: backend.Name(),
			Err:     err,
		})
	}

	return "", terr
}

// TranscribeBytes writes the audio to a temporary decoded artifact for
// backends that need a file path, runs the chain, and deletes the artifact
// unconditionally, including on failure paths.
func (c *Chain) TranscribeBytes(ctx context.Context, audio []byte, ext string, language string) (string, error) {
	tmpPath, err := c.writeTempArtifact(audio, ext)
	if err != nil {
		return "", &entities.TranscriptionError{Attempts: []entities.BackendFailure{
			{Backend: "temp-artifact", Err: err},
		}}
	}
	defer func() {
		if rmErr := os.Remove(tmpPath); rmErr != nil {
			c.logger.Warn("failed to remove temp audio artifact",
				zap.String("path", tmpPath), zap.Error(rmErr))
		}
	}()

	return c.Transcribe(ctx, tmpPath, language)
}

func (c *Chain) writeTempArtifact(audio []byte, ext string) (string, error) {
	f, err := os.CreateTemp("", "speakai-*-"+uuid.NewString()+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temp audio file: %w", err)
	}
	if _, err := f.Write(audio); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close temp audio file: %w", err)
	}
	return f.Name(), nil
}
