package stt

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WhisperCPP runs a local whisper.cpp binary for transcription.
// This is the primary, model-based backend of the fallback chain.
type WhisperCPP struct {
	binaryPath string
	modelPath  string
	logger     *zap.Logger
}

// NewWhisperCPP creates a local whisper.cpp transcriber
func NewWhisperCPP(binaryPath, modelPath string, logger *zap.Logger) *WhisperCPP {
	return &WhisperCPP{
		binaryPath: binaryPath,
		modelPath:  modelPath,
		logger:     logger,
	}
}

func (w *WhisperCPP) Name() string {
	return "whisper-cpp"
}

// Transcribe shells out to the whisper.cpp binary with the audio file and
// reads the text it writes next to the output base path.
func (w *WhisperCPP) Transcribe(ctx context.Context, audioPath string, language string) (string, error) {
	if w.binaryPath == "" || w.modelPath == "" {
		return "", fmt.Errorf("whisper binary or model path not configured")
	}
	if _, err := os.Stat(w.binaryPath); err != nil {
		return "", fmt.Errorf("whisper binary unavailable: %w", err)
	}

	outputBase := filepath.Join(os.TempDir(), "whisper-"+uuid.NewString())
	defer os.Remove(outputBase + ".txt")

	args := []string{
		"-m", w.modelPath,
		"-l", whisperLanguage(language),
		"-otxt",
		"-f", audioPath,
		"-of", outputBase,
	}

	cmd := exec.CommandContext(ctx, w.binaryPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	w.logger.Debug("running whisper.cpp",
		zap.String("binary", w.binaryPath),
		zap.Strings("args", args))

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("whisper.cpp execution failed: %w, stderr: %s", err, stderr.String())
	}

	output, err := os.ReadFile(outputBase + ".txt")
	if err != nil {
		return "", fmt.Errorf("failed to read whisper output: %w", err)
	}

	text := strings.TrimSpace(string(output))
	if text == "" {
		return "", fmt.Errorf("whisper.cpp produced no text")
	}

	return text, nil
}

// whisperLanguage maps a BCP-47 language tag to the two-letter code
// whisper.cpp expects
func whisperLanguage(language string) string {
	if language == "" {
		return "en"
	}
	if idx := strings.Index(language, "-"); idx > 0 {
		return strings.ToLower(language[:idx])
	}
	return strings.ToLower(language)
}
