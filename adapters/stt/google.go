package stt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"
)

// GoogleSpeech transcribes audio through the managed Google Cloud
// Speech-to-Text API. This is the last backend of the fallback chain.
type GoogleSpeech struct {
	logger *zap.Logger
}

// NewGoogleSpeech creates a Google Cloud Speech transcriber. Credentials
// are resolved from the environment by the client library.
func NewGoogleSpeech(logger *zap.Logger) *GoogleSpeech {
	return &GoogleSpeech{logger: logger}
}

func (g *GoogleSpeech) Name() string {
	return "google-cloud-speech"
}

// Transcribe sends the audio content to the synchronous Recognize API and
// joins the best alternative of every result.
func (g *GoogleSpeech) Transcribe(ctx context.Context, audioPath string, language string) (string, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create speech client: %w", err)
	}
	defer client.Close()

	content, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to read audio file: %w", err)
	}

	if language == "" {
		language = "en-US"
	}

	resp, err := client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        encodingForExtension(filepath.Ext(audioPath)),
			SampleRateHertz: 16000,
			LanguageCode:    language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
		},
	})
	if err != nil {
		return "", fmt.Errorf("recognize request failed: %w", err)
	}

	var parts []string
	for _, result := range resp.Results {
		if len(result.Alternatives) > 0 {
			parts = append(parts, result.Alternatives[0].Transcript)
		}
	}

	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return "", fmt.Errorf("no speech detected in audio")
	}

	g.logger.Debug("google speech transcription complete",
		zap.Int("results", len(resp.Results)))

	return text, nil
}

// encodingForExtension maps an audio file extension to the Speech API
// encoding enum. Unknown containers are left unspecified so the API can
// sniff the header itself.
func encodingForExtension(ext string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(ext) {
	case ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case ".flac":
		return speechpb.RecognitionConfig_FLAC
	case ".ogg":
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}
