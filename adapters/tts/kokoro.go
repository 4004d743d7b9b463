package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/speakai/server/domain/repositories"
)

const (
	defaultBaseURL   = "http://tts_kokoro:8880"
	defaultModelName = "kokoro"
	defaultVoice     = "af_heart"
	defaultFormat    = "mp3"
	defaultSpeed     = 1.2
	defaultLangCode  = "en-US"
	defaultChunkSize = 1024
	speechPath       = "/v1/audio/speech"
)

// KokoroConfig holds configuration for the Kokoro TTS adapter.
// Required fields: none — the adapter defaults to the in-cluster service.
// Optional fields with defaults:
// - BaseURL: the Kokoro service base URL (default: "http://tts_kokoro:8880")
// - Model: the TTS model name (default: "kokoro")
// - Voice: the default voice name (default: "af_heart")
// - Format: the output audio format (default: "mp3")
// - Speed: speech rate multiplier (default: 1.2)
// - ChunkSize: the size of audio chunks to stream (default: 1024)
type KokoroConfig struct {
	BaseURL   string
	Model     string
	Voice     string
	Format    string
	Speed     float64
	ChunkSize int
}

// NewKokoroConfigFromEnv builds a KokoroConfig from environment variables
func NewKokoroConfigFromEnv() KokoroConfig {
	return KokoroConfig{
		BaseURL: os.Getenv("TTS_BACKEND_BASE_URL"),
		Model:   os.Getenv("TTS_MODEL_NAME"),
		Voice:   os.Getenv("TTS_VOICE_NAME"),
	}
}

// KokoroTTS implements TextToSpeech against the Kokoro TTS microservice
type KokoroTTS struct {
	baseURL   string
	model     string
	voice     string
	format    string
	speed     float64
	chunkSize int
	client    *http.Client
	logger    *zap.Logger
}

var _ repositories.TextToSpeech = (*KokoroTTS)(nil)

// kokoroRequest is the request payload for the Kokoro speech endpoint
type kokoroRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
	Stream         bool    `json:"stream"`
	LangCode       string  `json:"lang_code"`
}

// ValidateKokoroConfig validates the KokoroConfig
func ValidateKokoroConfig(config KokoroConfig) error {
	if config.Speed < 0 {
		return fmt.Errorf("speed must be positive, got %f", config.Speed)
	}
	if config.ChunkSize < 0 {
		return fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}
	return nil
}

// NewKokoroTTS creates a new Kokoro TTS adapter
func NewKokoroTTS(config KokoroConfig, logger *zap.Logger) (*KokoroTTS, error) {
	if err := ValidateKokoroConfig(config); err != nil {
		return nil, err
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
		logger.Info("Using default TTS base URL", zap.String("baseURL", baseURL))
	}
	model := config.Model
	if model == "" {
		model = defaultModelName
	}
	voice := config.Voice
	if voice == "" {
		voice = defaultVoice
	}
	format := config.Format
	if format == "" {
		format = defaultFormat
	}
	speed := config.Speed
	if speed == 0 {
		speed = defaultSpeed
	}
	chunkSize := config.ChunkSize
	if chunkSize == 0 {
		chunkSize = defaultChunkSize
	}

	return &KokoroTTS{
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     model,
		voice:     voice,
		format:    format,
		speed:     speed,
		chunkSize: chunkSize,
		client:    &http.Client{Timeout: 60 * time.Second},
		logger:    logger,
	}, nil
}

// Synthesize converts text to speech via the Kokoro service and streams the
// audio body in chunks over the returned channel
func (k *KokoroTTS) Synthesize(ctx context.Context, req repositories.SpeechRequest) (<-chan []byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	voice := req.Voice
	if voice == "" {
		voice = k.voice
	}
	format := req.Format
	if format == "" {
		format = k.format
	}
	speed := req.Speed
	if speed == 0 {
		speed = k.speed
	}
	langCode := req.Language
	if langCode == "" {
		langCode = defaultLangCode
	}

	payload := kokoroRequest{
		Model:          k.model,
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: format,
		Speed:          speed,
		Stream:         true,
		LangCode:       langCode,
	}

	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+speechPath, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", acceptHeaderFor(format))

	resp, err := k.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("TTS service unreachable: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("TTS service error (%d): %s", resp.StatusCode, string(errorBody))
	}

	k.logger.Info("Streaming TTS audio",
		zap.String("voice", voice),
		zap.String("format", format),
		zap.Int("textLength", len(req.Text)))

	audioChan := make(chan []byte, 10)

	go func() {
		defer close(audioChan)
		defer resp.Body.Close()

		buffer := make([]byte, k.chunkSize)
		totalBytes := 0

		for {
			select {
			case <-ctx.Done():
				k.logger.Warn("Context cancelled while streaming TTS audio")
				return
			default:
				n, err := resp.Body.Read(buffer)
				if n > 0 {
					totalBytes += n
					chunk := make([]byte, n)
					copy(chunk, buffer[:n])

					select {
					case audioChan <- chunk:
					case <-ctx.Done():
						return
					}
				}
				if err == io.EOF {
					k.logger.Debug("Finished streaming TTS audio",
						zap.Int("totalBytes", totalBytes))
					return
				}
				if err != nil {
					k.logger.Error("Error reading TTS response body", zap.Error(err))
					return
				}
			}
		}
	}()

	return audioChan, nil
}

func acceptHeaderFor(format string) string {
	switch format {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
