package repositories

import "context"

// SpeechRequest configures one text-to-speech synthesis call
type SpeechRequest struct {
	Text     string
	Voice    string
	Format   string // "mp3", "wav", "pcm"
	Speed    float64
	Language string
}

type TextToSpeech interface {
	// Synthesize converts text to audio, streamed in chunks over the
	// returned channel. The channel is closed when synthesis finishes.
	Synthesize(ctx context.Context, req SpeechRequest) (<-chan []byte, error)
}
