package repositories

import "context"

// Transcriber is one concrete speech-to-text backend in the fallback chain.
// Each attempt is independent and stateless; results are never cached.
type Transcriber interface {
	// Transcribe converts the audio file at path to plain text
	Transcribe(ctx context.Context, audioPath string, language string) (string, error)
	// Name identifies the backend in logs and error reports
	Name() string
}
