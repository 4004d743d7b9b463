package repositories

import "context"

// LanguageModel abstracts the generative-language API
type LanguageModel interface {
	// Generate takes a prompt and returns the model's free-text reply
	Generate(ctx context.Context, prompt string) (string, error)
}
