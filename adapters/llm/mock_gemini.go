package llm

import (
	"context"
	"strings"

	"github.com/speakai/server/domain/repositories"
)

// MockLanguageModel is a placeholder for development runs without a
// Gemini API key
type MockLanguageModel struct{}

// NewMockLanguageModel creates a mock language model
func NewMockLanguageModel() repositories.LanguageModel {
	return &MockLanguageModel{}
}

// Generate returns a canned reply. Feedback prompts get a response in the
// fixed section format so the parser path stays exercised in development.
func (m *MockLanguageModel) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "GRAMMAR:") {
		return `GRAMMAR:
- issue: I go to school yesterday | correction: I went to school yesterday | explanation: Use the past tense with time markers like "yesterday" | severity: 3
VOCABULARY:
- original: meet | suggestion: ran into | example: I ran into my teacher at the library.
POSITIVES:
- Clear sentence structure and good word order.
FLUENCY:
- Try linking your sentences with connectors like "and then" or "after that".`, nil
	}
	return "That sounds great! Could you tell me a little more about it?", nil
}
