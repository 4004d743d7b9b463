package entities

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TargetType identifies the kind of record a feedback belongs to
type TargetType string

const (
	TargetMessage TargetType = "message"
	TargetAudio   TargetType = "audio"
)

// GrammarIssue describes one grammatical problem found in a transcription
type GrammarIssue struct {
	Issue       string `json:"issue" bson:"issue"`
	Correction  string `json:"correction" bson:"correction"`
	Explanation string `json:"explanation" bson:"explanation"`
	Severity    int    `json:"severity" bson:"severity"` // 1 (minor) to 5 (severe)
}

// VocabularySuggestion proposes a better word or phrase
type VocabularySuggestion struct {
	Original     string `json:"original" bson:"original"`
	Suggestion   string `json:"suggestion" bson:"suggestion"`
	ExampleUsage string `json:"example_usage" bson:"example_usage"`
}

// Feedback is the four-category result of language analysis on a
// transcription. Write-once per message.
type Feedback struct {
	ID            primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	TargetID      string                 `json:"target_id" bson:"target_id"`
	TargetType    TargetType             `json:"target_type" bson:"target_type"`
	UserID        string                 `json:"user_id" bson:"user_id"`
	Transcription string                 `json:"transcription" bson:"transcription"`
	Grammar       []GrammarIssue         `json:"grammar" bson:"grammar"`
	Vocabulary    []VocabularySuggestion `json:"vocabulary" bson:"vocabulary"`
	Positives     []string               `json:"positives" bson:"positives"`
	Fluency       []string               `json:"fluency" bson:"fluency"`
	CreatedAt     time.Time              `json:"created_at" bson:"created_at"`
}

// DefaultPositiveNote is returned when language analysis is unavailable
const DefaultPositiveNote = "Thanks for your answer! The detailed analysis is unavailable right now, " +
	"but keep practicing. Try speaking a little more slowly and clearly next time."

// NewFeedback creates an empty feedback shell for the given target
func NewFeedback(targetID string, targetType TargetType, userID, transcription string) *Feedback {
	return &Feedback{
		TargetID:      targetID,
		TargetType:    targetType,
		UserID:        userID,
		Transcription: transcription,
		Grammar:       []GrammarIssue{},
		Vocabulary:    []VocabularySuggestion{},
		Positives:     []string{},
		Fluency:       []string{},
		CreatedAt:     time.Now().UTC(),
	}
}

// DefaultFeedback is the degraded result used when the language model is
// unreachable or its response cannot be parsed: a single generic positive
// note, all other categories empty.
func DefaultFeedback(targetID string, targetType TargetType, userID, transcription string) *Feedback {
	fb := NewFeedback(targetID, targetType, userID, transcription)
	fb.Positives = []string{DefaultPositiveNote}
	return fb
}

// IsDefault reports whether the feedback is the degraded default
func (f *Feedback) IsDefault() bool {
	return len(f.Grammar) == 0 && len(f.Vocabulary) == 0 && len(f.Fluency) == 0 &&
		len(f.Positives) == 1 && f.Positives[0] == DefaultPositiveNote
}
