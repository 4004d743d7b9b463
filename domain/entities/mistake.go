package entities

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MistakeType identifies which feedback category a mistake came from
type MistakeType string

const (
	MistakeGrammar    MistakeType = "GRAMMAR"
	MistakeVocabulary MistakeType = "VOCABULARY"
)

// MistakeStatus tracks a mistake through the practice lifecycle
type MistakeStatus string

const (
	MistakeNew      MistakeStatus = "NEW"
	MistakeLearning MistakeStatus = "LEARNING"
	MistakeMastered MistakeStatus = "MASTERED"
)

const (
	// masteredStreak is the number of consecutive correct practice
	// attempts that marks a mistake as mastered.
	masteredStreak = 5

	// maxPracticeIntervalDays caps the spaced repetition interval.
	maxPracticeIntervalDays = 30

	// firstPracticeDelay is how soon a freshly recorded mistake becomes
	// due for practice.
	firstPracticeDelay = 2 * time.Hour

	// retryDelay is the interval after a failed practice attempt.
	retryDelay = time.Hour
)

// Mistake is one recurring language error extracted from feedback, with
// its spaced repetition practice state. A mistake is unique per user by
// (type, original text, correction); repeated occurrences bump Frequency
// instead of creating duplicates.
type Mistake struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID       string             `json:"user_id" bson:"user_id"`
	Type         MistakeType        `json:"type" bson:"type"`
	OriginalText string             `json:"original_text" bson:"original_text"`
	Correction   string             `json:"correction" bson:"correction"`
	Explanation  string             `json:"explanation" bson:"explanation"`
	ExampleUsage string             `json:"example_usage,omitempty" bson:"example_usage,omitempty"`
	Context      string             `json:"context" bson:"context"`
	Situation    string             `json:"situation,omitempty" bson:"situation,omitempty"`
	Severity     int                `json:"severity" bson:"severity"`

	Frequency          int           `json:"frequency" bson:"frequency"`
	Status             MistakeStatus `json:"status" bson:"status"`
	ConfidenceLevel    int           `json:"confidence_level" bson:"confidence_level"` // 0..100
	InDrillQueue       bool          `json:"in_drill_queue" bson:"in_drill_queue"`
	PracticeCount      int           `json:"practice_count" bson:"practice_count"`
	ConsecutiveCorrect int           `json:"consecutive_correct" bson:"consecutive_correct"`

	NextPracticeAt  time.Time  `json:"next_practice_at" bson:"next_practice_at"`
	LastPracticedAt *time.Time `json:"last_practiced_at,omitempty" bson:"last_practiced_at,omitempty"`
	LastOccurredAt  time.Time  `json:"last_occurred_at" bson:"last_occurred_at"`
	CreatedAt       time.Time  `json:"created_at" bson:"created_at"`
}

// NewMistake creates a freshly observed mistake, scheduled for its first
// practice shortly after it occurred
func NewMistake(userID string, kind MistakeType, originalText, correction, explanation, context string, severity int) *Mistake {
	now := time.Now().UTC()
	return &Mistake{
		UserID:         userID,
		Type:           kind,
		OriginalText:   originalText,
		Correction:     correction,
		Explanation:    explanation,
		Context:        context,
		Severity:       severity,
		Frequency:      1,
		Status:         MistakeNew,
		InDrillQueue:   true,
		NextPracticeAt: now.Add(firstPracticeDelay),
		LastOccurredAt: now,
		CreatedAt:      now,
	}
}

// Matches reports whether two mistakes describe the same error for the
// same user
func (m *Mistake) Matches(other *Mistake) bool {
	return m.UserID == other.UserID &&
		m.Type == other.Type &&
		m.OriginalText == other.OriginalText &&
		m.Correction == other.Correction
}

// RecordOccurrence notes that the user made this mistake again
func (m *Mistake) RecordOccurrence(explanation, context string) {
	m.Frequency++
	m.LastOccurredAt = time.Now().UTC()
	if explanation != "" {
		m.Explanation = explanation
	}
	if context != "" {
		m.Context = context
	}
}

// RecordPractice updates the spaced repetition state after one practice
// attempt. Correct answers double the interval per streak step, capped at
// maxPracticeIntervalDays; a wrong answer resets the streak and schedules
// a quick retry. Five correct answers in a row master the mistake and
// take it out of the drill queue.
func (m *Mistake) RecordPractice(correct bool) {
	now := time.Now().UTC()
	m.PracticeCount++
	m.LastPracticedAt = &now

	if correct {
		m.ConsecutiveCorrect++
		days := m.ConsecutiveCorrect * 2
		if days > maxPracticeIntervalDays {
			days = maxPracticeIntervalDays
		}
		m.NextPracticeAt = now.Add(time.Duration(days) * 24 * time.Hour)
	} else {
		m.ConsecutiveCorrect = 0
		m.NextPracticeAt = now.Add(retryDelay)
	}

	if m.ConsecutiveCorrect >= masteredStreak {
		m.Status = MistakeMastered
	} else {
		m.Status = MistakeLearning
	}
	m.ConfidenceLevel = m.ConsecutiveCorrect * 20
	if m.ConfidenceLevel > 100 {
		m.ConfidenceLevel = 100
	}
	m.InDrillQueue = m.Status != MistakeMastered
}

// DueForPractice reports whether the mistake should be drilled now
func (m *Mistake) DueForPractice(now time.Time) bool {
	return m.InDrillQueue && !m.NextPracticeAt.After(now)
}

// IsMastered reports whether the mistake has been learned
func (m *Mistake) IsMastered() bool {
	return m.Status == MistakeMastered
}
