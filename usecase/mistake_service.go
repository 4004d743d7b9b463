package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/speakai/server/domain/entities"
	"github.com/speakai/server/domain/repositories"
)

// ErrMistakeNotFound signals a practice request for a mistake that does
// not exist
var ErrMistakeNotFound = errors.New("mistake not found")

const (
	// minTrackedSeverity filters out trivial grammar issues; only
	// severity above this is worth drilling.
	minTrackedSeverity = 2

	// defaultPracticeLimit bounds one practice queue request.
	defaultPracticeLimit = 5

	// contextRadius is how many characters around the mistake are kept
	// as context.
	contextRadius = 50
)

// MistakeStats summarizes a user's tracked mistakes
type MistakeStats struct {
	TotalCount        int            `json:"total_count"`
	MasteredCount     int            `json:"mastered_count"`
	LearningCount     int            `json:"learning_count"`
	NewCount          int            `json:"new_count"`
	TypeDistribution  map[string]int `json:"type_distribution"`
	DueForPractice    int            `json:"due_for_practice"`
	MasteryPercentage float64        `json:"mastery_percentage"`
}

// PracticeItem is one drill exercise built from a tracked mistake
type PracticeItem struct {
	Mistake *entities.Mistake `json:"mistake"`
	Prompt  string            `json:"prompt"`
}

// PracticeOutcome reports the updated mistake state after one practice
// attempt, with a feedback line for the user
type PracticeOutcome struct {
	Mistake  *entities.Mistake `json:"mistake"`
	Feedback string            `json:"feedback"`
}

// MistakeService extracts recurring mistakes from feedback and schedules
// them for spaced repetition practice. Recording is best-effort: it never
// fails the pipeline that produced the feedback.
type MistakeService struct {
	mistakes repositories.MistakeRepository
	logger   *zap.Logger
}

// NewMistakeService creates the mistake tracker
func NewMistakeService(mistakes repositories.MistakeRepository, logger *zap.Logger) *MistakeService {
	return &MistakeService{
		mistakes: mistakes,
		logger:   logger,
	}
}

// RecordFromFeedback extracts trackable mistakes from one feedback result
// and upserts them. Grammar issues at or below the severity floor are
// skipped; every vocabulary suggestion is tracked. Returns how many
// mistakes were stored.
func (s *MistakeService) RecordFromFeedback(
	ctx context.Context,
	userID, transcription string,
	fb *entities.Feedback,
	fctx FeedbackContext,
) int {
	if fb == nil || fb.IsDefault() {
		return 0
	}

	var extracted []*entities.Mistake
	for _, issue := range fb.Grammar {
		if issue.Severity <= minTrackedSeverity {
			continue
		}
		if issue.Issue == "" || issue.Correction == "" {
			continue
		}
		m := entities.NewMistake(userID, entities.MistakeGrammar,
			issue.Issue, issue.Correction, issue.Explanation,
			excerptAround(transcription, issue.Issue), issue.Severity)
		m.Situation = fctx.Situation
		extracted = append(extracted, m)
	}
	for _, v := range fb.Vocabulary {
		if v.Original == "" || v.Suggestion == "" {
			continue
		}
		m := entities.NewMistake(userID, entities.MistakeVocabulary,
			v.Original, v.Suggestion, "",
			excerptAround(transcription, v.Original), 0)
		m.ExampleUsage = v.ExampleUsage
		m.Situation = fctx.Situation
		extracted = append(extracted, m)
	}

	stored := 0
	for _, m := range extracted {
		if err := s.mistakes.Upsert(ctx, m); err != nil {
			s.logger.Warn("failed to store mistake",
				zap.String("user_id", userID),
				zap.String("original", m.OriginalText),
				zap.Error(err))
			continue
		}
		stored++
	}

	if stored > 0 {
		s.logger.Debug("mistakes recorded",
			zap.String("user_id", userID), zap.Int("count", stored))
	}
	return stored
}

// ListMistakes returns the user's tracked mistakes, optionally filtered
// to those not yet mastered
func (s *MistakeService) ListMistakes(ctx context.Context, userID string, unmasteredOnly bool) ([]*entities.Mistake, error) {
	all, err := s.mistakes.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mistakes: %w", err)
	}
	if !unmasteredOnly {
		return all, nil
	}

	out := make([]*entities.Mistake, 0, len(all))
	for _, m := range all {
		if !m.IsMastered() {
			out = append(out, m)
		}
	}
	return out, nil
}

// Statistics computes the mastery summary over the user's mistakes
func (s *MistakeService) Statistics(ctx context.Context, userID string) (*MistakeStats, error) {
	all, err := s.mistakes.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mistakes: %w", err)
	}

	now := time.Now().UTC()
	stats := &MistakeStats{
		TotalCount:       len(all),
		TypeDistribution: map[string]int{},
	}
	for _, m := range all {
		switch m.Status {
		case entities.MistakeMastered:
			stats.MasteredCount++
		case entities.MistakeLearning:
			stats.LearningCount++
		default:
			stats.NewCount++
		}
		stats.TypeDistribution[string(m.Type)]++
		if m.DueForPractice(now) {
			stats.DueForPractice++
		}
	}
	if stats.TotalCount > 0 {
		stats.MasteryPercentage = float64(stats.MasteredCount) / float64(stats.TotalCount) * 100
	}
	return stats, nil
}

// PracticeQueue returns up to limit drill exercises due now, soonest
// first
func (s *MistakeService) PracticeQueue(ctx context.Context, userID string, limit int) ([]*PracticeItem, error) {
	if limit <= 0 {
		limit = defaultPracticeLimit
	}

	due, err := s.mistakes.DueForPractice(ctx, userID, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load practice queue: %w", err)
	}

	items := make([]*PracticeItem, 0, len(due))
	for _, m := range due {
		items = append(items, &PracticeItem{
			Mistake: m,
			Prompt:  practicePrompt(m),
		})
	}
	return items, nil
}

// RecordPractice applies one practice attempt to a mistake the user owns
func (s *MistakeService) RecordPractice(ctx context.Context, userID, mistakeID string, correct bool) (*PracticeOutcome, error) {
	m, err := s.mistakes.GetByID(ctx, mistakeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mistake: %w", err)
	}
	if m == nil {
		return nil, ErrMistakeNotFound
	}
	if m.UserID != userID {
		return nil, ErrAccessDenied
	}

	m.RecordPractice(correct)
	if err := s.mistakes.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to update mistake: %w", err)
	}

	return &PracticeOutcome{
		Mistake:  m,
		Feedback: practiceFeedback(m, correct),
	}, nil
}

// practicePrompt builds the drill exercise text for one mistake
func practicePrompt(m *entities.Mistake) string {
	context := m.Context
	if context == "" {
		context = m.OriginalText
	}
	switch m.Type {
	case entities.MistakeVocabulary:
		return fmt.Sprintf("Improve this sentence by using a better word or phrase for %q: %q",
			m.OriginalText, context)
	default:
		return fmt.Sprintf("Correct the grammar in this sentence: %q", context)
	}
}

func practiceFeedback(m *entities.Mistake, correct bool) string {
	if correct {
		return fmt.Sprintf("Great job! You've correctly used %q instead of %q.",
			m.Correction, m.OriginalText)
	}
	line := fmt.Sprintf("Keep practicing! Remember to use %q instead of %q.",
		m.Correction, m.OriginalText)
	if m.Explanation != "" {
		line += " " + m.Explanation
	}
	return line
}

// excerptAround cuts the transcription down to the text surrounding the
// mistake, with the mistake itself bracketed. The whole transcription is
// returned when the text cannot be located.
func excerptAround(transcription, text string) string {
	if text == "" || !strings.Contains(transcription, text) {
		return transcription
	}

	pos := strings.Index(transcription, text)
	start := pos - contextRadius
	if start < 0 {
		start = 0
	}
	end := pos + len(text) + contextRadius
	if end > len(transcription) {
		end = len(transcription)
	}

	excerpt := transcription[start:end]
	return strings.Replace(excerpt, text, "["+text+"]", 1)
}
