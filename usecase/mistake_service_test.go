package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/speakai/server/adapters/memory"
	"github.com/speakai/server/domain/entities"
)

func newTestMistakeService(t *testing.T, records *memory.Records) *MistakeService {
	t.Helper()
	return NewMistakeService(records.Mistakes(), zaptest.NewLogger(t))
}

func sampleFeedback(userID string) *entities.Feedback {
	fb := entities.NewFeedback("audio-1", entities.TargetAudio, userID,
		"I go to school yesterday and I meet my teacher.")
	fb.Grammar = []entities.GrammarIssue{
		{Issue: "I go to school yesterday", Correction: "I went to school yesterday",
			Explanation: "Use the past tense with time markers", Severity: 4},
		{Issue: "a teacher", Correction: "the teacher",
			Explanation: "Use the definite article", Severity: 2},
	}
	fb.Vocabulary = []entities.VocabularySuggestion{
		{Original: "meet", Suggestion: "ran into", ExampleUsage: "I ran into my teacher at the library."},
	}
	fb.Positives = []string{"Clear sentence structure."}
	return fb
}

// forceDue moves every tracked mistake's next practice date into the past
func forceDue(t *testing.T, records *memory.Records, userID string) {
	t.Helper()
	ctx := context.Background()
	all, err := records.Mistakes().GetByUserID(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range all {
		m.NextPracticeAt = time.Now().UTC().Add(-time.Minute)
		if err := records.Mistakes().Update(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRecordFromFeedbackFiltersAndStores(t *testing.T) {
	records := memory.NewRecords()
	svc := newTestMistakeService(t, records)
	fb := sampleFeedback("user-1")

	stored := svc.RecordFromFeedback(context.Background(), "user-1", fb.Transcription, fb,
		FeedbackContext{Situation: "Ordering coffee"})
	if stored != 2 {
		t.Fatalf("stored = %d, want 2 (low severity grammar issue must be skipped)", stored)
	}

	all, err := svc.ListMistakes(context.Background(), "user-1", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("tracked %d mistakes, want 2", len(all))
	}

	var grammar, vocab *entities.Mistake
	for _, m := range all {
		switch m.Type {
		case entities.MistakeGrammar:
			grammar = m
		case entities.MistakeVocabulary:
			vocab = m
		}
	}
	if grammar == nil || vocab == nil {
		t.Fatalf("expected one grammar and one vocabulary mistake, got %+v", all)
	}

	if !strings.Contains(grammar.Context, "[I go to school yesterday]") {
		t.Errorf("grammar context must bracket the mistake, got %q", grammar.Context)
	}
	if grammar.Situation != "Ordering coffee" {
		t.Errorf("situation = %q", grammar.Situation)
	}
	if vocab.Correction != "ran into" || vocab.ExampleUsage == "" {
		t.Errorf("vocabulary mistake incomplete: %+v", vocab)
	}
	if grammar.Status != entities.MistakeNew || !grammar.InDrillQueue {
		t.Errorf("fresh mistake must be NEW and queued, got %s queued=%v", grammar.Status, grammar.InDrillQueue)
	}
}

func TestRecordFromFeedbackSkipsDefaultFeedback(t *testing.T) {
	records := memory.NewRecords()
	svc := newTestMistakeService(t, records)

	fb := entities.DefaultFeedback("audio-1", entities.TargetAudio, "user-1", "hello")
	if stored := svc.RecordFromFeedback(context.Background(), "user-1", "hello", fb, FeedbackContext{}); stored != 0 {
		t.Errorf("stored = %d, want 0 for the default feedback", stored)
	}
	if stored := svc.RecordFromFeedback(context.Background(), "user-1", "hello", nil, FeedbackContext{}); stored != 0 {
		t.Errorf("stored = %d, want 0 for nil feedback", stored)
	}
}

func TestRecordFromFeedbackDeduplicates(t *testing.T) {
	records := memory.NewRecords()
	svc := newTestMistakeService(t, records)
	fb := sampleFeedback("user-1")

	svc.RecordFromFeedback(context.Background(), "user-1", fb.Transcription, fb, FeedbackContext{})
	svc.RecordFromFeedback(context.Background(), "user-1", fb.Transcription, fb, FeedbackContext{})

	all, err := svc.ListMistakes(context.Background(), "user-1", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("repeated feedback must not duplicate mistakes, got %d", len(all))
	}
	for _, m := range all {
		if m.Frequency != 2 {
			t.Errorf("frequency = %d for %q, want 2", m.Frequency, m.OriginalText)
		}
	}
}

func TestMistakeStatistics(t *testing.T) {
	records := memory.NewRecords()
	svc := newTestMistakeService(t, records)
	fb := sampleFeedback("user-1")
	svc.RecordFromFeedback(context.Background(), "user-1", fb.Transcription, fb, FeedbackContext{})

	stats, err := svc.Statistics(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalCount != 2 || stats.NewCount != 2 {
		t.Errorf("counts = %+v", stats)
	}
	if stats.TypeDistribution["GRAMMAR"] != 1 || stats.TypeDistribution["VOCABULARY"] != 1 {
		t.Errorf("type distribution = %v", stats.TypeDistribution)
	}
	if stats.MasteryPercentage != 0 {
		t.Errorf("mastery = %f, want 0", stats.MasteryPercentage)
	}

	// Statistics for a user with no mistakes stay at zero.
	empty, err := svc.Statistics(context.Background(), "user-2")
	if err != nil {
		t.Fatal(err)
	}
	if empty.TotalCount != 0 || empty.MasteryPercentage != 0 {
		t.Errorf("empty stats = %+v", empty)
	}
}

func TestPracticeQueuePromptsAndScheduling(t *testing.T) {
	records := memory.NewRecords()
	svc := newTestMistakeService(t, records)
	fb := sampleFeedback("user-1")
	svc.RecordFromFeedback(context.Background(), "user-1", fb.Transcription, fb, FeedbackContext{})

	// Freshly recorded mistakes are scheduled for later, not immediately.
	items, err := svc.PracticeQueue(context.Background(), "user-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("fresh mistakes must not be due yet, got %d items", len(items))
	}

	forceDue(t, records, "user-1")

	items, err = svc.PracticeQueue(context.Background(), "user-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("queue length = %d, want 2", len(items))
	}
	for _, item := range items {
		switch item.Mistake.Type {
		case entities.MistakeGrammar:
			if !strings.Contains(item.Prompt, "Correct the grammar") {
				t.Errorf("grammar prompt = %q", item.Prompt)
			}
		case entities.MistakeVocabulary:
			if !strings.Contains(item.Prompt, "better word or phrase") {
				t.Errorf("vocabulary prompt = %q", item.Prompt)
			}
		}
	}

	// The limit bounds the queue.
	items, err = svc.PracticeQueue(context.Background(), "user-1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Errorf("limited queue length = %d, want 1", len(items))
	}
}

func TestRecordPracticeSpacedRepetition(t *testing.T) {
	records := memory.NewRecords()
	svc := newTestMistakeService(t, records)
	fb := sampleFeedback("user-1")
	svc.RecordFromFeedback(context.Background(), "user-1", fb.Transcription, fb, FeedbackContext{})

	all, _ := svc.ListMistakes(context.Background(), "user-1", false)
	id := all[0].ID.Hex()

	outcome, err := svc.RecordPractice(context.Background(), "user-1", id, true)
	if err != nil {
		t.Fatal(err)
	}
	m := outcome.Mistake
	if m.Status != entities.MistakeLearning || m.ConsecutiveCorrect != 1 {
		t.Errorf("after one success: status=%s streak=%d", m.Status, m.ConsecutiveCorrect)
	}
	if !strings.Contains(outcome.Feedback, "Great job") {
		t.Errorf("success feedback = %q", outcome.Feedback)
	}
	wantNext := time.Now().UTC().Add(48 * time.Hour)
	if m.NextPracticeAt.Before(wantNext.Add(-time.Minute)) || m.NextPracticeAt.After(wantNext.Add(time.Minute)) {
		t.Errorf("next practice = %v, want about two days out", m.NextPracticeAt)
	}

	// A wrong answer resets the streak and schedules a quick retry.
	outcome, err = svc.RecordPractice(context.Background(), "user-1", id, false)
	if err != nil {
		t.Fatal(err)
	}
	m = outcome.Mistake
	if m.ConsecutiveCorrect != 0 || m.Status != entities.MistakeLearning {
		t.Errorf("after failure: status=%s streak=%d", m.Status, m.ConsecutiveCorrect)
	}
	if !strings.Contains(outcome.Feedback, "Keep practicing") {
		t.Errorf("failure feedback = %q", outcome.Feedback)
	}
	retry := time.Now().UTC().Add(time.Hour)
	if m.NextPracticeAt.After(retry.Add(time.Minute)) {
		t.Errorf("failed practice must retry soon, next = %v", m.NextPracticeAt)
	}

	// Five correct answers in a row master the mistake.
	for i := 0; i < 5; i++ {
		if outcome, err = svc.RecordPractice(context.Background(), "user-1", id, true); err != nil {
			t.Fatal(err)
		}
	}
	m = outcome.Mistake
	if !m.IsMastered() || m.InDrillQueue {
		t.Errorf("after five successes: status=%s queued=%v", m.Status, m.InDrillQueue)
	}
	if m.ConfidenceLevel != 100 {
		t.Errorf("confidence = %d, want 100", m.ConfidenceLevel)
	}

	// Mastered mistakes leave the statistics' learning pool.
	stats, err := svc.Statistics(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if stats.MasteredCount != 1 {
		t.Errorf("mastered count = %d", stats.MasteredCount)
	}
	if stats.MasteryPercentage != 50 {
		t.Errorf("mastery = %f, want 50", stats.MasteryPercentage)
	}
}

func TestRecordPracticeAccessControl(t *testing.T) {
	records := memory.NewRecords()
	svc := newTestMistakeService(t, records)
	fb := sampleFeedback("user-1")
	svc.RecordFromFeedback(context.Background(), "user-1", fb.Transcription, fb, FeedbackContext{})

	all, _ := svc.ListMistakes(context.Background(), "user-1", false)
	id := all[0].ID.Hex()

	if _, err := svc.RecordPractice(context.Background(), "user-2", id, true); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("foreign user error = %v, want ErrAccessDenied", err)
	}
	if _, err := svc.RecordPractice(context.Background(), "user-1", "652f00000000000000000000", true); !errors.Is(err, ErrMistakeNotFound) {
		t.Errorf("unknown mistake error = %v, want ErrMistakeNotFound", err)
	}
}

func TestListMistakesUnmasteredFilter(t *testing.T) {
	records := memory.NewRecords()
	svc := newTestMistakeService(t, records)
	fb := sampleFeedback("user-1")
	svc.RecordFromFeedback(context.Background(), "user-1", fb.Transcription, fb, FeedbackContext{})

	all, _ := svc.ListMistakes(context.Background(), "user-1", false)
	id := all[0].ID.Hex()
	for i := 0; i < 5; i++ {
		if _, err := svc.RecordPractice(context.Background(), "user-1", id, true); err != nil {
			t.Fatal(err)
		}
	}

	unmastered, err := svc.ListMistakes(context.Background(), "user-1", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(unmastered) != 1 {
		t.Fatalf("unmastered = %d, want 1", len(unmastered))
	}
	if unmastered[0].ID.Hex() == id {
		t.Error("mastered mistake must be filtered out")
	}
}

func TestExcerptAround(t *testing.T) {
	long := strings.Repeat("a", 100) + " mistake here " + strings.Repeat("b", 100)

	tests := []struct {
		name          string
		transcription string
		text          string
		want          string
		contains      string
	}{
		{
			name:          "short transcription bracketed",
			transcription: "I go to school yesterday.",
			text:          "go",
			want:          "I [go] to school yesterday.",
		},
		{
			name:          "text not present returns everything",
			transcription: "I went to school.",
			text:          "gone",
			want:          "I went to school.",
		},
		{
			name:          "empty text returns everything",
			transcription: "I went to school.",
			text:          "",
			want:          "I went to school.",
		},
		{
			name:          "long transcription trimmed around the mistake",
			transcription: long,
			text:          "mistake here",
			contains:      "[mistake here]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := excerptAround(tt.transcription, tt.text)
			if tt.want != "" && got != tt.want {
				t.Errorf("excerptAround() = %q, want %q", got, tt.want)
			}
			if tt.contains != "" {
				if !strings.Contains(got, tt.contains) {
					t.Errorf("excerpt %q must contain %q", got, tt.contains)
				}
				if len(got) >= len(tt.transcription) {
					t.Errorf("excerpt must be shorter than the transcription, got %d chars", len(got))
				}
			}
		})
	}
}
