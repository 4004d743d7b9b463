package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/speakai/server/domain/entities"
	"github.com/speakai/server/domain/repositories"
)

// FeedbackContext carries the conversation scenario used to ground feedback
type FeedbackContext struct {
	UserRole  string
	AIRole    string
	Situation string
	History   string
}

// FeedbackService produces the four-category language feedback for a
// transcription. Generation never fails: any model or parse error degrades
// to the default feedback object.
type FeedbackService struct {
	llm    repositories.LanguageModel
	logger *zap.Logger
}

// NewFeedbackService creates a new feedback service
func NewFeedbackService(llm repositories.LanguageModel, logger *zap.Logger) *FeedbackService {
	return &FeedbackService{
		llm:    llm,
		logger: logger,
	}
}

// Generate analyzes the transcription and returns a feedback object with
// exactly four categories. The returned object is not yet persisted.
func (s *FeedbackService) Generate(
	ctx context.Context,
	targetID string,
	targetType entities.TargetType,
	userID string,
	transcription string,
	reference string,
	fctx FeedbackContext,
) *entities.Feedback {
	if strings.TrimSpace(transcription) == "" || isTranscriptionSentinel(transcription) {
		s.logger.Info("no usable transcription, returning default feedback",
			zap.String("target_id", targetID))
		return entities.DefaultFeedback(targetID, targetType, userID, transcription)
	}

	prompt := buildFeedbackPrompt(transcription, reference, fctx)

	response, err := s.llm.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn("feedback generation failed, degrading to default",
			zap.String("target_id", targetID),
			zap.Error(err))
		return entities.DefaultFeedback(targetID, targetType, userID, transcription)
	}

	fb, err := parseFeedbackResponse(response)
	if err != nil {
		s.logger.Warn("feedback response unparsable, degrading to default",
			zap.String("target_id", targetID),
			zap.Error(err))
		return entities.DefaultFeedback(targetID, targetType, userID, transcription)
	}

	fb.TargetID = targetID
	fb.TargetType = targetType
	fb.UserID = userID
	fb.Transcription = transcription

	s.logger.Info("feedback generated",
		zap.String("target_id", targetID),
		zap.Int("grammar_issues", len(fb.Grammar)),
		zap.Int("vocabulary_suggestions", len(fb.Vocabulary)))

	return fb
}

// buildFeedbackPrompt constructs the fixed-format analysis prompt
func buildFeedbackPrompt(transcription, reference string, fctx FeedbackContext) string {
	var b strings.Builder

	b.WriteString("You are a language learning assistant. Analyze the learner's spoken response ")
	b.WriteString("and give encouraging, constructive feedback.\n\n")

	if fctx.UserRole != "" || fctx.Situation != "" {
		b.WriteString("Scenario:\n")
		fmt.Fprintf(&b, "- Your role: %s\n", fctx.AIRole)
		fmt.Fprintf(&b, "- Learner's role: %s\n", fctx.UserRole)
		fmt.Fprintf(&b, "- Situation: %s\n", fctx.Situation)
		if fctx.History != "" {
			b.WriteString("\nConversation so far:\n")
			b.WriteString(fctx.History)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Learner's response to analyze:\n%q\n\n", transcription)
	if reference != "" {
		fmt.Fprintf(&b, "Reference (expected correct) sentence:\n%q\n\n", reference)
	}

	b.WriteString(`Answer using EXACTLY this format, with these four section headers and one "-" bullet per item. Leave a section empty when there is nothing to report.

GRAMMAR:
- issue: <problematic text> | correction: <corrected text> | explanation: <why> | severity: <1-5>
VOCABULARY:
- original: <word or phrase used> | suggestion: <better alternative> | example: <example sentence using it>
POSITIVES:
- <something the learner did well>
FLUENCY:
- <tip for more natural flow>

Do not add any other text outside these sections.`)

	return b.String()
}

// feedback section markers expected in the model response
const (
	sectionGrammar    = "GRAMMAR:"
	sectionVocabulary = "VOCABULARY:"
	sectionPositives  = "POSITIVES:"
	sectionFluency    = "FLUENCY:"
)

// parseFeedbackResponse parses the model's free-text reply by the fixed
// section markers. The upstream format is not guaranteed stable across
// model versions, so any deviation is an error and the caller degrades to
// the default feedback rather than guessing.
func parseFeedbackResponse(response string) (*entities.Feedback, error) {
	cleaned := cleanModelResponse(response)

	fb := entities.NewFeedback("", entities.TargetMessage, "", "")
	section := ""
	sawSection := false

	for _, rawLine := range strings.Split(cleaned, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		switch strings.ToUpper(line) {
		case sectionGrammar, sectionVocabulary, sectionPositives, sectionFluency:
			section = strings.ToUpper(line)
			sawSection = true
			continue
		}

		if !strings.HasPrefix(line, "-") {
			// Prose outside any bullet; ignore preamble before the first
			// section, reject stray text inside one.
			if section == "" {
				continue
			}
			return nil, fmt.Errorf("unexpected line in %s section: %q", section, line)
		}

		item := strings.TrimSpace(strings.TrimPrefix(line, "-"))
		if item == "" {
			continue
		}

		switch section {
		case sectionGrammar:
			issue, err := parseGrammarItem(item)
			if err != nil {
				return nil, err
			}
			fb.Grammar = append(fb.Grammar, issue)
		case sectionVocabulary:
			sugg, err := parseVocabularyItem(item)
			if err != nil {
				return nil, err
			}
			fb.Vocabulary = append(fb.Vocabulary, sugg)
		case sectionPositives:
			fb.Positives = append(fb.Positives, item)
		case sectionFluency:
			fb.Fluency = append(fb.Fluency, item)
		default:
			return nil, fmt.Errorf("bullet before any section: %q", item)
		}
	}

	if !sawSection {
		return nil, fmt.Errorf("no feedback sections found in response")
	}

	return fb, nil
}

func parseGrammarItem(item string) (entities.GrammarIssue, error) {
	fields := parseItemFields(item)

	issue := entities.GrammarIssue{
		Issue:       fields["issue"],
		Correction:  fields["correction"],
		Explanation: fields["explanation"],
		Severity:    3,
	}
	if issue.Issue == "" || issue.Correction == "" {
		return entities.GrammarIssue{}, fmt.Errorf("malformed grammar item: %q", item)
	}
	if raw, ok := fields["severity"]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return entities.GrammarIssue{}, fmt.Errorf("malformed severity in grammar item: %q", item)
		}
		issue.Severity = clampSeverity(n)
	}
	return issue, nil
}

func parseVocabularyItem(item string) (entities.VocabularySuggestion, error) {
	fields := parseItemFields(item)

	sugg := entities.VocabularySuggestion{
		Original:     fields["original"],
		Suggestion:   fields["suggestion"],
		ExampleUsage: fields["example"],
	}
	if sugg.Original == "" || sugg.Suggestion == "" {
		return entities.VocabularySuggestion{}, fmt.Errorf("malformed vocabulary item: %q", item)
	}
	return sugg, nil
}

// parseItemFields splits "key: value | key: value" bullets into a map
func parseItemFields(item string) map[string]string {
	fields := make(map[string]string)
	for _, part := range strings.Split(item, "|") {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		fields[key] = strings.TrimSpace(kv[1])
	}
	return fields
}

func clampSeverity(n int) int {
	if n < 1 {
		return 1
	}
	if n > 5 {
		return 5
	}
	return n
}

// cleanModelResponse strips markdown decoration the model tends to add
// around the expected format
func cleanModelResponse(response string) string {
	cleaned := strings.ReplaceAll(response, "```", "")
	cleaned = strings.ReplaceAll(cleaned, "*", "")
	return strings.TrimSpace(cleaned)
}

// sentinel transcription messages surfaced to users when speech
// recognition produced nothing usable
const (
	MsgTranscriptionUnavailable = "Your speech could not be transcribed. Please try again or check your microphone."
	MsgEmptyTranscription       = "It seems like you didn't say anything. Please try again."
)

func isTranscriptionSentinel(text string) bool {
	return text == MsgTranscriptionUnavailable || text == MsgEmptyTranscription
}
