package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/speakai/server/domain/entities"
	"github.com/speakai/server/domain/repositories"
)

// sentinel errors distinguishing not-found from forbidden at the handler
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrAudioNotFound        = errors.New("audio record not found")
	ErrAccessDenied         = errors.New("access denied")
	ErrConversationEnded    = errors.New("conversation has ended")
)

// maxContextMessages bounds how much history travels in the model prompt
const maxContextMessages = 10

// TurnResult is the outcome of one user turn: the stored user message, the
// feedback on it, and the AI's reply.
type TurnResult struct {
	UserMessage *entities.Message  `json:"user_message"`
	Feedback    *entities.Feedback `json:"feedback"`
	AIMessage   *entities.Message  `json:"ai_message"`
}

// ConversationService manages role-play conversations: one user turn
// produces a persisted user message, feedback on it, and an AI reply.
type ConversationService struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	audio         repositories.AudioRepository
	feedbackRepo  repositories.FeedbackRepository
	feedback      *FeedbackService
	mistakes      *MistakeService
	llm           repositories.LanguageModel
	logger        *zap.Logger
}

// NewConversationService creates a new conversation service. mistakes may
// be nil to skip mistake tracking.
func NewConversationService(
	conversations repositories.ConversationRepository,
	messages repositories.MessageRepository,
	audio repositories.AudioRepository,
	feedbackRepo repositories.FeedbackRepository,
	feedback *FeedbackService,
	mistakes *MistakeService,
	llm repositories.LanguageModel,
	logger *zap.Logger,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		audio:         audio,
		feedbackRepo:  feedbackRepo,
		feedback:      feedback,
		mistakes:      mistakes,
		llm:           llm,
		logger:        logger,
	}
}

// StartConversation opens a new role-play conversation for the user
func (s *ConversationService) StartConversation(ctx context.Context, userID, userRole, aiRole, situation, voiceName string) (*entities.Conversation, error) {
	conv := entities.NewConversation(userID, userRole, aiRole, situation, voiceName)
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	s.logger.Info("conversation started",
		zap.String("conversation_id", conv.ID.Hex()),
		zap.String("user_id", userID),
		zap.String("situation", conv.Situation))

	return conv, nil
}

// GetConversation loads a conversation the user owns
func (s *ConversationService) GetConversation(ctx context.Context, conversationID, userID string) (*entities.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if !conv.IsOwnedBy(userID) {
		return nil, ErrAccessDenied
	}
	return conv, nil
}

// ListConversations returns the user's conversations, newest first
func (s *ConversationService) ListConversations(ctx context.Context, userID string) ([]*entities.Conversation, error) {
	return s.conversations.GetByUserID(ctx, userID)
}

// GetMessages returns the conversation's messages in insertion order
func (s *ConversationService) GetMessages(ctx context.Context, conversationID, userID string) ([]*entities.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.messages.GetByConversationID(ctx, conversationID, 0)
}

// EndConversation marks the conversation finished
func (s *ConversationService) EndConversation(ctx context.Context, conversationID, userID string) error {
	if _, err := s.GetConversation(ctx, conversationID, userID); err != nil {
		return err
	}
	return s.conversations.End(ctx, conversationID)
}

// ProcessUserMessage runs one conversation turn from a previously uploaded
// audio record: persist the user's message, generate feedback on it, and
// produce the AI's in-character reply.
func (s *ConversationService) ProcessUserMessage(ctx context.Context, conversationID, audioID, userID string) (*TurnResult, error) {
	conv, err := s.GetConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if conv.EndedAt != nil {
		return nil, ErrConversationEnded
	}

	record, err := s.audio.GetByID(ctx, audioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load audio record: %w", err)
	}
	if record == nil {
		return nil, ErrAudioNotFound
	}
	if record.UserID != userID {
		return nil, ErrAccessDenied
	}

	transcription := MsgTranscriptionUnavailable
	if record.HasTranscription() {
		transcription = *record.Transcription
	}

	history, err := s.messages.GetByConversationID(ctx, conversationID, maxContextMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}

	userMsg := entities.NewMessage(conv.ID, entities.SenderUser, transcription)
	userMsg.AttachAudio(audioID, transcription)
	if err := s.messages.Create(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}
	if err := s.conversations.AppendMessage(ctx, conversationID, userMsg.ID.Hex()); err != nil {
		return nil, fmt.Errorf("failed to append user message: %w", err)
	}

	fctx := FeedbackContext{
		UserRole:  conv.UserRole,
		AIRole:    conv.AIRole,
		Situation: conv.Situation,
		History:   renderHistory(history),
	}
	fb := s.feedback.Generate(ctx, userMsg.ID.Hex(), entities.TargetMessage, userID,
		transcription, "", fctx)
	if err := s.feedbackRepo.Create(ctx, fb); err != nil {
		return nil, fmt.Errorf("failed to persist feedback: %w", err)
	}
	if err := s.messages.LinkFeedback(ctx, userMsg.ID.Hex(), fb.ID.Hex()); err != nil {
		s.logger.Warn("failed to link feedback to message",
			zap.String("message_id", userMsg.ID.Hex()), zap.Error(err))
	}

	if s.mistakes != nil && record.HasTranscription() {
		s.mistakes.RecordFromFeedback(ctx, userID, transcription, fb, fctx)
	}

	reply := s.generateReply(ctx, conv, history, transcription)

	aiMsg := entities.NewMessage(conv.ID, entities.SenderAI, reply)
	if err := s.messages.Create(ctx, aiMsg); err != nil {
		return nil, fmt.Errorf("failed to persist reply: %w", err)
	}
	if err := s.conversations.AppendMessage(ctx, conversationID, aiMsg.ID.Hex()); err != nil {
		return nil, fmt.Errorf("failed to append reply: %w", err)
	}

	s.logger.Info("conversation turn completed",
		zap.String("conversation_id", conversationID),
		zap.String("user_message_id", userMsg.ID.Hex()),
		zap.String("ai_message_id", aiMsg.ID.Hex()))

	return &TurnResult{
		UserMessage: userMsg,
		Feedback:    fb,
		AIMessage:   aiMsg,
	}, nil
}

// fallbackReply keeps the conversation alive when the model is unreachable
const fallbackReply = "I'm sorry, I didn't quite catch that. Could we try again?"

// generateReply asks the model for the AI character's next line. A model
// failure degrades to a fallback line instead of failing the turn.
func (s *ConversationService) generateReply(ctx context.Context, conv *entities.Conversation, history []*entities.Message, userText string) string {
	if isTranscriptionSentinel(userText) {
		return userText
	}

	prompt := buildConversationPrompt(conv, history, userText)
	reply, err := s.llm.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn("reply generation failed, using fallback",
			zap.String("conversation_id", conv.ID.Hex()), zap.Error(err))
		return fallbackReply
	}

	reply = strings.TrimSpace(cleanModelResponse(reply))
	if reply == "" {
		return fallbackReply
	}
	return reply
}

func buildConversationPrompt(conv *entities.Conversation, history []*entities.Message, userText string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are role-playing as %q in a spoken English practice conversation. ", conv.AIRole)
	fmt.Fprintf(&b, "The learner plays %q. Situation: %s.\n\n", conv.UserRole, conv.Situation)
	b.WriteString("Stay in character, keep replies short and conversational (one or two sentences), ")
	b.WriteString("and gently keep the dialogue going with a question when natural. ")
	b.WriteString("Reply with the spoken line only, no stage directions.\n\n")

	if h := renderHistory(history); h != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(h)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "%s: %s\n%s:", conv.UserRole, userText, conv.AIRole)
	return b.String()
}

// renderHistory formats prior turns for a model prompt
func renderHistory(history []*entities.Message) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	for _, msg := range history {
		speaker := "Learner"
		if msg.Sender == entities.SenderAI {
			speaker = "Partner"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, msg.Content)
	}
	return b.String()
}
