package repositories

import (
	"context"

	"github.com/speakai/server/domain/entities"
)

// AudioRepository defines data access methods for audio records
type AudioRepository interface {
	Create(ctx context.Context, audio *entities.AudioRecord) error
	GetByID(ctx context.Context, id string) (*entities.AudioRecord, error)
	// AttachTranscription sets the transcription on a record that does
	// not have one yet
	AttachTranscription(ctx context.Context, id string, transcription string) error
	Delete(ctx context.Context, id string) error
}

// MessageRepository defines data access methods for messages
type MessageRepository interface {
	Create(ctx context.Context, message *entities.Message) error
	GetByID(ctx context.Context, id string) (*entities.Message, error)
	GetByConversationID(ctx context.Context, conversationID string, limit int) ([]*entities.Message, error)
	// LinkFeedback sets the feedback id on a message that has none
	LinkFeedback(ctx context.Context, messageID, feedbackID string) error
}

// ConversationRepository defines data access methods for conversations
type ConversationRepository interface {
	Create(ctx context.Context, conversation *entities.Conversation) error
	GetByID(ctx context.Context, id string) (*entities.Conversation, error)
	GetByUserID(ctx context.Context, userID string) ([]*entities.Conversation, error)
	AppendMessage(ctx context.Context, conversationID, messageID string) error
	End(ctx context.Context, id string) error
}

// FeedbackRepository defines data access methods for feedback records
type FeedbackRepository interface {
	Create(ctx context.Context, feedback *entities.Feedback) error
	GetByID(ctx context.Context, id string) (*entities.Feedback, error)
	GetByTargetID(ctx context.Context, targetID string) (*entities.Feedback, error)
}
