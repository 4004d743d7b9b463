package entities

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sender identifies which side of the conversation produced a message
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Message represents a single turn within a conversation
type Message struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ConversationID primitive.ObjectID `json:"conversation_id" bson:"conversation_id"`
	Sender         Sender             `json:"sender" bson:"sender"`
	Content        string             `json:"content" bson:"content"`
	AudioID        *string            `json:"audio_id,omitempty" bson:"audio_id,omitempty"`
	Transcription  *string            `json:"transcription,omitempty" bson:"transcription,omitempty"`
	FeedbackID     *string            `json:"feedback_id,omitempty" bson:"feedback_id,omitempty"`
	Timestamp      time.Time          `json:"timestamp" bson:"timestamp"`
}

// NewMessage creates a message for one conversation turn
func NewMessage(conversationID primitive.ObjectID, sender Sender, content string) *Message {
	return &Message{
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		Timestamp:      time.Now().UTC(),
	}
}

// AttachAudio links the message to the audio record it was produced from
func (m *Message) AttachAudio(audioID, transcription string) {
	m.AudioID = &audioID
	m.Transcription = &transcription
}

// LinkFeedback records the feedback generated for this message.
// Feedback is generated at most once per message.
func (m *Message) LinkFeedback(feedbackID string) error {
	if m.FeedbackID != nil {
		return errors.New("feedback already linked")
	}
	m.FeedbackID = &feedbackID
	return nil
}
