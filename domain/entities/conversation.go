package entities

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation is an ordered, append-only collection of message references
// belonging to one user. Message order is insertion order.
type Conversation struct {
	ID         primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	UserID     string               `json:"user_id" bson:"user_id"`
	UserRole   string               `json:"user_role" bson:"user_role"`
	AIRole     string               `json:"ai_role" bson:"ai_role"`
	Situation  string               `json:"situation" bson:"situation"`
	VoiceName  string               `json:"voice_name" bson:"voice_name"`
	MessageIDs []primitive.ObjectID `json:"message_ids" bson:"message_ids"`
	StartedAt  time.Time            `json:"started_at" bson:"started_at"`
	EndedAt    *time.Time           `json:"ended_at,omitempty" bson:"ended_at,omitempty"`
}

// NewConversation starts a conversation with the given scenario
func NewConversation(userID, userRole, aiRole, situation, voiceName string) *Conversation {
	if userRole == "" {
		userRole = "Student"
	}
	if aiRole == "" {
		aiRole = "Teacher"
	}
	if situation == "" {
		situation = "General conversation"
	}
	return &Conversation{
		UserID:     userID,
		UserRole:   userRole,
		AIRole:     aiRole,
		Situation:  situation,
		VoiceName:  voiceName,
		MessageIDs: []primitive.ObjectID{},
		StartedAt:  time.Now().UTC(),
	}
}

// AppendMessage records a message reference at the end of the conversation
func (c *Conversation) AppendMessage(messageID primitive.ObjectID) {
	c.MessageIDs = append(c.MessageIDs, messageID)
}

// End marks the conversation as finished
func (c *Conversation) End() {
	now := time.Now().UTC()
	c.EndedAt = &now
}

// IsOwnedBy reports whether the conversation belongs to the given user
func (c *Conversation) IsOwnedBy(userID string) bool {
	return c.UserID == userID
}
