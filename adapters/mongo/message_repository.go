package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/speakai/server/domain/entities"
	"github.com/speakai/server/domain/repositories"
)

// MessageRepository stores messages in the "messages" collection
type MessageRepository struct {
	collection *mongo.Collection
}

// NewMessageRepository creates a MongoDB message repository
func NewMessageRepository(db *mongo.Database) repositories.MessageRepository {
	return &MessageRepository{
		collection: db.Collection("messages"),
	}
}

// Create implements repositories.MessageRepository
func (r *MessageRepository) Create(ctx context.Context, message *entities.Message) error {
	if message == nil {
		return errors.New("message cannot be nil")
	}

	result, err := r.collection.InsertOne(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		message.ID = oid
	}
	return nil
}

// GetByID implements repositories.MessageRepository
func (r *MessageRepository) GetByID(ctx context.Context, id string) (*entities.Message, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid message ID format: %w", err)
	}

	var message entities.Message
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&message)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	return &message, nil
}

// GetByConversationID implements repositories.MessageRepository.
// Messages come back in insertion order.
func (r *MessageRepository) GetByConversationID(ctx context.Context, conversationID string, limit int) ([]*entities.Message, error) {
	objectID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation ID format: %w", err)
	}

	opts := options.Find().SetSort(bson.M{"timestamp": 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"conversation_id": objectID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []*entities.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	return messages, nil
}

// LinkFeedback implements repositories.MessageRepository. Only messages
// without a feedback link are matched: feedback is generated at most once
// per message.
func (r *MessageRepository) LinkFeedback(ctx context.Context, messageID, feedbackID string) error {
	objectID, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return fmt.Errorf("invalid message ID format: %w", err)
	}

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": objectID, "feedback_id": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"feedback_id": feedbackID}},
	)
	if err != nil {
		return fmt.Errorf("failed to link feedback: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("message %s not found or feedback already linked", messageID)
	}

	return nil
}
