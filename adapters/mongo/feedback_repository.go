package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/speakai/server/domain/entities"
	"github.com/speakai/server/domain/repositories"
)

// FeedbackRepository stores feedback in the "feedback" collection
type FeedbackRepository struct {
	collection *mongo.Collection
}

// NewFeedbackRepository creates a MongoDB feedback repository
func NewFeedbackRepository(db *mongo.Database) repositories.FeedbackRepository {
	return &FeedbackRepository{
		collection: db.Collection("feedback"),
	}
}

// Create implements repositories.FeedbackRepository
func (r *FeedbackRepository) Create(ctx context.Context, feedback *entities.Feedback) error {
	if feedback == nil {
		return errors.New("feedback cannot be nil")
	}

	result, err := r.collection.InsertOne(ctx, feedback)
	if err != nil {
		return fmt.Errorf("failed to create feedback: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		feedback.ID = oid
	}
	return nil
}

// GetByID implements repositories.FeedbackRepository
func (r *FeedbackRepository) GetByID(ctx context.Context, id string) (*entities.Feedback, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid feedback ID format: %w", err)
	}

	var feedback entities.Feedback
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&feedback)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get feedback %s: %w", id, err)
	}

	return &feedback, nil
}

// GetByTargetID implements repositories.FeedbackRepository
func (r *FeedbackRepository) GetByTargetID(ctx context.Context, targetID string) (*entities.Feedback, error) {
	var feedback entities.Feedback
	err := r.collection.FindOne(ctx, bson.M{"target_id": targetID}).Decode(&feedback)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get feedback for target %s: %w", targetID, err)
	}

	return &feedback, nil
}
