package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/speakai/server/domain/entities"
	"github.com/speakai/server/domain/repositories"
)

// MistakeRepository stores tracked mistakes in the "mistakes" collection
type MistakeRepository struct {
	collection *mongo.Collection
}

// NewMistakeRepository creates a MongoDB mistake repository
func NewMistakeRepository(db *mongo.Database) repositories.MistakeRepository {
	return &MistakeRepository{
		collection: db.Collection("mistakes"),
	}
}

// Upsert implements repositories.MistakeRepository. The dedup key is
// (user, type, original text, correction); an existing match gets its
// frequency bumped and context refreshed instead of a new document.
func (r *MistakeRepository) Upsert(ctx context.Context, mistake *entities.Mistake) error {
	if mistake == nil {
		return errors.New("mistake cannot be nil")
	}

	filter := bson.M{
		"user_id":       mistake.UserID,
		"type":          mistake.Type,
		"original_text": mistake.OriginalText,
		"correction":    mistake.Correction,
	}

	var existing entities.Mistake
	err := r.collection.FindOne(ctx, filter).Decode(&existing)
	switch {
	case err == nil:
		update := bson.M{
			"$inc": bson.M{"frequency": 1},
			"$set": bson.M{"last_occurred_at": time.Now().UTC()},
		}
		set := update["$set"].(bson.M)
		if mistake.Explanation != "" {
			set["explanation"] = mistake.Explanation
		}
		if mistake.Context != "" {
			set["context"] = mistake.Context
		}
		if _, err := r.collection.UpdateByID(ctx, existing.ID, update); err != nil {
			return fmt.Errorf("failed to update mistake: %w", err)
		}
		mistake.ID = existing.ID
		return nil

	case errors.Is(err, mongo.ErrNoDocuments):
		result, err := r.collection.InsertOne(ctx, mistake)
		if err != nil {
			return fmt.Errorf("failed to create mistake: %w", err)
		}
		if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
			mistake.ID = oid
		}
		return nil

	default:
		return fmt.Errorf("failed to look up mistake: %w", err)
	}
}

// GetByID implements repositories.MistakeRepository
func (r *MistakeRepository) GetByID(ctx context.Context, id string) (*entities.Mistake, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid mistake ID format: %w", err)
	}

	var mistake entities.Mistake
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&mistake)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get mistake %s: %w", id, err)
	}

	return &mistake, nil
}

// GetByUserID implements repositories.MistakeRepository
func (r *MistakeRepository) GetByUserID(ctx context.Context, userID string) ([]*entities.Mistake, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list mistakes: %w", err)
	}
	defer cursor.Close(ctx)

	var mistakes []*entities.Mistake
	if err := cursor.All(ctx, &mistakes); err != nil {
		return nil, fmt.Errorf("failed to decode mistakes: %w", err)
	}
	return mistakes, nil
}

// DueForPractice implements repositories.MistakeRepository
func (r *MistakeRepository) DueForPractice(ctx context.Context, userID string, now time.Time, limit int) ([]*entities.Mistake, error) {
	filter := bson.M{
		"user_id":          userID,
		"in_drill_queue":   true,
		"next_practice_at": bson.M{"$lte": now},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "next_practice_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load practice queue: %w", err)
	}
	defer cursor.Close(ctx)

	var mistakes []*entities.Mistake
	if err := cursor.All(ctx, &mistakes); err != nil {
		return nil, fmt.Errorf("failed to decode practice queue: %w", err)
	}
	return mistakes, nil
}

// Update implements repositories.MistakeRepository
func (r *MistakeRepository) Update(ctx context.Context, mistake *entities.Mistake) error {
	if mistake == nil {
		return errors.New("mistake cannot be nil")
	}

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": mistake.ID}, mistake)
	if err != nil {
		return fmt.Errorf("failed to update mistake: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("mistake %s not found", mistake.ID.Hex())
	}
	return nil
}
