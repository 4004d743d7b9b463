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

// AudioRepository stores audio records in the "audio" collection
type AudioRepository struct {
	collection *mongo.Collection
}

// NewAudioRepository creates a MongoDB audio repository
func NewAudioRepository(db *mongo.Database) repositories.AudioRepository {
	return &AudioRepository{
		collection: db.Collection("audio"),
	}
}

// Create implements repositories.AudioRepository
func (r *AudioRepository) Create(ctx context.Context, audio *entities.AudioRecord) error {
	if audio == nil {
		return errors.New("audio record cannot be nil")
	}

	result, err := r.collection.InsertOne(ctx, audio)
	if err != nil {
		return fmt.Errorf("failed to create audio record: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		audio.ID = oid
	}
	return nil
}

// GetByID implements repositories.AudioRepository
func (r *AudioRepository) GetByID(ctx context.Context, id string) (*entities.AudioRecord, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid audio ID format: %w", err)
	}

	var audio entities.AudioRecord
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&audio)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get audio record %s: %w", id, err)
	}

	return &audio, nil
}

// AttachTranscription implements repositories.AudioRepository. Only records
// without a transcription are matched, keeping a set transcription immutable.
func (r *AudioRepository) AttachTranscription(ctx context.Context, id string, transcription string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid audio ID format: %w", err)
	}

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": objectID, "transcription": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"transcription": transcription}},
	)
	if err != nil {
		return fmt.Errorf("failed to attach transcription: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("audio record %s not found or already transcribed", id)
	}

	return nil
}

// Delete implements repositories.AudioRepository
func (r *AudioRepository) Delete(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid audio ID format: %w", err)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return fmt.Errorf("failed to delete audio record: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("audio record %s not found", id)
	}

	return nil
}
