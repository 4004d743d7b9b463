package entities

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AudioRecord represents a stored audio upload and its transcription
type AudioRecord struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID        string             `json:"user_id" bson:"user_id"`
	Filename      string             `json:"filename" bson:"filename"`
	FilePath      string             `json:"file_path" bson:"file_path"`
	Format        string             `json:"format" bson:"format"`
	SizeBytes     int64              `json:"size_bytes" bson:"size_bytes"`
	Language      string             `json:"language" bson:"language"`
	Transcription *string            `json:"transcription,omitempty" bson:"transcription,omitempty"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
}

// NewAudioRecord creates an audio record for an upload. The transcription
// is attached later, once, via SetTranscription.
func NewAudioRecord(userID, filename, filePath, format string, sizeBytes int64, language string) *AudioRecord {
	if language == "" {
		language = "en-US"
	}
	return &AudioRecord{
		UserID:    userID,
		Filename:  filename,
		FilePath:  filePath,
		Format:    format,
		SizeBytes: sizeBytes,
		Language:  language,
		CreatedAt: time.Now().UTC(),
	}
}

// SetTranscription attaches the transcription to the record.
// A transcription, once set, is immutable.
func (a *AudioRecord) SetTranscription(text string) error {
	if a.Transcription != nil {
		return errors.New("transcription already set")
	}
	a.Transcription = &text
	return nil
}

// HasTranscription reports whether a transcription has been attached
func (a *AudioRecord) HasTranscription() bool {
	return a.Transcription != nil
}
