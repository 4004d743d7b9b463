package repositories

import (
	"context"
	"io"
)

// AudioStore persists raw uploaded audio to per-user storage
type AudioStore interface {
	// Save writes the audio under the user's directory with a
	// collision-resistant, timestamp-derived name and returns the path
	Save(ctx context.Context, userID, filename string, r io.Reader) (path string, size int64, err error)
	// Remove deletes a previously stored file
	Remove(ctx context.Context, path string) error
}
