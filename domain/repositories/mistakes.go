package repositories

import (
	"context"
	"time"

	"github.com/speakai/server/domain/entities"
)

// MistakeRepository defines data access methods for tracked mistakes
type MistakeRepository interface {
	// Upsert stores the mistake, deduplicating on user, type, original
	// text and correction. When an equivalent mistake already exists its
	// occurrence count is bumped instead, and the given mistake's ID is
	// set to the existing record's ID.
	Upsert(ctx context.Context, mistake *entities.Mistake) error
	GetByID(ctx context.Context, id string) (*entities.Mistake, error)
	GetByUserID(ctx context.Context, userID string) ([]*entities.Mistake, error)
	// DueForPractice returns up to limit drill-queue mistakes whose next
	// practice date has passed, soonest first.
	DueForPractice(ctx context.Context, userID string, now time.Time, limit int) ([]*entities.Mistake, error)
	// Update persists the practice state of an existing mistake.
	Update(ctx context.Context, mistake *entities.Mistake) error
}
