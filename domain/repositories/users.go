package repositories

import (
	"context"

	"github.com/speakai/server/domain/entities"
)

// UserRepository defines data access methods for user accounts
type UserRepository interface {
	Create(ctx context.Context, user *entities.User) error
	GetByID(ctx context.Context, id string) (*entities.User, error)
	// GetByEmail looks a user up by normalized email. Returns nil, nil
	// when no such user exists.
	GetByEmail(ctx context.Context, email string) (*entities.User, error)
}
