package api

import (
	"time"

	"github.com/speakai/server/domain/entities"
)

// RegisterRequest is the payload for user registration
type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginRequest is the payload for user login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned from register and login
type AuthResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      *entities.User `json:"user"`
}

// StartConversationRequest opens a new role-play conversation
type StartConversationRequest struct {
	UserRole  string `json:"user_role"`
	AIRole    string `json:"ai_role"`
	Situation string `json:"situation"`
	Gender    string `json:"gender"`
	VoiceName string `json:"voice_name"`
}

// PracticeAttemptRequest reports the outcome of one mistake drill
type PracticeAttemptRequest struct {
	WasSuccessful bool   `json:"was_successful"`
	UserAnswer    string `json:"user_answer"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
