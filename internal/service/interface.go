package service

import (
	"context"
	"errors"

	"github.com/elmchat/elm-chat/internal/domain"
	"github.com/elmchat/elm-chat/pkg/jwt"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrNotJoined           = errors.New("session has not joined")
	ErrPersistenceConflict = errors.New("message log changed concurrently")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailExists         = errors.New("email already exists")
	ErrNotApplied          = errors.New("update not applied")
	ErrSamePassword        = errors.New("new password matches the current one")
	ErrProfileForbidden    = errors.New("unverified users must set a first name")
	ErrInvalidResetCode    = errors.New("invalid password reset code")
	ErrInvalidImage        = errors.New("invalid image data URL")
)

// Broadcaster delivers an event to every connected session.
type Broadcaster interface {
	Broadcast(b domain.Broadcast) error
}

// IdentityProvider resolves users for the chat room.
type IdentityProvider interface {
	// FindUserByID returns ErrUserNotFound if no such user exists.
	FindUserByID(ctx context.Context, id string) (*domain.User, error)
}

// ChatService applies client events to the room.
type ChatService interface {
	HandleEvent(ctx context.Context, session *domain.Session, event domain.Event) error
	Join(ctx context.Context, session *domain.Session, userID, displayName string) error
	SendMessage(ctx context.Context, session *domain.Session, text string) error
	Typing(ctx context.Context, session *domain.Session) error
	StopTyping(ctx context.Context, session *domain.Session) error
	Disconnect(ctx context.Context, session *domain.Session) error
}

// HistoryService rebuilds the room history from the message logs.
type HistoryService interface {
	FetchHistory(ctx context.Context) ([]domain.AggregatedMessage, error)
}

// UserService defines the interface for account business logic. Every
// successful call returns a freshly signed token.
type UserService interface {
	IdentityProvider
	Signup(ctx context.Context, req *domain.SignupRequest) (*domain.TokenResponse, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.TokenResponse, error)
	Verify(ctx context.Context, token string, claims *jwt.Claims) (*domain.TokenResponse, error)
	ForgotPassword(ctx context.Context, req *domain.ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, code string, req *domain.ResetPasswordRequest) error
	UpdateProfile(ctx context.Context, claims *jwt.Claims, req *domain.UpdateProfileRequest) (*domain.TokenResponse, error)
}
