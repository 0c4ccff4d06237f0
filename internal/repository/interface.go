package repository

import (
	"context"
	"errors"

	"github.com/elmchat/elm-chat/internal/domain"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("email already exists")
	ErrMessageLogNotFound = errors.New("message log not found")
)

// MessageLogRepository stores one "$$"-joined message log per user.
type MessageLogRepository interface {
	GetMessageLog(ctx context.Context, userID string) (*domain.UserMessageLog, error)
	// PutMessageLog writes the row unconditionally.
	PutMessageLog(ctx context.Context, userID, messages string) error
	// UpdateMessageLogIfExists reports whether the row existed and was updated.
	UpdateMessageLogIfExists(ctx context.Context, userID, messages string) (bool, error)
	ListMessageLogs(ctx context.Context) ([]domain.UserMessageLog, error)
}

// UserRepository defines the interface for user data persistence.
// Update methods are conditional on the row existing and report whether
// they were applied.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByResetCode(ctx context.Context, code string) (*domain.User, error)
	SetVerified(ctx context.Context, id string) (bool, error)
	SetPasswordResetCode(ctx context.Context, id, code string) (bool, error)
	ResetPassword(ctx context.Context, id, passwordHash, salt string) (bool, error)
	UpdateProfile(ctx context.Context, id, firstName, avatarURL string) (bool, error)
}
