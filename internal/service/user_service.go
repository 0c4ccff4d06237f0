package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/elmchat/elm-chat/internal/audit"
	"github.com/elmchat/elm-chat/internal/domain"
	"github.com/elmchat/elm-chat/internal/mailer"
	"github.com/elmchat/elm-chat/internal/repository"
	"github.com/elmchat/elm-chat/pkg/jwt"
	"github.com/elmchat/elm-chat/pkg/log"
	"github.com/elmchat/elm-chat/pkg/storage"
)

// UserServiceConfig holds the password and avatar settings.
type UserServiceConfig struct {
	Pepper        string
	BcryptCost    int
	AvatarURLTTL  time.Duration
	AvatarSize    int // square edge in pixels, 0 keeps the original size
	AvatarQuality int
}

// userServiceImpl implements UserService interface.
type userServiceImpl struct {
	repo    repository.UserRepository
	tokens  *jwt.Manager
	storage storage.Storage
	mailer  mailer.Mailer
	cfg     UserServiceConfig
}

// NewUserService creates a new user service.
func NewUserService(
	repo repository.UserRepository,
	tokens *jwt.Manager,
	store storage.Storage,
	m mailer.Mailer,
	cfg UserServiceConfig,
) UserService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.AvatarQuality == 0 {
		cfg.AvatarQuality = defaultAvatarQuality
	}
	return &userServiceImpl{
		repo:    repo,
		tokens:  tokens,
		storage: store,
		mailer:  m,
		cfg:     cfg,
	}
}

func (s *userServiceImpl) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// Signup creates an unverified user and mails the verification link.
func (s *userServiceImpl) Signup(ctx context.Context, req *domain.SignupRequest) (*domain.TokenResponse, error) {
	l := log.Ctx(ctx)

	salt := uuid.NewString()
	hash, err := s.hashPassword(salt, req.Password)
	if err != nil {
		l.Error().Err(err).Msg("failed to hash password")
		return nil, err
	}

	user := &domain.User{
		ID:                 uuid.NewString(),
		Email:              req.Email,
		PasswordHash:       hash,
		Salt:               salt,
		VerificationString: uuid.NewString(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailExists
		}
		l.Error().Err(err).Msg("failed to create user")
		return nil, err
	}

	audit.LogWithDetail(ctx, audit.ActionSignup, user.ID, user.Email, "user signed up")

	if err := s.mailer.SendVerification(ctx, user.Email, user.VerificationString); err != nil {
		l.Warn().Err(err).Str(log.FieldUserID, user.ID).Msg("verification email not sent")
	}

	return s.issueToken(user)
}

// Login authenticates a user.
func (s *userServiceImpl) Login(ctx context.Context, req *domain.LoginRequest) (*domain.TokenResponse, error) {
	l := log.Ctx(ctx)

	user, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			audit.LogWithDetail(ctx, audit.ActionLoginFailed, "", req.Email, "login failed: user not found")
			return nil, ErrInvalidCredentials
		}
		l.Error().Err(err).Msg("failed to get user by email")
		return nil, err
	}

	if !s.checkPassword(user, req.Password) {
		audit.LogWithDetail(ctx, audit.ActionLoginFailed, user.ID, req.Email, "login failed: wrong password")
		return nil, ErrInvalidCredentials
	}

	audit.Log(ctx, audit.ActionLogin, user.ID, "user logged in")
	return s.issueToken(user)
}

// Verify marks the token's user as verified. An already verified token is
// returned unchanged.
func (s *userServiceImpl) Verify(ctx context.Context, token string, claims *jwt.Claims) (*domain.TokenResponse, error) {
	if claims.IsVerified {
		return &domain.TokenResponse{Token: token}, nil
	}

	applied, err := s.repo.SetVerified(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrNotApplied
	}

	user, err := s.FindUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.ActionVerify, user.ID, "email verified")
	return s.issueToken(user)
}

// ForgotPassword stores a new reset code and mails the reset link.
func (s *userServiceImpl) ForgotPassword(ctx context.Context, req *domain.ForgotPasswordRequest) error {
	l := log.Ctx(ctx)

	user, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	code := uuid.NewString()
	applied, err := s.repo.SetPasswordResetCode(ctx, user.ID, code)
	if err != nil {
		return err
	}
	if !applied {
		return ErrNotApplied
	}

	audit.Log(ctx, audit.ActionForgotPassword, user.ID, "password reset requested")

	if err := s.mailer.SendPasswordReset(ctx, user.Email, code); err != nil {
		l.Warn().Err(err).Str(log.FieldUserID, user.ID).Msg("password reset email not sent")
	}
	return nil
}

// ResetPassword replaces the password of the user holding code and clears
// the code. The new password must differ from the current one.
func (s *userServiceImpl) ResetPassword(ctx context.Context, code string, req *domain.ResetPasswordRequest) error {
	l := log.Ctx(ctx)

	user, err := s.repo.GetByResetCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidResetCode
		}
		return err
	}

	if s.checkPassword(user, req.Password) {
		return ErrSamePassword
	}

	salt := uuid.NewString()
	hash, err := s.hashPassword(salt, req.Password)
	if err != nil {
		return err
	}

	applied, err := s.repo.ResetPassword(ctx, user.ID, hash, salt)
	if err != nil {
		return err
	}
	if !applied {
		return ErrNotApplied
	}

	audit.Log(ctx, audit.ActionResetPassword, user.ID, "password reset")

	if err := s.mailer.SendPasswordResetConfirmation(ctx, user.Email); err != nil {
		l.Warn().Err(err).Str(log.FieldUserID, user.ID).Msg("password reset confirmation not sent")
	}
	return nil
}

// UpdateProfile sets the first name and, when an image is given, replaces
// the avatar. Unverified users must provide a first name.
func (s *userServiceImpl) UpdateProfile(ctx context.Context, claims *jwt.Claims, req *domain.UpdateProfileRequest) (*domain.TokenResponse, error) {
	l := log.Ctx(ctx)

	if !claims.IsVerified && req.FirstName == "" {
		return nil, ErrProfileForbidden
	}

	key := avatarKey(claims.UserID)
	if req.ImageFile != "" {
		raw, err := decodeDataURL(req.ImageFile)
		if err != nil {
			return nil, err
		}
		data, err := encodeAvatar(raw, s.cfg.AvatarSize, s.cfg.AvatarQuality)
		if err != nil {
			return nil, err
		}
		if err := s.storage.Write(ctx, key, bytes.NewReader(data), int64(len(data)), "image/jpeg"); err != nil {
			l.Error().Err(err).Str(log.FieldUserID, claims.UserID).Msg("failed to store avatar")
			return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
	}

	avatarURL, err := s.avatarURL(ctx, key)
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, claims.UserID).Msg("failed to resolve avatar url")
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	applied, err := s.repo.UpdateProfile(ctx, claims.UserID, req.FirstName, avatarURL)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrNotApplied
	}

	user, err := s.FindUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.ActionUpdateProfile, user.ID, "profile updated")
	return s.issueToken(user)
}

func (s *userServiceImpl) avatarURL(ctx context.Context, key string) (string, error) {
	exists, err := s.storage.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", nil
	}
	return s.storage.GetURL(ctx, key, s.cfg.AvatarURLTTL)
}

func (s *userServiceImpl) issueToken(user *domain.User) (*domain.TokenResponse, error) {
	token, _, err := s.tokens.GenerateToken(jwt.Claims{
		UserID:             user.ID,
		IsVerified:         user.IsVerified,
		Email:              user.Email,
		FirstName:          user.FirstName,
		VerificationString: user.VerificationString,
		ProfilePicURL:      user.AvatarURL,
	})
	if err != nil {
		return nil, err
	}
	return &domain.TokenResponse{Token: token}, nil
}

const maxBcryptInput = 72

// passwordInput fits salt, password and pepper into bcrypt's 72 byte limit.
func (s *userServiceImpl) passwordInput(salt, password string) []byte {
	sum := sha256.Sum256([]byte(salt + password + s.cfg.Pepper))
	return []byte(hex.EncodeToString(sum[:]))
}

func (s *userServiceImpl) hashPassword(salt, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(s.passwordInput(salt, password), s.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// checkPassword also accepts hashes written before the SHA-256 pre-hash,
// bcrypt over salt+password+pepper cut to bcrypt's 72 bytes. Such hashes are
// replaced on the user's next password reset.
func (s *userServiceImpl) checkPassword(user *domain.User, password string) bool {
	hash := []byte(user.PasswordHash)
	if bcrypt.CompareHashAndPassword(hash, s.passwordInput(user.Salt, password)) == nil {
		return true
	}
	return bcrypt.CompareHashAndPassword(hash, legacyPasswordInput(user.Salt, password, s.cfg.Pepper)) == nil
}

func legacyPasswordInput(salt, password, pepper string) []byte {
	in := []byte(salt + password + pepper)
	if len(in) > maxBcryptInput {
		in = in[:maxBcryptInput]
	}
	return in
}
