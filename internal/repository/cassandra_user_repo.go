package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"

	"github.com/elmchat/elm-chat/internal/domain"
)

const userColumns = `id, email, firstname, lastname, isadmin, isverified, passwordhash, salt, verificationstring, avatarurl, passwordresetcode`

// CassandraUserRepository implements UserRepository on the users table.
type CassandraUserRepository struct {
	session *gocql.Session
}

// NewCassandraUserRepository creates a new Cassandra-based user repository.
func NewCassandraUserRepository(session *gocql.Session) *CassandraUserRepository {
	return &CassandraUserRepository{session: session}
}

// Create inserts a new user. The email must not be taken; the check and the
// insert are not atomic.
func (r *CassandraUserRepository) Create(ctx context.Context, user *domain.User) error {
	if _, err := r.GetByEmail(ctx, user.Email); err == nil {
		return ErrEmailExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	applied, err := casApplied(r.session.Query(
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`,
		user.ID, user.Email, user.FirstName, user.LastName, user.IsAdmin, user.IsVerified,
		user.PasswordHash, user.Salt, user.VerificationString, user.AvatarURL, nullable(user.PasswordResetCode),
	).WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	if !applied {
		return fmt.Errorf("failed to insert user: id %s already exists", user.ID)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *CassandraUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.scanOne(r.session.Query(`SELECT `+userColumns+` FROM users WHERE id = ?`, id).WithContext(ctx))
}

// GetByEmail retrieves a user by email via the secondary index.
func (r *CassandraUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanOne(r.session.Query(`SELECT `+userColumns+` FROM users WHERE email = ?`, email).WithContext(ctx))
}

// GetByResetCode retrieves the user holding a password reset code.
func (r *CassandraUserRepository) GetByResetCode(ctx context.Context, code string) (*domain.User, error) {
	if code == "" {
		return nil, ErrUserNotFound
	}
	return r.scanOne(r.session.Query(`SELECT `+userColumns+` FROM users WHERE passwordresetcode = ?`, code).WithContext(ctx))
}

func (r *CassandraUserRepository) SetVerified(ctx context.Context, id string) (bool, error) {
	return casApplied(r.session.Query(
		`UPDATE users SET isverified = true WHERE id = ? IF EXISTS`, id,
	).WithContext(ctx))
}

func (r *CassandraUserRepository) SetPasswordResetCode(ctx context.Context, id, code string) (bool, error) {
	return casApplied(r.session.Query(
		`UPDATE users SET passwordresetcode = ? WHERE id = ? IF EXISTS`, code, id,
	).WithContext(ctx))
}

// ResetPassword stores the new hash and salt and clears the reset code.
func (r *CassandraUserRepository) ResetPassword(ctx context.Context, id, passwordHash, salt string) (bool, error) {
	return casApplied(r.session.Query(
		`UPDATE users SET passwordresetcode = null, passwordhash = ?, salt = ? WHERE id = ? IF EXISTS`,
		passwordHash, salt, id,
	).WithContext(ctx))
}

func (r *CassandraUserRepository) UpdateProfile(ctx context.Context, id, firstName, avatarURL string) (bool, error) {
	return casApplied(r.session.Query(
		`UPDATE users SET firstname = ?, avatarurl = ? WHERE id = ? IF EXISTS`,
		firstName, avatarURL, id,
	).WithContext(ctx))
}

func (r *CassandraUserRepository) scanOne(q *gocql.Query) (*domain.User, error) {
	var (
		u                              domain.User
		firstName, lastName, avatarURL *string
		verification, resetCode        *string
		isAdmin, isVerified            *bool
	)
	err := q.Scan(
		&u.ID, &u.Email, &firstName, &lastName, &isAdmin, &isVerified,
		&u.PasswordHash, &u.Salt, &verification, &avatarURL, &resetCode,
	)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to read user: %w", err)
	}

	u.FirstName = deref(firstName)
	u.LastName = deref(lastName)
	u.AvatarURL = deref(avatarURL)
	u.VerificationString = deref(verification)
	u.PasswordResetCode = deref(resetCode)
	u.IsAdmin = isAdmin != nil && *isAdmin
	u.IsVerified = isVerified != nil && *isVerified
	return &u, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
