package domain

// User represents a row of the users table.
type User struct {
	ID                 string
	Email              string
	FirstName          string
	LastName           string
	IsAdmin            bool
	IsVerified         bool
	PasswordHash       string
	Salt               string
	VerificationString string
	AvatarURL          string
	PasswordResetCode  string
}

// SignupRequest represents a signup request.
type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// ForgotPasswordRequest starts a password reset.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest carries the new password; the reset code is a path
// parameter.
type ResetPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest updates the display name and, when ImageFile is a
// non-empty data URL, the avatar.
type UpdateProfileRequest struct {
	FirstName string `json:"firstname"`
	ImageFile string `json:"imagefile"`
}

// TokenResponse is the bare {"token": ...} body of every endpoint that
// (re)issues a token. It is not wrapped in the response envelope.
type TokenResponse struct {
	Token string `json:"token"`
}
