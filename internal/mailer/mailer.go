package mailer

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/elmchat/elm-chat/internal/config"
	"github.com/elmchat/elm-chat/pkg/log"
)

// Mailer sends account emails.
type Mailer interface {
	SendVerification(ctx context.Context, to, verificationString string) error
	SendPasswordReset(ctx context.Context, to, resetCode string) error
	SendPasswordResetConfirmation(ctx context.Context, to string) error
}

// New returns an SMTP mailer, or a mailer that only logs when mail is
// disabled.
func New(cfg config.MailConfig) Mailer {
	if !cfg.Enabled {
		return noopMailer{}
	}
	return &smtpMailer{
		dialer:      gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		sender:      cfg.From,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
	}
}

type smtpMailer struct {
	dialer      *gomail.Dialer
	sender      string
	frontendURL string
}

func (s *smtpMailer) SendVerification(ctx context.Context, to, verificationString string) error {
	link := fmt.Sprintf("%s/verify-email/%s", s.frontendURL, verificationString)
	m := s.message(to, "Please verify your email",
		"Thanks for signing up! To verify your email click here: "+link,
		fmt.Sprintf(`<div>
	<h1>Hello!</h1>
	<h2>Thanks for signing up!</h2>
	<p>To verify your email click <a href="%s">here</a></p>
</div>`, link))
	return s.send(ctx, m, to, "verification")
}

func (s *smtpMailer) SendPasswordReset(ctx context.Context, to, resetCode string) error {
	link := fmt.Sprintf("%s/password-reset/%s", s.frontendURL, resetCode)
	m := s.message(to, "Password Reset",
		"To reset password click this link: "+link,
		fmt.Sprintf(`<div>
	<h1>Hello!</h1>
	<h2>Password Reset</h2>
	<p>To reset password click <a href="%s">here</a></p>
</div>`, link))
	return s.send(ctx, m, to, "password_reset")
}

func (s *smtpMailer) SendPasswordResetConfirmation(ctx context.Context, to string) error {
	m := s.message(to, "Password Reset successfully",
		"Your password has been reset",
		`<div>
	<h1>Hello!</h1>
	<h2>Password Reset Successfully</h2>
	<p>Your password has been reset</p>
</div>`)
	return s.send(ctx, m, to, "password_reset_confirmation")
}

func (s *smtpMailer) message(to, subject, text, html string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.sender)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", html)
	return m
}

func (s *smtpMailer) send(ctx context.Context, m *gomail.Message, to, kind string) error {
	l := log.Ctx(ctx)
	if err := s.dialer.DialAndSend(m); err != nil {
		l.Error().Err(err).Str(log.FieldEmail, to).Str("kind", kind).Msg("failed to send email")
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}
	l.Info().Str(log.FieldEmail, to).Str("kind", kind).Msg("email sent")
	return nil
}

type noopMailer struct{}

func (noopMailer) SendVerification(ctx context.Context, to, verificationString string) error {
	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldEmail, to).Msg("mail disabled, skipping verification email")
	return nil
}

func (noopMailer) SendPasswordReset(ctx context.Context, to, resetCode string) error {
	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldEmail, to).Msg("mail disabled, skipping password reset email")
	return nil
}

func (noopMailer) SendPasswordResetConfirmation(ctx context.Context, to string) error {
	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldEmail, to).Msg("mail disabled, skipping password reset confirmation")
	return nil
}
