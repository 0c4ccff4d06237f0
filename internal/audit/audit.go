package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/elmchat/elm-chat/pkg/log"
)

// Chat actions.
const (
	ActionJoin        = "chat.join"
	ActionJoinFailed  = "chat.join_failed"
	ActionSendMessage = "chat.send_message"
	ActionDisconnect  = "chat.disconnect"
)

// Account actions.
const (
	ActionSignup         = "user.signup"
	ActionLogin          = "user.login"
	ActionLoginFailed    = "user.login_failed"
	ActionVerify         = "user.verify"
	ActionForgotPassword = "user.forgot_password"
	ActionResetPassword  = "user.reset_password"
	ActionUpdateProfile  = "user.update_profile"
)

const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log writes an audit line on the context logger.
func Log(ctx context.Context, action, userID, msg string) {
	entry(ctx, action, userID).Msg(msg)
}

// LogWithDetail is Log with a free-form detail, such as the connection id or
// the email a request was made for.
func LogWithDetail(ctx context.Context, action, userID, detail, msg string) {
	entry(ctx, action, userID).Str(FieldDetail, detail).Msg(msg)
}

func entry(ctx context.Context, action, userID string) *zerolog.Event {
	l := log.Ctx(ctx)
	e := l.Info().Str(log.FieldLogType, log.LogTypeAudit).Str(FieldAction, action)
	if userID != "" {
		e = e.Str(log.FieldUserID, userID)
	}
	return e
}
