package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elmchat/elm-chat/internal/audit"
	"github.com/elmchat/elm-chat/internal/domain"
	"github.com/elmchat/elm-chat/internal/membership"
	"github.com/elmchat/elm-chat/internal/metrics"
	"github.com/elmchat/elm-chat/internal/repository"
	"github.com/elmchat/elm-chat/pkg/log"
)

type chatService struct {
	broadcaster Broadcaster
	members     membership.Tracker
	identity    IdentityProvider
	logs        repository.MessageLogRepository
	now         func() time.Time

	// held across a membership change and its broadcast so member counts
	// go out in order
	mu sync.Mutex
}

// ChatOption configures the chat service.
type ChatOption func(*chatService)

// WithClock overrides the clock used to timestamp messages.
func WithClock(now func() time.Time) ChatOption {
	return func(s *chatService) {
		s.now = now
	}
}

func NewChatService(
	b Broadcaster,
	members membership.Tracker,
	identity IdentityProvider,
	logs repository.MessageLogRepository,
	opts ...ChatOption,
) ChatService {
	s := &chatService{
		broadcaster: b,
		members:     members,
		identity:    identity,
		logs:        logs,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *chatService) HandleEvent(ctx context.Context, session *domain.Session, event domain.Event) error {
	switch e := event.(type) {
	case domain.JoinEvent:
		return s.Join(ctx, session, e.UserID, e.UserName)
	case domain.MessageEvent:
		return s.SendMessage(ctx, session, e.Text)
	case domain.TypingEvent:
		return s.Typing(ctx, session)
	case domain.StopTypingEvent:
		return s.StopTyping(ctx, session)
	case domain.DisconnectEvent:
		return s.Disconnect(ctx, session)
	case domain.PingEvent:
		return nil
	default:
		return fmt.Errorf("%w: %T", domain.ErrUnknownEvent, event)
	}
}

// Join adds the user to the room and then attaches it to the session. A
// user already in the room is attached without a broadcast. A failed add
// leaves the session unattached so the join can be retried.
func (s *chatService) Join(ctx context.Context, session *domain.Session, userID, displayName string) error {
	l := log.Ctx(ctx)

	if _, err := s.identity.FindUserByID(ctx, userID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			audit.LogWithDetail(ctx, audit.ActionJoinFailed, userID, session.ID, "join rejected: user not found")
			return ErrUserNotFound
		}
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("user lookup failed, dropping join")
		return fmt.Errorf("failed to look up user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if session.IsJoined() {
		l.Debug().Str(log.FieldUserID, userID).Msg("session already joined, ignoring join")
		return nil
	}

	added, count, err := s.members.Add(ctx, membership.Member{
		UserID:       userID,
		DisplayName:  displayName,
		ConnectionID: session.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	session.Attach(userID, displayName)
	if !added {
		l.Debug().Str(log.FieldUserID, userID).Msg("user already in room, no broadcast")
		return nil
	}

	metrics.ChatMembers.Set(float64(count))
	audit.LogWithDetail(ctx, audit.ActionJoin, userID, session.ID, "user joined the room")
	l.Debug().Str(log.FieldUserID, userID).Int(log.FieldMembers, count).Msg("member added")

	return s.broadcaster.Broadcast(domain.UserJoined{Username: displayName, NumUsers: count})
}

// SendMessage appends the message to the sender's log and broadcasts it.
// A failed write is logged and the message is still broadcast.
func (s *chatService) SendMessage(ctx context.Context, session *domain.Session, text string) error {
	userID, name, ok := session.User()
	if !ok {
		return ErrNotJoined
	}

	entry := domain.NewChatMessageEntry(name, text, s.now())
	if err := s.persist(ctx, userID, entry); err != nil {
		reason := metrics.ReasonWrite
		var pe *persistError
		if errors.As(err, &pe) {
			reason = pe.reason
		}
		metrics.ChatPersistFailures.WithLabelValues(reason).Inc()

		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Str("reason", reason).Msg("message not persisted")
	}

	metrics.ChatMessagesTotal.Inc()
	return s.broadcaster.Broadcast(domain.NewMessage{Message: text, UserName: name})
}

type persistError struct {
	reason string
	err    error
}

func (e *persistError) Error() string { return e.err.Error() }
func (e *persistError) Unwrap() error { return e.err }

// persist creates the sender's log row or conditionally appends to it. A
// concurrent first write from the same user makes the update fail with
// ErrPersistenceConflict; the entry is not retried.
func (s *chatService) persist(ctx context.Context, userID string, entry domain.ChatMessageEntry) error {
	encoded, err := entry.Encode()
	if err != nil {
		return &persistError{reason: metrics.ReasonEncode, err: err}
	}

	row, err := s.logs.GetMessageLog(ctx, userID)
	if errors.Is(err, repository.ErrMessageLogNotFound) {
		if err := s.logs.PutMessageLog(ctx, userID, encoded); err != nil {
			return &persistError{reason: metrics.ReasonWrite, err: err}
		}
		return nil
	}
	if err != nil {
		return &persistError{reason: metrics.ReasonRead, err: err}
	}

	applied, err := s.logs.UpdateMessageLogIfExists(ctx, userID, domain.AppendEntry(row.Messages, encoded))
	if err != nil {
		return &persistError{reason: metrics.ReasonWrite, err: err}
	}
	if !applied {
		return &persistError{reason: metrics.ReasonConflict, err: ErrPersistenceConflict}
	}

	audit.Log(ctx, audit.ActionSendMessage, userID, "message appended")
	return nil
}

// Typing is a no-op for sessions that have not joined.
func (s *chatService) Typing(ctx context.Context, session *domain.Session) error {
	_, name, ok := session.User()
	if !ok {
		return nil
	}
	return s.broadcaster.Broadcast(domain.Typing{UserName: name})
}

// StopTyping is a no-op for sessions that have not joined.
func (s *chatService) StopTyping(ctx context.Context, session *domain.Session) error {
	_, name, ok := session.User()
	if !ok {
		return nil
	}
	return s.broadcaster.Broadcast(domain.StopTyping{UserName: name})
}

// Disconnect removes the user from the room if this session added it and
// broadcasts the remaining member count.
func (s *chatService) Disconnect(ctx context.Context, session *domain.Session) error {
	userID, name, ok := session.User()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed, count, err := s.members.Remove(ctx, userID, session.ID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if !removed {
		return nil
	}

	metrics.ChatMembers.Set(float64(count))
	audit.LogWithDetail(ctx, audit.ActionDisconnect, userID, session.ID, "user left the room")
	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldUserID, userID).Int(log.FieldMembers, count).Msg("member removed")

	return s.broadcaster.Broadcast(domain.UserLeft{Username: name, NumUsers: count})
}
