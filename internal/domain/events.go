package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event names on the wire. Client and server share "new message", "typing"
// and "stop typing".
const (
	EventAddUser    = "add user"
	EventNewMessage = "new message"
	EventTyping     = "typing"
	EventStopTyping = "stop typing"
	EventPing       = "ping"

	EventUserJoined = "user joined"
	EventUserLeft   = "user left"
	EventPong       = "pong"
	EventError      = "error"
)

// Error codes sent in error frames.
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotJoined     = "NOT_JOINED"
	ErrCodeUserNotFound  = "USER_NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownEvent   = errors.New("unknown event")
)

// Frame is the JSON envelope of every WebSocket message.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is a decoded client event.
type Event interface {
	isEvent()
}

// JoinEvent asks to join the room as UserID.
type JoinEvent struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// MessageEvent carries chat text.
type MessageEvent struct {
	Text string
}

type TypingEvent struct{}

type StopTypingEvent struct{}

// PingEvent is answered to the sender only.
type PingEvent struct{}

// DisconnectEvent is produced by the transport when the connection closes.
type DisconnectEvent struct{}

func (JoinEvent) isEvent()       {}
func (MessageEvent) isEvent()    {}
func (TypingEvent) isEvent()     {}
func (StopTypingEvent) isEvent() {}
func (PingEvent) isEvent()       {}
func (DisconnectEvent) isEvent() {}

// DecodeEvent parses one client frame.
func DecodeEvent(raw []byte) (Event, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch f.Type {
	case EventAddUser:
		var e JoinEvent
		if err := json.Unmarshal(f.Data, &e); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, f.Type, err)
		}
		if e.UserID == "" {
			return nil, fmt.Errorf("%w: %s: userId is required", ErrMalformedFrame, f.Type)
		}
		return e, nil

	case EventNewMessage:
		var text string
		if err := json.Unmarshal(f.Data, &text); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, f.Type, err)
		}
		return MessageEvent{Text: text}, nil

	case EventTyping:
		return TypingEvent{}, nil

	case EventStopTyping:
		return StopTypingEvent{}, nil

	case EventPing:
		return PingEvent{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Type)
	}
}

// Broadcast is an outgoing server event.
type Broadcast interface {
	EventName() string
}

type UserJoined struct {
	Username string `json:"username"`
	NumUsers int    `json:"numUsers"`
}

type NewMessage struct {
	Message  string `json:"message"`
	UserName string `json:"userName"`
}

type Typing struct {
	UserName string `json:"userName"`
}

type StopTyping struct {
	UserName string `json:"userName"`
}

type UserLeft struct {
	Username string `json:"username"`
	NumUsers int    `json:"numUsers"`
}

type Pong struct{}

type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (UserJoined) EventName() string   { return EventUserJoined }
func (NewMessage) EventName() string   { return EventNewMessage }
func (Typing) EventName() string       { return EventTyping }
func (StopTyping) EventName() string   { return EventStopTyping }
func (UserLeft) EventName() string     { return EventUserLeft }
func (Pong) EventName() string         { return EventPong }
func (ErrorMessage) EventName() string { return EventError }

func NewErrorMessage(code, message string) ErrorMessage {
	return ErrorMessage{Code: code, Message: message}
}

// EncodeBroadcast wraps b in a Frame.
func EncodeBroadcast(b Broadcast) ([]byte, error) {
	f := Frame{Type: b.EventName()}
	if _, empty := b.(Pong); !empty {
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", b.EventName(), err)
		}
		f.Data = data
	}
	return json.Marshal(f)
}

// DecodeBroadcast parses a server frame. It is used by clients and tests.
func DecodeBroadcast(raw []byte) (Broadcast, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var b Broadcast
	switch f.Type {
	case EventUserJoined:
		b = &UserJoined{}
	case EventNewMessage:
		b = &NewMessage{}
	case EventTyping:
		b = &Typing{}
	case EventStopTyping:
		b = &StopTyping{}
	case EventUserLeft:
		b = &UserLeft{}
	case EventError:
		b = &ErrorMessage{}
	case EventPong:
		return Pong{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Type)
	}

	if err := json.Unmarshal(f.Data, b); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, f.Type, err)
	}

	// Callers switch on value types.
	switch v := b.(type) {
	case *UserJoined:
		return *v, nil
	case *NewMessage:
		return *v, nil
	case *Typing:
		return *v, nil
	case *StopTyping:
		return *v, nil
	case *UserLeft:
		return *v, nil
	case *ErrorMessage:
		return *v, nil
	}
	return b, nil
}
