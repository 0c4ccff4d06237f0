package domain

import (
	"sync"
	"time"
)

// Session is the state of one live connection. The user is attached by the
// first successful join and never replaced.
type Session struct {
	ID          string
	RoomID      string
	ConnectedAt time.Time

	mu          sync.RWMutex
	userID      string
	displayName string
	joined      bool
	lastActive  time.Time
}

func NewSession(id, roomID string) *Session {
	now := time.Now()
	return &Session{
		ID:          id,
		RoomID:      roomID,
		ConnectedAt: now,
		lastActive:  now,
	}
}

// Attach sets the session user. It reports false if a user was already
// attached, in which case nothing changes.
func (s *Session) Attach(userID, displayName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.joined {
		return false
	}
	s.userID = userID
	s.displayName = displayName
	s.joined = true
	return true
}

// User returns the attached user, if any.
func (s *Session) User() (userID, displayName string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.displayName, s.joined
}

func (s *Session) IsJoined() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.joined
}

// Touch records a frame received on the connection.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
}

// LastActive is the time of the last received frame, or ConnectedAt.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}
