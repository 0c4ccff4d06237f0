package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSession_AttachFirstWins(t *testing.T) {
	s := NewSession("c1", "lobby")

	_, _, ok := s.User()
	assert.False(t, ok)
	assert.False(t, s.IsJoined())

	assert.True(t, s.Attach("u1", "Ann"))
	assert.False(t, s.Attach("u2", "Bob"))

	userID, name, ok := s.User()
	assert.True(t, ok)
	assert.True(t, s.IsJoined())
	assert.Equal(t, "u1", userID)
	assert.Equal(t, "Ann", name)
	assert.Equal(t, "lobby", s.RoomID)
}

func TestSession_Touch(t *testing.T) {
	s := NewSession("c1", "")
	assert.Equal(t, s.ConnectedAt, s.LastActive())

	time.Sleep(2 * time.Millisecond)
	s.Touch()

	assert.True(t, s.LastActive().After(s.ConnectedAt))
}
