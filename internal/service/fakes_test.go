package service

import (
	"context"
	"errors"
	"sync"

	"github.com/elmchat/elm-chat/internal/domain"
	"github.com/elmchat/elm-chat/internal/membership"
	"github.com/elmchat/elm-chat/internal/repository"
)

type fakeBroadcaster struct {
	mu   sync.Mutex
	sent []domain.Broadcast
}

func (f *fakeBroadcaster) Broadcast(b domain.Broadcast) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, b)
	return nil
}

func (f *fakeBroadcaster) all() []domain.Broadcast {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Broadcast(nil), f.sent...)
}

type fakeIdentity struct {
	users map[string]*domain.User
	err   error
}

func newFakeIdentity(ids ...string) *fakeIdentity {
	f := &fakeIdentity{users: make(map[string]*domain.User)}
	for _, id := range ids {
		f.users[id] = &domain.User{ID: id, Email: id + "@example.com"}
	}
	return f
}

func (f *fakeIdentity) FindUserByID(_ context.Context, id string) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// fakeMessageLogs keeps rows in insertion order.
type fakeMessageLogs struct {
	mu    sync.Mutex
	order []string
	rows  map[string]string

	getErr     error
	putErr     error
	updateErr  error
	notApplied bool
	listErr    error

	puts    int
	updates int
}

func newFakeMessageLogs() *fakeMessageLogs {
	return &fakeMessageLogs{rows: make(map[string]string)}
}

func (f *fakeMessageLogs) seed(userID, messages string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[userID]; !ok {
		f.order = append(f.order, userID)
	}
	f.rows[userID] = messages
}

func (f *fakeMessageLogs) GetMessageLog(_ context.Context, userID string) (*domain.UserMessageLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	messages, ok := f.rows[userID]
	if !ok {
		return nil, repository.ErrMessageLogNotFound
	}
	return &domain.UserMessageLog{UserID: userID, Messages: messages}, nil
}

func (f *fakeMessageLogs) PutMessageLog(_ context.Context, userID, messages string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	if _, ok := f.rows[userID]; !ok {
		f.order = append(f.order, userID)
	}
	f.rows[userID] = messages
	return nil
}

func (f *fakeMessageLogs) UpdateMessageLogIfExists(_ context.Context, userID, messages string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return false, f.updateErr
	}
	if _, ok := f.rows[userID]; !ok || f.notApplied {
		return false, nil
	}
	f.rows[userID] = messages
	return true, nil
}

func (f *fakeMessageLogs) ListMessageLogs(_ context.Context) ([]domain.UserMessageLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.UserMessageLog, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, domain.UserMessageLog{UserID: id, Messages: f.rows[id]})
	}
	return out, nil
}

func (f *fakeMessageLogs) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts + f.updates
}

func (f *fakeMessageLogs) row(userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[userID]
}

// flakyTracker fails the next addFailures calls to Add, then delegates.
type flakyTracker struct {
	*membership.MemoryTracker
	mu          sync.Mutex
	addFailures int
}

func (f *flakyTracker) Add(ctx context.Context, m membership.Member) (bool, int, error) {
	f.mu.Lock()
	if f.addFailures > 0 {
		f.addFailures--
		f.mu.Unlock()
		return false, 0, errBoom
	}
	f.mu.Unlock()
	return f.MemoryTracker.Add(ctx, m)
}

var errBoom = errors.New("boom")
