package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elmchat/elm-chat/internal/config"
	"github.com/elmchat/elm-chat/internal/domain"
	"github.com/elmchat/elm-chat/internal/hub"
	"github.com/elmchat/elm-chat/internal/membership"
)

type chatFixture struct {
	svc         ChatService
	broadcaster *fakeBroadcaster
	tracker     *membership.MemoryTracker
	identity    *fakeIdentity
	logs        *fakeMessageLogs
	clock       *time.Time
}

func newChatFixture(t *testing.T, users ...string) *chatFixture {
	t.Helper()
	now := time.UnixMilli(1_700_000_000_000)
	f := &chatFixture{
		broadcaster: &fakeBroadcaster{},
		tracker:     membership.NewMemoryTracker(),
		identity:    newFakeIdentity(users...),
		logs:        newFakeMessageLogs(),
		clock:       &now,
	}
	f.svc = NewChatService(f.broadcaster, f.tracker, f.identity, f.logs, WithClock(func() time.Time {
		*f.clock = f.clock.Add(time.Millisecond)
		return *f.clock
	}))
	return f
}

func (f *chatFixture) members(t *testing.T) int {
	t.Helper()
	n, err := f.tracker.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestJoin_BroadcastsToRoom(t *testing.T) {
	f := newChatFixture(t, "u1")
	s := domain.NewSession("c1", "")

	require.NoError(t, f.svc.Join(context.Background(), s, "u1", "Ann"))

	assert.Equal(t, []domain.Broadcast{domain.UserJoined{Username: "Ann", NumUsers: 1}}, f.broadcaster.all())
	assert.True(t, s.IsJoined())
	assert.Equal(t, 1, f.members(t))
}

func TestJoin_IdempotentPerUser(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t, "u1")
	s1 := domain.NewSession("c1", "")
	s2 := domain.NewSession("c2", "")

	require.NoError(t, f.svc.Join(ctx, s1, "u1", "Ann"))
	require.NoError(t, f.svc.Join(ctx, s1, "u1", "Ann"))
	require.NoError(t, f.svc.Join(ctx, s2, "u1", "Ann"))

	assert.Len(t, f.broadcaster.all(), 1)
	assert.Equal(t, 1, f.members(t))

	// the second tab can still send
	require.NoError(t, f.svc.SendMessage(ctx, s2, "from tab two"))
	assert.Equal(t, domain.NewMessage{Message: "from tab two", UserName: "Ann"}, f.broadcaster.all()[1])
}

func TestJoin_UnknownUser(t *testing.T) {
	f := newChatFixture(t)
	s := domain.NewSession("c1", "")

	err := f.svc.Join(context.Background(), s, "ghost", "Ghost")

	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Empty(t, f.broadcaster.all())
	assert.False(t, s.IsJoined())
	assert.Equal(t, 0, f.members(t))
}

func TestJoin_LookupFailure(t *testing.T) {
	f := newChatFixture(t, "u1")
	f.identity.err = errBoom
	s := domain.NewSession("c1", "")

	err := f.svc.Join(context.Background(), s, "u1", "Ann")

	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, ErrUserNotFound)
	assert.Empty(t, f.broadcaster.all())
	assert.False(t, s.IsJoined())
}

func TestJoin_TrackerFailureCanBeRetried(t *testing.T) {
	ctx := context.Background()
	tracker := &flakyTracker{MemoryTracker: membership.NewMemoryTracker(), addFailures: 1}
	b := &fakeBroadcaster{}
	svc := NewChatService(b, tracker, newFakeIdentity("u1"), newFakeMessageLogs())
	s := domain.NewSession("c1", "")

	err := svc.Join(ctx, s, "u1", "Ann")
	require.ErrorIs(t, err, errBoom)
	assert.False(t, s.IsJoined())
	assert.Empty(t, b.all())
	assert.ErrorIs(t, svc.SendMessage(ctx, s, "too early"), ErrNotJoined)

	require.NoError(t, svc.Join(ctx, s, "u1", "Ann"))
	assert.True(t, s.IsJoined())
	n, err := tracker.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []domain.Broadcast{domain.UserJoined{Username: "Ann", NumUsers: 1}}, b.all())

	require.NoError(t, svc.Disconnect(ctx, s))
	assert.Equal(t, domain.UserLeft{Username: "Ann", NumUsers: 0}, b.all()[1])
}

func TestSendMessage_AppendsInSendOrder(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t, "u1")
	s := domain.NewSession("c1", "")
	require.NoError(t, f.svc.Join(ctx, s, "u1", "Ann"))

	texts := []string{"first", "second", "third", "fourth"}
	for _, text := range texts {
		require.NoError(t, f.svc.SendMessage(ctx, s, text))
	}

	pieces := domain.SplitLog(f.logs.row("u1"))
	require.Len(t, pieces, len(texts))
	var last int64
	for i, piece := range pieces {
		entry, err := domain.DecodeEntry(piece)
		require.NoError(t, err)
		assert.Equal(t, texts[i], entry.Message)
		assert.Equal(t, "Ann", entry.Name)
		assert.Greater(t, entry.Time, last)
		last = entry.Time
	}

	assert.Equal(t, 1, f.logs.puts)
	assert.Equal(t, len(texts)-1, f.logs.updates)

	sent := f.broadcaster.all()
	require.Len(t, sent, 1+len(texts))
	for i, text := range texts {
		assert.Equal(t, domain.NewMessage{Message: text, UserName: "Ann"}, sent[i+1])
	}
}

func TestSendMessage_UnjoinedIsRejected(t *testing.T) {
	f := newChatFixture(t, "u1")
	s := domain.NewSession("c1", "")

	err := f.svc.SendMessage(context.Background(), s, "hello?")

	assert.ErrorIs(t, err, ErrNotJoined)
	assert.Empty(t, f.broadcaster.all())
	assert.Equal(t, 0, f.logs.writes())
}

func TestSendMessage_PersistFailureStillBroadcasts(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeMessageLogs)
	}{
		{"read fails", func(l *fakeMessageLogs) { l.getErr = errBoom }},
		{"insert fails", func(l *fakeMessageLogs) { l.putErr = errBoom }},
		{"update fails", func(l *fakeMessageLogs) {
			l.seed("u1", `{"name":"Ann","message":"old","time":1}`)
			l.updateErr = errBoom
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newChatFixture(t, "u1")
			s := domain.NewSession("c1", "")
			require.NoError(t, f.svc.Join(ctx, s, "u1", "Ann"))
			tt.setup(f.logs)

			require.NoError(t, f.svc.SendMessage(ctx, s, "still live"))

			sent := f.broadcaster.all()
			require.Len(t, sent, 2)
			assert.Equal(t, domain.NewMessage{Message: "still live", UserName: "Ann"}, sent[1])
		})
	}
}

func TestSendMessage_ConflictIsNotRetried(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t, "u1")
	s := domain.NewSession("c1", "")
	require.NoError(t, f.svc.Join(ctx, s, "u1", "Ann"))

	original := `{"name":"Ann","message":"old","time":1}`
	f.logs.seed("u1", original)
	f.logs.notApplied = true

	require.NoError(t, f.svc.SendMessage(ctx, s, "lost"))

	assert.Equal(t, 1, f.logs.updates)
	assert.Equal(t, 0, f.logs.puts)
	assert.Equal(t, original, f.logs.row("u1"))
	assert.Len(t, f.broadcaster.all(), 2)
}

func TestTyping(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t, "u1")
	joined := domain.NewSession("c1", "")
	unjoined := domain.NewSession("c2", "")
	require.NoError(t, f.svc.Join(ctx, joined, "u1", "Ann"))

	require.NoError(t, f.svc.Typing(ctx, unjoined))
	require.NoError(t, f.svc.StopTyping(ctx, unjoined))
	require.NoError(t, f.svc.Typing(ctx, joined))
	require.NoError(t, f.svc.StopTyping(ctx, joined))

	assert.Equal(t, []domain.Broadcast{
		domain.UserJoined{Username: "Ann", NumUsers: 1},
		domain.Typing{UserName: "Ann"},
		domain.StopTyping{UserName: "Ann"},
	}, f.broadcaster.all())
	assert.Equal(t, 0, f.logs.writes())
}

func TestDisconnect_BroadcastsPostRemovalCount(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t, "u1", "u2")
	s1 := domain.NewSession("c1", "")
	s2 := domain.NewSession("c2", "")
	require.NoError(t, f.svc.Join(ctx, s1, "u1", "Ann"))
	require.NoError(t, f.svc.Join(ctx, s2, "u2", "Bob"))
	require.Equal(t, 2, f.members(t))

	require.NoError(t, f.svc.Disconnect(ctx, s1))

	assert.Equal(t, 1, f.members(t))
	sent := f.broadcaster.all()
	assert.Equal(t, domain.UserLeft{Username: "Ann", NumUsers: 1}, sent[len(sent)-1])
}

func TestDisconnect_OnlyOwningSessionRemovesMember(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t, "u1")
	owner := domain.NewSession("c1", "")
	secondTab := domain.NewSession("c2", "")
	require.NoError(t, f.svc.Join(ctx, owner, "u1", "Ann"))
	require.NoError(t, f.svc.Join(ctx, secondTab, "u1", "Ann"))

	require.NoError(t, f.svc.Disconnect(ctx, secondTab))
	assert.Equal(t, 1, f.members(t))
	assert.Len(t, f.broadcaster.all(), 1)

	require.NoError(t, f.svc.Disconnect(ctx, owner))
	assert.Equal(t, 0, f.members(t))
	assert.Equal(t, domain.UserLeft{Username: "Ann", NumUsers: 0}, f.broadcaster.all()[1])
}

func TestDisconnect_UnjoinedIsNoop(t *testing.T) {
	f := newChatFixture(t)
	require.NoError(t, f.svc.Disconnect(context.Background(), domain.NewSession("c1", "")))
	assert.Empty(t, f.broadcaster.all())
}

func TestHandleEvent_Dispatch(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t, "u1")
	s := domain.NewSession("c1", "")

	assert.ErrorIs(t, f.svc.HandleEvent(ctx, s, domain.MessageEvent{Text: "early"}), ErrNotJoined)
	require.NoError(t, f.svc.HandleEvent(ctx, s, domain.JoinEvent{UserID: "u1", UserName: "Ann"}))
	require.NoError(t, f.svc.HandleEvent(ctx, s, domain.TypingEvent{}))
	require.NoError(t, f.svc.HandleEvent(ctx, s, domain.MessageEvent{Text: "hi"}))
	require.NoError(t, f.svc.HandleEvent(ctx, s, domain.StopTypingEvent{}))
	require.NoError(t, f.svc.HandleEvent(ctx, s, domain.PingEvent{}))
	require.NoError(t, f.svc.HandleEvent(ctx, s, domain.DisconnectEvent{}))

	assert.Equal(t, []domain.Broadcast{
		domain.UserJoined{Username: "Ann", NumUsers: 1},
		domain.Typing{UserName: "Ann"},
		domain.NewMessage{Message: "hi", UserName: "Ann"},
		domain.StopTyping{UserName: "Ann"},
		domain.UserLeft{Username: "Ann", NumUsers: 0},
	}, f.broadcaster.all())
}

func TestSendMessage_ReachesEverySessionIncludingSender(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := hub.NewHub()
	go h.Run(ctx)

	svc := NewChatService(h, membership.NewMemoryTracker(), newFakeIdentity("u1"), newFakeMessageLogs())

	var clients []*hub.Client
	for _, id := range []string{"a", "b", "c"} {
		c := hub.NewClient(id, "", h, nil, config.WebSocketConfig{SendBuffer: 8})
		require.NoError(t, h.Register(c))
		clients = append(clients, c)
	}

	sender := clients[0]
	require.NoError(t, svc.Join(ctx, sender.Session, "u1", "Ann"))
	require.NoError(t, svc.SendMessage(ctx, sender.Session, "hello all"))

	for _, c := range clients {
		var got []domain.Broadcast
		for len(got) < 2 {
			select {
			case data := <-c.Send:
				b, err := domain.DecodeBroadcast(data)
				require.NoError(t, err)
				got = append(got, b)
			case <-time.After(2 * time.Second):
				t.Fatalf("client %s missed broadcasts, got %v", c.ID, got)
			}
		}
		assert.Equal(t, []domain.Broadcast{
			domain.UserJoined{Username: "Ann", NumUsers: 1},
			domain.NewMessage{Message: "hello all", UserName: "Ann"},
		}, got)
	}
}
