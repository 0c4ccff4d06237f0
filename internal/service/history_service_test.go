package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elmchat/elm-chat/internal/domain"
)

func entry(t *testing.T, name, text string, ts int64) string {
	t.Helper()
	s, err := domain.ChatMessageEntry{Name: name, Message: text, Time: ts}.Encode()
	require.NoError(t, err)
	return s
}

func joinLog(pieces ...string) string {
	log := ""
	for _, p := range pieces {
		log = domain.AppendEntry(log, p)
	}
	return log
}

func TestFetchHistory_OrdersAcrossUsers(t *testing.T) {
	logs := newFakeMessageLogs()
	logs.seed("u1", joinLog(entry(t, "Ann", "a1", 100), entry(t, "Ann", "a2", 300)))
	logs.seed("u2", joinLog(entry(t, "Bob", "b1", 200), entry(t, "Bob", "b2", 400)))

	got, err := NewHistoryService(logs).FetchHistory(context.Background())
	require.NoError(t, err)

	var texts []string
	var last int64
	for _, m := range got {
		assert.GreaterOrEqual(t, m.Timestamp, last)
		last = m.Timestamp
		texts = append(texts, m.Data.Message)
	}
	assert.Equal(t, []string{"a1", "b1", "a2", "b2"}, texts)

	assert.Equal(t, domain.AggregatedMessage{
		Name:         "Bob",
		ID:           "u2",
		ClientID:     domain.PlaceholderID,
		ConnectionID: domain.PlaceholderID,
		Timestamp:    200,
		Data:         domain.MessageData{Message: "b1"},
	}, got[1])
}

func TestFetchHistory_TiesKeepScanOrder(t *testing.T) {
	logs := newFakeMessageLogs()
	logs.seed("u2", entry(t, "Bob", "first", 500))
	logs.seed("u1", entry(t, "Ann", "second", 500))

	got, err := NewHistoryService(logs).FetchHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Data.Message)
	assert.Equal(t, "second", got[1].Data.Message)
}

func TestFetchHistory_EmptyIsNotNil(t *testing.T) {
	logs := newFakeMessageLogs()
	logs.seed("u1", "")

	got, err := NewHistoryService(logs).FetchHistory(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFetchHistory_SkipsUndecodablePieces(t *testing.T) {
	logs := newFakeMessageLogs()
	// text containing the separator splits into two broken pieces
	logs.seed("u1", joinLog(
		entry(t, "Ann", "ok", 1),
		entry(t, "Ann", "price $$ 5", 2),
		entry(t, "Ann", "also ok", 3),
	))

	got, err := NewHistoryService(logs).FetchHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ok", got[0].Data.Message)
	assert.Equal(t, "also ok", got[1].Data.Message)
}

func TestFetchHistory_ListError(t *testing.T) {
	logs := newFakeMessageLogs()
	logs.listErr = errBoom

	got, err := NewHistoryService(logs).FetchHistory(context.Background())
	assert.ErrorIs(t, err, errBoom)
	assert.Nil(t, got)
}

func TestFetchHistory_IncludesPersistedMessages(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t, "u1")
	s := domain.NewSession("c1", "")
	require.NoError(t, f.svc.Join(ctx, s, "u1", "Ann"))
	require.NoError(t, f.svc.SendMessage(ctx, s, "one"))
	require.NoError(t, f.svc.SendMessage(ctx, s, "two"))

	got, err := NewHistoryService(f.logs).FetchHistory(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "one", got[0].Data.Message)
	assert.Equal(t, "two", got[1].Data.Message)
	assert.Equal(t, "u1", got[0].ID)
}
