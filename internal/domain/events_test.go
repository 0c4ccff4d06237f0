package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Event
		wantErr error
	}{
		{
			name: "join",
			raw:  `{"type":"add user","data":{"userId":"u1","userName":"Ann"}}`,
			want: JoinEvent{UserID: "u1", UserName: "Ann"},
		},
		{
			name:    "join without user id",
			raw:     `{"type":"add user","data":{"userName":"Ann"}}`,
			wantErr: ErrMalformedFrame,
		},
		{
			name: "message",
			raw:  `{"type":"new message","data":"hello there"}`,
			want: MessageEvent{Text: "hello there"},
		},
		{
			name:    "message with object payload",
			raw:     `{"type":"new message","data":{"message":"hi"}}`,
			wantErr: ErrMalformedFrame,
		},
		{
			name: "typing",
			raw:  `{"type":"typing"}`,
			want: TypingEvent{},
		},
		{
			name: "stop typing",
			raw:  `{"type":"stop typing"}`,
			want: StopTypingEvent{},
		},
		{
			name: "ping",
			raw:  `{"type":"ping"}`,
			want: PingEvent{},
		},
		{
			name:    "unknown",
			raw:     `{"type":"dance"}`,
			wantErr: ErrUnknownEvent,
		},
		{
			name:    "not json",
			raw:     `add user`,
			wantErr: ErrMalformedFrame,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEvent([]byte(tt.raw))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeBroadcast_WireShape(t *testing.T) {
	tests := []struct {
		name string
		b    Broadcast
		want string
	}{
		{"user joined", UserJoined{Username: "Ann", NumUsers: 2}, `{"type":"user joined","data":{"username":"Ann","numUsers":2}}`},
		{"new message", NewMessage{Message: "hi", UserName: "Ann"}, `{"type":"new message","data":{"message":"hi","userName":"Ann"}}`},
		{"typing", Typing{UserName: "Ann"}, `{"type":"typing","data":{"userName":"Ann"}}`},
		{"stop typing", StopTyping{UserName: "Ann"}, `{"type":"stop typing","data":{"userName":"Ann"}}`},
		{"user left", UserLeft{Username: "Ann", NumUsers: 0}, `{"type":"user left","data":{"username":"Ann","numUsers":0}}`},
		{"pong", Pong{}, `{"type":"pong"}`},
		{"error", NewErrorMessage(ErrCodeNotJoined, "join first"), `{"type":"error","data":{"code":"NOT_JOINED","message":"join first"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeBroadcast(tt.b)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))

			back, err := DecodeBroadcast(data)
			require.NoError(t, err)
			assert.Equal(t, tt.b, back)
		})
	}
}

func TestNewMessageBroadcast_HasNoTimestamp(t *testing.T) {
	data, err := EncodeBroadcast(NewMessage{Message: "hi", UserName: "Ann"})
	require.NoError(t, err)

	var f struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &f))
	assert.NotContains(t, f.Data, "time")
	assert.NotContains(t, f.Data, "timestamp")
}
