package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elmchat/elm-chat/pkg/log"
)

func capture(t *testing.T) (context.Context, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return log.WithLogger(context.Background(), zerolog.New(&buf)), &buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestLogWithDetail(t *testing.T) {
	ctx, buf := capture(t)

	LogWithDetail(ctx, ActionJoin, "u1", "conn-1", "user joined the room")

	line := decode(t, buf)
	assert.Equal(t, log.LogTypeAudit, line[log.FieldLogType])
	assert.Equal(t, ActionJoin, line[FieldAction])
	assert.Equal(t, "u1", line[log.FieldUserID])
	assert.Equal(t, "conn-1", line[FieldDetail])
	assert.Equal(t, "user joined the room", line["message"])
	assert.Equal(t, "info", line["level"])
}

func TestLog_OmitsEmptyUser(t *testing.T) {
	ctx, buf := capture(t)

	Log(ctx, ActionLoginFailed, "", "login failed")

	line := decode(t, buf)
	assert.NotContains(t, line, log.FieldUserID)
	assert.NotContains(t, line, FieldDetail)
}
