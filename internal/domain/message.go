package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// LogSeparator joins encoded entries inside a user's message log. It is not
// escaped, so message text containing it corrupts the log on read.
const LogSeparator = "$$"

// PlaceholderID fills the clientId and connectionId fields of history items;
// the stored entries carry no connection information.
const PlaceholderID = "123"

// ChatMessageEntry is one persisted chat message.
type ChatMessageEntry struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Time    int64  `json:"time"` // ms since epoch
}

// NewChatMessageEntry captures text sent by name at t.
func NewChatMessageEntry(name, text string, t time.Time) ChatMessageEntry {
	return ChatMessageEntry{
		Name:    name,
		Message: text,
		Time:    t.UnixMilli(),
	}
}

// Encode renders the entry as single-line JSON without HTML escaping, the
// same bytes a browser JSON.stringify would produce.
func (e ChatMessageEntry) Encode() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return "", fmt.Errorf("failed to encode message entry: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// DecodeEntry parses one encoded entry.
func DecodeEntry(s string) (ChatMessageEntry, error) {
	var e ChatMessageEntry
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		return ChatMessageEntry{}, fmt.Errorf("failed to decode message entry: %w", err)
	}
	return e, nil
}

// AppendEntry returns the log with encoded appended. An empty log yields
// encoded alone.
func AppendEntry(log, encoded string) string {
	if log == "" {
		return encoded
	}
	return log + LogSeparator + encoded
}

// SplitLog splits a message log into its encoded entries. An empty log has
// no entries.
func SplitLog(log string) []string {
	if log == "" {
		return nil
	}
	return strings.Split(log, LogSeparator)
}

// UserMessageLog is one row of the chat table.
type UserMessageLog struct {
	UserID   string
	Messages string
}

// MessageData wraps the message text of a history item.
type MessageData struct {
	Message string `json:"message"`
}

// AggregatedMessage is one item of the room history feed.
type AggregatedMessage struct {
	Name         string      `json:"name"`
	ID           string      `json:"id"`
	ClientID     string      `json:"clientId"`
	ConnectionID string      `json:"connectionId"`
	Timestamp    int64       `json:"timestamp"`
	Data         MessageData `json:"data"`
}

// ToAggregated maps a stored entry of userID to a history item.
func (e ChatMessageEntry) ToAggregated(userID string) AggregatedMessage {
	return AggregatedMessage{
		Name:         e.Name,
		ID:           userID,
		ClientID:     PlaceholderID,
		ConnectionID: PlaceholderID,
		Timestamp:    e.Time,
		Data:         MessageData{Message: e.Message},
	}
}
