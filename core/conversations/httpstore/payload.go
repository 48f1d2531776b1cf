package httpstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/koscakluka/ema-voice/core/conversations"
)

// The backend has shipped both camelCase and snake_case field names, so both
// spellings are accepted everywhere.

type conversationPayload struct {
	ID                 string    `json:"id"`
	CreatedAt          timestamp `json:"createdAt"`
	LegacyCreatedAt    timestamp `json:"created_at"`
	LastActivity       timestamp `json:"lastActivity"`
	LegacyLastActivity timestamp `json:"last_activity"`
}

func (p conversationPayload) summary() conversations.Summary {
	return conversations.Summary{
		ID:           p.ID,
		CreatedAt:    firstTime(p.CreatedAt, p.LegacyCreatedAt),
		LastActivity: firstTime(p.LastActivity, p.LegacyLastActivity),
	}
}

type createdPayload struct {
	ID                   string `json:"id"`
	LegacyConversationID string `json:"conversation_id"`
}

func (p createdPayload) id() string {
	if p.ID != "" {
		return p.ID
	}
	return p.LegacyConversationID
}

type messagePayload struct {
	Role            string    `json:"role"`
	Text            string    `json:"text"`
	Content         string    `json:"content"`
	CreatedAt       timestamp `json:"createdAt"`
	LegacyCreatedAt timestamp `json:"created_at"`
}

func (p messagePayload) message() conversations.Message {
	text := p.Text
	if text == "" {
		text = p.Content
	}
	return conversations.Message{
		Role:      conversations.Role(p.Role),
		Text:      text,
		CreatedAt: firstTime(p.CreatedAt, p.LegacyCreatedAt),
	}
}

func firstTime(times ...timestamp) time.Time {
	for _, t := range times {
		if !t.IsZero() {
			return t.Time
		}
	}
	return time.Time{}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	http.TimeFormat,
	time.RFC1123,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
}

// timestamp accepts RFC 3339, HTTP dates and naive ISO timestamps (treated as
// UTC). Anything else decodes to the zero time.
type timestamp struct{ time.Time }

func (t *timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if raw == "" {
		return nil
	}

	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return nil
}
