package chatchannel

import (
	"reflect"

	"github.com/invopop/jsonschema"
)

// Frame types sent by the client.
const (
	FrameJoinSession = "join_session"
	FrameUserMessage = "user_message"
)

// Frame types sent by the backend. The assistant_* spellings are accepted as
// aliases of token and done.
const (
	FrameToken          = "token"
	FrameAssistantToken = "assistant_token"
	FrameDone           = "done"
	FrameAssistantDone  = "assistant_done"
	FrameSessionJoined  = "session_joined"
	FrameError          = "error"
)

// JoinSessionFrame associates the connection with a conversation. Sending it
// again for the same conversation has no effect on the backend.
type JoinSessionFrame struct {
	Type           string `json:"type" jsonschema:"enum=join_session"`
	Credential     string `json:"credential" jsonschema:"description=Session credential of the user"`
	ConversationID string `json:"conversationId"`
}

// UserMessageFrame carries one user turn.
type UserMessageFrame struct {
	Type           string `json:"type" jsonschema:"enum=user_message"`
	Credential     string `json:"credential" jsonschema:"description=Session credential of the user"`
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
	LanguageTag    string `json:"languageTag" jsonschema:"description=Base language subtag such as en or hi"`
}

// TokenFrame carries one chunk of the reply in progress.
type TokenFrame struct {
	Type           string `json:"type" jsonschema:"enum=token,enum=assistant_token"`
	Chunk          string `json:"chunk"`
	ConversationID string `json:"conversationId,omitempty"`
}

// DoneFrame terminates a reply. Exactly one is sent per reply.
type DoneFrame struct {
	Type           string `json:"type" jsonschema:"enum=done,enum=assistant_done"`
	ConversationID string `json:"conversationId,omitempty"`
}

type SessionJoinedFrame struct {
	Type           string `json:"type" jsonschema:"enum=session_joined"`
	ConversationID string `json:"conversationId,omitempty"`
}

// ErrorFrame reports a backend failure. It closes the oldest outstanding
// reply of the conversation.
type ErrorFrame struct {
	Type           string `json:"type" jsonschema:"enum=error"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

// inboundFrame is the union of all backend frames. Older backends use
// conversation_id.
type inboundFrame struct {
	Type                 string `json:"type"`
	Chunk                string `json:"chunk"`
	Message              string `json:"message"`
	ConversationID       string `json:"conversationId"`
	LegacyConversationID string `json:"conversation_id"`
}

func (f inboundFrame) conversationID() string {
	if f.ConversationID != "" {
		return f.ConversationID
	}
	return f.LegacyConversationID
}

// ProtocolSchema returns the JSON Schema of every frame, keyed by frame type.
func ProtocolSchema() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true}

	frames := map[string]any{
		FrameJoinSession:   JoinSessionFrame{},
		FrameUserMessage:   UserMessageFrame{},
		FrameToken:         TokenFrame{},
		FrameDone:          DoneFrame{},
		FrameSessionJoined: SessionJoinedFrame{},
		FrameError:         ErrorFrame{},
	}

	schemas := make(map[string]*jsonschema.Schema, len(frames))
	for frameType, frame := range frames {
		schemas[frameType] = reflector.ReflectFromType(reflect.TypeOf(frame))
	}
	return schemas
}
