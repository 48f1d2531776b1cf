package chatchannel

import "testing"

func TestProtocolSchemaCoversEveryFrame(t *testing.T) {
	schemas := ProtocolSchema()

	for _, frameType := range []string{
		FrameJoinSession,
		FrameUserMessage,
		FrameToken,
		FrameDone,
		FrameSessionJoined,
		FrameError,
	} {
		schema, ok := schemas[frameType]
		if !ok || schema == nil {
			t.Fatalf("missing schema for %q", frameType)
		}
		if _, ok := schema.Properties.Get("type"); !ok {
			t.Fatalf("schema for %q has no type property", frameType)
		}
	}

	userMessage := schemas[FrameUserMessage]
	for _, property := range []string{"credential", "conversationId", "text", "languageTag"} {
		if _, ok := userMessage.Properties.Get(property); !ok {
			t.Fatalf("user_message schema is missing %q", property)
		}
	}
}

func TestInboundFrameConversationID(t *testing.T) {
	tests := []struct {
		name  string
		frame inboundFrame
		want  string
	}{
		{name: "camel case", frame: inboundFrame{ConversationID: "a"}, want: "a"},
		{name: "snake case", frame: inboundFrame{LegacyConversationID: "b"}, want: "b"},
		{name: "both prefers camel case", frame: inboundFrame{ConversationID: "a", LegacyConversationID: "b"}, want: "a"},
		{name: "neither", frame: inboundFrame{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.frame.conversationID(); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
