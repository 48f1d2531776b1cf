package events

import "github.com/koscakluka/ema-voice/core/conversations"

const (
	// KindPhaseChanged identifies a conversation phase change.
	KindPhaseChanged Kind = "state.phase_changed"
	// KindTurnCommitted identifies a turn appended to the conversation log.
	KindTurnCommitted Kind = "state.turn_committed"
	// KindReplyUpdated identifies a change of the streaming reply text.
	KindReplyUpdated Kind = "state.reply_updated"
	// KindTranscriptChanged identifies a change of the live transcript.
	KindTranscriptChanged Kind = "state.transcript_changed"
	// KindConversationChanged identifies a change of the active conversation
	// or of its loaded history.
	KindConversationChanged Kind = "state.conversation_changed"
	// KindSettingsChanged identifies a change of the mute flag or language.
	KindSettingsChanged Kind = "state.settings_changed"
)

// PhaseChanged carries the phases before and after an applied event. From
// and To always differ.
type PhaseChanged struct {
	Base
	From string
	To   string
}

func NewPhaseChanged(from, to string) PhaseChanged {
	return PhaseChanged{Base: NewBase(KindPhaseChanged), From: from, To: to}
}

type TurnCommitted struct {
	Base
	Turn conversations.Turn
}

func NewTurnCommitted(turn conversations.Turn) TurnCommitted {
	return TurnCommitted{Base: NewBase(KindTurnCommitted), Turn: turn}
}

// ReplyUpdated carries the full reply text accumulated so far. Generating is
// false once the reply was committed or discarded.
type ReplyUpdated struct {
	Base
	Text       string
	Generating bool
}

func NewReplyUpdated(text string, generating bool) ReplyUpdated {
	return ReplyUpdated{Base: NewBase(KindReplyUpdated), Text: text, Generating: generating}
}

type TranscriptChanged struct {
	Base
	Final   string
	Interim string
}

func NewTranscriptChanged(final, interim string) TranscriptChanged {
	return TranscriptChanged{Base: NewBase(KindTranscriptChanged), Final: final, Interim: interim}
}

// ConversationChanged carries the active conversation and its full turn log.
type ConversationChanged struct {
	Base
	ConversationID string
	Turns          []conversations.Turn
}

func NewConversationChanged(conversationID string, turns []conversations.Turn) ConversationChanged {
	return ConversationChanged{Base: NewBase(KindConversationChanged), ConversationID: conversationID, Turns: turns}
}

type SettingsChanged struct {
	Base
	Muted    bool
	Language string
}

func NewSettingsChanged(muted bool, language string) SettingsChanged {
	return SettingsChanged{Base: NewBase(KindSettingsChanged), Muted: muted, Language: language}
}
