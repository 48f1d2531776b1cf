package events

import "github.com/koscakluka/ema-voice/core/conversations"

const (
	KindStartListening     Kind = "command.start_listening"
	KindStopListening      Kind = "command.stop_listening"
	KindStopSpeaking       Kind = "command.stop_speaking"
	KindCancelGeneration   Kind = "command.cancel_generation"
	KindSetMuted           Kind = "command.set_muted"
	KindSetLanguage        Kind = "command.set_language"
	KindSendText           Kind = "command.send_text"
	KindSwitchConversation Kind = "command.switch_conversation"
	// KindHistoryLoaded identifies the completion of an asynchronous history
	// load started by a conversation switch.
	KindHistoryLoaded Kind = "command.history_loaded"
)

type StartListening struct{ Base }

func NewStartListening() StartListening {
	return StartListening{Base: NewBase(KindStartListening)}
}

type StopListening struct{ Base }

func NewStopListening() StopListening {
	return StopListening{Base: NewBase(KindStopListening)}
}

type StopSpeaking struct{ Base }

func NewStopSpeaking() StopSpeaking {
	return StopSpeaking{Base: NewBase(KindStopSpeaking)}
}

type CancelGeneration struct{ Base }

func NewCancelGeneration() CancelGeneration {
	return CancelGeneration{Base: NewBase(KindCancelGeneration)}
}

type SetMuted struct {
	Base
	Muted bool
}

func NewSetMuted(muted bool) SetMuted {
	return SetMuted{Base: NewBase(KindSetMuted), Muted: muted}
}

// SetLanguage carries a BCP 47 language tag such as "en-US" or "hi-IN".
type SetLanguage struct {
	Base
	Tag string
}

func NewSetLanguage(tag string) SetLanguage {
	return SetLanguage{Base: NewBase(KindSetLanguage), Tag: tag}
}

// SendText carries a typed user turn. It takes the same path as a spoken
// transcript.
type SendText struct {
	Base
	Text string
}

func NewSendText(text string) SendText {
	return SendText{Base: NewBase(KindSendText), Text: text}
}

type SwitchConversation struct {
	Base
	ConversationID string
}

func NewSwitchConversation(conversationID string) SwitchConversation {
	return SwitchConversation{Base: NewBase(KindSwitchConversation), ConversationID: conversationID}
}

// HistoryLoaded carries the stored history of ConversationID, loaded for the
// switch with the given Epoch.
type HistoryLoaded struct {
	Base
	Epoch          uint64
	ConversationID string
	Turns          []conversations.Turn
	Err            error
}

func NewHistoryLoaded(epoch uint64, conversationID string, turns []conversations.Turn, err error) HistoryLoaded {
	return HistoryLoaded{
		Base:           NewBase(KindHistoryLoaded),
		Epoch:          epoch,
		ConversationID: conversationID,
		Turns:          turns,
		Err:            err,
	}
}
