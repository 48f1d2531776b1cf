package orchestration

import (
	"context"

	"github.com/koscakluka/ema-voice/core/chatchannel"
	"github.com/koscakluka/ema-voice/core/conversations"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

type OrchestratorOption func(*Orchestrator)

// SpeechCapture is implemented by speech-to-text adapters. The ended callback
// must fire exactly once for every successful StartCapture.
type SpeechCapture interface {
	HasSupport() bool
	StartCapture(ctx context.Context, opts ...speechtotext.CaptureOption) error
	StopCapture() error
}

func WithSpeechCapture(client SpeechCapture) OrchestratorOption {
	return func(o *Orchestrator) { o.capture = client }
}

// SpeechPlayback is implemented by text-to-speech adapters. The ended
// callback must fire exactly once for every successful Speak.
type SpeechPlayback interface {
	HasSupport() bool
	Speak(ctx context.Context, text string, opts ...texttospeech.SpeakOption) error
	StopSpeaking()
}

func WithSpeechPlayback(client SpeechPlayback) OrchestratorOption {
	return func(o *Orchestrator) { o.playback = client }
}

type ChatChannel interface {
	Connect(ctx context.Context, opts ...chatchannel.ConnectOption) error
	Join(conversationID string) error
	Send(ctx context.Context, text, languageTag string) (uint64, error)
	Close()
}

func WithChatChannel(channel ChatChannel) OrchestratorOption {
	return func(o *Orchestrator) { o.channel = channel }
}

// WithConversationStore enables history loading on conversation switch and
// creating a conversation when none is configured.
func WithConversationStore(store conversations.Store) OrchestratorOption {
	return func(o *Orchestrator) { o.store = store }
}

// WithConversationID opens conversationID when orchestration starts.
func WithConversationID(conversationID string) OrchestratorOption {
	return func(o *Orchestrator) { o.initialConversationID = conversationID }
}

// WithLanguage sets the BCP 47 language tag used for capture, playback and
// outgoing messages. Invalid tags are ignored.
func WithLanguage(tag string) OrchestratorOption {
	return func(o *Orchestrator) {
		if normalized, err := normalizeLanguage(tag); err == nil {
			o.language = normalized
		}
	}
}

func WithMuted(muted bool) OrchestratorOption {
	return func(o *Orchestrator) { o.muted = muted }
}

type OrchestrateOptions struct {
	onEvent               func(events.Event)
	onPhaseChanged        func(from, to Phase)
	onTurnCommitted       func(turn conversations.Turn)
	onReply               func(text string, generating bool)
	onTranscript          func(final, interim string)
	onConversationChanged func(conversationID string, turns []conversations.Turn)
	onChannelStatus       func(status string, err error)
	onNotice              func(notice events.Notice)
}

type OrchestrateOption func(*OrchestrateOptions)

// WithEventCallback registers a callback receiving every event the
// orchestrator emits, before the more specific callbacks.
func WithEventCallback(callback func(events.Event)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onEvent = callback
	}
}

func WithPhaseChangedCallback(callback func(from, to Phase)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onPhaseChanged = callback
	}
}

// WithTurnCommittedCallback registers a callback for every turn appended to
// the log of the active conversation. Turns loaded from the store are
// reported through the conversation changed callback instead.
func WithTurnCommittedCallback(callback func(turn conversations.Turn)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onTurnCommitted = callback
	}
}

// WithReplyCallback registers a callback for the streaming reply. text is the
// whole reply accumulated so far.
func WithReplyCallback(callback func(text string, generating bool)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onReply = callback
	}
}

// WithTranscriptCallback registers a callback for the live transcript while
// listening. The interim part is never sent.
func WithTranscriptCallback(callback func(final, interim string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onTranscript = callback
	}
}

func WithConversationChangedCallback(callback func(conversationID string, turns []conversations.Turn)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onConversationChanged = callback
	}
}

func WithChannelStatusCallback(callback func(status string, err error)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onChannelStatus = callback
	}
}

// WithNoticeCallback registers a callback for user visible conditions such as
// unsupported capture or a turn that could not be sent.
func WithNoticeCallback(callback func(notice events.Notice)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onNotice = callback
	}
}
