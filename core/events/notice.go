package events

// KindNotice identifies a user visible condition reported by the orchestrator.
const KindNotice Kind = "state.notice"

type NoticeCode string

const (
	// NoticeNotReady is reported when a user turn could not be sent because
	// the channel is offline or not joined. Text holds the unsent turn.
	NoticeNotReady NoticeCode = "not_ready"
	// NoticeCaptureUnsupported is reported once when speech capture is not
	// available.
	NoticeCaptureUnsupported NoticeCode = "capture_unsupported"
	// NoticePlaybackUnsupported is reported once when speech playback is not
	// available.
	NoticePlaybackUnsupported NoticeCode = "playback_unsupported"
	NoticeCaptureFailed       NoticeCode = "capture_failed"
	NoticePlaybackFailed      NoticeCode = "playback_failed"
	NoticeReplyFailed         NoticeCode = "reply_failed"
	NoticeHistoryFailed       NoticeCode = "history_failed"
	NoticeConversationFailed  NoticeCode = "conversation_failed"
)

type Notice struct {
	Base
	Code    NoticeCode
	Message string
	Text    string
}

func NewNotice(code NoticeCode, message, text string) Notice {
	return Notice{Base: NewBase(KindNotice), Code: code, Message: message, Text: text}
}
