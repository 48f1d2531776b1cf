package events

const (
	// KindReplyToken identifies one streamed chunk of an assistant reply.
	KindReplyToken Kind = "reply.token"
	// KindReplyDone identifies completion of an assistant reply.
	KindReplyDone Kind = "reply.done"
	// KindReplyFailed identifies a backend failure for an assistant reply.
	KindReplyFailed Kind = "reply.failed"
)

// ReplyToken carries one chunk of the reply with sequence number Seq.
type ReplyToken struct {
	Base
	Seq            uint64
	ConversationID string
	Chunk          string
}

func NewReplyToken(seq uint64, conversationID, chunk string) ReplyToken {
	return ReplyToken{Base: NewBase(KindReplyToken), Seq: seq, ConversationID: conversationID, Chunk: chunk}
}

// ReplyDone marks the reply with sequence number Seq as complete.
type ReplyDone struct {
	Base
	Seq            uint64
	ConversationID string
}

func NewReplyDone(seq uint64, conversationID string) ReplyDone {
	return ReplyDone{Base: NewBase(KindReplyDone), Seq: seq, ConversationID: conversationID}
}

// ReplyFailed marks the reply with sequence number Seq as failed by the
// backend. No done follows it.
type ReplyFailed struct {
	Base
	Seq            uint64
	ConversationID string
	Message        string
}

func NewReplyFailed(seq uint64, conversationID, message string) ReplyFailed {
	return ReplyFailed{Base: NewBase(KindReplyFailed), Seq: seq, ConversationID: conversationID, Message: message}
}
