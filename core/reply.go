package orchestration

import "strings"

// streamingReply accumulates the reply of one generation. It is committed as
// an assistant turn on done or cancel and never reused.
type streamingReply struct {
	generation     uint64
	conversationID string
	chunks         []string
	generating     bool
}

func newStreamingReply(generation uint64, conversationID string) *streamingReply {
	return &streamingReply{generation: generation, conversationID: conversationID}
}

func (r *streamingReply) append(chunk string) {
	r.chunks = append(r.chunks, chunk)
	r.generating = true
}

func (r *streamingReply) String() string {
	return strings.Join(r.chunks, "")
}
