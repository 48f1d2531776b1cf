package events

// KindChannelStatusChanged identifies a chat channel connection status change.
const KindChannelStatusChanged Kind = "channel.status_changed"

// ChannelStatusChanged carries the new connection status of the chat channel
// (connected, disconnected or error).
type ChannelStatusChanged struct {
	Base
	Status string
	Err    error
}

func NewChannelStatusChanged(status string, err error) ChannelStatusChanged {
	return ChannelStatusChanged{Base: NewBase(KindChannelStatusChanged), Status: status, Err: err}
}
