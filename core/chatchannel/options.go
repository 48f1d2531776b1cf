package chatchannel

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// Token is one chunk of the reply with sequence number Seq. Seq is zero when
// no user turn was outstanding for the conversation.
type Token struct {
	Seq            uint64
	ConversationID string
	Chunk          string
}

type Done struct {
	Seq            uint64
	ConversationID string
}

type Failure struct {
	Seq            uint64
	ConversationID string
	Message        string
}

type Option func(*Channel)

func WithDialTimeout(timeout time.Duration) Option {
	return func(c *Channel) { c.dialTimeout = timeout }
}

func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *Channel) { c.writeTimeout = timeout }
}

// WithBackOff sets the reconnect policy. newBackOff is called once per
// Connect; returning backoff.Stop from NextBackOff ends reconnecting.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Channel) {
		if newBackOff != nil {
			c.newBackOff = newBackOff
		}
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

type ConnectOptions struct {
	onToken   func(Token)
	onDone    func(Done)
	onFailure func(Failure)
	onStatus  func(Status, error)
}

type ConnectOption func(*ConnectOptions)

func newConnectOptions(opts ...ConnectOption) ConnectOptions {
	options := ConnectOptions{
		onToken:   func(Token) {},
		onDone:    func(Done) {},
		onFailure: func(Failure) {},
		onStatus:  func(Status, error) {},
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// WithTokenCallback registers a callback for reply chunks. Callbacks run on
// the read goroutine in arrival order and should not block.
func WithTokenCallback(callback func(Token)) ConnectOption {
	return func(o *ConnectOptions) {
		if callback != nil {
			o.onToken = callback
		}
	}
}

func WithDoneCallback(callback func(Done)) ConnectOption {
	return func(o *ConnectOptions) {
		if callback != nil {
			o.onDone = callback
		}
	}
}

func WithFailureCallback(callback func(Failure)) ConnectOption {
	return func(o *ConnectOptions) {
		if callback != nil {
			o.onFailure = callback
		}
	}
}

// WithStatusCallback registers a callback for every connection status change.
// err is set for StatusError and for disconnects caused by a failure.
func WithStatusCallback(callback func(Status, error)) ConnectOption {
	return func(o *ConnectOptions) {
		if callback != nil {
			o.onStatus = callback
		}
	}
}
