// Package chatchannel keeps the persistent websocket connection to the
// assistant backend. User turns are sent over it and reply tokens stream back.
package chatchannel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultDialTimeout  = 15 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

var (
	// ErrNotReady is returned by Send when there is no live connection or no
	// conversation to send to. Nothing is transmitted or queued.
	ErrNotReady = errors.New("chat channel not ready")
	ErrClosed   = errors.New("chat channel closed")

	errConnectionLost = errors.New("connection lost before the reply completed")
)

// Channel is one logical connection per authenticated session. It reconnects
// with backoff and re-joins the active conversation on every connection.
type Channel struct {
	serverURL  string
	credential string

	dialTimeout  time.Duration
	writeTimeout time.Duration
	newBackOff   func() backoff.BackOff

	// joinMu serializes the join handshake and sends so a user message is
	// never written before the join for its conversation.
	joinMu  sync.Mutex
	writeMu sync.Mutex

	mu             sync.Mutex
	conn           *websocket.Conn
	status         Status
	conversationID string
	joinedID       string
	nextSeq        uint64
	outstanding    map[string][]uint64
	options        ConnectOptions
	started        bool
	closed         bool
	cancel         context.CancelFunc
	done           chan struct{}
	closeOnce      sync.Once
}

// New creates a channel for serverURL (ws:// or wss://). credential is sent
// with every frame and as a bearer token on the upgrade request.
func New(serverURL, credential string, opts ...Option) *Channel {
	channel := &Channel{
		serverURL:    serverURL,
		credential:   credential,
		dialTimeout:  defaultDialTimeout,
		writeTimeout: defaultWriteTimeout,
		newBackOff:   defaultBackOff,
		status:       StatusDisconnected,
		outstanding:  map[string][]uint64{},
		options:      newConnectOptions(),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(channel)
	}
	return channel
}

// Connect starts the background connection loop and returns immediately.
// Repeated calls are no-ops.
func (c *Channel) Connect(ctx context.Context, opts ...ConnectOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.started {
		return nil
	}

	c.options = newConnectOptions(opts...)
	c.started = true

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.run(ctx)
	return nil
}

// Join makes conversationID the active conversation and issues the join
// handshake if the connection is live. Joining the conversation already
// joined on the current connection does nothing.
func (c *Channel) Join(conversationID string) error {
	c.joinMu.Lock()
	defer c.joinMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.conversationID = conversationID
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || conversationID == "" {
		return nil
	}
	return c.ensureJoined(conn, conversationID)
}

// Send transmits one user turn to the active conversation and returns the
// sequence number its reply will be tagged with.
func (c *Channel) Send(ctx context.Context, text, languageTag string) (uint64, error) {
	ctx, span := tracer.Start(ctx, "send user message")
	defer span.End()

	c.joinMu.Lock()
	defer c.joinMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	conn := c.conn
	conversationID := c.conversationID
	c.mu.Unlock()

	if conn == nil || conversationID == "" {
		span.SetStatus(codes.Error, ErrNotReady.Error())
		return 0, ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := c.ensureJoined(conn, conversationID); err != nil {
		err = fmt.Errorf("%w: %w", ErrNotReady, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	c.mu.Lock()
	c.nextSeq++
	seq := c.nextSeq
	c.outstanding[conversationID] = append(c.outstanding[conversationID], seq)
	c.mu.Unlock()

	span.SetAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.Int64("reply.seq", int64(seq)),
		attribute.String("message.language", languageTag),
	)

	err := c.writeFrame(conn, UserMessageFrame{
		Type:           FrameUserMessage,
		Credential:     c.credential,
		ConversationID: conversationID,
		Text:           text,
		LanguageTag:    languageTag,
	})
	if err != nil {
		c.mu.Lock()
		c.dropOutstanding(conversationID, seq)
		c.mu.Unlock()

		err = fmt.Errorf("%w: %w", ErrNotReady, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	return seq, nil
}

func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ConversationID returns the active conversation.
func (c *Channel) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// Close stops reconnecting and closes the connection. It waits for the
// connection loop to exit.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		started := c.started
		cancel := c.cancel
		conn := c.conn
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if conn != nil {
			c.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			c.writeMu.Unlock()
			_ = conn.Close()
		}
		if started {
			<-c.done
		}
	})
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)

	b := c.newBackOff()
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.setStatus(StatusDisconnected, nil)
				return
			}
			logger.Warn("failed to connect to chat server", "error", err)
			c.setStatus(StatusError, err)
		} else {
			b.Reset()
			c.attach(conn)
			readErr := c.readLoop(conn)
			c.detach(conn, readErr)
			if ctx.Err() != nil {
				return
			}
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			logger.Error("giving up reconnecting to chat server")
			return
		}

		select {
		case <-ctx.Done():
			c.setStatus(StatusDisconnected, nil)
			return
		case <-time.After(wait):
		}
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	headers := http.Header{}
	if c.credential != "" {
		headers.Set("Authorization", "Bearer "+c.credential)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.dialTimeout}
	conn, resp, err := dialer.DialContext(dialCtx, c.serverURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// attach makes conn the live connection and re-issues the join handshake for
// the active conversation.
func (c *Channel) attach(conn *websocket.Conn) {
	c.joinMu.Lock()
	defer c.joinMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.joinedID = ""
	conversationID := c.conversationID
	c.mu.Unlock()

	logger.Info("connected to chat server")
	c.setStatus(StatusConnected, nil)

	if conversationID != "" {
		if err := c.ensureJoined(conn, conversationID); err != nil {
			logger.Warn("failed to rejoin conversation", "conversation", conversationID, "error", err)
		}
	}
}

// detach drops conn and fails every reply still outstanding on it. Replies
// are bound to the connection they were requested on, so late frames for them
// can never be matched to a message sent after a reconnect.
func (c *Channel) detach(conn *websocket.Conn, readErr error) {
	c.mu.Lock()
	var lost []Failure
	if c.conn == conn {
		c.conn = nil
		c.joinedID = ""
		lost = c.takeOutstanding()
	}
	closed := c.closed
	onFailure := c.options.onFailure
	c.mu.Unlock()
	_ = conn.Close()

	if closed || readErr == nil || websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		logger.Info("disconnected from chat server")
		c.setStatus(StatusDisconnected, nil)
	} else {
		logger.Warn("chat server connection lost", "error", readErr)
		c.setStatus(StatusDisconnected, readErr)
	}

	for _, failure := range lost {
		onFailure(failure)
	}
}

// ensureJoined must be called with joinMu held.
func (c *Channel) ensureJoined(conn *websocket.Conn, conversationID string) error {
	c.mu.Lock()
	alreadyJoined := c.conn == conn && c.joinedID == conversationID
	c.mu.Unlock()
	if alreadyJoined {
		return nil
	}

	err := c.writeFrame(conn, JoinSessionFrame{
		Type:           FrameJoinSession,
		Credential:     c.credential,
		ConversationID: conversationID,
	})
	if err != nil {
		return fmt.Errorf("failed to join conversation: %w", err)
	}

	c.mu.Lock()
	if c.conn == conn {
		c.joinedID = conversationID
	}
	c.mu.Unlock()

	logger.Debug("joined conversation", "conversation", conversationID)
	return nil
}

func (c *Channel) writeFrame(conn *websocket.Conn, frame any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

func (c *Channel) readLoop(conn *websocket.Conn) error {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		c.dispatch(data)
	}
}

func (c *Channel) dispatch(data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		logger.Debug("failed to decode chat frame", "error", err)
		return
	}

	c.mu.Lock()
	conversationID := frame.conversationID()
	if conversationID == "" {
		conversationID = c.conversationID
	}
	options := c.options

	switch frame.Type {
	case FrameToken, FrameAssistantToken:
		seq := c.headOutstanding(conversationID)
		c.mu.Unlock()
		options.onToken(Token{Seq: seq, ConversationID: conversationID, Chunk: frame.Chunk})

	case FrameDone, FrameAssistantDone:
		seq := c.popOutstanding(conversationID)
		c.mu.Unlock()
		options.onDone(Done{Seq: seq, ConversationID: conversationID})

	case FrameError:
		// Join failures also arrive as error frames. They only close a reply
		// when a user message is outstanding on this connection.
		seq := c.popOutstanding(conversationID)
		c.mu.Unlock()
		logger.Warn("chat server reported an error", "conversation", conversationID, "message", frame.Message)
		options.onFailure(Failure{Seq: seq, ConversationID: conversationID, Message: frame.Message})

	case FrameSessionJoined:
		c.mu.Unlock()
		logger.Debug("chat server confirmed join", "conversation", conversationID)

	default:
		c.mu.Unlock()
		logger.Debug("ignoring unknown chat frame", "type", frame.Type)
	}
}

func (c *Channel) headOutstanding(conversationID string) uint64 {
	if queue := c.outstanding[conversationID]; len(queue) > 0 {
		return queue[0]
	}
	return 0
}

func (c *Channel) popOutstanding(conversationID string) uint64 {
	queue := c.outstanding[conversationID]
	if len(queue) == 0 {
		return 0
	}
	seq := queue[0]
	if len(queue) == 1 {
		delete(c.outstanding, conversationID)
	} else {
		c.outstanding[conversationID] = queue[1:]
	}
	return seq
}

// takeOutstanding empties the outstanding replies, oldest first per
// conversation. Must be called with mu held.
func (c *Channel) takeOutstanding() []Failure {
	var lost []Failure
	for conversationID, queue := range c.outstanding {
		for _, seq := range queue {
			lost = append(lost, Failure{Seq: seq, ConversationID: conversationID, Message: errConnectionLost.Error()})
		}
	}
	clear(c.outstanding)
	return lost
}

func (c *Channel) dropOutstanding(conversationID string, seq uint64) {
	queue := c.outstanding[conversationID]
	for i, outstanding := range queue {
		if outstanding == seq {
			c.outstanding[conversationID] = append(queue[:i:i], queue[i+1:]...)
			break
		}
	}
	if len(c.outstanding[conversationID]) == 0 {
		delete(c.outstanding, conversationID)
	}
}

func (c *Channel) setStatus(status Status, err error) {
	c.mu.Lock()
	changed := c.status != status || err != nil
	c.status = status
	onStatus := c.options.onStatus
	c.mu.Unlock()

	if changed {
		onStatus(status, err)
	}
}
