// Package deepgram implements speech capture on top of the Deepgram streaming
// listen API.
package deepgram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultListenEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultDialTimeout     = 10 * time.Second
	defaultNoSpeechTimeout = 10 * time.Second
)

// CaptureClient streams audio from an [audio.Source] to Deepgram and reports
// one capture session at a time.
type CaptureClient struct {
	apiKey string
	source audio.Source

	endpoint        string
	model           string
	dialTimeout     time.Duration
	noSpeechTimeout time.Duration

	mu      sync.Mutex
	current *captureSession
}

type ClientOption func(*CaptureClient)

// WithEndpoint overrides the listen websocket URL.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *CaptureClient) { c.endpoint = endpoint }
}

// WithModel forces a recognition model instead of choosing one per language.
func WithModel(model string) ClientOption {
	return func(c *CaptureClient) { c.model = model }
}

// WithNoSpeechTimeout ends a session with an empty transcript if no speech
// was detected within timeout. Zero disables it.
func WithNoSpeechTimeout(timeout time.Duration) ClientOption {
	return func(c *CaptureClient) { c.noSpeechTimeout = timeout }
}

func NewCaptureClient(apiKey string, source audio.Source, opts ...ClientOption) *CaptureClient {
	client := &CaptureClient{
		apiKey:          apiKey,
		source:          source,
		endpoint:        defaultListenEndpoint,
		dialTimeout:     defaultDialTimeout,
		noSpeechTimeout: defaultNoSpeechTimeout,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *CaptureClient) HasSupport() bool {
	return c != nil && c.apiKey != "" && c.source != nil
}

// StartCapture opens a new session. A session still running is stopped first
// and reports its own ended signal.
//
// When StartCapture returns an error no ended signal is reported.
func (c *CaptureClient) StartCapture(ctx context.Context, opts ...speechtotext.CaptureOption) error {
	ctx, span := tracer.Start(ctx, "start capture")
	defer span.End()

	if !c.HasSupport() {
		return speechtotext.ErrUnsupported
	}

	options := speechtotext.NewCaptureOptions(opts...)
	span.SetAttributes(attribute.String("capture.language", options.Language))

	c.stopCurrent()

	encoding, err := convertEncoding(c.source.EncodingInfo())
	if err != nil {
		err = fmt.Errorf("invalid source encoding: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	conn, err := c.dial(ctx, *encoding, options.Language)
	if err != nil {
		err = fmt.Errorf("failed to open websocket: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	session := newCaptureSession(context.WithoutCancel(ctx), conn, c.source, options)
	session.onFinished = c.clearCurrent

	if err := c.source.StartCapture(session.ctx, session.sendAudio); err != nil {
		session.discard()
		err = fmt.Errorf("failed to start audio capture: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	c.mu.Lock()
	c.current = session
	c.mu.Unlock()

	go session.run(c.noSpeechTimeout)
	return nil
}

// StopCapture ends the running session with the final text recognized so
// far. Calling it without a running session is a no-op.
func (c *CaptureClient) StopCapture() error {
	c.stopCurrent()
	return nil
}

// Close stops any running session.
func (c *CaptureClient) Close() {
	c.stopCurrent()
}

func (c *CaptureClient) stopCurrent() {
	c.mu.Lock()
	session := c.current
	c.current = nil
	c.mu.Unlock()

	if session != nil {
		session.stop()
	}
}

func (c *CaptureClient) clearCurrent(session *captureSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == session {
		c.current = nil
	}
}

func (c *CaptureClient) dial(ctx context.Context, encoding encodingInfo, language string) (*websocket.Conn, error) {
	listenURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid listen endpoint: %w", err)
	}

	queryParams := listenURL.Query()
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", c.modelFor(language))
	queryParams.Set("language", language)
	queryParams.Set("smart_format", "true")
	queryParams.Set("interim_results", "true")
	queryParams.Set("utterance_end_ms", "1000")
	queryParams.Set("vad_events", "true")
	queryParams.Set("endpointing", "300")
	listenURL.RawQuery = queryParams.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: c.dialTimeout}
	conn, _, err := dialer.DialContext(dialCtx, listenURL.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

// modelFor picks nova-3 for English and nova-2 for the other languages it
// covers more broadly.
func (c *CaptureClient) modelFor(language string) string {
	if c.model != "" {
		return c.model
	}
	if language == "" || strings.HasPrefix(strings.ToLower(language), "en") {
		return "nova-3"
	}
	return "nova-2"
}
