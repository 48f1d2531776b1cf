// Package deepgram implements speech playback on top of the Deepgram
// streaming speak API.
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
	"github.com/koscakluka/ema-voice/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/text/language"
)

const (
	defaultSpeakEndpoint = "wss://api.deepgram.com/v1/speak"
	defaultDialTimeout   = 10 * time.Second
)

// PlaybackClient synthesizes one utterance at a time and plays it through an
// [audio.Sink].
type PlaybackClient struct {
	apiKey string
	sink   audio.Sink

	endpoint     string
	dialTimeout  time.Duration
	voices       map[language.Base]Voice
	defaultVoice Voice

	mu        sync.Mutex
	current   *utterance
	utterance uint64
}

type ClientOption func(*PlaybackClient)

// WithEndpoint overrides the speak websocket URL.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *PlaybackClient) { c.endpoint = endpoint }
}

// WithVoice sets the voice used for the base language of tag.
func WithVoice(tag string, voice Voice) ClientOption {
	return func(c *PlaybackClient) {
		base, err := language.ParseBase(strings.SplitN(tag, "-", 2)[0])
		if err != nil {
			logger.Warn("ignoring voice for invalid language", "language", tag, "error", err)
			return
		}
		c.voices[base] = voice
	}
}

// WithDefaultVoice sets the voice used for languages without a voice.
func WithDefaultVoice(voice Voice) ClientOption {
	return func(c *PlaybackClient) { c.defaultVoice = voice }
}

func NewPlaybackClient(apiKey string, sink audio.Sink, opts ...ClientOption) *PlaybackClient {
	client := &PlaybackClient{
		apiKey:       apiKey,
		sink:         sink,
		endpoint:     defaultSpeakEndpoint,
		dialTimeout:  defaultDialTimeout,
		voices:       defaultVoices(),
		defaultVoice: defaultVoice,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *PlaybackClient) HasSupport() bool {
	return c != nil && c.apiKey != "" && c.sink != nil
}

// Speak stops the current utterance and starts speaking text.
//
// When Speak returns an error no ended signal is reported for this call.
func (c *PlaybackClient) Speak(ctx context.Context, text string, opts ...texttospeech.SpeakOption) error {
	ctx, span := tracer.Start(ctx, "speak")
	defer span.End()

	if !c.HasSupport() {
		return texttospeech.ErrUnsupported
	}

	options := texttospeech.NewSpeakOptions(opts...)
	c.StopSpeaking()

	if strings.TrimSpace(text) == "" {
		go options.SpeechEndedCallback()
		return nil
	}

	voice := c.voiceFor(options.Language)
	span.SetAttributes(
		attribute.String("speech.language", options.Language),
		attribute.String("speech.voice", string(voice)),
		attribute.Int("speech.text_length", len(text)),
	)

	conn, err := c.dial(ctx, voice, c.sink.EncodingInfo())
	if err != nil {
		err = fmt.Errorf("failed to open websocket: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	c.mu.Lock()
	c.utterance++
	u := newUtterance(conn, c.sink, options, fmt.Sprintf("utterance-%d", c.utterance))
	u.onFinished = c.clearCurrent
	c.current = u
	c.mu.Unlock()

	go u.run()

	if err := u.send(speakMessage{Type: "Speak", Text: text}); err != nil {
		c.clearCurrent(u)
		u.discard()
		err = fmt.Errorf("failed to send text: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := u.send(controlMessage{Type: "Flush"}); err != nil {
		c.clearCurrent(u)
		u.discard()
		err = fmt.Errorf("failed to flush text: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

// StopSpeaking stops the current utterance and drops its buffered audio.
// Calling it while nothing is playing is a no-op.
func (c *PlaybackClient) StopSpeaking() {
	c.mu.Lock()
	u := c.current
	c.current = nil
	c.mu.Unlock()

	if u != nil {
		u.stop()
	}
}

func (c *PlaybackClient) Close() {
	c.StopSpeaking()
}

func (c *PlaybackClient) clearCurrent(u *utterance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == u {
		c.current = nil
	}
}

func (c *PlaybackClient) dial(ctx context.Context, voice Voice, encoding audio.EncodingInfo) (*websocket.Conn, error) {
	if encoding.IsZero() {
		encoding = audio.GetDefaultEncodingInfo()
	}

	speakURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid speak endpoint: %w", err)
	}

	urlValues := speakURL.Query()
	urlValues.Set("model", string(voice))
	urlValues.Set("encoding", encoding.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	speakURL.RawQuery = urlValues.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: c.dialTimeout}
	conn, _, err := dialer.DialContext(dialCtx, speakURL.String(),
		http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}
