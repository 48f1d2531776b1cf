package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

type fakeSink struct {
	mu     sync.Mutex
	played [][]byte
	marks  []func(string)

	clearCalls atomic.Int32
	sendErr    error
	// holdMarks keeps marks pending until release is called.
	holdMarks bool
}

func (s *fakeSink) EncodingInfo() audio.EncodingInfo { return audio.GetDefaultEncodingInfo() }

func (s *fakeSink) SendAudio(frame []byte) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, frame)
	return nil
}

func (s *fakeSink) Mark(name string, callback func(string)) error {
	if !s.holdMarks {
		go callback(name)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks = append(s.marks, callback)
	return nil
}

func (s *fakeSink) ClearBuffer() {
	s.clearCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = nil
	s.marks = nil
}

func (s *fakeSink) playedFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.played)
}

type fakeSpeakServer struct {
	server *httptest.Server
	texts  chan string
	query  chan string
	// flush controls whether Flush is answered with Flushed.
	flush bool
	// dropAfterSpeak closes the connection instead of answering Flush.
	dropAfterSpeak bool
}

func newFakeSpeakServer(t *testing.T, flush, dropAfterSpeak bool) *fakeSpeakServer {
	t.Helper()

	fake := &fakeSpeakServer{
		texts:          make(chan string, 8),
		query:          make(chan string, 8),
		flush:          flush,
		dropAfterSpeak: dropAfterSpeak,
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	fake.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fake.query <- r.URL.Query().Get("model")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var parsed struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}
			if err := json.Unmarshal(msg, &parsed); err != nil {
				continue
			}
			switch parsed.Type {
			case "Speak":
				fake.texts <- parsed.Text
				_ = conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4})
				_ = conn.WriteMessage(websocket.BinaryMessage, []byte{5, 6, 7, 8})
			case "Flush":
				if fake.dropAfterSpeak {
					return
				}
				if fake.flush {
					_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Flushed","sequence_id":0}`))
				}
			case "Close":
				return
			}
		}
	}))
	t.Cleanup(fake.server.Close)
	return fake
}

func (f *fakeSpeakServer) endpoint() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

type speechRecorder struct {
	started atomic.Int32
	ended   atomic.Int32
	endedCh chan struct{}
}

func newSpeechRecorder() *speechRecorder {
	return &speechRecorder{endedCh: make(chan struct{}, 4)}
}

func (r *speechRecorder) options(opts ...texttospeech.SpeakOption) []texttospeech.SpeakOption {
	return append(opts,
		texttospeech.WithSpeechStartedCallback(func() { r.started.Add(1) }),
		texttospeech.WithSpeechEndedCallback(func() {
			r.ended.Add(1)
			r.endedCh <- struct{}{}
		}),
	)
}

func (r *speechRecorder) await(t *testing.T) {
	t.Helper()
	select {
	case <-r.endedCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for speech to end")
	}
}

func TestSpeakPlaysUntilFlushedMarkIsPlayed(t *testing.T) {
	fake := newFakeSpeakServer(t, true, false)
	sink := &fakeSink{}
	client := NewPlaybackClient("test-key", sink, WithEndpoint(fake.endpoint()))
	recorder := newSpeechRecorder()

	if err := client.Speak(context.Background(), "I understand.", recorder.options()...); err != nil {
		t.Fatalf("unexpected speak error: %v", err)
	}

	select {
	case text := <-fake.texts:
		if text != "I understand." {
			t.Fatalf("expected exact text to be spoken, got %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for text")
	}

	recorder.await(t)
	if got := recorder.started.Load(); got != 1 {
		t.Fatalf("expected one started signal, got %d", got)
	}
	if got := sink.playedFrames(); got != 2 {
		t.Fatalf("expected two frames played, got %d", got)
	}

	time.Sleep(20 * time.Millisecond)
	if got := recorder.ended.Load(); got != 1 {
		t.Fatalf("expected ended exactly once, got %d", got)
	}
}

func TestStopSpeakingEndsOnceAndClearsSink(t *testing.T) {
	fake := newFakeSpeakServer(t, false, false)
	sink := &fakeSink{}
	client := NewPlaybackClient("test-key", sink, WithEndpoint(fake.endpoint()))
	recorder := newSpeechRecorder()

	if err := client.Speak(context.Background(), "long answer", recorder.options()...); err != nil {
		t.Fatalf("unexpected speak error: %v", err)
	}
	<-fake.texts

	client.StopSpeaking()
	recorder.await(t)
	client.StopSpeaking()

	time.Sleep(20 * time.Millisecond)
	if got := recorder.ended.Load(); got != 1 {
		t.Fatalf("expected ended exactly once, got %d", got)
	}
	if got := sink.clearCalls.Load(); got != 1 {
		t.Fatalf("expected sink to be cleared once, got %d", got)
	}
}

func TestSpeakStopsPreviousUtterance(t *testing.T) {
	fake := newFakeSpeakServer(t, false, false)
	sink := &fakeSink{holdMarks: true}
	client := NewPlaybackClient("test-key", sink, WithEndpoint(fake.endpoint()))
	defer client.Close()

	first := newSpeechRecorder()
	second := newSpeechRecorder()

	if err := client.Speak(context.Background(), "first", first.options()...); err != nil {
		t.Fatalf("unexpected speak error: %v", err)
	}
	<-fake.texts

	if err := client.Speak(context.Background(), "second", second.options()...); err != nil {
		t.Fatalf("unexpected speak error: %v", err)
	}
	first.await(t)
	<-fake.texts

	if got := second.ended.Load(); got != 0 {
		t.Fatalf("expected second utterance to keep playing, got %d ended", got)
	}
}

func TestConnectionDropBeforeFlushEndsUtterance(t *testing.T) {
	fake := newFakeSpeakServer(t, true, true)
	client := NewPlaybackClient("test-key", &fakeSink{}, WithEndpoint(fake.endpoint()))
	recorder := newSpeechRecorder()

	if err := client.Speak(context.Background(), "hello", recorder.options()...); err != nil {
		t.Fatalf("unexpected speak error: %v", err)
	}
	recorder.await(t)
}

func TestSinkFailureEndsUtterance(t *testing.T) {
	fake := newFakeSpeakServer(t, false, false)
	sink := &fakeSink{sendErr: errors.New("device gone")}
	client := NewPlaybackClient("test-key", sink, WithEndpoint(fake.endpoint()))
	recorder := newSpeechRecorder()

	if err := client.Speak(context.Background(), "hello", recorder.options()...); err != nil {
		t.Fatalf("unexpected speak error: %v", err)
	}
	recorder.await(t)
	if got := recorder.started.Load(); got != 0 {
		t.Fatalf("expected no started signal, got %d", got)
	}
}

func TestSpeakEmptyTextEndsWithoutConnecting(t *testing.T) {
	fake := newFakeSpeakServer(t, true, false)
	client := NewPlaybackClient("test-key", &fakeSink{}, WithEndpoint(fake.endpoint()))
	recorder := newSpeechRecorder()

	if err := client.Speak(context.Background(), "  ", recorder.options()...); err != nil {
		t.Fatalf("unexpected speak error: %v", err)
	}
	recorder.await(t)

	select {
	case <-fake.query:
		t.Fatalf("expected no connection for empty text")
	default:
	}
}

func TestSpeakSelectsVoicePerLanguage(t *testing.T) {
	fake := newFakeSpeakServer(t, true, false)
	client := NewPlaybackClient("test-key", &fakeSink{}, WithEndpoint(fake.endpoint()), WithVoice("hi-IN", "aura-2-custom-hi"))
	recorder := newSpeechRecorder()

	if err := client.Speak(context.Background(), "namaste", recorder.options(texttospeech.WithLanguage("hi-IN"))...); err != nil {
		t.Fatalf("unexpected speak error: %v", err)
	}
	if model := <-fake.query; model != "aura-2-custom-hi" {
		t.Fatalf("expected configured hindi voice, got %q", model)
	}
	recorder.await(t)
}

func TestVoiceForFallsBackToDefault(t *testing.T) {
	client := NewPlaybackClient("test-key", &fakeSink{})

	testCases := map[string]Voice{
		"en-US":     VoiceThalia,
		"es-ES":     VoiceCeleste,
		"hi-IN":     defaultVoice,
		"not a tag": defaultVoice,
	}
	for tag, expected := range testCases {
		if got := client.voiceFor(tag); got != expected {
			t.Fatalf("expected voice %q for %q, got %q", expected, tag, got)
		}
	}
}

func TestSpeakWithoutSupport(t *testing.T) {
	client := NewPlaybackClient("", nil)
	if err := client.Speak(context.Background(), "hello"); !errors.Is(err, texttospeech.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
