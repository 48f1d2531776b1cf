package orchestration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-voice/core/chatchannel"
	"github.com/koscakluka/ema-voice/core/conversations"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

// callLog records adapter calls across fakes so tests can assert ordering.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) indexOf(call string, from int) int {
	calls := l.snapshot()
	for i := from; i < len(calls); i++ {
		if calls[i] == call {
			return i
		}
	}
	return -1
}

type fakeCapture struct {
	log       *callLog
	supported bool
	startErr  error
	stopErr   error

	mu       sync.Mutex
	sessions []speechtotext.CaptureOptions
	stops    int
}

func (f *fakeCapture) HasSupport() bool { return f.supported }

func (f *fakeCapture) StartCapture(_ context.Context, opts ...speechtotext.CaptureOption) error {
	f.log.add("capture.start")
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.sessions = append(f.sessions, speechtotext.NewCaptureOptions(opts...))
	f.mu.Unlock()
	return nil
}

func (f *fakeCapture) StopCapture() error {
	f.log.add("capture.stop")
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	return f.stopErr
}

func (f *fakeCapture) last(t *testing.T) speechtotext.CaptureOptions {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sessions) == 0 {
		t.Fatalf("capture was never started")
	}
	return f.sessions[len(f.sessions)-1]
}

func (f *fakeCapture) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// end reports the end of the most recent session, as the engine would.
func (f *fakeCapture) end(t *testing.T, transcript string) {
	t.Helper()
	f.last(t).CaptureEndedCallback(transcript)
}

type fakePlayback struct {
	log       *callLog
	supported bool
	speakErr  error

	mu         sync.Mutex
	texts      []string
	utterances []texttospeech.SpeakOptions
	stops      int
}

func (f *fakePlayback) HasSupport() bool { return f.supported }

func (f *fakePlayback) Speak(_ context.Context, text string, opts ...texttospeech.SpeakOption) error {
	f.log.add("playback.speak")
	if f.speakErr != nil {
		return f.speakErr
	}
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.utterances = append(f.utterances, texttospeech.NewSpeakOptions(opts...))
	f.mu.Unlock()
	return nil
}

func (f *fakePlayback) StopSpeaking() {
	f.log.add("playback.stop")
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *fakePlayback) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// finish reports the end of the most recent utterance.
func (f *fakePlayback) finish(t *testing.T) {
	t.Helper()
	f.mu.Lock()
	if len(f.utterances) == 0 {
		f.mu.Unlock()
		t.Fatalf("playback was never started")
	}
	options := f.utterances[len(f.utterances)-1]
	f.mu.Unlock()
	options.SpeechEndedCallback()
}

type sentMessage struct {
	text     string
	language string
}

type fakeChannel struct {
	log     *callLog
	sendErr error

	mu        sync.Mutex
	connected bool
	nextSeq   uint64
	sent      []sentMessage
	joins     []string
	closed    bool
}

func (f *fakeChannel) Connect(context.Context, ...chatchannel.ConnectOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeChannel) Join(conversationID string) error {
	f.log.add("channel.join")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, conversationID)
	return nil
}

func (f *fakeChannel) Send(_ context.Context, text, languageTag string) (uint64, error) {
	f.log.add("channel.send")
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSeq++
	f.sent = append(f.sent, sentMessage{text: text, language: languageTag})
	return f.nextSeq, nil
}

func (f *fakeChannel) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeChannel) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeChannel) joined() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.joins...)
}

type fakeStore struct {
	mu        sync.Mutex
	created   []string
	createErr error
	messages  map[string][]conversations.Message
	getErr    error
}

func (f *fakeStore) ListConversations(context.Context) ([]conversations.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	summaries := []conversations.Summary{}
	for id := range f.messages {
		summaries = append(summaries, conversations.Summary{ID: id})
	}
	return summaries, nil
}

func (f *fakeStore) CreateConversation(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	id := "created-" + string(rune('a'+len(f.created)))
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeStore) GetMessages(_ context.Context, conversationID string) ([]conversations.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.messages[conversationID], nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) record(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) notices() []events.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	notices := []events.Notice{}
	for _, event := range r.events {
		if notice, ok := event.(events.Notice); ok {
			notices = append(notices, notice)
		}
	}
	return notices
}

func (r *eventRecorder) phases() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	phases := []string{}
	for _, event := range r.events {
		if changed, ok := event.(events.PhaseChanged); ok {
			phases = append(phases, changed.To)
		}
	}
	return phases
}

func (r *eventRecorder) settings() []events.SettingsChanged {
	r.mu.Lock()
	defer r.mu.Unlock()
	settings := []events.SettingsChanged{}
	for _, event := range r.events {
		if changed, ok := event.(events.SettingsChanged); ok {
			settings = append(settings, changed)
		}
	}
	return settings
}

type harness struct {
	log      *callLog
	capture  *fakeCapture
	playback *fakePlayback
	channel  *fakeChannel
	store    *fakeStore
	events   *eventRecorder
	o        *Orchestrator
}

// newHarness builds an orchestrator whose events are applied synchronously
// by the test through apply and drain instead of the event loop.
func newHarness(t *testing.T, opts ...OrchestratorOption) *harness {
	t.Helper()

	log := &callLog{}
	h := &harness{
		log:      log,
		capture:  &fakeCapture{log: log, supported: true},
		playback: &fakePlayback{log: log, supported: true},
		channel:  &fakeChannel{log: log},
		store:    &fakeStore{messages: map[string][]conversations.Message{}},
		events:   &eventRecorder{},
	}

	base := []OrchestratorOption{
		WithSpeechCapture(h.capture),
		WithSpeechPlayback(h.playback),
		WithChatChannel(h.channel),
		WithConversationStore(h.store),
	}
	h.o = NewOrchestrator(append(base, opts...)...)
	h.o.emit = newCallbackEventEmitter(OrchestrateOptions{onEvent: h.events.record})

	h.o.handle(events.NewSwitchConversation("conv-1"))
	h.waitQueued(t)
	h.drain()
	return h
}

func (h *harness) apply(event events.Event) {
	h.o.handle(event)
	h.drain()
}

// drain waits for submitted adapter calls and applies everything they and
// adapter callbacks enqueued so far.
func (h *harness) drain() {
	for {
		h.o.adapterCalls.wait()
		if h.o.runtime.queuedEventCount() == 0 {
			return
		}
		item, ok := h.o.runtime.queue.next(nil)
		if !ok {
			return
		}
		h.o.handle(item.event)
	}
}

// waitQueued waits for an asynchronous worker to enqueue its result.
func (h *harness) waitQueued(t *testing.T) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for h.o.runtime.queuedEventCount() == 0 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for a queued event")
		case <-time.After(time.Millisecond):
		}
	}
}

func (h *harness) phase() Phase {
	return h.o.Snapshot().Phase
}

// listenAndSay runs a capture session that ends with transcript.
func (h *harness) listenAndSay(t *testing.T, transcript string) {
	t.Helper()
	h.apply(events.NewStartListening())
	if phase := h.phase(); phase != PhaseListening {
		t.Fatalf("expected LISTENING after start, got %s", phase)
	}
	h.capture.end(t, transcript)
	h.drain()
}

// eventually applies queued events until cond holds.
func (h *harness) eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		h.drain()
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("condition not met in time")
		case <-time.After(time.Millisecond):
		}
	}
}

func speechTranscript(final, interim string) speechtotext.Transcript {
	return speechtotext.Transcript{Final: final, Interim: interim}
}
