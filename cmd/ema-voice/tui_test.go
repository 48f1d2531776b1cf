package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/conversations"
	"github.com/koscakluka/ema-voice/core/events"
)

type fakeController struct {
	mu       sync.Mutex
	calls    []string
	texts    []string
	snapshot orchestration.Snapshot
	newErr   error
}

func (f *fakeController) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeController) StartListening()   { f.record("start") }
func (f *fakeController) StopListening()    { f.record("stop") }
func (f *fakeController) StopSpeaking()     { f.record("stop-speaking") }
func (f *fakeController) CancelGeneration() { f.record("cancel") }

func (f *fakeController) SetMuted(muted bool) {
	if muted {
		f.record("mute")
	} else {
		f.record("unmute")
	}
}

func (f *fakeController) SetLanguage(tag string) { f.record("language " + tag) }

func (f *fakeController) SendText(text string) {
	f.record("send")
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
}

func (f *fakeController) NewConversation(context.Context) (string, error) {
	f.record("new")
	return "conv-new", f.newErr
}

func (f *fakeController) Snapshot() orchestration.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot
}

func (f *fakeController) setSnapshot(snapshot orchestration.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = snapshot
}

func (f *fakeController) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestModel(ctrl *fakeController) model {
	m := newModel(context.Background(), ctrl, make(chan events.Event))
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(model)
}

func press(t *testing.T, m model, keys ...tea.KeyMsg) (model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, key := range keys {
		var updated tea.Model
		updated, cmd = m.Update(key)
		m = updated.(model)
	}
	return m, cmd
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestSpaceTogglesListening(t *testing.T) {
	ctrl := &fakeController{snapshot: orchestration.Snapshot{Phase: orchestration.PhaseIdle}}
	m := newTestModel(ctrl)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})

	ctrl.setSnapshot(orchestration.Snapshot{Phase: orchestration.PhaseListening})
	updated, _ := m.Update(eventMsg{event: events.NewPhaseChanged("IDLE", "LISTENING")})
	m = updated.(model)

	press(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})

	calls := ctrl.recorded()
	if len(calls) != 2 || calls[0] != "start" || calls[1] != "stop" {
		t.Fatalf("expected start then stop, got %v", calls)
	}
}

func TestCommandKeys(t *testing.T) {
	ctrl := &fakeController{snapshot: orchestration.Snapshot{Language: "en-US", Muted: true}}
	m := newTestModel(ctrl)

	press(t, m, runeKey('s'), runeKey('c'), runeKey('m'), runeKey('l'))

	calls := ctrl.recorded()
	expected := []string{"stop-speaking", "cancel", "unmute", "language es-ES"}
	if strings.Join(calls, ",") != strings.Join(expected, ",") {
		t.Fatalf("expected %v, got %v", expected, calls)
	}
}

func TestNextLanguageWrapsAround(t *testing.T) {
	if next := nextLanguage(languages[len(languages)-1]); next != languages[0] {
		t.Fatalf("expected wrap to %s, got %s", languages[0], next)
	}
	if next := nextLanguage("xx-YY"); next != languages[0] {
		t.Fatalf("expected unknown language to start over, got %s", next)
	}
}

func TestTypedMessageIsSent(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl)

	m, _ = press(t, m, runeKey('t'))
	if !m.typing {
		t.Fatalf("expected typing mode")
	}
	m, _ = press(t, m, runeKey('h'), runeKey('i'), tea.KeyMsg{Type: tea.KeyEnter})
	if m.typing {
		t.Fatalf("expected typing mode to end after enter")
	}

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if len(ctrl.texts) != 1 || ctrl.texts[0] != "hi" {
		t.Fatalf("expected typed text to be sent, got %v", ctrl.texts)
	}
}

func TestEmptyTypedMessageIsNotSent(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl)

	press(t, m, runeKey('t'), runeKey(' '), tea.KeyMsg{Type: tea.KeyEnter})

	if calls := ctrl.recorded(); len(calls) != 0 {
		t.Fatalf("expected nothing to be sent, got %v", calls)
	}
}

func TestNewConversationFailureIsShown(t *testing.T) {
	ctrl := &fakeController{newErr: errors.New("store offline")}
	m := newTestModel(ctrl)

	m, cmd := press(t, m, runeKey('n'))
	if cmd == nil {
		t.Fatalf("expected a command creating the conversation")
	}
	updated, _ := m.Update(cmd())
	m = updated.(model)

	if !strings.Contains(m.View(), "store offline") {
		t.Fatalf("expected failure in view, got %q", m.View())
	}
}

func TestViewRendersTurnsReplyAndNotice(t *testing.T) {
	ctrl := &fakeController{}
	m := newTestModel(ctrl)

	ctrl.setSnapshot(orchestration.Snapshot{
		Phase: orchestration.PhaseThinking,
		Turns: []conversations.Turn{
			conversations.NewUserTurn("how are you"),
			conversations.NewAssistantTurn("I am", true),
		},
		Reply:      "still thinking",
		Generating: true,
	})
	updated, _ := m.Update(eventMsg{event: events.NewNotice(events.NoticeNotReady, "not connected", "hello")})
	m = updated.(model)

	view := m.View()
	for _, want := range []string{"how are you", "I am" + conversations.InterruptedSuffix, "still thinking ...", "not connected", "THINKING"} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected %q in view:\n%s", want, view)
		}
	}
}
