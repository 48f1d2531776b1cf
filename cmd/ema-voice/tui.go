package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/conversations"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/muesli/reflow/wordwrap"
)

const (
	headerHeight = 2
	footerHeight = 3
)

var languages = []string{"en-US", "es-ES", "de-DE", "fr-FR", "nl-NL", "hi-IN"}

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5"))
	phaseStyle     = lipgloss.NewStyle().Padding(0, 1).Background(lipgloss.Color("62")).Foreground(lipgloss.Color("#FFFFFF"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

// controller is the part of the orchestrator the UI drives.
type controller interface {
	StartListening()
	StopListening()
	StopSpeaking()
	CancelGeneration()
	SetMuted(muted bool)
	SetLanguage(tag string)
	SendText(text string)
	NewConversation(ctx context.Context) (string, error)
	Snapshot() orchestration.Snapshot
}

type eventMsg struct{ event events.Event }

type conversationCreatedMsg struct {
	conversationID string
	err            error
}

func listenForEvents(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg{event: event}
	}
}

type model struct {
	ctx    context.Context
	ctrl   controller
	events <-chan events.Event

	snapshot orchestration.Snapshot
	notice   string
	typing   bool

	ready    bool
	width    int
	spinner  spinner.Model
	viewport viewport.Model
	input    textinput.Model
}

func newModel(ctx context.Context, ctrl controller, ch <-chan events.Event) model {
	input := textinput.New()
	input.Placeholder = "type a message"
	input.CharLimit = 2000

	return model{
		ctx:      ctx,
		ctrl:     ctrl,
		events:   ch,
		snapshot: ctrl.Snapshot(),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		viewport: viewport.New(80, 20),
		input:    input,
		width:    80,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(listenForEvents(m.events), m.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-headerHeight-footerHeight, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if m.typing {
			return m.updateTyping(msg)
		}
		return m.updateCommand(msg)

	case eventMsg:
		if notice, ok := msg.event.(events.Notice); ok {
			m.notice = notice.Message
		}
		m.snapshot = m.ctrl.Snapshot()
		m.refresh()
		return m, listenForEvents(m.events)

	case conversationCreatedMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m model) updateCommand(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case " ":
		if m.snapshot.Phase == orchestration.PhaseListening {
			m.ctrl.StopListening()
		} else {
			m.ctrl.StartListening()
		}
	case "s":
		m.ctrl.StopSpeaking()
	case "c":
		m.ctrl.CancelGeneration()
	case "m":
		m.ctrl.SetMuted(!m.snapshot.Muted)
	case "l":
		m.ctrl.SetLanguage(nextLanguage(m.snapshot.Language))
	case "n":
		ctx, ctrl := m.ctx, m.ctrl
		return m, func() tea.Msg {
			conversationID, err := ctrl.NewConversation(ctx)
			return conversationCreatedMsg{conversationID: conversationID, err: err}
		}
	case "t", "enter":
		m.typing = true
		return m, m.input.Focus()
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) updateTyping(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.typing = false
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		if text := strings.TrimSpace(m.input.Value()); text != "" {
			m.ctrl.SendText(text)
		}
		m.input.Reset()
		m.typing = false
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func nextLanguage(current string) string {
	i := slices.Index(languages, current)
	return languages[(i+1)%len(languages)]
}

// refresh re-renders the transcript, keeping it scrolled to the bottom.
func (m *model) refresh() {
	m.viewport.SetContent(renderConversation(m.snapshot, m.viewport.Width))
	m.viewport.GotoBottom()
}

func renderConversation(snapshot orchestration.Snapshot, width int) string {
	wrapWidth := max(width-2, 20)

	var sb strings.Builder
	for _, turn := range snapshot.Turns {
		sb.WriteString(renderTurn(turn.Role, turn.DisplayText(), wrapWidth))
	}
	if snapshot.Reply != "" {
		reply := snapshot.Reply
		if snapshot.Generating {
			reply += " ..."
		}
		sb.WriteString(renderTurn(conversations.RoleAssistant, reply, wrapWidth))
	}
	if transcript := snapshot.Transcript.Final + snapshot.Transcript.Interim; transcript != "" {
		sb.WriteString(mutedStyle.Render(wordwrap.String(transcript, wrapWidth)))
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderTurn(role conversations.Role, text string, width int) string {
	label := userStyle.Render("you")
	if role == conversations.RoleAssistant {
		label = assistantStyle.Render("ema")
	}
	return label + "\n" + wordwrap.String(text, width) + "\n\n"
}

func (m model) View() string {
	if !m.ready {
		return "starting..."
	}
	return m.headerView() + "\n" + m.viewport.View() + "\n" + m.footerView()
}

func (m model) headerView() string {
	phase := phaseStyle.Render(string(m.snapshot.Phase))
	if m.snapshot.Phase == orchestration.PhaseThinking {
		phase += " " + m.spinner.View()
	}

	status := []string{m.snapshot.ChannelStatus, m.snapshot.Language}
	if m.snapshot.Muted {
		status = append(status, "muted")
	}
	if m.snapshot.ConversationID != "" {
		status = append(status, m.snapshot.ConversationID)
	}
	return headerStyle.Render("ema") + " " + phase + " " + mutedStyle.Render(strings.Join(status, " · "))
}

func (m model) footerView() string {
	notice := ""
	if m.notice != "" {
		notice = noticeStyle.Render(m.notice)
	}
	if m.typing {
		return notice + "\n" + m.input.View() + "\n" + helpStyle.Render("enter send · esc back")
	}

	var help string
	if m.snapshot.CaptureSupported {
		help = "space talk · "
	}
	help += "t type · s stop speaking · c cancel · m mute · l language · n new · q quit"
	return notice + "\n\n" + helpStyle.Render(wordwrap.String(help, max(m.width, 20)))
}

// runTUI drives the orchestrator from a terminal UI until the user quits.
func runTUI(ctx context.Context, o *orchestration.Orchestrator) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan events.Event, 64)
	o.Orchestrate(ctx, orchestration.WithEventCallback(func(event events.Event) {
		select {
		case ch <- event:
		case <-ctx.Done():
		}
	}))

	program := tea.NewProgram(newModel(ctx, o, ch), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run terminal UI: %w", err)
	}
	return nil
}
