package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
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
	footerHeight = 4
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	stateStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	partialStyle   = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("245"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// turnController is the part of the controller the UI drives.
type turnController interface {
	StartTurn(ctx context.Context, opts ...orchestration.TurnOption) error
	StopTurn() error
	ResetConversation(ctx context.Context) error
}

type eventMsg struct{ event events.Event }

type eventsClosedMsg struct{}

type commandErrMsg struct{ err error }

type model struct {
	ctx        context.Context
	controller turnController
	events     <-chan events.Event

	spinner  spinner.Model
	viewport viewport.Model
	ready    bool
	width    int

	state      orchestration.State
	turns      []conversations.Turn
	transcript string
	err        error
}

func newModel(ctx context.Context, controller turnController, eventsCh <-chan events.Event) model {
	return model{
		ctx:        ctx,
		controller: controller,
		events:     eventsCh,
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(stateStyle)),
		width:      80,
	}
}

func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: event}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := max(msg.Height-headerHeight-footerHeight, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.refreshLog()
		return m, nil

	case eventMsg:
		m.apply(msg.event)
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		return m, tea.Quit

	case commandErrMsg:
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case " ":
		if m.state == orchestration.StateCapturing {
			return m, m.command(func() error { return m.controller.StopTurn() })
		}
		return m, m.command(func() error { return m.controller.StartTurn(m.ctx) })
	case "i":
		return m, m.command(func() error {
			return m.controller.StartTurn(m.ctx, orchestration.WithInterruption())
		})
	case "r":
		return m, m.command(func() error { return m.controller.ResetConversation(m.ctx) })
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) command(run func() error) tea.Cmd {
	return func() tea.Msg {
		if err := run(); err != nil {
			return commandErrMsg{err: err}
		}
		return nil
	}
}

func (m *model) apply(event events.Event) {
	switch event := event.(type) {
	case orchestration.StateChanged:
		m.state = event.To
	case events.TurnStarted:
		m.err = nil
		m.transcript = ""
	case events.UserTranscriptInterimUpdated:
		m.transcript = event.Transcript
	case events.ConversationTurnAppended:
		m.turns = append(m.turns, event.Turn)
		if event.Turn.Speaker == conversations.SpeakerUser {
			m.transcript = ""
		}
	case events.ConversationReset:
		m.turns = nil
		m.transcript = ""
	case events.TurnFailed:
		m.err = event.Err
	}
	m.refreshLog()
}

func (m *model) refreshLog() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderLog())
	m.viewport.GotoBottom()
}

func (m model) renderLog() string {
	wrap := max(m.width-2, 20)
	var b strings.Builder
	for _, turn := range m.turns {
		label := userStyle.Render("you")
		if turn.Speaker == conversations.SpeakerAssistant {
			label = assistantStyle.Render("ema")
		}
		b.WriteString(label)
		b.WriteString("\n")
		b.WriteString(wordwrap.String(turn.Text, wrap))
		b.WriteString("\n\n")
	}
	return b.String()
}

func (m model) View() string {
	var b strings.Builder

	status := stateStyle.Render(m.state.String())
	if m.state != orchestration.StateIdle {
		status = m.spinner.View() + " " + status
	}
	b.WriteString(titleStyle.Render("ema") + "  " + status + "\n\n")

	if m.ready {
		b.WriteString(m.viewport.View())
	} else {
		b.WriteString(m.renderLog())
	}
	b.WriteString("\n")

	if m.transcript != "" {
		b.WriteString(partialStyle.Render(wordwrap.String(m.transcript, max(m.width-2, 20))))
	}
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render(describeError(m.err)))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("space: talk/stop • i: interrupt • r: reset • q: quit"))
	return b.String()
}

func describeError(err error) string {
	switch {
	case errors.Is(err, orchestration.ErrPermissionDenied):
		return "Microphone access was denied."
	case errors.Is(err, orchestration.ErrDeviceUnavailable):
		return "The microphone is not available."
	case errors.Is(err, orchestration.ErrRoutingConflict):
		return "The speaker is still busy, try again when playback ends."
	case errors.Is(err, orchestration.ErrRecognitionUnavailable):
		return "Speech recognition is unavailable."
	case errors.Is(err, orchestration.ErrAudioDropped):
		return "The microphone stopped unexpectedly."
	case errors.Is(err, orchestration.ErrTurnInProgress):
		return "Still busy with the last turn, press i to interrupt."
	case errors.Is(err, orchestration.ErrServiceError):
		var serviceErr *orchestration.ServiceError
		if errors.As(err, &serviceErr) {
			return fmt.Sprintf("The assistant could not answer: %s", serviceErr.Message)
		}
		return "The assistant could not answer."
	default:
		return err.Error()
	}
}
