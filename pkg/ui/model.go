package ui

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"goon_chat/pkg/chat"
	"goon_chat/pkg/speech"
	"goon_chat/pkg/ui/components/statusbar"
	"goon_chat/pkg/ui/components/transcript"
	"goon_chat/pkg/ui/styles"

	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"
)

const (
	appTitle         = "Goon Chat"
	thinkingLabel    = "Goon is thinking..."
	listeningLabel   = "Listening... (Esc to cancel)"
	voiceDiscarded   = "Voice input discarded: Goon was already replying."
	inputPlaceholder = "Ask Goon anything..."
	footerLabel      = "Enter Send | 1-6 Quick action | Ctrl+V Voice | Ctrl+Y Copy | Ctrl+L Clear | Esc Quit"
	composerLines    = 3
	minTranscript    = 3
)

// storeChangedMsg wakes the model after the message store changed.
type storeChangedMsg struct{}

// exchangeDoneMsg reports a finished exchange.
type exchangeDoneMsg struct {
	outcome chat.Outcome
	err     error
}

// voiceDoneMsg reports the end of a voice attempt and the exchange it
// started, if any.
type voiceDoneMsg struct {
	exchange *chat.Exchange
	err      error
}

// Model is the Bubble Tea model of the chat screen.
type Model struct {
	ctrl        *chat.Controller
	dispatcher  *chat.Dispatcher
	changes     chan struct{}
	unsubscribe func()

	statusBar  *statusbar.StatusBar
	transcript *transcript.Transcript
	input      textinput.Model
	spinner    spinner.Model

	width     int
	height    int
	ready     bool
	listening bool
	notice    string
	quitting  bool
}

// Option configures a Model.
type Option func(*Model)

// WithModelName shows the active LLM model in the title bar.
func WithModelName(name string) Option {
	return func(m *Model) {
		m.statusBar.SetModel(name)
	}
}

// NewModel creates the chat screen for ctrl.
func NewModel(ctrl *chat.Controller, opts ...Option) Model {
	// Observers run under the controller lock: never block here.
	changes := make(chan struct{}, 1)
	unsubscribe := ctrl.Store().Subscribe(func(chat.Change) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})

	input := textinput.New()
	input.Placeholder = inputPlaceholder
	input.CharLimit = 4000
	input.Focus()

	m := Model{
		ctrl:        ctrl,
		dispatcher:  chat.NewDispatcher(ctrl),
		changes:     changes,
		unsubscribe: unsubscribe,
		statusBar:   statusbar.New(appTitle),
		transcript:  transcript.New(),
		input:       input,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(styles.ThinkingStyle),
		),
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.syncTranscript()
	return m
}

// Run starts the full-screen chat UI and blocks until the user quits.
func Run(ctx context.Context, ctrl *chat.Controller, opts ...Option) error {
	p := tea.NewProgram(NewModel(ctrl, opts...), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Init starts listening for store changes.
func (m Model) Init() tea.Cmd {
	return waitForChange(m.changes)
}

func waitForChange(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-changes
		return storeChangedMsg{}
	}
}

func waitForExchange(ex *chat.Exchange) tea.Cmd {
	return func() tea.Msg {
		<-ex.Done()
		return exchangeDoneMsg{outcome: ex.Outcome(), err: ex.Err()}
	}
}

// Update handles messages and updates model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.input.SetWidth(max(msg.Width-6, 1))
		m.layout()
		return m, nil

	case storeChangedMsg:
		m.syncTranscript()
		return m, waitForChange(m.changes)

	case exchangeDoneMsg:
		m.syncTranscript()
		if msg.err != nil && msg.outcome == chat.OutcomeFailed {
			m.notice = "Goon couldn't finish that reply: " + msg.err.Error()
		}
		return m, nil

	case voiceDoneMsg:
		m.listening = false
		if msg.err != nil {
			if errors.Is(msg.err, chat.ErrClosed) {
				return m, nil
			}
			if errors.Is(msg.err, chat.ErrExchangeInFlight) {
				m.notice = voiceDiscarded
				return m, nil
			}
			m.notice = speech.Describe(msg.err)
			return m, nil
		}
		m.syncTranscript()
		return m, tea.Batch(waitForExchange(msg.exchange), m.spinner.Tick)

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyPressMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "ctrl+c":
		return m.quit()
	case "esc":
		if m.listening {
			m.ctrl.CancelVoice()
			return m, nil
		}
		return m.quit()
	case "enter":
		// The draft waits until the voice attempt ends.
		if m.listening {
			return m, nil
		}
		return m.send(m.input.Value())
	case "ctrl+l":
		if err := m.ctrl.Clear(); err != nil {
			slog.Debug("ui_clear_ignored", "error", err)
			return m, nil
		}
		m.notice = ""
		m.syncTranscript()
		return m, nil
	case "ctrl+v":
		return m.startVoice()
	case "ctrl+y":
		return m, m.transcript.CopyLastReply()
	case "up", "down", "pgup", "pgdown":
		m.transcript.HandleKey(key)
		return m, nil
	}

	if m.input.Value() == "" && !m.listening {
		if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= len(chat.QuickActions()) {
			return m.quickAction(n)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) send(content string) (tea.Model, tea.Cmd) {
	ex, err := m.ctrl.SendText(content)
	if err != nil {
		return m.rejected(err)
	}
	m.input.Reset()
	return m.started(ex)
}

func (m Model) quickAction(n int) (tea.Model, tea.Cmd) {
	actions := chat.QuickActions()
	ex, err := m.dispatcher.Trigger(actions[n-1].ID)
	if err != nil {
		return m.rejected(err)
	}
	if ex == nil {
		return m, nil
	}
	return m.started(ex)
}

func (m Model) started(ex *chat.Exchange) (tea.Model, tea.Cmd) {
	m.notice = ""
	m.syncTranscript()
	return m, tea.Batch(waitForExchange(ex), m.spinner.Tick)
}

// rejected keeps validation failures silent.
func (m Model) rejected(err error) (tea.Model, tea.Cmd) {
	if errors.Is(err, chat.ErrEmptyInput) || errors.Is(err, chat.ErrExchangeInFlight) {
		return m, nil
	}
	m.notice = err.Error()
	return m, nil
}

func (m Model) startVoice() (tea.Model, tea.Cmd) {
	if !m.ctrl.SpeechSupported() {
		m.notice = speech.Describe(speech.ErrNotSupported)
		return m, nil
	}
	if m.listening || m.ctrl.InFlight() {
		return m, nil
	}
	m.listening = true
	m.notice = ""

	ctrl := m.ctrl
	listen := func() tea.Msg {
		ex, err := ctrl.SendVoice(context.Background())
		return voiceDoneMsg{exchange: ex, err: err}
	}
	return m, tea.Batch(listen, m.spinner.Tick)
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.unsubscribe()
	m.ctrl.Close()
	return m, tea.Quit
}

func (m Model) busy() bool {
	return m.listening || m.ctrl.InFlight()
}

func (m *Model) syncTranscript() {
	store := m.ctrl.Store()
	m.transcript.SetMessages(store.Messages(), store.Streaming())
}

// layout sizes the transcript to whatever the other sections leave over.
func (m *Model) layout() {
	used := 1 + len(m.extraLines()) + 1 + composerLines + 1
	m.transcript.SetSize(m.width, max(m.height-used, minTranscript))
}

// extraLines are the suggestion and quick action rows under the transcript.
func (m Model) extraLines() []string {
	var lines []string
	if m.ctrl.Store().Len() == 1 {
		lines = append(lines, styles.TextMutedStyle.Render("Try asking:"))
		for _, s := range chat.Suggestions() {
			lines = append(lines, styles.SuggestionStyle.Render("  • "+s))
		}
	}

	if m.input.Value() == "" {
		// Keep each "n Title" entry whole when the row wraps.
		var row string
		for i, action := range chat.QuickActions() {
			entry := styles.ActionKeyStyle.Render(strconv.Itoa(i+1)) + " " + styles.ActionTitleStyle.Render(action.Title)
			switch {
			case row == "":
				row = entry
			case lipgloss.Width(row)+3+lipgloss.Width(entry) > m.width:
				lines = append(lines, row)
				row = entry
			default:
				row += "   " + entry
			}
		}
		lines = append(lines, row)
	}
	return lines
}

func (m Model) statusLine() string {
	switch {
	case m.listening:
		return m.spinner.View() + " " + styles.ListeningStyle.Render(listeningLabel)
	case m.ctrl.InFlight():
		return m.spinner.View() + " " + styles.ThinkingStyle.Render(thinkingLabel)
	case m.notice != "":
		return styles.ErrorStyle.Render(ansi.Truncate("! "+m.notice, max(m.width, 1), "..."))
	default:
		return ""
	}
}

func (m Model) titleBar() string {
	switch {
	case m.listening:
		m.statusBar.SetState("listening")
	case m.ctrl.InFlight():
		m.statusBar.SetState("thinking")
	default:
		m.statusBar.SetState("")
	}
	m.statusBar.SetWidth(m.width)
	return m.statusBar.Render()
}

// View renders the UI.
func (m Model) View() tea.View {
	v := tea.NewView(m.render())
	v.AltScreen = true
	return v
}

func (m Model) render() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Initializing..."
	}

	// The composer and the rows under the transcript change with input.
	m.layout()

	sections := []string{
		m.titleBar(),
		m.transcript.View(),
	}
	sections = append(sections, m.extraLines()...)
	sections = append(sections,
		m.statusLine(),
		styles.ComposerStyle.Width(m.width).Render(m.input.View()),
		styles.FooterStyle.Render(ansi.Truncate(footerLabel, max(m.width, 1), "...")),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
