// Package tui is the interactive chat surface. It renders session snapshots
// and forwards key presses to the session; it never talks to the backend
// itself.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/kalambet/buddy/internal/conversation"
	"github.com/kalambet/buddy/internal/gateway"
	"github.com/kalambet/buddy/internal/health"
	"github.com/kalambet/buddy/internal/weather"
)

// DefaultGlamourStyle is the markdown style for assistant replies.
const DefaultGlamourStyle = "dark"

const welcomeText = `Hi Monique! I'm Buddy.

I'm here to help you with your work and administrative tasks. I can search
through your documents, follow your custom instructions, and keep everything
on this computer.

Start by saying hello.`

// Options configures the optional widgets around the chat.
type Options struct {
	Poller       *health.Poller
	Weather      *weather.Service
	GlamourStyle string
	// WeatherEvery is how often the weather widget asks the service. The
	// service has its own cache, so this only bounds staleness.
	WeatherEvery time.Duration
}

// Model is the bubbletea model of the chat surface.
type Model struct {
	ctx     context.Context
	session *conversation.Session
	poller  *health.Poller
	weather *weather.Service

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model
	keys     keyMap

	style        string
	weatherEvery time.Duration
	renderer     *glamour.TermRenderer

	changes chan struct{}
	unsub   []func()

	width      int
	height     int
	confirming bool
	presence   string
	forecast   string
	status     string
}

type changedMsg struct{}

type sendDoneMsg struct{ err error }

type clearDoneMsg struct{ err error }

type weatherMsg struct {
	w   gateway.Weather
	err error
}

type weatherTickMsg struct{}

// NewModel subscribes to the session and the poller. Call Close when the
// program exits.
func NewModel(ctx context.Context, s *conversation.Session, opts Options) Model {
	vp := viewport.New(80, 20)
	vp.SetContent(welcomeText)

	sp := spinner.New()
	sp.Spinner = spinner.Points

	ti := textinput.New()
	ti.Placeholder = "Type your message..."
	ti.Prompt = "> "
	ti.CharLimit = 4000
	ti.Focus()

	h := help.New()
	h.ShowAll = false

	if opts.GlamourStyle == "" {
		opts.GlamourStyle = DefaultGlamourStyle
	}
	if opts.WeatherEvery <= 0 {
		opts.WeatherEvery = weather.DefaultTTL
	}

	m := Model{
		ctx:          ctx,
		session:      s,
		poller:       opts.Poller,
		weather:      opts.Weather,
		viewport:     vp,
		input:        ti,
		spinner:      sp,
		help:         h,
		keys:         defaultKeys(),
		style:        opts.GlamourStyle,
		weatherEvery: opts.WeatherEvery,
		changes:      make(chan struct{}, 1),
		presence:     "Checking connection...",
	}

	m.unsub = append(m.unsub, s.Subscribe(func(conversation.Event) { m.notify() }))
	if m.poller != nil {
		m.presence = m.poller.Presence().Text
		m.unsub = append(m.unsub, m.poller.Subscribe(func(health.Presence) { m.notify() }))
	}
	m.renderer = newRenderer(m.style, vp.Width)
	m.refreshTranscript()
	return m
}

// Close drops the event subscriptions.
func (m Model) Close() {
	for _, fn := range m.unsub {
		fn()
	}
}

// notify coalesces bursts of events into one pending redraw.
func (m Model) notify() {
	select {
	case m.changes <- struct{}{}:
	default:
	}
}

func (m Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		<-m.changes
		return changedMsg{}
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick, m.waitForChange()}
	if m.weather != nil {
		cmds = append(cmds, m.weatherCmd())
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.refreshTranscript()

	case changedMsg:
		if m.poller != nil {
			m.presence = m.poller.Presence().Text
		}
		m.refreshTranscript()
		cmds = append(cmds, m.waitForChange())

	case sendDoneMsg:
		if msg.err != nil {
			m.status = sendErrorText(msg.err)
		}
		m.refreshTranscript()

	case clearDoneMsg:
		switch {
		case msg.err == nil:
			m.status = "Conversation cleared"
		case errors.Is(msg.err, conversation.ErrNothingToClear):
			m.status = "Nothing to clear"
		case errors.Is(msg.err, conversation.ErrBusy):
			m.status = "Wait for the current reply before clearing"
		default:
			m.status = "Clear failed: " + msg.err.Error()
		}
		m.refreshTranscript()

	case weatherMsg:
		if msg.err == nil {
			m.forecast = weather.Format(msg.w)
		}
		cmds = append(cmds, tea.Tick(m.weatherEvery, func(time.Time) tea.Msg { return weatherTickMsg{} }))

	case weatherTickMsg:
		if m.weather != nil {
			cmds = append(cmds, m.weatherCmd())
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		if m.session.Flags().IsSending {
			m.refreshTranscript()
		}

	case tea.KeyMsg:
		if m.confirming {
			return m.confirmKey(msg)
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Send):
			return m, m.submit()
		case key.Matches(msg, m.keys.Stop):
			if m.session.Flags().IsSending {
				m.session.RequestStop()
				m.status = "Stopping... the reply will be discarded"
				m.refreshTranscript()
			}
			return m, nil
		case key.Matches(msg, m.keys.Clear):
			if m.session.Flags().IsSending {
				m.status = "Wait for the current reply before clearing"
				return m, nil
			}
			if len(m.session.History()) == 0 {
				m.status = "Nothing to clear"
				return m, nil
			}
			m.confirming = true
			m.status = "Clear the entire conversation history? This cannot be undone. (y/n)"
			return m, nil
		case key.Matches(msg, m.keys.RAG):
			on := !m.session.Settings().UseRAG
			m.session.SetUseRAG(on)
			if on {
				m.status = "Knowledge base on"
			} else {
				m.status = "Knowledge base off"
			}
			return m, nil
		case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) confirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(msg.String()) {
	case "y":
		m.confirming = false
		m.status = ""
		s, ctx := m.session, m.ctx
		return m, func() tea.Msg {
			yes := conversation.ConfirmFunc(func(string) bool { return true })
			return clearDoneMsg{err: s.Clear(ctx, yes)}
		}
	case "n", "esc":
		m.confirming = false
		m.status = ""
	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

// submit hands the input to the session. While a reply is pending the input
// is kept so the user can send it later.
func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	if m.session.Flags().IsSending {
		m.status = "Wait for the current reply or press esc to stop it"
		return nil
	}
	m.input.SetValue("")
	m.status = ""
	s, ctx := m.session, m.ctx
	return func() tea.Msg {
		return sendDoneMsg{err: s.Send(ctx, text)}
	}
}

func (m Model) weatherCmd() tea.Cmd {
	svc, ctx := m.weather, m.ctx
	return func() tea.Msg {
		w, err := svc.Current(ctx)
		return weatherMsg{w: w, err: err}
	}
}

func sendErrorText(err error) string {
	switch {
	case errors.Is(err, conversation.ErrBusy):
		return "Wait for the current reply or press esc to stop it"
	case errors.Is(err, conversation.ErrEmptyMessage):
		return ""
	}
	return "Send failed: " + err.Error()
}

func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	w := m.width - 4
	if w < 20 {
		w = 20
	}
	// status, input, help and the panel border.
	h := m.height - 6
	if h < 5 {
		h = 5
	}
	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - len(m.input.Prompt)
	m.renderer = newRenderer(m.style, w)
}

func newRenderer(style string, wrap int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return nil
	}
	return r
}

func (m *Model) refreshTranscript() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m Model) transcript() string {
	if m.session.Welcome() {
		return welcomeStyle.Render(welcomeText)
	}

	var b strings.Builder
	for _, msg := range m.session.History() {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}
	if f := m.session.Flags(); f.IsSending {
		line := m.spinner.View() + " Buddy is thinking..."
		if f.StopRequested {
			line = m.spinner.View() + " Stopping..."
		}
		b.WriteString(thinkingStyle.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderMessage(msg conversation.Message) string {
	var b strings.Builder
	if msg.Role == conversation.RoleUser {
		b.WriteString(userLabelStyle.Render("You"))
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(m.viewport.Width).Render(msg.Content))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(assistantLabelStyle.Render("Buddy"))
	b.WriteString("\n")
	body := msg.Content
	if m.renderer != nil {
		if out, err := m.renderer.Render(msg.Content); err == nil {
			body = strings.Trim(out, "\n")
		}
	}
	b.WriteString(body)
	b.WriteString("\n")
	if len(msg.Sources) > 0 {
		b.WriteString(sourcesStyle.Render("Sources: " + strings.Join(msg.Sources, ", ")))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Starting..."
	}
	body := panelStyle.Width(m.width - 2).Render(m.viewport.View())
	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusLine(),
		body,
		m.input.View(),
		m.help.View(m.keys),
	)
}

func (m Model) statusLine() string {
	set := m.session.Settings()
	status := m.presence
	if set.Model != "" {
		status += "  model=" + set.Model
	}
	if set.UseRAG {
		status += "  [rag]"
	}
	if m.forecast != "" {
		status += "  " + m.forecast
	}
	if s := strings.TrimSpace(m.status); s != "" {
		status += "  " + shorten(s, 80)
	}
	return statusStyle.Render(status)
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return fmt.Sprintf("%s...", s[:n-3])
}

var (
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("24")).
			Padding(0, 1)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
	userLabelStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	sourcesStyle        = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244"))
	thinkingStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	welcomeStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)
