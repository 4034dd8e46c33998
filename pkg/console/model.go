// Package console is the interactive terminal form: a mode selector, a
// command field, a JSON payload field, send and history triggers, and one
// result region. All work is delegated to a bridge.Bridge.
package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"command-console/pkg/bridge"
)

type focus int

const (
	focusCommand focus = iota
	focusPayload
	focusResult
	focusCount
)

// fixed rows used by everything except the result viewport
const chromeHeight = 17

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	activeStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle      = lipgloss.NewStyle().Faint(true)
	buttonStyle   = lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder())
	disabledStyle = buttonStyle.Faint(true)
	resultStyle   = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240"))
)

// Options holds display-only settings.
type Options struct {
	BaseURL string
}

// Model is the root Bubble Tea model.
type Model struct {
	ctx    context.Context
	bridge *bridge.Bridge
	opts   Options

	mode    bridge.Mode
	command textinput.Model
	payload textarea.Model
	result  viewport.Model
	spinner spinner.Model
	focus   focus

	text     string
	sending  bool
	width    int
	height   int
	quitting bool
}

// New creates the form bound to b. ctx is passed to every bridge call.
func New(ctx context.Context, b *bridge.Bridge, opts Options) Model {
	cmd := textinput.New()
	cmd.Placeholder = "e.g. get_campaign_details 1001"
	cmd.Prompt = "> "
	cmd.Focus()

	payload := textarea.New()
	payload.Placeholder = `{"tokens": {}}`
	payload.ShowLineNumbers = false
	payload.SetHeight(4)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = activeStyle

	m := Model{
		ctx:     ctx,
		bridge:  b,
		opts:    opts,
		mode:    bridge.ModeQuery,
		command: cmd,
		payload: payload,
		result:  viewport.New(80, 10),
		spinner: s,
		focus:   focusCommand,
	}
	m.setText(b.Display().Text())
	return m
}

// Init starts the cursor blink and the spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Mode returns the selected mode.
func (m Model) Mode() bridge.Mode {
	return m.mode
}

// Result returns the text currently shown in the result region.
func (m Model) Result() string {
	return m.text
}

// Sending reports whether the send trigger renders as disabled.
func (m Model) Sending() bool {
	return m.sending
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		if next, cmd, handled := m.handleKey(msg); handled {
			return next, cmd
		}

	case DisplayMsg:
		m.setText(msg.Text)
		return m, nil

	case SendStateMsg:
		m.sending = !msg.Enabled
		return m, nil

	case DoneMsg:
		m.sending = !m.bridge.SendEnabled()
		m.setText(m.bridge.Display().Text())
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m.updateFocused(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit, true
	case "tab":
		return m, m.setFocus((m.focus + 1) % focusCount), true
	case "shift+tab":
		return m, m.setFocus((m.focus + focusCount - 1) % focusCount), true
	case "ctrl+t":
		if m.mode == bridge.ModeQuery {
			m.mode = bridge.ModeAction
		} else {
			m.mode = bridge.ModeQuery
		}
		return m, nil, true
	case "ctrl+s":
		return m, m.sendCmd(), true
	case "enter":
		if m.focus == focusCommand {
			return m, m.sendCmd(), true
		}
	case "ctrl+r":
		return m, m.historyCmd(), true
	}
	return m, nil, false
}

func (m Model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.focus {
	case focusCommand:
		m.command, cmd = m.command.Update(msg)
	case focusPayload:
		m.payload, cmd = m.payload.Update(msg)
	case focusResult:
		m.result, cmd = m.result.Update(msg)
	}
	return m, cmd
}

// sendCmd is a no-op while a send is pending, like a disabled button.
func (m Model) sendCmd() tea.Cmd {
	if m.sending || !m.bridge.SendEnabled() {
		return nil
	}
	ctx, b := m.ctx, m.bridge
	mode, command, payload := string(m.mode), m.command.Value(), m.payload.Value()
	return func() tea.Msg {
		return DoneMsg{Op: opSend, Err: b.SubmitCommand(ctx, mode, command, payload)}
	}
}

func (m Model) historyCmd() tea.Cmd {
	ctx, b := m.ctx, m.bridge
	return func() tea.Msg {
		return DoneMsg{Op: opHistory, Err: b.FetchHistory(ctx)}
	}
}

func (m *Model) setFocus(f focus) tea.Cmd {
	m.focus = f
	m.command.Blur()
	m.payload.Blur()
	switch f {
	case focusCommand:
		return m.command.Focus()
	case focusPayload:
		return m.payload.Focus()
	}
	return nil
}

func (m *Model) setText(text string) {
	m.text = text
	m.result.SetContent(text)
	m.result.GotoTop()
}

func (m *Model) layout() {
	inner := m.width - 4
	if inner < 20 {
		inner = 20
	}
	m.command.Width = inner - len(m.command.Prompt)
	m.payload.SetWidth(inner)
	m.result.Width = inner
	m.result.Height = m.height - chromeHeight
	if m.result.Height < 3 {
		m.result.Height = 3
	}
}

// View renders the form.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	header := titleStyle.Render("Command console")
	if m.opts.BaseURL != "" {
		header += dimStyle.Render("  " + m.opts.BaseURL)
	}

	parts := []string{
		header,
		labelStyle.Render("Mode ") + m.renderMode() + dimStyle.Render("  (ctrl+t)"),
		m.label("Command", focusCommand),
		m.command.View(),
		m.label("Payload (JSON, optional)", focusPayload),
		m.payload.View(),
		m.renderButtons(),
		m.label("Result", focusResult),
		resultStyle.Render(m.result.View()),
		dimStyle.Render("tab focus · enter/ctrl+s send · ctrl+r history · esc quit"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderMode() string {
	modes := []bridge.Mode{bridge.ModeQuery, bridge.ModeAction}
	out := make([]string, 0, len(modes))
	for _, mode := range modes {
		if mode == m.mode {
			out = append(out, activeStyle.Render(fmt.Sprintf("[%s]", mode)))
		} else {
			out = append(out, dimStyle.Render(string(mode)))
		}
	}
	return strings.Join(out, " ")
}

func (m Model) renderButtons() string {
	send := buttonStyle.Render("Send")
	if m.sending {
		send = disabledStyle.Render(m.spinner.View() + " Send")
	}
	history := buttonStyle.Render("History")
	return lipgloss.JoinHorizontal(lipgloss.Center, send, " ", history)
}

func (m Model) label(name string, f focus) string {
	if m.focus == f {
		return activeStyle.Render(name)
	}
	return labelStyle.Render(name)
}

// Run starts the program and blocks until the user quits or ctx ends.
func Run(ctx context.Context, b *bridge.Bridge, sink *Sink, opts Options) error {
	p := tea.NewProgram(New(ctx, b, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	sink.Attach(p)
	_, err := p.Run()
	return err
}
