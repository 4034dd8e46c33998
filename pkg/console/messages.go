package console

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// DisplayMsg carries new display text into the program.
type DisplayMsg struct {
	Text string
}

// SendStateMsg reports that the send trigger was disabled or re-enabled.
type SendStateMsg struct {
	Enabled bool
}

// DoneMsg is emitted when a bridge operation returns.
type DoneMsg struct {
	Op  string
	Err error
}

const (
	opSend    = "send"
	opHistory = "history"
)

// Sink forwards bridge and display callbacks into a running program.
// Callbacks arriving before Attach are dropped; the model catches up on
// the next DoneMsg.
type Sink struct {
	mu      sync.Mutex
	program *tea.Program
}

// Attach binds the sink to p.
func (s *Sink) Attach(p *tea.Program) {
	s.mu.Lock()
	s.program = p
	s.mu.Unlock()
}

// DisplayChanged is meant to be passed to display.New.
func (s *Sink) DisplayChanged(text string) {
	s.send(DisplayMsg{Text: text})
}

// SendStateChanged is meant to be passed to bridge.WithSendStateHook.
func (s *Sink) SendStateChanged(enabled bool) {
	s.send(SendStateMsg{Enabled: enabled})
}

func (s *Sink) send(msg tea.Msg) {
	s.mu.Lock()
	p := s.program
	s.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}
