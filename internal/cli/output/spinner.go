package output

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Spinner shows progress on the status writer while a query runs. On a
// non-terminal renderer every method is a no-op apart from the final message.
type Spinner struct {
	r           *Renderer
	label       string
	onInterrupt func()

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

// NewSpinner creates a spinner with a label.
func (r *Renderer) NewSpinner(label string) *Spinner {
	return &Spinner{r: r, label: label}
}

// OnInterrupt registers fn to run when ctrl+c is pressed while the spinner
// owns the terminal. The spinner keeps running until stopped.
func (s *Spinner) OnInterrupt(fn func()) *Spinner {
	s.onInterrupt = fn
	return s
}

// Start begins animating.
func (s *Spinner) Start() {
	if !s.r.IsTTY() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.program != nil {
		return
	}

	s.program = tea.NewProgram(
		newSpinnerModel(s.label, s.r.Styles(), s.onInterrupt),
		tea.WithOutput(s.r.ErrWriter()),
		tea.WithoutSignalHandler(),
	)
	s.done = make(chan struct{})
	go func(p *tea.Program, done chan struct{}) {
		defer close(done)
		if _, err := p.Run(); err != nil {
			_, _ = fmt.Fprintf(s.r.ErrWriter(), "spinner: %v\n", err)
		}
	}(s.program, s.done)
}

// Stop clears the spinner.
func (s *Spinner) Stop() {
	s.mu.Lock()
	p, done := s.program, s.done
	s.program = nil
	s.mu.Unlock()

	if p == nil {
		return
	}
	p.Send(stopMsg{})
	<-done
}

// Success stops the spinner and prints a success message.
func (s *Spinner) Success(msg string) {
	s.Stop()
	s.r.Success(msg)
}

// Fail stops the spinner and prints a failure message.
func (s *Spinner) Fail(msg string) {
	s.Stop()
	_, _ = fmt.Fprintln(s.r.ErrWriter(), s.r.Styles().Error.Render("✗ "+msg))
}

type stopMsg struct{}

type spinnerModel struct {
	spinner     spinner.Model
	label       string
	onInterrupt func()
	interrupted bool
	stopped     bool
}

func newSpinnerModel(label string, styles Styles, onInterrupt func()) spinnerModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner
	return spinnerModel{spinner: sp, label: label, onInterrupt: onInterrupt}
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stopMsg:
		m.stopped = true
		return m, tea.Quit

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && !m.interrupted {
			m.interrupted = true
			if m.onInterrupt != nil {
				m.onInterrupt()
			}
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinnerModel) View() string {
	if m.stopped {
		return ""
	}
	label := m.label
	if m.interrupted {
		label = "Cancelling..."
	}
	return m.spinner.View() + " " + label + "\n"
}
