package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/greetline/autosubmit"
)

// Engine events are forwarded into the bubbletea loop as messages so all
// rendering happens on the program goroutine.
type stateChangedMsg struct{ state autosubmit.SessionState }
type admittedMsg struct {
	username string
	receipt  string
}
type lockedOutMsg struct{ remaining time.Duration }
type backendWarningMsg struct{ message string }
type tickMsg time.Time

// teaNotifier bridges autosubmit.Notifier onto a tea.Program. Events
// arriving before the program starts are queued.
type teaNotifier struct {
	mu      sync.Mutex
	program *tea.Program
	backlog []tea.Msg
}

func newTeaNotifier() *teaNotifier {
	return &teaNotifier{}
}

func (n *teaNotifier) attach(p *tea.Program) {
	n.mu.Lock()
	n.program = p
	backlog := n.backlog
	n.backlog = nil
	n.mu.Unlock()

	for _, msg := range backlog {
		p.Send(msg)
	}
}

func (n *teaNotifier) send(msg tea.Msg) {
	n.mu.Lock()
	p := n.program
	if p == nil {
		n.backlog = append(n.backlog, msg)
	}
	n.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (n *teaNotifier) OnStateChanged(s autosubmit.SessionState) {
	n.send(stateChangedMsg{state: s})
}

func (n *teaNotifier) OnAdmitted(username, receipt string) {
	n.send(admittedMsg{username: username, receipt: receipt})
}

func (n *teaNotifier) OnLockedOut(remaining time.Duration) {
	n.send(lockedOutMsg{remaining: remaining})
}

func (n *teaNotifier) OnBackendWarning(message string) {
	n.send(backendWarningMsg{message: message})
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	admittedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	boxStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(1, 3)
)

type focusField int

const (
	focusUsername focusField = iota
	focusPassword
)

type model struct {
	engine *autosubmit.Engine

	username textinput.Model
	password textinput.Model
	focus    focusField

	state     autosubmit.SessionState
	admitted  bool
	admitUser string
	lockedFor time.Duration
	warning   string
	strength  autosubmit.StrengthReport
}

func newModel(engine *autosubmit.Engine, defaultUser string) *model {
	username := textinput.New()
	username.Placeholder = "username"
	username.CharLimit = 64
	username.SetValue(defaultUser)
	username.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	password.CharLimit = 256

	m := &model{
		engine:   engine,
		username: username,
		password: password,
		focus:    focusUsername,
		state:    autosubmit.StateIdle,
	}
	if defaultUser != "" {
		m.focusPasswordField()
	}
	return m
}

func (m *model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *model) focusPasswordField() {
	m.focus = focusPassword
	m.username.Blur()
	m.password.Focus()
	_ = m.engine.SelectUser(m.username.Value())
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateChangedMsg:
		m.state = msg.state
		if msg.state != autosubmit.StateLockedOut {
			m.lockedFor = 0
		}
		return m, nil

	case admittedMsg:
		m.admitted = true
		m.admitUser = msg.username
		return m, tea.Quit

	case lockedOutMsg:
		m.lockedFor = msg.remaining
		return m, nil

	case backendWarningMsg:
		m.warning = msg.message
		return m, nil

	case tickMsg:
		if m.lockedFor > 0 {
			m.lockedFor -= 250 * time.Millisecond
			if m.lockedFor < 0 {
				m.lockedFor = 0
			}
		}
		return m, tick()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyEsc:
		if m.focus == focusPassword {
			_ = m.engine.Cancel()
			m.password.SetValue("")
			m.warning = ""
			m.strength = autosubmit.StrengthReport{}
		}
		return m, nil

	case tea.KeyTab:
		if m.focus == focusUsername {
			m.focusPasswordField()
		}
		return m, nil

	case tea.KeyEnter:
		if m.focus == focusUsername {
			m.focusPasswordField()
			return m, nil
		}
		_ = m.engine.Submit()
		return m, nil
	}

	if m.focus == focusUsername {
		var cmd tea.Cmd
		m.username, cmd = m.username.Update(msg)
		return m, cmd
	}

	// The password field is mirrored into the engine keystroke by
	// keystroke so the debounce clock matches what is on screen.
	switch msg.Type {
	case tea.KeyBackspace:
		_, _ = m.engine.HandleKey(autosubmit.KeyEvent{Backspace: true})
	case tea.KeyRunes, tea.KeySpace:
		runes := msg.Runes
		if msg.Type == tea.KeySpace {
			runes = []rune{' '}
		}
		for _, r := range runes {
			_, _ = m.engine.HandleKey(autosubmit.KeyEvent{Rune: r})
		}
	default:
		return m, nil
	}

	var cmd tea.Cmd
	m.password, cmd = m.password.Update(msg)
	m.strength = autosubmit.CheckStrength([]byte(m.password.Value()))
	return m, cmd
}

func (m *model) View() string {
	if m.admitted {
		return boxStyle.Render(
			admittedStyle.Render(fmt.Sprintf("Welcome, %s.", m.admitUser)) + "\n" +
				labelStyle.Render("Starting session..."))
	}

	var status string
	switch m.state {
	case autosubmit.StateIdle:
		status = statusStyle.Render("Type your password; it is checked as you type.")
	case autosubmit.StateAwaitingDebounce:
		status = statusStyle.Render("Waiting...")
	case autosubmit.StateValidating:
		status = statusStyle.Render("Checking...")
	case autosubmit.StateLockedOut:
		status = errorStyle.Render(fmt.Sprintf("Too many attempts. Try again in %ds.",
			int(m.lockedFor.Round(time.Second).Seconds())))
	}

	view := titleStyle.Render("greetline login") + "\n\n" +
		labelStyle.Render("User     ") + m.username.View() + "\n" +
		labelStyle.Render("Password ") + m.password.View() + "\n"
	if m.focus == focusPassword && m.strength.Length > 0 {
		view += labelStyle.Render("Strength ") +
			labelStyle.Render(m.strength.Level.String()) + "\n"
	}
	view += "\n" + status
	if m.warning != "" {
		view += "\n" + warnStyle.Render(m.warning)
	}
	return boxStyle.Render(view)
}
