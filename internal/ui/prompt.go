package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// LostChoice is the user's answer to the connection-lost prompt
type LostChoice int

const (
	ChoiceNone LostChoice = iota
	ChoiceRetry
	ChoiceDisconnect
)

func (c LostChoice) String() string {
	switch c {
	case ChoiceRetry:
		return "retry"
	case ChoiceDisconnect:
		return "disconnect"
	default:
		return "none"
	}
}

type lostKeyMap struct {
	Retry      key.Binding
	Disconnect key.Binding
	Quit       key.Binding
}

func (k lostKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Retry, k.Disconnect, k.Quit}
}

func (k lostKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var lostKeys = lostKeyMap{
	Retry: key.NewBinding(
		key.WithKeys("r", "enter"),
		key.WithHelp("r", "retry"),
	),
	Disconnect: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "disconnect"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// LostPrompt asks whether to retry or drop a lost connection.
// Quitting counts as disconnecting.
type LostPrompt struct {
	Address string
	Cause   error
	Pending int

	choice LostChoice
	help   help.Model
	width  int
}

// NewLostPrompt creates the prompt. pending is the number of local changes
// that a retry preserves.
func NewLostPrompt(address string, cause error, pending int) LostPrompt {
	return LostPrompt{
		Address: address,
		Cause:   cause,
		Pending: pending,
		help:    help.New(),
		width:   GetTerminalWidth(),
	}
}

// Choice returns the user's answer
func (m LostPrompt) Choice() LostChoice {
	return m.choice
}

// Init implements tea.Model
func (m LostPrompt) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m LostPrompt) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, lostKeys.Retry):
			m.choice = ChoiceRetry
			return m, tea.Quit
		case key.Matches(msg, lostKeys.Disconnect), key.Matches(msg, lostKeys.Quit):
			m.choice = ChoiceDisconnect
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model
func (m LostPrompt) View() string {
	width := m.width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}
	if width > MaxContentWidth {
		width = MaxContentWidth
	}

	lines := []string{
		"",
		ErrorTitleStyle.Render("   " + WarningMarker + "  CONNECTION LOST  ─  " + m.Address),
		"",
	}
	if m.Cause != nil {
		lines = append(lines, ErrorMessageStyle.Render("   "+m.Cause.Error()), "")
	}
	if m.Pending > 0 {
		lines = append(lines, ResultValueStyle.Render("   Local changes kept for retry: ")+UnsyncedStyle.Render(plural(m.Pending, "template")), "")
	}
	box := ErrorBoxStyle(width).Render(strings.Join(lines, "\n"))

	if m.choice != ChoiceNone {
		return box + "\n"
	}
	return lipgloss.JoinVertical(lipgloss.Left, box, "", HelpStyle.Render(m.help.View(lostKeys))) + "\n"
}

// AskLost runs the prompt on the terminal and returns the answer
func AskLost(ctx context.Context, address string, cause error, pending int) (LostChoice, error) {
	p := tea.NewProgram(NewLostPrompt(address, cause, pending), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return ChoiceNone, err
	}
	return final.(LostPrompt).Choice(), nil
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
