package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/rmtemplates/internal/session"
	"github.com/muurk/rmtemplates/internal/syncer"
	"github.com/muurk/rmtemplates/internal/templates"
)

// WatchActions are the operations the watch screen can trigger
type WatchActions struct {
	State      func() session.State
	Partition  func() templates.Partition
	Sync       func(ctx context.Context) (syncer.Result, error)
	Retry      func(ctx context.Context) error
	Disconnect func(ctx context.Context) error
}

type watchKeyMap struct {
	Sync       key.Binding
	Retry      key.Binding
	Disconnect key.Binding
	Quit       key.Binding
}

func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Sync, k.Retry, k.Disconnect, k.Quit}
}

func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var watchKeys = watchKeyMap{
	Sync:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sync")),
	Retry:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry")),
	Disconnect: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "disconnect")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// ChangeMsg carries a connection state change into the watch screen
type ChangeMsg session.Change

type opDoneMsg struct {
	op     string
	status string
	err    error
}

type refreshMsg struct{}

// WatchModel is a live view of the connection and the template registry
type WatchModel struct {
	Address string

	ctx     context.Context
	actions WatchActions
	changes <-chan session.Change

	state   session.State
	list    templates.Partition
	running string
	status  string
	lastErr error

	spinner spinner.Model
	help    help.Model
	width   int
}

// NewWatchModel creates the watch screen. changes may be nil.
func NewWatchModel(ctx context.Context, address string, actions WatchActions, changes <-chan session.Change) WatchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = UnsyncedStyle

	m := WatchModel{
		Address: address,
		ctx:     ctx,
		actions: actions,
		changes: changes,
		spinner: sp,
		help:    help.New(),
		width:   GetTerminalWidth(),
	}
	m.refresh()
	return m
}

func (m *WatchModel) refresh() {
	if m.actions.State != nil {
		m.state = m.actions.State()
	}
	if m.actions.Partition != nil {
		m.list = m.actions.Partition()
	}
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForChange(m.changes), refreshLater())
}

func waitForChange(ch <-chan session.Change) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		c, ok := <-ch
		if !ok {
			return nil
		}
		return ChangeMsg(c)
	}
}

func refreshLater() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return refreshMsg{} })
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case ChangeMsg:
		m.refresh()
		m.state = msg.To
		if msg.Err != nil {
			m.lastErr = msg.Err
		}
		return m, waitForChange(m.changes)

	case refreshMsg:
		m.refresh()
		return m, refreshLater()

	case opDoneMsg:
		m.running = ""
		m.status = msg.status
		m.lastErr = msg.err
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, watchKeys.Quit):
			return m, tea.Quit
		case m.running != "":
			// One operation at a time; the session refuses the rest
			return m, nil
		case key.Matches(msg, watchKeys.Sync) && m.actions.Sync != nil:
			return m.start("sync", func(ctx context.Context) (string, error) {
				r, err := m.actions.Sync(ctx)
				if err != nil {
					return "", err
				}
				if r.Count == 0 {
					return "Nothing to sync", nil
				}
				return fmt.Sprintf("Synced %d changes", r.Count), nil
			})
		case key.Matches(msg, watchKeys.Retry) && m.actions.Retry != nil:
			return m.start("retry", func(ctx context.Context) (string, error) {
				return "Reconnected", m.actions.Retry(ctx)
			})
		case key.Matches(msg, watchKeys.Disconnect) && m.actions.Disconnect != nil:
			return m.start("disconnect", func(ctx context.Context) (string, error) {
				return "Disconnected", m.actions.Disconnect(ctx)
			})
		}
	}
	return m, nil
}

func (m WatchModel) start(op string, fn func(ctx context.Context) (string, error)) (tea.Model, tea.Cmd) {
	m.running = op
	m.status = ""
	m.lastErr = nil
	ctx := m.ctx
	return m, func() tea.Msg {
		status, err := fn(ctx)
		if err != nil {
			status = ""
		}
		return opDoneMsg{op: op, status: status, err: err}
	}
}

// View implements tea.Model
func (m WatchModel) View() string {
	var b strings.Builder

	b.WriteString(NewHeader("reMarkable templates", m.Address, nil).SetWidth(m.width).Render())
	b.WriteString("\n\n")
	b.WriteString("  Status: " + StateStyle(m.state).Render(m.state.String()))
	if m.running != "" {
		b.WriteString("  " + m.spinner.View() + " " + m.running + "...")
	}
	b.WriteString("\n\n")
	b.WriteString(RenderTemplateList(m.list))
	b.WriteString("\n")

	switch {
	case m.lastErr != nil:
		b.WriteString(ErrorMessageStyle.Render("  " + FailureMarker + " " + m.lastErr.Error()))
		b.WriteString("\n")
	case m.status != "":
		b.WriteString(SuccessTitleStyle.Render("  " + SuccessMarker + " " + m.status))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render(m.help.View(watchKeys)))
	b.WriteString("\n")
	return b.String()
}

// RunWatch runs the watch screen until the user quits or ctx ends
func RunWatch(ctx context.Context, address string, actions WatchActions, changes <-chan session.Change) error {
	p := tea.NewProgram(NewWatchModel(ctx, address, actions, changes), tea.WithContext(ctx), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
