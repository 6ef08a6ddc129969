package chat

// ============================================================================
// CHAT TUI MODEL
// ============================================================================
// The TUI is a pure collaborator: every piece of conversation state it
// renders comes from a store snapshot, and every mutation goes through the
// session manager. Deltas arriving mid-stream surface as change
// notifications that trigger a re-render.

import (
	"context"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"chatfront/internal/session"
	"chatfront/internal/state"
)

type viewMode int

const (
	modeChat viewMode = iota
	modeSessions
	modeRename
)

// Model is the bubbletea model for the chat TUI.
type Model struct {
	manager *session.Manager
	store   *state.Store
	log     *zap.Logger

	input    textinput.Model
	viewport viewport.Model
	spin     spinner.Model
	picker   list.Model

	styles   Styles
	renderer *glamour.TermRenderer

	mode    viewMode
	width   int
	height  int
	ready   bool
	sending bool

	fatalErr error
}

// sessionItem adapts a session summary for the bubbles list.
type sessionItem struct {
	id    string
	title string
}

func (i sessionItem) Title() string       { return i.title }
func (i sessionItem) Description() string { return i.id }
func (i sessionItem) FilterValue() string { return i.title }

// New builds the chat model. theme selects the palette.
func New(mgr *session.Manager, log *zap.Logger, theme Theme) Model {
	if log == nil {
		log = zap.NewNop()
	}
	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	styles := NewStyles(theme)
	sp.Style = styles.Spinner

	delegate := list.NewDefaultDelegate()
	picker := list.New(nil, delegate, 0, 0)
	picker.Title = "Sessions"
	picker.SetShowStatusBar(false)
	picker.SetFilteringEnabled(false)

	var opts []glamour.TermRendererOption
	if theme.IsDark {
		opts = append(opts, glamour.WithStandardStyle("dark"))
	} else {
		opts = append(opts, glamour.WithStandardStyle("light"))
	}
	opts = append(opts, glamour.WithWordWrap(80))
	renderer, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		// Fall back to plain text rendering.
		renderer = nil
	}

	return Model{
		manager:  mgr,
		store:    mgr.Store(),
		log:      log,
		input:    ti,
		spin:     sp,
		picker:   picker,
		styles:   styles,
		renderer: renderer,
		mode:     modeChat,
	}
}

// Init starts the initial session load and the change pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spin.Tick,
		m.loadSessionsCmd(),
		m.waitForChange(),
	)
}

// ============================================================================
// COMMANDS
// ============================================================================

type stateChangedMsg struct{}

type opDoneMsg struct{ err error }

type sendDoneMsg struct{ err error }

// waitForChange blocks on the store change channel and converts each
// notification into a message. The store coalesces signals, so a burst of
// deltas costs at most one redraw per processed message. A closed store
// ends the pump so the goroutine does not outlive the program.
func (m Model) waitForChange() tea.Cmd {
	ch := m.store.Changes()
	done := m.store.Done()
	return func() tea.Msg {
		select {
		case <-ch:
			return stateChangedMsg{}
		case <-done:
			return nil
		}
	}
}

func (m Model) loadSessionsCmd() tea.Cmd {
	mgr := m.manager
	return func() tea.Msg {
		return opDoneMsg{err: mgr.LoadSessions(context.Background())}
	}
}

func (m Model) sendCmd(content string) tea.Cmd {
	mgr := m.manager
	return func() tea.Msg {
		ctx := context.Background()
		if mgr.Store().Snapshot().CurrentSessionID == "" {
			if _, err := mgr.CreateSession(ctx); err != nil {
				return sendDoneMsg{err: err}
			}
		}
		return sendDoneMsg{err: mgr.SendMessage(ctx, content, "", true)}
	}
}

func (m Model) selectSessionCmd(id string) tea.Cmd {
	mgr := m.manager
	return func() tea.Msg {
		return opDoneMsg{err: mgr.SelectSession(context.Background(), id)}
	}
}

func (m Model) newSessionCmd() tea.Cmd {
	mgr := m.manager
	return func() tea.Msg {
		_, err := mgr.CreateSession(context.Background())
		return opDoneMsg{err: err}
	}
}

func (m Model) deleteSessionCmd(id string) tea.Cmd {
	mgr := m.manager
	return func() tea.Msg {
		return opDoneMsg{err: mgr.DeleteSession(context.Background(), id)}
	}
}

func (m Model) renameSessionCmd(id, title string) tea.Cmd {
	mgr := m.manager
	return func() tea.Msg {
		return opDoneMsg{err: mgr.RenameSession(context.Background(), id, title)}
	}
}
