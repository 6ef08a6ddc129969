package chat

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"chatfront/internal/session"
)

// Update routes messages to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case stateChangedMsg:
		m.refreshViewport()
		m.refreshPicker()
		// Re-arm the pump.
		return m, m.waitForChange()

	case sendDoneMsg:
		m.sending = false
		if msg.err != nil && !errors.Is(msg.err, session.ErrStreamActive) {
			m.log.Debug("send finished with error", zap.Error(msg.err))
		}
		m.refreshViewport()
		return m, nil

	case opDoneMsg:
		if msg.err != nil {
			m.log.Debug("session operation failed", zap.Error(msg.err))
		}
		m.refreshViewport()
		m.refreshPicker()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.spin, cmd = m.spin.Update(msg)
	return m, cmd
}

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	headerH := 2
	footerH := 3
	vpHeight := msg.Height - headerH - footerH
	if vpHeight < 1 {
		vpHeight = 1
	}
	if !m.ready {
		m.viewport = newViewport(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = vpHeight
	}
	m.input.Width = msg.Width - 4
	m.picker.SetSize(msg.Width, msg.Height-2)

	if m.renderer != nil {
		wrap := msg.Width - 2
		if wrap > 100 {
			wrap = 100
		}
		if wrap > 10 {
			if r, err := newRenderer(m.styles.Theme, wrap); err == nil {
				m.renderer = r
			}
		}
	}
	m.refreshViewport()
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeSessions:
		return m.handleSessionsKey(msg)
	case modeRename:
		return m.handleRenameKey(msg)
	default:
		return m.handleChatKey(msg)
	}
}

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "ctrl+l":
		m.refreshPicker()
		m.mode = modeSessions
		return m, nil

	case "ctrl+n":
		return m, m.newSessionCmd()

	case "ctrl+r":
		snap := m.store.Snapshot()
		if cur, ok := snap.Current(); ok {
			m.mode = modeRename
			m.input.SetValue(cur.Title)
			m.input.Placeholder = "New title..."
			m.input.CursorEnd()
		}
		return m, nil

	case "enter":
		content := strings.TrimSpace(m.input.Value())
		if content == "" {
			return m, nil
		}
		// One stream at a time. The manager enforces this too, but
		// keeping the input while the slot is busy avoids losing text.
		if m.sending || m.store.Snapshot().StreamingCount() > 0 {
			return m, nil
		}
		m.sending = true
		m.input.SetValue("")
		return m, m.sendCmd(content)

	case "pgup", "pgdown", "up", "down":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleSessionsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "esc", "ctrl+l":
		m.mode = modeChat
		return m, nil

	case "enter":
		if item, ok := m.picker.SelectedItem().(sessionItem); ok {
			m.mode = modeChat
			return m, m.selectSessionCmd(item.id)
		}
		return m, nil

	case "n":
		m.mode = modeChat
		return m, m.newSessionCmd()

	case "d":
		if item, ok := m.picker.SelectedItem().(sessionItem); ok {
			return m, m.deleteSessionCmd(item.id)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)
	return m, cmd
}

func (m Model) handleRenameKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "esc":
		m.mode = modeChat
		m.input.SetValue("")
		m.input.Placeholder = "Type a message..."
		return m, nil

	case "enter":
		title := strings.TrimSpace(m.input.Value())
		m.mode = modeChat
		m.input.SetValue("")
		m.input.Placeholder = "Type a message..."
		snap := m.store.Snapshot()
		if title == "" || snap.CurrentSessionID == "" {
			return m, nil
		}
		return m, m.renameSessionCmd(snap.CurrentSessionID, title)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) refreshPicker() {
	snap := m.store.Snapshot()
	items := make([]list.Item, 0, len(snap.Order))
	for _, s := range snap.SessionList() {
		title := s.Title
		if title == "" {
			title = "New chat"
		}
		items = append(items, sessionItem{id: s.ID, title: title})
	}
	m.picker.SetItems(items)
}
