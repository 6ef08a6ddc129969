package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"

	"chatfront/internal/state"
)

func newViewport(width, height int) viewport.Model {
	vp := viewport.New(width, height)
	vp.SetContent("")
	return vp
}

func newRenderer(theme Theme, wrap int) (*glamour.TermRenderer, error) {
	style := "dark"
	if !theme.IsDark {
		style = "light"
	}
	return glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(wrap),
	)
}

// View renders the active screen.
func (m Model) View() string {
	if m.fatalErr != nil {
		return m.styles.ErrBanner.Render("error: "+m.fatalErr.Error()) + "\n"
	}
	if !m.ready {
		return "Loading..."
	}
	if m.mode == modeSessions {
		return m.picker.View()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	snap := m.store.Snapshot()
	title := "chatfront"
	if cur, ok := snap.Current(); ok && cur.Title != "" {
		title = fmt.Sprintf("chatfront | %s", cur.Title)
	}
	hint := m.styles.Muted.Render("ctrl+l sessions  ctrl+n new  ctrl+r rename  ctrl+c quit")
	return m.styles.Header.Render(title) + "  " + hint
}

func (m Model) renderFooter() string {
	snap := m.store.Snapshot()

	var banner string
	if snap.LastError != nil {
		banner = m.styles.ErrBanner.Render(
			fmt.Sprintf("%s failed: %s", snap.LastError.Op, snap.LastError.Message)) + "\n"
	}

	switch {
	case m.mode == modeRename:
		return banner + m.styles.Prompt.Render("rename> ") + m.input.View()
	case snap.Pending == state.OpStreaming:
		return banner + m.spin.View() + m.styles.Muted.Render(" streaming...")
	case snap.Pending == state.OpLoading:
		return banner + m.spin.View() + m.styles.Muted.Render(" loading...")
	default:
		return banner + m.styles.Prompt.Render("> ") + m.input.View()
	}
}

// refreshViewport rebuilds the transcript from the current snapshot and
// keeps the view pinned to the bottom.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	snap := m.store.Snapshot()
	cur, ok := snap.Current()
	if !ok {
		m.viewport.SetContent(m.styles.Muted.Render("No session. Type a message to start one."))
		return
	}
	m.viewport.SetContent(m.renderHistory(cur))
	m.viewport.GotoBottom()
}

func (m Model) renderHistory(s state.Session) string {
	if len(s.Messages) == 0 {
		return m.styles.Muted.Render("Empty conversation. Say something.")
	}
	var b strings.Builder
	for _, msg := range s.Messages {
		switch msg.Role {
		case state.RoleUser:
			b.WriteString(m.styles.UserLabel.Render("You"))
			b.WriteString("\n")
			b.WriteString(m.styles.UserText.Render(msg.Content))
		default:
			label := "Assistant"
			if msg.Streaming {
				label = "Assistant ..."
			}
			b.WriteString(m.styles.BotLabel.Render(label))
			b.WriteString("\n")
			if msg.Streaming {
				// Raw text while the stream is open. Markdown needs
				// the full document to render sanely.
				b.WriteString(msg.Content)
			} else {
				b.WriteString(m.renderMarkdown(msg.Content))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderMarkdown renders assistant output through glamour, falling back to
// the raw text if the renderer is unavailable or panics on odd input.
func (m Model) renderMarkdown(content string) (out string) {
	if m.renderer == nil {
		return content
	}
	defer func() {
		if r := recover(); r != nil {
			out = content
		}
	}()
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}
