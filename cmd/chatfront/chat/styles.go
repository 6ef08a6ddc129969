package chat

import "github.com/charmbracelet/lipgloss"

// Theme holds the color palette for the TUI.
type Theme struct {
	Primary lipgloss.Color
	Accent  lipgloss.Color
	Muted   lipgloss.Color
	Error   lipgloss.Color
	IsDark  bool
}

// DarkTheme is the default palette.
func DarkTheme() Theme {
	return Theme{
		Primary: lipgloss.Color("12"),
		Accent:  lipgloss.Color("10"),
		Muted:   lipgloss.Color("8"),
		Error:   lipgloss.Color("9"),
		IsDark:  true,
	}
}

// LightTheme is the palette for light terminals.
func LightTheme() Theme {
	return Theme{
		Primary: lipgloss.Color("4"),
		Accent:  lipgloss.Color("2"),
		Muted:   lipgloss.Color("7"),
		Error:   lipgloss.Color("1"),
		IsDark:  false,
	}
}

// Styles bundles the lipgloss styles used by the views.
type Styles struct {
	Theme     Theme
	Header    lipgloss.Style
	UserLabel lipgloss.Style
	BotLabel  lipgloss.Style
	UserText  lipgloss.Style
	Muted     lipgloss.Style
	ErrBanner lipgloss.Style
	Prompt    lipgloss.Style
	Spinner   lipgloss.Style
}

// NewStyles builds the style set for a theme.
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme:     theme,
		Header:    lipgloss.NewStyle().Bold(true).Foreground(theme.Primary),
		UserLabel: lipgloss.NewStyle().Bold(true).Foreground(theme.Primary).MarginTop(1),
		BotLabel:  lipgloss.NewStyle().Bold(true).Foreground(theme.Accent).MarginTop(1),
		UserText:  lipgloss.NewStyle(),
		Muted:     lipgloss.NewStyle().Foreground(theme.Muted),
		ErrBanner: lipgloss.NewStyle().Foreground(theme.Error).Bold(true),
		Prompt:    lipgloss.NewStyle().Foreground(theme.Primary),
		Spinner:   lipgloss.NewStyle().Foreground(theme.Accent),
	}
}
