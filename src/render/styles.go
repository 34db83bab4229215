package render

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/quayside/coxswain/src/theme"
)

// styleSheet holds the prebuilt lipgloss styles for one renderer.
type styleSheet struct {
	title     lipgloss.Style
	muted     lipgloss.Style
	badge     lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	activity  lipgloss.Style
	success   lipgloss.Style
	warning   lipgloss.Style
	errText   lipgloss.Style
	added     lipgloss.Style
	removed   lipgloss.Style
}

func newStyles(t theme.Theme, noColor bool) styleSheet {
	if noColor {
		plain := lipgloss.NewStyle()
		return styleSheet{
			title:     plain,
			muted:     plain,
			badge:     plain,
			user:      plain,
			assistant: plain,
			activity:  plain,
			success:   plain,
			warning:   plain,
			errText:   plain,
			added:     plain,
			removed:   plain,
		}
	}

	return styleSheet{
		title:     lipgloss.NewStyle().Foreground(t.Primary).Bold(true),
		muted:     lipgloss.NewStyle().Foreground(t.TextMuted),
		badge:     lipgloss.NewStyle().Foreground(t.Primary),
		user:      lipgloss.NewStyle().Foreground(t.User).Bold(true),
		assistant: lipgloss.NewStyle().Foreground(t.Assistant),
		activity:  lipgloss.NewStyle().Foreground(t.Activity),
		success:   lipgloss.NewStyle().Foreground(t.Success),
		warning:   lipgloss.NewStyle().Foreground(t.Warning),
		errText:   lipgloss.NewStyle().Foreground(t.Error).Bold(true),
		added:     lipgloss.NewStyle().Foreground(t.Added),
		removed:   lipgloss.NewStyle().Foreground(t.Removed),
	}
}
