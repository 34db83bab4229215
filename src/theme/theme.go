// Package theme holds the color palettes used by the renderer.
package theme

import "github.com/charmbracelet/lipgloss"

// Theme is a named color palette.
type Theme struct {
	Name string

	Primary   lipgloss.Color
	Text      lipgloss.Color
	TextMuted lipgloss.Color

	// Transcript roles
	User      lipgloss.Color
	Assistant lipgloss.Color
	Activity  lipgloss.Color

	// Statuses
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color

	// Diff lines
	Added   lipgloss.Color
	Removed lipgloss.Color
}

// Dark is the default palette.
var Dark = Theme{
	Name:      "dark",
	Primary:   lipgloss.Color("#7aa2f7"),
	Text:      lipgloss.Color("#c0caf5"),
	TextMuted: lipgloss.Color("#565f89"),
	User:      lipgloss.Color("#9ece6a"),
	Assistant: lipgloss.Color("#c0caf5"),
	Activity:  lipgloss.Color("#565f89"),
	Success:   lipgloss.Color("#9ece6a"),
	Warning:   lipgloss.Color("#e0af68"),
	Error:     lipgloss.Color("#f7768e"),
	Added:     lipgloss.Color("#9ece6a"),
	Removed:   lipgloss.Color("#f7768e"),
}

// Light is the palette for light terminal backgrounds.
var Light = Theme{
	Name:      "light",
	Primary:   lipgloss.Color("#2e7de9"),
	Text:      lipgloss.Color("#3760bf"),
	TextMuted: lipgloss.Color("#848cb5"),
	User:      lipgloss.Color("#587539"),
	Assistant: lipgloss.Color("#3760bf"),
	Activity:  lipgloss.Color("#848cb5"),
	Success:   lipgloss.Color("#587539"),
	Warning:   lipgloss.Color("#8c6c3e"),
	Error:     lipgloss.Color("#f52a65"),
	Added:     lipgloss.Color("#587539"),
	Removed:   lipgloss.Color("#f52a65"),
}

// CurrentTheme is the active palette.
var CurrentTheme = Dark

// SetTheme sets the current theme
func SetTheme(t Theme) {
	CurrentTheme = t
}

// ByName resolves a configured theme name. "auto" picks by terminal
// background; unknown names fall back to dark.
func ByName(name string) Theme {
	switch name {
	case "dark":
		return Dark
	case "light":
		return Light
	case "auto", "":
		if lipgloss.HasDarkBackground() {
			return Dark
		}
		return Light
	}
	return Dark
}
