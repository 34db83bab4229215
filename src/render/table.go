package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/quayside/coxswain/src/protocol"
)

// Sessions renders the session list as an aligned table.
func (r *Renderer) Sessions(items []protocol.SessionSummary) string {
	if len(items) == 0 {
		return r.styles.muted.Render("no sessions") + "\n"
	}

	titleWidth := r.opts.Width - 50
	if titleWidth < 16 {
		titleWidth = 16
	}

	var b strings.Builder
	b.WriteString(r.styles.muted.Render(pad("ID", 14) + pad("TITLE", titleWidth) + pad("MODEL", 18) + "UPDATED"))
	b.WriteString("\n")
	for _, s := range items {
		title := s.Title
		if title == "" {
			title = r.styles.muted.Render("(untitled)")
		}
		if s.Archived {
			title += r.styles.muted.Render(" [archived]")
		}
		b.WriteString(pad(r.truncate(s.ID, 12), 14))
		b.WriteString(pad(r.truncate(title, titleWidth-2), titleWidth))
		b.WriteString(pad(r.truncate(s.Model, 16), 18))
		b.WriteString(r.styles.muted.Render(formatDate(s.UpdatedAt)))
		b.WriteString("\n")
	}
	return b.String()
}

// Projects renders the project catalog.
func (r *Renderer) Projects(items []protocol.Project) string {
	if len(items) == 0 {
		return r.styles.muted.Render("no projects") + "\n"
	}
	var b strings.Builder
	for _, p := range items {
		b.WriteString(pad(r.truncate(p.ID, 12), 14))
		b.WriteString(p.Name)
		b.WriteString("\n")
	}
	return b.String()
}

// pad right-pads s with spaces to the given display width, ANSI-aware.
func pad(s string, width int) string {
	gap := width - ansi.StringWidth(s)
	if gap <= 0 {
		return s + " "
	}
	return s + strings.Repeat(" ", gap)
}

func formatDate(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}

// SessionLine is the one-line form used after create/rename/archive.
func (r *Renderer) SessionLine(s protocol.SessionSummary) string {
	line := r.styles.badge.Render(s.ID)
	if s.Title != "" {
		line += " " + s.Title
	}
	var tags []string
	if s.Model != "" {
		tags = append(tags, s.Model)
	}
	if s.Archived {
		tags = append(tags, "archived")
	}
	if len(tags) > 0 {
		line += " " + r.styles.muted.Render(fmt.Sprintf("(%s)", strings.Join(tags, " · ")))
	}
	return line
}
