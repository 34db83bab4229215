// Package render turns engine snapshots into terminal output: the session
// header, turn groups, pending-action details, plan, notices, and the
// connection footer. It is a pure formatter; all state lives in the engine
// and the turn view state.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/quayside/coxswain/src/conversation"
	"github.com/quayside/coxswain/src/protocol"
	"github.com/quayside/coxswain/src/theme"
	"github.com/quayside/coxswain/src/turns"
)

const defaultWidth = 100

// Options configures a renderer.
type Options struct {
	Width      int
	Theme      theme.Theme
	Plain      bool // raw text instead of markdown rendering
	NoColor    bool
	Compact    bool
	TimeFormat string
}

// Renderer formats snapshots. Safe for reuse across ticks; the markdown
// renderer is built lazily on first use.
type Renderer struct {
	opts   Options
	styles styleSheet

	md      markdownRenderer
	mdReady bool
}

// New creates a renderer.
func New(opts Options) *Renderer {
	if opts.Width <= 0 {
		opts.Width = defaultWidth
	}
	if opts.TimeFormat == "" {
		opts.TimeFormat = "15:04:05"
	}
	if opts.Theme.Name == "" {
		opts.Theme = theme.CurrentTheme
	}
	return &Renderer{
		opts:   opts,
		styles: newStyles(opts.Theme, opts.NoColor),
	}
}

// Snapshot renders the whole view for one update tick. The view state, when
// given, is observed first so new pending work auto-opens its turn panel.
func (r *Renderer) Snapshot(snap conversation.Snapshot, view *turns.ViewState) string {
	var b strings.Builder

	b.WriteString(r.Header(snap))
	b.WriteString("\n")

	groups := turns.Build(snap)
	if view != nil {
		view.Observe(groups)
	}
	for _, g := range groups {
		b.WriteString(r.TurnGroup(snap, g, view))
	}

	if s := r.Pending(snap); s != "" {
		b.WriteString("\n")
		b.WriteString(s)
	}
	if s := r.Plan(snap.Meta.Plan); s != "" && !r.opts.Compact {
		b.WriteString("\n")
		b.WriteString(s)
	}
	if s := r.Suggestion(snap.Suggestion); s != "" {
		b.WriteString("\n")
		b.WriteString(s)
		b.WriteString("\n")
	}
	if s := r.Notices(snap.Notices); s != "" {
		b.WriteString("\n")
		b.WriteString(s)
	}

	b.WriteString("\n")
	b.WriteString(r.Footer(snap))
	b.WriteString("\n")
	return b.String()
}

// Header renders the session identity line.
func (r *Renderer) Header(snap conversation.Snapshot) string {
	title := snap.Meta.Title
	if title == "" {
		title = snap.ThreadID
	}
	line := r.styles.title.Render(r.truncate(title, r.opts.Width-30))

	var tags []string
	if snap.Meta.Model != "" {
		tags = append(tags, snap.Meta.Model)
	}
	if snap.Meta.Cwd != "" {
		tags = append(tags, snap.Meta.Cwd)
	}
	if snap.Meta.Archived {
		tags = append(tags, "archived")
	}
	if snap.Meta.Deleted {
		tags = append(tags, "deleted on server")
	}
	if len(tags) > 0 {
		line += " " + r.styles.muted.Render("("+strings.Join(tags, " · ")+")")
	}
	return line + "\n"
}

// Footer renders the connection state and cumulative token usage.
func (r *Renderer) Footer(snap conversation.Snapshot) string {
	parts := []string{r.Connection(snap.Connection)}
	if u := r.Usage(snap.Meta.Usage); u != "" {
		parts = append(parts, u)
	}
	return strings.Join(parts, r.styles.muted.Render(" · "))
}

// Connection renders the perceived push-channel state.
func (r *Renderer) Connection(conn conversation.ConnState) string {
	switch conn.Status {
	case "connected":
		return r.styles.success.Render("● connected")
	case "connecting":
		if conn.Attempt > 1 {
			return r.styles.warning.Render(fmt.Sprintf("◌ reconnecting (attempt %d)", conn.Attempt))
		}
		return r.styles.warning.Render("◌ connecting")
	default:
		return r.styles.errText.Render("○ disconnected")
	}
}

// Usage renders cumulative token counters, empty when nothing was counted.
func (r *Renderer) Usage(u protocol.TokenUsage) string {
	if u.TotalTokens == 0 && u.InputTokens == 0 && u.OutputTokens == 0 {
		return ""
	}
	s := fmt.Sprintf("tokens %s in / %s out / %s total",
		humanCount(u.InputTokens), humanCount(u.OutputTokens), humanCount(u.TotalTokens))
	if u.CachedInputTokens > 0 {
		s += fmt.Sprintf(" (%s cached)", humanCount(u.CachedInputTokens))
	}
	return r.styles.muted.Render(s)
}

// Plan renders the agent's published plan as a checklist.
func (r *Renderer) Plan(steps []protocol.PlanStep) string {
	if len(steps) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(r.styles.badge.Render("plan"))
	b.WriteString("\n")
	for _, s := range steps {
		switch s.Status {
		case protocol.PlanStepCompleted:
			b.WriteString("  " + r.styles.success.Render("✓ "+s.Text))
		case protocol.PlanStepInProgress:
			b.WriteString("  " + r.styles.warning.Render("◐ "+s.Text))
		default:
			b.WriteString("  " + r.styles.muted.Render("· "+s.Text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Suggestion renders the latest suggested-reply state.
func (r *Renderer) Suggestion(s conversation.Suggestion) string {
	switch {
	case s.Pending:
		return r.styles.muted.Render("drafting suggested reply…")
	case s.Err != "":
		return r.styles.errText.Render("suggested reply failed: " + s.Err)
	case s.Text != "":
		return r.styles.badge.Render("suggested reply: ") + s.Text
	}
	return ""
}

// Notices renders the bounded notice ring, oldest first.
func (r *Renderer) Notices(notices []conversation.Notice) string {
	if len(notices) == 0 {
		return ""
	}
	var b strings.Builder
	for _, n := range notices {
		stamp := r.styles.muted.Render(r.timestamp(n.At))
		switch n.Level {
		case conversation.NoticeError:
			b.WriteString(stamp + " " + r.styles.errText.Render("✗ "+n.Message))
		default:
			b.WriteString(stamp + " " + r.styles.muted.Render("• "+n.Message))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (r *Renderer) timestamp(ms int64) string {
	if ms == 0 {
		return strings.Repeat(" ", len(r.opts.TimeFormat))
	}
	return time.UnixMilli(ms).Format(r.opts.TimeFormat)
}

// truncate shortens s to the given display width, ANSI-aware.
func (r *Renderer) truncate(s string, width int) string {
	if width <= 0 {
		width = r.opts.Width
	}
	s = strings.ReplaceAll(s, "\n", " ")
	if ansi.StringWidth(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "…")
}

func humanCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 10_000:
		return fmt.Sprintf("%.0fk", float64(n)/1_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
