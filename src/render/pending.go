package render

import (
	"fmt"
	"strings"

	"github.com/quayside/coxswain/src/conversation"
	"github.com/quayside/coxswain/src/diffview"
	"github.com/quayside/coxswain/src/protocol"
)

// Pending renders the pending approvals and tool-input requests with enough
// detail to decide from the terminal. Empty when nothing is pending.
func (r *Renderer) Pending(snap conversation.Snapshot) string {
	if len(snap.Approvals) == 0 && len(snap.ToolInputs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(r.styles.warning.Render(fmt.Sprintf("pending (%d)", len(snap.Approvals)+len(snap.ToolInputs))))
	b.WriteString("\n")
	for _, a := range snap.Approvals {
		b.WriteString(r.Approval(a))
	}
	for _, t := range snap.ToolInputs {
		b.WriteString(r.ToolInput(t))
	}
	return b.String()
}

// Approval renders one approval with its method-specific details.
func (r *Renderer) Approval(a protocol.Approval) string {
	var b strings.Builder

	head := fmt.Sprintf("⚠ %s [%s]", a.ApprovalID, a.Method)
	b.WriteString(r.styles.warning.Render(head))
	if a.Summary != "" {
		b.WriteString(" " + r.truncate(a.Summary, r.opts.Width-20))
	}
	b.WriteString("\n")

	if d, ok := a.CommandDetails(); ok {
		b.WriteString("    " + r.styles.badge.Render("$ ") + d.Command + "\n")
		if d.Cwd != "" {
			b.WriteString("    " + r.styles.muted.Render("cwd: "+d.Cwd) + "\n")
		}
		if d.Reason != "" {
			b.WriteString("    " + r.styles.muted.Render("reason: "+d.Reason) + "\n")
		}
	}

	if d, ok := a.FileChangeDetails(); ok {
		b.WriteString(r.fileChanges(d.Changes))
		if d.Reason != "" {
			b.WriteString("    " + r.styles.muted.Render("reason: "+d.Reason) + "\n")
		}
	}

	b.WriteString("    " + r.styles.muted.Render("decide: coxswain approve "+a.ApprovalID+" [--decline]") + "\n")
	return b.String()
}

// fileChanges renders a per-file summary and, outside compact mode, the
// highlighted diff for each change.
func (r *Renderer) fileChanges(changes []protocol.FileChange) string {
	var b strings.Builder

	total := diffview.Summarize(changes)
	b.WriteString("    " + r.styles.muted.Render(fmt.Sprintf("%d file(s), ", len(changes))) +
		r.styles.added.Render(fmt.Sprintf("+%d ", total.Added)) +
		r.styles.removed.Render(fmt.Sprintf("-%d", total.Removed)) + "\n")

	for _, fd := range diffview.ForChanges(changes) {
		b.WriteString(fmt.Sprintf("    %s %s ", kindGlyph(fd.Kind), fd.Path))
		b.WriteString(r.styles.added.Render(fmt.Sprintf("+%d ", fd.Stats.Added)))
		b.WriteString(r.styles.removed.Render(fmt.Sprintf("-%d", fd.Stats.Removed)))
		b.WriteString("\n")

		if r.opts.Compact {
			if line := r.intralineSummary(fd); line != "" {
				b.WriteString("      " + line + "\n")
			}
			continue
		}
		if fd.Unified != "" {
			b.WriteString(indent(r.UnifiedDiff(fd.Unified), "      "))
		}
	}
	return b.String()
}

// intralineSummary renders a character-level old→new line for single-line
// edits, the common case worth showing even in compact mode.
func (r *Renderer) intralineSummary(fd diffview.FileDiff) string {
	if fd.Stats.Added != 1 || fd.Stats.Removed != 1 {
		return ""
	}
	oldLine, newLine, ok := singleLineEdit(fd.Unified)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, span := range diffview.IntralineSpans(oldLine, newLine) {
		switch span.Op {
		case diffview.OpInsert:
			b.WriteString(r.styles.added.Render(span.Text))
		case diffview.OpDelete:
			b.WriteString(r.styles.removed.Render(span.Text))
		default:
			b.WriteString(r.styles.muted.Render(span.Text))
		}
	}
	return r.truncate(b.String(), r.opts.Width-10)
}

// singleLineEdit extracts the removed and added line from a unified diff
// that touches exactly one line.
func singleLineEdit(unified string) (oldLine, newLine string, ok bool) {
	for _, line := range strings.Split(unified, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "-"):
			oldLine = strings.TrimPrefix(line, "-")
		case strings.HasPrefix(line, "+"):
			newLine = strings.TrimPrefix(line, "+")
		}
	}
	return oldLine, newLine, oldLine != "" || newLine != ""
}

func kindGlyph(kind string) string {
	switch kind {
	case "add":
		return "A"
	case "delete":
		return "D"
	case "rename":
		return "R"
	default:
		return "M"
	}
}

// ToolInput renders one tool-input request with its questions and options.
func (r *Renderer) ToolInput(req protocol.ToolInputRequest) string {
	var b strings.Builder

	head := fmt.Sprintf("? %s", req.RequestID)
	if req.ToolName != "" {
		head += " [" + req.ToolName + "]"
	}
	b.WriteString(r.styles.warning.Render(head))
	if req.Summary != "" {
		b.WriteString(" " + r.truncate(req.Summary, r.opts.Width-20))
	}
	b.WriteString("\n")

	for i, q := range req.Questions {
		label := q.Question
		if q.Header != "" {
			label = q.Header + ": " + label
		}
		b.WriteString(fmt.Sprintf("    %d. %s", i+1, label))
		if q.MultiSelect {
			b.WriteString(r.styles.muted.Render(" (multi-select)"))
		}
		if q.Secret {
			b.WriteString(r.styles.muted.Render(" (secret)"))
		}
		b.WriteString("\n")
		for _, opt := range q.Options {
			line := "       • " + opt.Value
			if opt.Label != "" && opt.Label != opt.Value {
				line += r.styles.muted.Render(" (" + opt.Label + ")")
			}
			b.WriteString(line + "\n")
		}
	}

	b.WriteString("    " + r.styles.muted.Render("answer: coxswain respond "+req.RequestID+" --answer <id>=<value>") + "\n")
	return b.String()
}

// indent prefixes every non-empty line of s.
func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	var b strings.Builder
	for _, line := range lines {
		if line != "" {
			b.WriteString(prefix)
			b.WriteString(line)
		}
		b.WriteString("\n")
	}
	return b.String()
}
