package render

import (
	"fmt"
	"strings"

	"github.com/quayside/coxswain/src/conversation"
	"github.com/quayside/coxswain/src/protocol"
	"github.com/quayside/coxswain/src/turns"
)

// Status glyphs shared by transcript rows and the activity header.
func statusGlyph(status string) string {
	switch status {
	case protocol.StatusStreaming:
		return "◐"
	case protocol.StatusError:
		return "✗"
	case protocol.StatusCanceled:
		return "○"
	default:
		return "●"
	}
}

// TurnGroup renders one prompt-to-answer group. The view state decides
// whether the activity panel is open and which rows it shows; a nil view
// renders everything, which is what one-shot commands want.
func (r *Renderer) TurnGroup(snap conversation.Snapshot, g turns.Group, view *turns.ViewState) string {
	var b strings.Builder

	for _, u := range g.UserMessages {
		b.WriteString(r.userLine(u))
	}

	open := true
	mode := turns.ModeFull
	if view != nil {
		open = view.IsOpen(g.Key)
		mode = view.Mode(g.Key)
	}

	if len(g.ThoughtMessages) > 0 {
		b.WriteString(r.activityHeader(g, open))
		if open {
			live := livePendingIDs(snap)
			for _, m := range g.ThoughtMessages {
				if mode == turns.ModePendingOnly && !refersToLivePending(m, live) {
					continue
				}
				b.WriteString(r.thoughtLine(m))
			}
		}
	}

	if g.FinalAssistant != nil {
		b.WriteString(r.finalAnswer(*g.FinalAssistant))
	}

	b.WriteString("\n")
	return b.String()
}

func (r *Renderer) userLine(m conversation.Message) string {
	prompt := r.styles.user.Render("❯")
	text := m.Content
	switch m.Status {
	case protocol.StatusStreaming:
		text += " " + r.styles.muted.Render("(sending…)")
	case protocol.StatusError:
		text += " " + r.styles.errText.Render("(send failed)")
	}
	return prompt + " " + text + "\n"
}

// activityHeader is the one-line summary of the agent's work in a turn:
// elapsed time or live preview, plus the step count.
func (r *Renderer) activityHeader(g turns.Group, open bool) string {
	glyph := "●"
	style := r.styles.activity
	if g.ThinkingActive {
		glyph = "◐"
		style = r.styles.warning
	}

	label := g.Label()
	if label == "" {
		label = "done"
	}
	steps := fmt.Sprintf("%d step", len(g.ThoughtMessages))
	if len(g.ThoughtMessages) != 1 {
		steps += "s"
	}
	marker := "▸"
	if open {
		marker = "▾"
	}
	line := fmt.Sprintf("%s %s %s (%s)", marker, glyph, r.truncate(label, r.opts.Width-20), steps)
	return style.Render(line) + "\n"
}

func (r *Renderer) thoughtLine(m conversation.Message) string {
	tag := itemTag(m.Type)
	glyph := statusGlyph(m.Status)

	style := r.styles.activity
	if m.Status == protocol.StatusError || m.Type == conversation.TypeTurnFailure {
		style = r.styles.errText
	}

	content := m.Content
	if m.Type == string(protocol.ItemCommandExecution) {
		content = "$ " + content
	}
	line := fmt.Sprintf("  %s %-9s %s", glyph, tag, r.truncate(content, r.opts.Width-16))
	return style.Render(line) + "\n"
}

func (r *Renderer) finalAnswer(m conversation.Message) string {
	body := r.Markdown(m.Content)
	if m.Status == protocol.StatusStreaming {
		body = strings.TrimRight(body, "\n") + " " + r.styles.warning.Render("▍")
	}
	return r.styles.assistant.Render(strings.TrimRight(body, "\n")) + "\n"
}

// itemTag is the short label shown before a thought row.
func itemTag(msgType string) string {
	switch msgType {
	case string(protocol.ItemReasoning):
		return "thinking"
	case string(protocol.ItemCommandExecution):
		return "command"
	case string(protocol.ItemFileChange):
		return "files"
	case string(protocol.ItemWebSearch):
		return "search"
	case string(protocol.ItemMCPToolCall):
		return "tool"
	case conversation.TypeApproval:
		return "approval"
	case conversation.TypeToolInput:
		return "input"
	case conversation.TypeTurnFailure:
		return "failed"
	default:
		return "activity"
	}
}

// livePendingIDs collects the ids of still-pending approvals and tool-input
// requests.
func livePendingIDs(snap conversation.Snapshot) map[string]bool {
	live := make(map[string]bool, len(snap.Approvals)+len(snap.ToolInputs))
	for _, a := range snap.Approvals {
		live[a.ApprovalID] = true
	}
	for _, t := range snap.ToolInputs {
		live[t.RequestID] = true
	}
	return live
}

func refersToLivePending(m conversation.Message, live map[string]bool) bool {
	ref, ok := conversation.PendingRefID(m.ID)
	return ok && live[ref]
}
