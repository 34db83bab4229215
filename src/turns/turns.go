// Package turns projects the transcript into per-turn groups: the user's
// prompt, the agent's intermediate activity, the final answer, and the
// pending decisions blocking the turn. The projection is pure; which panels
// are open lives in ViewState.
package turns

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/quayside/coxswain/src/conversation"
	"github.com/quayside/coxswain/src/protocol"
)

// Group is one turn's worth of transcript rows, partitioned for rendering.
type Group struct {
	// Key identifies the group: the turn id, or the message id for rows
	// that arrived without one.
	Key    string
	TurnID string

	UserMessages    []conversation.Message
	ThoughtMessages []conversation.Message
	FinalAssistant  *conversation.Message

	// ThinkingActive reports whether this group is the session's active
	// turn.
	ThinkingActive bool

	// PendingSignature is the sorted, deduplicated set of still-pending
	// approval and tool-input ids referenced by this group.
	PendingSignature []string

	members []conversation.Message
}

// Build buckets the snapshot's messages into turn groups in first-seen order
// and partitions each group into prompt, thoughts, and final answer. Rows
// without a turn id become single-member groups keyed by message id so they
// are never silently dropped.
func Build(snap conversation.Snapshot) []Group {
	pending := pendingRefs(snap)

	index := make(map[string]int)
	groups := make([]Group, 0, 8)
	for _, m := range snap.Messages {
		key := m.TurnID
		if key == "" {
			key = m.ID
		}
		gi, ok := index[key]
		if !ok {
			gi = len(groups)
			index[key] = gi
			groups = append(groups, Group{Key: key, TurnID: m.TurnID})
		}
		groups[gi].members = append(groups[gi].members, m)
	}

	for i := range groups {
		g := &groups[i]
		g.partition()
		g.ThinkingActive = g.TurnID != "" && g.TurnID == snap.Meta.ActiveTurnID
		g.PendingSignature = signature(g.ThoughtMessages, pending)
	}
	return groups
}

// partition splits members into prompt, thoughts, and the final answer. The
// final answer is the last assistant row; earlier assistant rows stay in the
// thought list in their original position.
func (g *Group) partition() {
	last := -1
	for i, m := range g.members {
		if m.Role == protocol.RoleAssistant {
			last = i
		}
	}
	for i := range g.members {
		m := g.members[i]
		switch {
		case m.Role == protocol.RoleUser:
			g.UserMessages = append(g.UserMessages, m)
		case i == last:
			fa := m
			g.FinalAssistant = &fa
		default:
			g.ThoughtMessages = append(g.ThoughtMessages, m)
		}
	}
}

func pendingRefs(snap conversation.Snapshot) map[string]bool {
	refs := make(map[string]bool, len(snap.Approvals)+len(snap.ToolInputs))
	for _, a := range snap.Approvals {
		refs[a.ApprovalID] = true
	}
	for _, r := range snap.ToolInputs {
		refs[r.RequestID] = true
	}
	return refs
}

func signature(thoughts []conversation.Message, pending map[string]bool) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, m := range thoughts {
		ref, ok := conversation.PendingRefID(m.ID)
		if !ok || !pending[ref] || seen[ref] {
			continue
		}
		seen[ref] = true
		ids = append(ids, ref)
	}
	sort.Strings(ids)
	return ids
}

// Elapsed returns the turn's wall-clock duration when both endpoints are
// known.
func (g Group) Elapsed() (time.Duration, bool) {
	start := g.startAt()
	end := g.endAt()
	if start == 0 || end == 0 || end < start {
		return 0, false
	}
	return time.Duration(end-start) * time.Millisecond, true
}

// startAt is the earliest user-message StartedAt, falling back to the
// earliest timing stamp anywhere in the group.
func (g Group) startAt() int64 {
	var start int64
	for _, m := range g.UserMessages {
		if m.StartedAt != 0 && (start == 0 || m.StartedAt < start) {
			start = m.StartedAt
		}
	}
	if start != 0 {
		return start
	}
	for _, m := range g.members {
		for _, at := range [2]int64{m.StartedAt, m.CompletedAt} {
			if at != 0 && (start == 0 || at < start) {
				start = at
			}
		}
	}
	return start
}

// endAt prefers the final answer's CompletedAt, then its StartedAt when the
// row already settled, then the latest thought completion.
func (g Group) endAt() int64 {
	if fa := g.FinalAssistant; fa != nil {
		if fa.CompletedAt != 0 {
			return fa.CompletedAt
		}
		if fa.Status != protocol.StatusStreaming && fa.StartedAt != 0 {
			return fa.StartedAt
		}
	}
	var end int64
	for _, m := range g.ThoughtMessages {
		if m.CompletedAt > end {
			end = m.CompletedAt
		}
	}
	return end
}

// Preview returns the most recent non-empty reasoning or assistant fragment,
// or a placeholder while nothing has streamed in yet.
func (g Group) Preview() string {
	for i := len(g.members) - 1; i >= 0; i-- {
		m := g.members[i]
		if m.Content == "" {
			continue
		}
		if m.Role == protocol.RoleAssistant || m.Type == string(protocol.ItemReasoning) {
			return m.Content
		}
	}
	return "Working…"
}

// Label is the user-facing header string for the group: live activity while
// the turn runs, elapsed time once it settled.
func (g Group) Label() string {
	if g.ThinkingActive {
		return g.Preview()
	}
	d, ok := g.Elapsed()
	if !ok {
		return ""
	}
	return FormatElapsed(d)
}

// FormatElapsed renders a duration the way turn headers show it.
func FormatElapsed(d time.Duration) string {
	ms := d.Milliseconds()
	switch {
	case ms < 1000:
		return "<1s"
	case ms < 60_000:
		return fmt.Sprintf("%ds", int64(math.Round(float64(ms)/1000)))
	}
	total := ms / 1000
	mins, rem := total/60, total%60
	if rem == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm %ds", mins, rem)
}
