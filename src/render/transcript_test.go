package render

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quayside/coxswain/src/conversation"
	"github.com/quayside/coxswain/src/protocol"
	"github.com/quayside/coxswain/src/turns"
)

func timedRow(id, turnID, role, msgType, content, status string, started, completed int64) conversation.Message {
	m := row(id, turnID, role, msgType, content, status)
	m.StartedAt = started
	m.CompletedAt = completed
	return m
}

func groupOf(t *testing.T, snap conversation.Snapshot) turns.Group {
	t.Helper()
	groups := turns.Build(snap)
	if len(groups) != 1 {
		t.Fatalf("expected one group, got %d", len(groups))
	}
	return groups[0]
}

func TestTurnGroupCollapsedShowsHeaderAndAnswerOnly(t *testing.T) {
	r := testRenderer()
	view := turns.NewViewState()

	snap := conversation.Snapshot{
		Messages: []conversation.Message{
			timedRow("u1", "turn-1", protocol.RoleUser, conversation.TypeUserMessage, "fix it", protocol.StatusComplete, 1_000, 0),
			row("r1", "turn-1", protocol.RoleSystem, string(protocol.ItemReasoning), "thinking hard", protocol.StatusComplete),
			timedRow("a1", "turn-1", protocol.RoleAssistant, string(protocol.ItemAgentMessage), "done, fixed", protocol.StatusComplete, 0, 126_000),
		},
	}
	g := groupOf(t, snap)
	view.Observe([]turns.Group{g})

	out := r.TurnGroup(snap, g, view)

	assert.Contains(t, out, "❯ fix it")
	assert.Contains(t, out, "▸")
	assert.Contains(t, out, "2m 5s")
	assert.Contains(t, out, "1 step")
	assert.NotContains(t, out, "thinking hard")
	assert.Contains(t, out, "done, fixed")
}

func TestTurnGroupOpenShowsThoughts(t *testing.T) {
	r := testRenderer()
	view := turns.NewViewState()

	snap := conversation.Snapshot{
		Messages: []conversation.Message{
			row("u1", "turn-1", protocol.RoleUser, conversation.TypeUserMessage, "fix it", protocol.StatusComplete),
			row("r1", "turn-1", protocol.RoleSystem, string(protocol.ItemReasoning), "thinking hard", protocol.StatusComplete),
			row("c1", "turn-1", protocol.RoleSystem, string(protocol.ItemCommandExecution), "go test ./...", protocol.StatusComplete),
		},
	}
	g := groupOf(t, snap)
	view.SetOpen(g.Key, true)

	out := r.TurnGroup(snap, g, view)

	assert.Contains(t, out, "▾")
	assert.Contains(t, out, "thinking  thinking hard")
	assert.Contains(t, out, "$ go test ./...")
	assert.Contains(t, out, "2 steps")
}

func TestTurnGroupNilViewShowsEverything(t *testing.T) {
	r := testRenderer()

	snap := conversation.Snapshot{
		Messages: []conversation.Message{
			row("r1", "turn-1", protocol.RoleSystem, string(protocol.ItemReasoning), "thinking hard", protocol.StatusComplete),
		},
	}
	out := r.TurnGroup(snap, groupOf(t, snap), nil)

	assert.Contains(t, out, "thinking hard")
}

func TestPendingOnlyModeFiltersThoughts(t *testing.T) {
	r := testRenderer()
	view := turns.NewViewState()

	snap := conversation.Snapshot{
		Messages: []conversation.Message{
			row("r1", "turn-1", protocol.RoleSystem, string(protocol.ItemReasoning), "thinking hard", protocol.StatusComplete),
			row(conversation.ApprovalMirrorID("appr-1"), "turn-1", protocol.RoleSystem, conversation.TypeApproval, "Run tests?", protocol.StatusStreaming),
		},
		Approvals: []protocol.Approval{
			{ApprovalID: "appr-1", Method: protocol.ApprovalMethodCommand},
		},
	}
	g := groupOf(t, snap)
	view.Observe([]turns.Group{g})
	assert.Equal(t, turns.ModePendingOnly, view.Mode(g.Key))

	out := r.TurnGroup(snap, g, view)

	assert.Contains(t, out, "Run tests?")
	assert.NotContains(t, out, "thinking hard")
}

func TestUserLineMarksSendStates(t *testing.T) {
	r := testRenderer()

	sending := r.userLine(row("o1", "", protocol.RoleUser, conversation.TypeUserMessage, "hello", protocol.StatusStreaming))
	assert.Contains(t, sending, "(sending…)")

	failed := r.userLine(row("o1", "", protocol.RoleUser, conversation.TypeUserMessage, "hello", protocol.StatusError))
	assert.Contains(t, failed, "(send failed)")
}

func TestFinalAnswerStreamingCursor(t *testing.T) {
	r := testRenderer()

	out := r.finalAnswer(row("a1", "turn-1", protocol.RoleAssistant, string(protocol.ItemAgentMessage), "partial answer", protocol.StatusStreaming))
	assert.Contains(t, out, "partial answer")
	assert.Contains(t, out, "▍")

	settled := r.finalAnswer(row("a1", "turn-1", protocol.RoleAssistant, string(protocol.ItemAgentMessage), "full answer", protocol.StatusComplete))
	assert.NotContains(t, settled, "▍")
}

func TestThoughtLineFailureStyling(t *testing.T) {
	r := testRenderer()

	out := r.thoughtLine(row(conversation.TurnFailureID("turn-1"), "turn-1", protocol.RoleSystem, conversation.TypeTurnFailure, "model overloaded", protocol.StatusError))
	assert.Contains(t, out, "✗")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "model overloaded")
}

func TestItemTags(t *testing.T) {
	tests := []struct {
		msgType string
		want    string
	}{
		{string(protocol.ItemReasoning), "thinking"},
		{string(protocol.ItemCommandExecution), "command"},
		{string(protocol.ItemFileChange), "files"},
		{string(protocol.ItemWebSearch), "search"},
		{string(protocol.ItemMCPToolCall), "tool"},
		{conversation.TypeApproval, "approval"},
		{conversation.TypeToolInput, "input"},
		{conversation.TypeTurnFailure, "failed"},
		{"somethingNew", "activity"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, itemTag(tt.msgType), tt.msgType)
	}
}
