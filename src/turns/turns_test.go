package turns

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quayside/coxswain/src/conversation"
	"github.com/quayside/coxswain/src/protocol"
)

func row(id, turnID, role, msgType, content string) conversation.Message {
	return conversation.Message{ID: id, TurnID: turnID, Role: role, Type: msgType, Content: content}
}

func snapOf(activeTurn string, msgs ...conversation.Message) conversation.Snapshot {
	return conversation.Snapshot{
		Messages: msgs,
		Meta:     conversation.SessionMeta{ActiveTurnID: activeTurn},
	}
}

func TestBuildPartitionsTurn(t *testing.T) {
	snap := snapOf("",
		row("u1", "turn-1", protocol.RoleUser, "userMessage", "fix the tests"),
		row("r1", "turn-1", protocol.RoleSystem, "reasoning", "Reading the failures"),
		row("c1", "turn-1", protocol.RoleSystem, "commandExecution", "go test ./..."),
		row("a1", "turn-1", protocol.RoleAssistant, "agentMessage", "Found it."),
		row("r2", "turn-1", protocol.RoleSystem, "reasoning", "Double-checking"),
		row("a2", "turn-1", protocol.RoleAssistant, "agentMessage", "Fixed, all green."),
	)

	groups := Build(snap)
	require.Len(t, groups, 1)
	g := groups[0]

	assert.Equal(t, "turn-1", g.Key)
	require.Len(t, g.UserMessages, 1)
	assert.Equal(t, "u1", g.UserMessages[0].ID)

	require.NotNil(t, g.FinalAssistant)
	assert.Equal(t, "a2", g.FinalAssistant.ID)

	// Earlier assistant rows stay in the thought list in original order.
	ids := make([]string, 0, len(g.ThoughtMessages))
	for _, m := range g.ThoughtMessages {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"r1", "c1", "a1", "r2"}, ids)
}

func TestBuildKeepsTurnlessRowsAsSingletons(t *testing.T) {
	snap := snapOf("",
		row("m1", "", protocol.RoleUser, "userMessage", "hello"),
		row("m2", "", protocol.RoleSystem, "turnError", "turn failed"),
		row("m3", "turn-1", protocol.RoleUser, "userMessage", "again"),
	)

	groups := Build(snap)
	require.Len(t, groups, 3)
	assert.Equal(t, "m1", groups[0].Key)
	assert.Equal(t, "m2", groups[1].Key)
	assert.Equal(t, "turn-1", groups[2].Key)
}

func TestBuildGroupOrderIsFirstSeen(t *testing.T) {
	snap := snapOf("",
		row("u1", "turn-1", protocol.RoleUser, "userMessage", "first"),
		row("u2", "turn-2", protocol.RoleUser, "userMessage", "second"),
		row("a1", "turn-1", protocol.RoleAssistant, "agentMessage", "late reply to the first"),
	)

	groups := Build(snap)
	require.Len(t, groups, 2)
	assert.Equal(t, "turn-1", groups[0].Key)
	assert.Equal(t, "turn-2", groups[1].Key)
	require.NotNil(t, groups[0].FinalAssistant)
	assert.Equal(t, "a1", groups[0].FinalAssistant.ID)
}

func TestThinkingActiveTracksActiveTurn(t *testing.T) {
	snap := snapOf("turn-2",
		row("u1", "turn-1", protocol.RoleUser, "userMessage", "done already"),
		row("u2", "turn-2", protocol.RoleUser, "userMessage", "still running"),
	)

	groups := Build(snap)
	require.Len(t, groups, 2)
	assert.False(t, groups[0].ThinkingActive)
	assert.True(t, groups[1].ThinkingActive)
}

func TestPendingSignatureSortedAndLiveOnly(t *testing.T) {
	snap := conversation.Snapshot{
		Messages: []conversation.Message{
			row("u1", "turn-1", protocol.RoleUser, "userMessage", "deploy it"),
			row(conversation.ApprovalMirrorID("appr-2"), "turn-1", protocol.RoleSystem, "approval", "run deploy"),
			row(conversation.ApprovalMirrorID("appr-1"), "turn-1", protocol.RoleSystem, "approval", "run migrate"),
			row(conversation.ToolInputMirrorID("req-1"), "turn-1", protocol.RoleSystem, "toolInput", "pick a region"),
			// Resolved earlier; no longer in the pending lists.
			row(conversation.ApprovalMirrorID("appr-old"), "turn-1", protocol.RoleSystem, "approval", "Approval accepted"),
		},
		Approvals: []protocol.Approval{
			{ApprovalID: "appr-2"},
			{ApprovalID: "appr-1"},
		},
		ToolInputs: []protocol.ToolInputRequest{{RequestID: "req-1"}},
	}

	groups := Build(snap)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"appr-1", "appr-2", "req-1"}, groups[0].PendingSignature)
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{400 * time.Millisecond, "<1s"},
		{999 * time.Millisecond, "<1s"},
		{time.Second, "1s"},
		{45*time.Second + 400*time.Millisecond, "45s"},
		{59*time.Second + 400*time.Millisecond, "59s"},
		{2 * time.Minute, "2m"},
		{2*time.Minute + 5*time.Second, "2m 5s"},
		{61 * time.Minute, "61m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatElapsed(tt.d), "duration %s", tt.d)
	}
}

func TestElapsedFromPromptToFinalAnswer(t *testing.T) {
	user := row("u1", "turn-1", protocol.RoleUser, "userMessage", "go")
	user.StartedAt = 1_000
	final := row("a1", "turn-1", protocol.RoleAssistant, "agentMessage", "done")
	final.Status = protocol.StatusComplete
	final.CompletedAt = 126_000

	groups := Build(snapOf("", user, final))
	require.Len(t, groups, 1)
	assert.Equal(t, "2m 5s", groups[0].Label())
}

func TestElapsedStartFallsBackToGroupTimings(t *testing.T) {
	thought := row("r1", "turn-1", protocol.RoleSystem, "reasoning", "hmm")
	thought.StartedAt = 5_000
	final := row("a1", "turn-1", protocol.RoleAssistant, "agentMessage", "done")
	final.Status = protocol.StatusComplete
	final.CompletedAt = 10_000

	groups := Build(snapOf("", thought, final))
	d, ok := groups[0].Elapsed()
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, d)
}

func TestElapsedEndFallbacks(t *testing.T) {
	user := row("u1", "turn-1", protocol.RoleUser, "userMessage", "go")
	user.StartedAt = 1_000

	// A settled final answer without CompletedAt uses its StartedAt.
	final := row("a1", "turn-1", protocol.RoleAssistant, "agentMessage", "done")
	final.Status = protocol.StatusComplete
	final.StartedAt = 31_000
	groups := Build(snapOf("", user, final))
	d, ok := groups[0].Elapsed()
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, d)

	// No final answer at all: the latest thought completion closes the
	// window.
	thought := row("c1", "turn-1", protocol.RoleSystem, "commandExecution", "go vet")
	thought.CompletedAt = 16_000
	groups = Build(snapOf("", user, thought))
	d, ok = groups[0].Elapsed()
	require.True(t, ok)
	assert.Equal(t, 15*time.Second, d)
}

func TestElapsedUnknownWithoutTimings(t *testing.T) {
	groups := Build(snapOf("",
		row("u1", "turn-1", protocol.RoleUser, "userMessage", "go"),
	))
	_, ok := groups[0].Elapsed()
	assert.False(t, ok)
	assert.Empty(t, groups[0].Label())
}

func TestPreviewShowsLatestFragment(t *testing.T) {
	snap := snapOf("turn-1",
		row("u1", "turn-1", protocol.RoleUser, "userMessage", "go"),
		row("r1", "turn-1", protocol.RoleSystem, "reasoning", "Reading the code"),
		row("c1", "turn-1", protocol.RoleSystem, "commandExecution", "go test ./..."),
	)

	groups := Build(snap)
	require.Len(t, groups, 1)
	// The command row is activity, not prose; the reasoning fragment wins.
	assert.Equal(t, "Reading the code", groups[0].Label())
}

func TestPreviewPlaceholderBeforeFirstFragment(t *testing.T) {
	snap := snapOf("turn-1",
		row("u1", "turn-1", protocol.RoleUser, "userMessage", "go"),
		row("c1", "turn-1", protocol.RoleSystem, "commandExecution", "go build"),
	)

	groups := Build(snap)
	assert.Equal(t, "Working…", groups[0].Label())
}
