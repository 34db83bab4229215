package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quayside/coxswain/src/protocol"
)

func testApproval(id string) protocol.Approval {
	return protocol.Approval{
		ApprovalID: id,
		Method:     protocol.ApprovalMethodCommand,
		ThreadID:   "sess-1",
		TurnID:     "turn-1",
		Summary:    "run ls",
	}
}

func testToolInput(id string) protocol.ToolInputRequest {
	return protocol.ToolInputRequest{
		RequestID: id,
		ToolName:  "deploy",
		ThreadID:  "sess-1",
		Questions: []protocol.ToolInputQuestion{{ID: "q1", Question: "Which region?"}},
	}
}

func TestUpsertAndResolveApproval(t *testing.T) {
	p := NewTracker()

	require.True(t, p.UpsertApproval(testApproval("appr-1")))
	require.Len(t, p.Approvals(), 1)

	_, removed := p.ResolveApproval("appr-1")
	assert.True(t, removed)
	assert.Empty(t, p.Approvals())

	// A late redelivery of the request must not resurrect it.
	assert.False(t, p.UpsertApproval(testApproval("appr-1")))
	assert.Empty(t, p.Approvals())
}

func TestHydrationOrderIndependence(t *testing.T) {
	// Order 1: the empty baseline applies first, then the push.
	a := NewTracker()
	issued := a.LiveEvents()
	a.HydrateApprovals(nil, issued)
	a.UpsertApproval(testApproval("appr-1"))

	// Order 2: the push is observed while the same fetch is in flight, so
	// the response merges as a union and cannot remove the approval.
	b := NewTracker()
	issued = b.LiveEvents()
	b.UpsertApproval(testApproval("appr-1"))
	b.HydrateApprovals(nil, issued)

	require.Len(t, a.Approvals(), 1)
	require.Len(t, b.Approvals(), 1)
	assert.Equal(t, a.Approvals(), b.Approvals())
}

func TestHydrationWithoutInterveningEventsReplaces(t *testing.T) {
	p := NewTracker()
	p.UpsertApproval(testApproval("appr-old"))

	// Fetch issued after the push; the response is authoritative.
	issued := p.LiveEvents()
	p.HydrateApprovals([]protocol.Approval{testApproval("appr-new")}, issued)

	got := p.Approvals()
	require.Len(t, got, 1)
	assert.Equal(t, "appr-new", got[0].ApprovalID)
}

func TestHydrationUnionKeepsBothSides(t *testing.T) {
	p := NewTracker()
	issued := p.LiveEvents()
	p.UpsertApproval(testApproval("appr-live"))

	p.HydrateApprovals([]protocol.Approval{testApproval("appr-fetched")}, issued)

	got := p.Approvals()
	require.Len(t, got, 2)
	assert.Equal(t, "appr-live", got[0].ApprovalID)
	assert.Equal(t, "appr-fetched", got[1].ApprovalID)
}

func TestTombstoneBlocksHydrationResurrection(t *testing.T) {
	p := NewTracker()
	issued := p.LiveEvents()
	p.UpsertApproval(testApproval("appr-1"))
	p.ResolveApproval("appr-1")

	// The stale response still lists the approval; the tombstone wins.
	p.HydrateApprovals([]protocol.Approval{testApproval("appr-1")}, issued)
	assert.Empty(t, p.Approvals())

	// Same for a fresh, authoritative response.
	p.HydrateApprovals([]protocol.Approval{testApproval("appr-1")}, p.LiveEvents())
	assert.Empty(t, p.Approvals())
}

func TestResolveUnknownStillTombstones(t *testing.T) {
	p := NewTracker()
	_, removed := p.ResolveApproval("appr-ghost")
	assert.False(t, removed)

	p.HydrateApprovals([]protocol.Approval{testApproval("appr-ghost")}, p.LiveEvents())
	assert.Empty(t, p.Approvals())
}

func TestToolInputLifecycle(t *testing.T) {
	p := NewTracker()

	require.True(t, p.UpsertToolInput(testToolInput("req-1")))
	require.True(t, p.UpsertToolInput(testToolInput("req-2")))
	require.Len(t, p.ToolInputs(), 2)

	got, ok := p.ToolInput("req-1")
	require.True(t, ok)
	assert.Equal(t, "deploy", got.ToolName)

	_, removed := p.ResolveToolInput("req-1")
	assert.True(t, removed)

	remaining := p.ToolInputs()
	require.Len(t, remaining, 1)
	assert.Equal(t, "req-2", remaining[0].RequestID)

	assert.False(t, p.UpsertToolInput(testToolInput("req-1")))
}

func TestToolInputHydrationRace(t *testing.T) {
	p := NewTracker()
	issued := p.LiveEvents()
	p.UpsertToolInput(testToolInput("req-1"))

	p.HydrateToolInputs(nil, issued)

	require.Len(t, p.ToolInputs(), 1, "an in-flight empty fetch must not blank a live request")
}

func TestResetClearsTombstones(t *testing.T) {
	p := NewTracker()
	p.UpsertApproval(testApproval("appr-1"))
	p.ResolveApproval("appr-1")

	p.Reset()

	assert.True(t, p.UpsertApproval(testApproval("appr-1")), "tombstones are per session")
	assert.Equal(t, uint64(1), p.LiveEvents())
}
