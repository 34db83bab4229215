package conversation

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quayside/coxswain/src/protocol"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *Engine) {
	t.Helper()
	e, _ := newTestEngine(&fakeAPI{})
	e.Select(context.Background(), "sess-1")
	d := NewDispatcher(e, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return d, e
}

func frame(t *testing.T, envType protocol.EnvelopeType, threadID string, payload any) []byte {
	t.Helper()
	env := protocol.Envelope{Type: envType, ThreadID: threadID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		env.Payload = raw
	}
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return raw
}

func notifFrame(t *testing.T, threadID string, method protocol.NotificationMethod, params any) []byte {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	return frame(t, protocol.EnvelopeNotification, threadID, protocol.Notification{Method: method, Params: raw})
}

func TestDispatchMalformedFrameKeepsConsuming(t *testing.T) {
	d, e := newTestDispatcher(t)

	d.Dispatch([]byte(`{not json`))

	snap := e.Snapshot()
	require.Len(t, snap.Notices, 1)
	assert.Equal(t, NoticeError, snap.Notices[0].Level)

	// The channel is still being consumed: the next frame applies normally.
	d.Dispatch(notifFrame(t, "sess-1", protocol.MethodAgentMessageDelta,
		protocol.AgentMessageDeltaParams{ThreadID: "sess-1", ItemID: "a1", Delta: "hi"}))
	msg, ok := findMessage(e.Snapshot(), "a1")
	require.True(t, ok)
	assert.Equal(t, "hi", msg.Content)
}

func TestDispatchMissingPayloadDropped(t *testing.T) {
	d, e := newTestDispatcher(t)

	d.Dispatch(frame(t, protocol.EnvelopeApprovalRequested, "sess-1", nil))

	snap := e.Snapshot()
	assert.Empty(t, snap.Approvals)
	require.Len(t, snap.Notices, 1)
}

func TestDispatchUnknownTypeIgnoredSilently(t *testing.T) {
	d, e := newTestDispatcher(t)

	d.Dispatch([]byte(`{"type":"somethingNew","payload":{"x":1}}`))
	d.Dispatch(frame(t, protocol.EnvelopeReady, "", nil))
	d.Dispatch(frame(t, protocol.EnvelopePong, "", nil))

	snap := e.Snapshot()
	assert.Empty(t, snap.Notices, "unknown and liveness frames are not errors")
	assert.Empty(t, snap.Messages)
}

func TestDispatchApprovalUsesEnvelopeThreadFallback(t *testing.T) {
	d, e := newTestDispatcher(t)

	// Payload carries no threadId of its own; the envelope's fills in.
	d.Dispatch(frame(t, protocol.EnvelopeApprovalRequested, "sess-1",
		map[string]any{"approvalId": "appr-1", "summary": "run ls"}))

	snap := e.Snapshot()
	require.Len(t, snap.Approvals, 1)
	assert.Equal(t, "appr-1", snap.Approvals[0].ApprovalID)
	_, ok := findMessage(snap, ApprovalMirrorID("appr-1"))
	assert.True(t, ok)
}

func TestDispatchApprovalLifecycle(t *testing.T) {
	d, e := newTestDispatcher(t)

	d.Dispatch(frame(t, protocol.EnvelopeApprovalRequested, "sess-1",
		protocol.Approval{ApprovalID: "appr-1", ThreadID: "sess-1", Summary: "run make"}))
	require.Len(t, e.Snapshot().Approvals, 1)

	d.Dispatch(frame(t, protocol.EnvelopeApprovalResolved, "sess-1",
		protocol.ApprovalResolvedPayload{ApprovalID: "appr-1", ThreadID: "sess-1", Resolution: protocol.Resolution{Decision: "decline"}}))

	snap := e.Snapshot()
	assert.Empty(t, snap.Approvals)
	mirror, ok := findMessage(snap, ApprovalMirrorID("appr-1"))
	require.True(t, ok)
	assert.Equal(t, "Approval declined", mirror.Content)
	assert.Equal(t, protocol.StatusError, mirror.Status)
}

func TestDispatchToolInputLifecycle(t *testing.T) {
	d, e := newTestDispatcher(t)

	d.Dispatch(frame(t, protocol.EnvelopeToolInputRequested, "sess-1",
		protocol.ToolInputRequest{RequestID: "req-1", ThreadID: "sess-1", ToolName: "deploy"}))
	require.Len(t, e.Snapshot().ToolInputs, 1)

	d.Dispatch(frame(t, protocol.EnvelopeToolInputResolved, "sess-1",
		protocol.ToolInputResolvedPayload{RequestID: "req-1", ThreadID: "sess-1", Resolution: protocol.Resolution{Decision: "cancel"}}))

	snap := e.Snapshot()
	assert.Empty(t, snap.ToolInputs)
	mirror, ok := findMessage(snap, ToolInputMirrorID("req-1"))
	require.True(t, ok)
	assert.Equal(t, "Tool input canceled", mirror.Content)
}

func TestDispatchSameFrameTwiceIsHarmless(t *testing.T) {
	d, e := newTestDispatcher(t)

	raw := frame(t, protocol.EnvelopeApprovalRequested, "sess-1",
		protocol.Approval{ApprovalID: "appr-1", ThreadID: "sess-1"})
	d.Dispatch(raw)
	d.Dispatch(raw)

	snap := e.Snapshot()
	assert.Len(t, snap.Approvals, 1)
	assert.Empty(t, snap.Notices)
}

func TestDispatchTurnLifecycleNotifications(t *testing.T) {
	d, e := newTestDispatcher(t)

	d.Dispatch(notifFrame(t, "sess-1", protocol.MethodTurnStarted,
		protocol.TurnStartedParams{ThreadID: "sess-1", Turn: protocol.TurnRef{ID: "turn-1"}}))
	assert.Equal(t, "turn-1", e.Snapshot().Meta.ActiveTurnID)

	d.Dispatch(notifFrame(t, "sess-1", protocol.MethodAgentMessageDelta,
		protocol.AgentMessageDeltaParams{ThreadID: "sess-1", TurnID: "turn-1", ItemID: "a1", Delta: "Working on it"}))

	d.Dispatch(notifFrame(t, "sess-1", protocol.MethodTurnCompleted,
		protocol.TurnCompletedParams{ThreadID: "sess-1", Turn: protocol.TurnRef{ID: "turn-1", Status: protocol.TurnCompleted}}))

	snap := e.Snapshot()
	assert.Empty(t, snap.Meta.ActiveTurnID)
	msg, _ := findMessage(snap, "a1")
	assert.Equal(t, protocol.StatusComplete, msg.Status)
}

func TestDispatchItemNotifications(t *testing.T) {
	d, e := newTestDispatcher(t)

	itemRaw := json.RawMessage(`{"id":"c1","type":"commandExecution","command":"go test ./...","status":"streaming"}`)
	d.Dispatch(notifFrame(t, "sess-1", protocol.MethodItemStarted,
		protocol.ItemParams{ThreadID: "sess-1", TurnID: "turn-1", Item: protocol.ThreadItem{ID: "c1", Type: protocol.ItemCommandExecution, Raw: itemRaw}}))

	msg, ok := findMessage(e.Snapshot(), "c1")
	require.True(t, ok)
	assert.Equal(t, protocol.RoleSystem, msg.Role)
	assert.Equal(t, protocol.StatusStreaming, msg.Status)

	doneRaw := json.RawMessage(`{"id":"c1","type":"commandExecution","command":"go test ./...","exitCode":1}`)
	d.Dispatch(notifFrame(t, "sess-1", protocol.MethodItemCompleted,
		protocol.ItemParams{ThreadID: "sess-1", TurnID: "turn-1", Item: protocol.ThreadItem{ID: "c1", Type: protocol.ItemCommandExecution, Raw: doneRaw}}))

	msg, _ = findMessage(e.Snapshot(), "c1")
	assert.Equal(t, protocol.StatusError, msg.Status, "nonzero exit surfaces as an errored row")
}

func TestDispatchSessionLevelFrames(t *testing.T) {
	d, e := newTestDispatcher(t)

	d.Dispatch(notifFrame(t, "sess-1", protocol.MethodThreadRenamed,
		protocol.ThreadRenamedParams{ThreadID: "sess-1", Title: "new title"}))
	d.Dispatch(frame(t, protocol.EnvelopePlanUpdated, "sess-1",
		protocol.PlanUpdatedPayload{ThreadID: "sess-1", Steps: []protocol.PlanStep{{Text: "read code", Status: protocol.PlanStepCompleted}}}))
	d.Dispatch(frame(t, protocol.EnvelopeDiffUpdated, "sess-1",
		protocol.DiffUpdatedPayload{ThreadID: "sess-1", Diff: "--- a/main.go\n+++ b/main.go"}))
	d.Dispatch(frame(t, protocol.EnvelopeTokenUsageUpdated, "sess-1",
		protocol.TokenUsageUpdatedPayload{ThreadID: "sess-1", Usage: protocol.TokenUsage{TotalTokens: 42}}))

	snap := e.Snapshot()
	assert.Equal(t, "new title", snap.Meta.Title)
	require.Len(t, snap.Meta.Plan, 1)
	assert.Contains(t, snap.Meta.Diff, "main.go")
	assert.Equal(t, int64(42), snap.Meta.Usage.TotalTokens)

	d.Dispatch(frame(t, protocol.EnvelopeSessionDeleted, "sess-1", protocol.SessionDeletedPayload{ThreadID: "sess-1"}))
	assert.True(t, e.Snapshot().Meta.Deleted)
}

func TestDispatchOtherSessionFramesIgnored(t *testing.T) {
	d, e := newTestDispatcher(t)

	d.Dispatch(frame(t, protocol.EnvelopeApprovalRequested, "sess-other",
		protocol.Approval{ApprovalID: "appr-x", ThreadID: "sess-other"}))
	d.Dispatch(notifFrame(t, "sess-other", protocol.MethodAgentMessageDelta,
		protocol.AgentMessageDeltaParams{ThreadID: "sess-other", ItemID: "a1", Delta: "hi"}))

	snap := e.Snapshot()
	assert.Empty(t, snap.Approvals)
	assert.Empty(t, snap.Messages)
}

func TestDispatchErrorFrameSurfacesNotice(t *testing.T) {
	d, e := newTestDispatcher(t)

	d.Dispatch(frame(t, protocol.EnvelopeError, "",
		protocol.ErrorPayload{Message: "relay restarting"}))

	snap := e.Snapshot()
	require.Len(t, snap.Notices, 1)
	assert.Equal(t, "relay restarting", snap.Notices[0].Message)
}

func TestDispatchServerRequestIgnored(t *testing.T) {
	d, e := newTestDispatcher(t)

	d.Dispatch(frame(t, protocol.EnvelopeServerRequest, "sess-1",
		protocol.ServerRequest{Method: "elicitation/create"}))

	assert.Empty(t, e.Snapshot().Notices)
}
