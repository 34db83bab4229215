// Package protocol defines the wire types exchanged with the relay server:
// the envelope taxonomy pushed over the stream and the JSON shapes of the
// REST surface.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EnvelopeType is the outer discriminant of a stream frame.
type EnvelopeType string

const (
	EnvelopeReady                 EnvelopeType = "ready"
	EnvelopePong                  EnvelopeType = "pong"
	EnvelopeError                 EnvelopeType = "error"
	EnvelopeSessionDeleted        EnvelopeType = "sessionDeleted"
	EnvelopeProjectUpserted       EnvelopeType = "projectUpserted"
	EnvelopeProjectDeleted        EnvelopeType = "projectDeleted"
	EnvelopeSessionProjectUpdated EnvelopeType = "sessionProjectUpdated"
	EnvelopeApprovalRequested     EnvelopeType = "approvalRequested"
	EnvelopeApprovalResolved      EnvelopeType = "approvalResolved"
	EnvelopeToolInputRequested    EnvelopeType = "toolInputRequested"
	EnvelopeToolInputResolved     EnvelopeType = "toolInputResolved"
	EnvelopePlanUpdated           EnvelopeType = "planUpdated"
	EnvelopeDiffUpdated           EnvelopeType = "diffUpdated"
	EnvelopeTokenUsageUpdated     EnvelopeType = "tokenUsageUpdated"
	EnvelopeNotification          EnvelopeType = "notification"
	EnvelopeServerRequest         EnvelopeType = "serverRequest"
)

// Envelope is one frame received over the push channel. Payload stays raw
// until the dispatcher knows which shape to decode it into.
type Envelope struct {
	Type     EnvelopeType    `json:"type"`
	ThreadID string          `json:"threadId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// DecodeEnvelope parses a raw frame. It only validates the outer shape;
// payload decoding is deferred to the dispatcher.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, errors.New("envelope missing type")
	}
	return &env, nil
}

// NotificationMethod is the second-level discriminant carried by
// "notification" envelopes.
type NotificationMethod string

const (
	MethodThreadRenamed     NotificationMethod = "threadRenamed"
	MethodTurnStarted       NotificationMethod = "turnStarted"
	MethodTurnCompleted     NotificationMethod = "turnCompleted"
	MethodTurnFailed        NotificationMethod = "turnFailed"
	MethodError             NotificationMethod = "error"
	MethodAgentMessageDelta NotificationMethod = "agentMessageDelta"
	MethodItemStarted       NotificationMethod = "itemStarted"
	MethodItemCompleted     NotificationMethod = "itemCompleted"
)

// Notification is the payload of a "notification" envelope.
type Notification struct {
	Method     NotificationMethod `json:"method"`
	Params     json.RawMessage    `json:"params,omitempty"`
	ReceivedAt int64              `json:"receivedAt,omitempty"`
}

// ServerRequest is the payload of a "serverRequest" envelope: a server-to-
// client request the engine acknowledges but does not currently act on.
type ServerRequest struct {
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
	RequestID json.RawMessage `json:"requestId,omitempty"`
}

// ErrorPayload is the payload of an outer "error" envelope and of "error"
// notifications.
type ErrorPayload struct {
	ThreadID string `json:"threadId,omitempty"`
	Message  string `json:"message"`
}

// TurnRef identifies a turn inside turn lifecycle notifications.
type TurnRef struct {
	ID     string      `json:"id"`
	Status string      `json:"status,omitempty"`
	Usage  *TokenUsage `json:"usage,omitempty"`
}

// ThreadRenamedParams carries a server-side title change.
type ThreadRenamedParams struct {
	ThreadID string `json:"threadId"`
	Title    string `json:"title"`
}

// TurnStartedParams announces that the agent began working on a turn.
type TurnStartedParams struct {
	ThreadID string  `json:"threadId"`
	Turn     TurnRef `json:"turn"`
}

// TurnCompletedParams announces that a turn finished normally or was
// canceled; Turn.Status distinguishes the two.
type TurnCompletedParams struct {
	ThreadID string  `json:"threadId"`
	Turn     TurnRef `json:"turn"`
}

// TurnFailedParams announces that a turn aborted with an error.
type TurnFailedParams struct {
	ThreadID string        `json:"threadId"`
	TurnID   string        `json:"turnId"`
	Error    *ErrorPayload `json:"error,omitempty"`
}

// AgentMessageDeltaParams extends a streaming agent message. Sequence is
// stamped by the server when available and lets the store drop redelivered
// deltas.
type AgentMessageDeltaParams struct {
	ThreadID string `json:"threadId"`
	TurnID   string `json:"turnId,omitempty"`
	ItemID   string `json:"itemId"`
	Delta    string `json:"delta"`
	Sequence int64  `json:"sequence,omitempty"`
}

// ItemParams is shared by itemStarted and itemCompleted notifications.
type ItemParams struct {
	ThreadID string     `json:"threadId"`
	TurnID   string     `json:"turnId,omitempty"`
	Item     ThreadItem `json:"item"`
}

// SessionDeletedPayload announces that a session was removed server-side.
type SessionDeletedPayload struct {
	ThreadID string `json:"threadId"`
}

// ProjectUpsertedPayload carries a created or updated project.
type ProjectUpsertedPayload struct {
	Project Project `json:"project"`
}

// ProjectDeletedPayload announces project removal.
type ProjectDeletedPayload struct {
	ProjectID string `json:"projectId"`
}

// SessionProjectUpdatedPayload moves a session between projects. An empty
// ProjectID clears the assignment.
type SessionProjectUpdatedPayload struct {
	ThreadID  string `json:"threadId"`
	ProjectID string `json:"projectId,omitempty"`
}

// PlanStepStatus values used inside planUpdated payloads.
const (
	PlanStepPending    = "pending"
	PlanStepInProgress = "inProgress"
	PlanStepCompleted  = "completed"
)

// PlanStep is one entry of the agent's published plan.
type PlanStep struct {
	Text   string `json:"text"`
	Status string `json:"status"`
}

// PlanUpdatedPayload replaces the session's current plan wholesale.
type PlanUpdatedPayload struct {
	ThreadID string     `json:"threadId"`
	TurnID   string     `json:"turnId,omitempty"`
	Steps    []PlanStep `json:"steps"`
}

// DiffUpdatedPayload replaces the session's aggregated working-tree diff.
type DiffUpdatedPayload struct {
	ThreadID string `json:"threadId"`
	Diff     string `json:"diff"`
}

// TokenUsageUpdatedPayload replaces the session's cumulative token usage.
type TokenUsageUpdatedPayload struct {
	ThreadID string     `json:"threadId"`
	Usage    TokenUsage `json:"usage"`
}

// TokenUsage mirrors the relay's cumulative per-session token counters.
type TokenUsage struct {
	InputTokens       int64 `json:"inputTokens"`
	CachedInputTokens int64 `json:"cachedInputTokens,omitempty"`
	OutputTokens      int64 `json:"outputTokens"`
	TotalTokens       int64 `json:"totalTokens"`
}

// SubscribeFrame is the first frame sent after dialing the stream.
type SubscribeFrame struct {
	Type     string `json:"type"`
	ThreadID string `json:"threadId"`
}

// PingFrame is the app-level liveness frame; the relay answers with "pong".
type PingFrame struct {
	Type string `json:"type"`
}
