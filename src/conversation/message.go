// Package conversation is the reconciliation engine: it keeps the
// transcript, the pending approval/tool-input sets, and the turn activity
// indicator consistent across baseline fetches, an unordered and
// possibly-duplicated push stream, reconnects, session switches, and
// locally-optimistic edits.
package conversation

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/quayside/coxswain/src/protocol"
)

// Synthetic message types produced locally, alongside the server's item
// types.
const (
	TypeUserMessage = "userMessage"
	TypeApproval    = "approval"
	TypeToolInput   = "toolInput"
	TypeTurnFailure = "turnError"
)

// Reserved id prefixes for locally-created rows. Server ids never collide
// with these.
const (
	optimisticPrefix  = "optimistic-"
	approvalPrefix    = "approval-"
	toolInputPrefix   = "toolinput-"
	turnFailurePrefix = "turn-failure-"
)

// Message is one transcript row. Timing fields are unix milliseconds, zero
// when unknown.
type Message struct {
	ID          string
	TurnID      string
	Role        string
	Type        string
	Content     string
	Details     json.RawMessage
	Status      string
	StartedAt   int64
	CompletedAt int64
}

// NewOptimisticID mints an id for a not-yet-confirmed local row.
func NewOptimisticID() string {
	return optimisticPrefix + uuid.NewString()
}

// IsOptimisticID reports whether id names a locally-optimistic row.
func IsOptimisticID(id string) bool {
	return strings.HasPrefix(id, optimisticPrefix)
}

// ApprovalMirrorID is the deterministic transcript id for an approval's
// mirror row, so re-delivered request events upsert instead of duplicating.
func ApprovalMirrorID(approvalID string) string {
	return approvalPrefix + approvalID
}

// ToolInputMirrorID is the deterministic transcript id for a tool-input
// request's mirror row.
func ToolInputMirrorID(requestID string) string {
	return toolInputPrefix + requestID
}

// TurnFailureID is the deterministic transcript id for a turn-failure
// entry; repeated failure signals for one turn upsert the same row.
func TurnFailureID(turnID string) string {
	return turnFailurePrefix + turnID
}

// PendingRefID extracts the approval or tool-input id a mirror row refers
// to.
func PendingRefID(id string) (string, bool) {
	if rest, ok := strings.CutPrefix(id, approvalPrefix); ok {
		return rest, true
	}
	if rest, ok := strings.CutPrefix(id, toolInputPrefix); ok {
		return rest, true
	}
	return "", false
}

// IsLocalID reports whether id belongs to a locally-synthesized row: an
// optimistic message, a pending mirror, or a turn-failure entry. Baseline
// hydration never removes these.
func IsLocalID(id string) bool {
	if _, ok := PendingRefID(id); ok {
		return true
	}
	return IsOptimisticID(id) || strings.HasPrefix(id, turnFailurePrefix)
}

// MessageFromEntry converts a fetched transcript entry.
func MessageFromEntry(e protocol.TranscriptEntry) Message {
	role := e.Role
	if role == "" {
		switch e.Type {
		case string(protocol.ItemAgentMessage):
			role = protocol.RoleAssistant
		case TypeUserMessage:
			role = protocol.RoleUser
		default:
			role = protocol.RoleSystem
		}
	}
	status := e.Status
	if status == "" {
		status = protocol.StatusComplete
	}
	return Message{
		ID:          e.MessageID,
		TurnID:      e.TurnID,
		Role:        role,
		Type:        e.Type,
		Content:     e.Content,
		Details:     e.Details,
		Status:      status,
		StartedAt:   e.StartedAt,
		CompletedAt: e.CompletedAt,
	}
}

// MessageFromItem converts a pushed thread item. Agent text renders as the
// assistant; everything else is agent work shown as system rows.
func MessageFromItem(turnID string, item protocol.ThreadItem, at int64) Message {
	role := protocol.RoleSystem
	if item.Type == protocol.ItemAgentMessage {
		role = protocol.RoleAssistant
	}
	return Message{
		ID:        item.ID,
		TurnID:    turnID,
		Role:      role,
		Type:      string(item.Type),
		Content:   item.DisplayText(),
		Details:   item.Raw,
		Status:    protocol.StatusStreaming,
		StartedAt: at,
	}
}
