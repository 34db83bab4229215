package protocol

import "encoding/json"

// Decision verbs accepted by the relay for approvals and tool input.
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
	DecisionCancel  Decision = "cancel"
)

// Resolution decisions additionally include "expired" when the server
// withdrew a request nobody answered.
const ResolutionExpired = "expired"

// ApprovalScope widens an accept beyond the single request.
type ApprovalScope string

const (
	ScopeTurn    ApprovalScope = "turn"
	ScopeSession ApprovalScope = "session"
)

// Approval methods the relay currently emits.
const (
	ApprovalMethodCommand    = "commandApproval"
	ApprovalMethodFileChange = "fileChangeApproval"
)

// Approval is an outstanding human-decision request blocking a turn.
type Approval struct {
	ApprovalID string          `json:"approvalId"`
	Method     string          `json:"method"`
	ThreadID   string          `json:"threadId"`
	TurnID     string          `json:"turnId,omitempty"`
	ItemID     string          `json:"itemId,omitempty"`
	Summary    string          `json:"summary,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  int64           `json:"createdAt,omitempty"`
}

// CommandApprovalDetails is the detail payload of a commandApproval.
type CommandApprovalDetails struct {
	Command string `json:"command"`
	Cwd     string `json:"cwd,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// FileChangeApprovalDetails is the detail payload of a fileChangeApproval.
type FileChangeApprovalDetails struct {
	Changes []FileChange `json:"changes"`
	Reason  string       `json:"reason,omitempty"`
}

// CommandDetails decodes the approval's details as a command approval.
func (a Approval) CommandDetails() (*CommandApprovalDetails, bool) {
	if a.Method != ApprovalMethodCommand || len(a.Details) == 0 {
		return nil, false
	}
	var d CommandApprovalDetails
	if err := json.Unmarshal(a.Details, &d); err != nil {
		return nil, false
	}
	return &d, true
}

// FileChangeDetails decodes the approval's details as a file-change
// approval.
func (a Approval) FileChangeDetails() (*FileChangeApprovalDetails, bool) {
	if a.Method != ApprovalMethodFileChange || len(a.Details) == 0 {
		return nil, false
	}
	var d FileChangeApprovalDetails
	if err := json.Unmarshal(a.Details, &d); err != nil {
		return nil, false
	}
	return &d, true
}

// Resolution records how a pending request ended.
type Resolution struct {
	Decision string `json:"decision"`
}

// ApprovalResolvedPayload is pushed when an approval stops being pending.
type ApprovalResolvedPayload struct {
	ApprovalID string     `json:"approvalId"`
	ThreadID   string     `json:"threadId"`
	Resolution Resolution `json:"resolution"`
}

// QuestionOption is one selectable answer for a tool-input question.
type QuestionOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ToolInputQuestion is a single prompt inside a tool-input request.
type ToolInputQuestion struct {
	ID          string           `json:"id"`
	Header      string           `json:"header,omitempty"`
	Question    string           `json:"question"`
	Options     []QuestionOption `json:"options,omitempty"`
	MultiSelect bool             `json:"multiSelect,omitempty"`
	Secret      bool             `json:"secret,omitempty"`
}

// ToolInputRequest asks the user for structured input a tool needs before
// the turn can proceed.
type ToolInputRequest struct {
	RequestID string              `json:"requestId"`
	ToolName  string              `json:"toolName,omitempty"`
	ThreadID  string              `json:"threadId"`
	TurnID    string              `json:"turnId,omitempty"`
	ItemID    string              `json:"itemId,omitempty"`
	Summary   string              `json:"summary,omitempty"`
	Questions []ToolInputQuestion `json:"questions,omitempty"`
	Details   json.RawMessage     `json:"details,omitempty"`
	CreatedAt int64               `json:"createdAt,omitempty"`
}

// ToolInputResolvedPayload is pushed when a tool-input request stops being
// pending.
type ToolInputResolvedPayload struct {
	RequestID  string     `json:"requestId"`
	ThreadID   string     `json:"threadId"`
	Resolution Resolution `json:"resolution"`
}
