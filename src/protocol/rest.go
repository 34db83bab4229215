package protocol

import "encoding/json"

// Roles used across transcript entries and messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Statuses shared by transcript entries, thread items, and turns.
const (
	StatusStreaming = "streaming"
	StatusComplete  = "complete"
	StatusCanceled  = "canceled"
	StatusError     = "error"
)

// Turn statuses reported in session detail responses.
const (
	TurnInProgress = "inProgress"
	TurnCompleted  = "completed"
	TurnFailed     = "failed"
	TurnCanceled   = "canceled"
)

// SessionSummary is the list/detail representation of a session.
type SessionSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	ProjectID string `json:"projectId,omitempty"`
	Archived  bool   `json:"archived,omitempty"`
	Model     string `json:"model,omitempty"`
	Cwd       string `json:"cwd,omitempty"`
	CreatedAt int64  `json:"createdAt,omitempty"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
}

// SessionPage is one cursor-paginated page of sessions.
type SessionPage struct {
	Items      []SessionSummary `json:"items"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// TranscriptEntry is the baseline (REST) form of a transcript message.
type TranscriptEntry struct {
	MessageID   string          `json:"messageId"`
	TurnID      string          `json:"turnId,omitempty"`
	Role        string          `json:"role"`
	Type        string          `json:"type"`
	Content     string          `json:"content"`
	Status      string          `json:"status"`
	Details     json.RawMessage `json:"details,omitempty"`
	StartedAt   int64           `json:"startedAt,omitempty"`
	CompletedAt int64           `json:"completedAt,omitempty"`
}

// TurnInfo summarizes one turn in a session detail response.
type TurnInfo struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ThreadInfo groups the turn summaries of a session detail response.
type ThreadInfo struct {
	Turns []TurnInfo `json:"turns"`
}

// SessionDetail is the full baseline for one session.
type SessionDetail struct {
	Session    SessionSummary    `json:"session"`
	Transcript []TranscriptEntry `json:"transcript"`
	Thread     ThreadInfo        `json:"thread"`
}

// ActiveTurnID returns the id of the in-progress turn, if any.
func (d SessionDetail) ActiveTurnID() string {
	for _, t := range d.Thread.Turns {
		if t.Status == TurnInProgress {
			return t.ID
		}
	}
	return ""
}

// ApprovalList is the baseline pending-approvals response.
type ApprovalList struct {
	Items []Approval `json:"items"`
}

// ToolInputList is the baseline pending tool-input response.
type ToolInputList struct {
	Items []ToolInputRequest `json:"items"`
}

// SendMessageRequest submits a user prompt to a session.
type SendMessageRequest struct {
	Text   string `json:"text"`
	Model  string `json:"model,omitempty"`
	Effort string `json:"effort,omitempty"`
}

// SendMessageResponse acknowledges an accepted prompt with the turn the
// relay assigned to it.
type SendMessageResponse struct {
	TurnID string `json:"turnId"`
}

// ApprovalDecisionRequest resolves one approval.
type ApprovalDecisionRequest struct {
	Decision Decision      `json:"decision"`
	Scope    ApprovalScope `json:"scope,omitempty"`
}

// ToolInputDecisionRequest resolves one tool-input request. Answers maps
// question ids to the selected or entered values.
type ToolInputDecisionRequest struct {
	Decision Decision            `json:"decision"`
	Answers  map[string][]string `json:"answers,omitempty"`
	Response json.RawMessage     `json:"response,omitempty"`
}

// InterruptRequest stops the active turn; TurnID narrows it when known.
type InterruptRequest struct {
	TurnID string `json:"turnId,omitempty"`
}

// SteerRequest injects guidance into a running turn.
type SteerRequest struct {
	Input string `json:"input"`
}

// RenameRequest retitles a session.
type RenameRequest struct {
	Title string `json:"title"`
}

// SetProjectRequest assigns a session to a project; nil clears it.
type SetProjectRequest struct {
	ProjectID *string `json:"projectId"`
}

// CreateSessionRequest opens a new session.
type CreateSessionRequest struct {
	Cwd   string `json:"cwd,omitempty"`
	Model string `json:"model,omitempty"`
}

// CreateSessionResponse wraps the created session.
type CreateSessionResponse struct {
	Session SessionSummary `json:"session"`
}

// SuggestReplyRequest asks the relay to draft the user's next message.
type SuggestReplyRequest struct {
	Draft  string `json:"draft,omitempty"`
	Model  string `json:"model,omitempty"`
	Effort string `json:"effort,omitempty"`
}

// SuggestReplyResponse carries the generated suggestion; Status reuses the
// streaming/complete/error/canceled vocabulary.
type SuggestReplyResponse struct {
	Status     string `json:"status"`
	Suggestion string `json:"suggestion,omitempty"`
	Error      string `json:"error,omitempty"`
	RequestKey string `json:"requestKey,omitempty"`
}

// Project is a user-defined grouping of sessions.
type Project struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// ProjectList is the projects baseline response.
type ProjectList struct {
	Items []Project `json:"items"`
}

// HealthResponse is the relay's liveness probe result.
type HealthResponse struct {
	Status string `json:"status"`
}
