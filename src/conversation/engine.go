package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/quayside/coxswain/src/protocol"
	"github.com/quayside/coxswain/src/relayclient"
	"github.com/quayside/coxswain/src/schema"
)

var (
	ErrNoSession  = errors.New("no session selected")
	ErrNoTurn     = errors.New("no active turn")
	ErrNotPending = errors.New("not in the pending set")
)

// API is the subset of the relay REST client the engine calls.
type API interface {
	GetSession(ctx context.Context, sessionID string) (*protocol.SessionDetail, error)
	ListApprovals(ctx context.Context, sessionID string) ([]protocol.Approval, error)
	ListToolInput(ctx context.Context, sessionID string) ([]protocol.ToolInputRequest, error)
	SendMessage(ctx context.Context, sessionID string, req protocol.SendMessageRequest) (*protocol.SendMessageResponse, error)
	DecideApproval(ctx context.Context, approvalID string, req protocol.ApprovalDecisionRequest) error
	DecideToolInput(ctx context.Context, requestID string, req protocol.ToolInputDecisionRequest) error
	Interrupt(ctx context.Context, sessionID, turnID string) error
	Steer(ctx context.Context, sessionID, turnID, input string) error
	Rename(ctx context.Context, sessionID, title string) error
	Archive(ctx context.Context, sessionID string) error
	Unarchive(ctx context.Context, sessionID string) error
	SetProject(ctx context.Context, sessionID string, projectID *string) error
	SuggestReply(ctx context.Context, sessionID string, req protocol.SuggestReplyRequest) (*protocol.SuggestReplyResponse, error)
}

// Link is the engine's handle to the stream manager.
type Link interface {
	Subscribe(threadID string)
	Reconnect()
	ArmSendWatch(threadID, turnID string)
	AckActivity(threadID string)
}

// Recorder persists the last-selected session pointer.
type Recorder interface {
	RecordSelected(ctx context.Context, threadID string) error
}

// NoticeLevel classifies a user-visible notice.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is one user-visible event line, kept in a bounded ring.
type Notice struct {
	Level   NoticeLevel
	Message string
	At      int64
}

const maxNotices = 20

// ConnState is the perceived push-channel state as reported by the stream
// manager.
type ConnState struct {
	Status  string
	Attempt int
}

// Suggestion holds the latest suggested-reply result. Seq orders competing
// requests; only the most recently issued one may land.
type Suggestion struct {
	Seq     uint64
	Pending bool
	Text    string
	Err     string
}

// SessionMeta is the per-session header state maintained from baseline
// fetches and push events.
type SessionMeta struct {
	Title        string
	Model        string
	Cwd          string
	ProjectID    string
	ActiveTurnID string
	Archived     bool
	Deleted      bool
	Plan         []protocol.PlanStep
	Diff         string
	Usage        protocol.TokenUsage
}

// Snapshot is a read-only copy of the engine state handed to consumers.
type Snapshot struct {
	ThreadID   string
	Meta       SessionMeta
	Messages   []Message
	Approvals  []protocol.Approval
	ToolInputs []protocol.ToolInputRequest
	Projects   []protocol.Project
	Connection ConnState
	Notices    []Notice
	Suggestion Suggestion
}

// EngineConfig wires the engine's collaborators. Clock is a test seam and
// defaults to time.Now.
type EngineConfig struct {
	API      API
	Link     Link
	Recorder Recorder
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Engine owns the transcript, the pending tracker, and session meta. One
// mutex serializes push frames and request/response callbacks, so the store
// merge rules see operations one at a time.
type Engine struct {
	api      API
	link     Link
	recorder Recorder
	logger   *slog.Logger
	clock    func() time.Time

	mu         sync.Mutex
	threadID   string
	meta       SessionMeta
	transcript *Transcript
	pending    *Tracker
	projects   map[string]protocol.Project
	conn       ConnState
	notices    []Notice
	suggestSeq uint64
	suggestion Suggestion

	updates chan struct{}
}

func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		api:        cfg.API,
		link:       cfg.Link,
		recorder:   cfg.Recorder,
		logger:     logger.With("component", "engine"),
		clock:      clock,
		transcript: NewTranscript(),
		pending:    NewTracker(),
		projects:   make(map[string]protocol.Project),
		conn:       ConnState{Status: "disconnected"},
		updates:    make(chan struct{}, 1),
	}
}

// Updates returns a coalescing tick channel: one receive means the snapshot
// changed at least once since the last receive.
func (e *Engine) Updates() <-chan struct{} {
	return e.updates
}

// ThreadID returns the currently selected session id.
func (e *Engine) ThreadID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.threadID
}

// Select switches to a session: previous store state is torn down, the
// selection pointer is persisted, and the push channel re-subscribes.
// Callers follow up with Refresh to pull the baseline.
func (e *Engine) Select(ctx context.Context, threadID string) {
	e.mu.Lock()
	e.threadID = threadID
	e.meta = SessionMeta{}
	e.transcript.Reset()
	e.pending.Reset()
	e.suggestSeq++
	e.suggestion = Suggestion{}
	e.mu.Unlock()

	if e.recorder != nil {
		if err := e.recorder.RecordSelected(ctx, threadID); err != nil {
			e.logger.Warn("failed to persist selected session", "error", err)
		}
	}
	if e.link != nil {
		e.link.Subscribe(threadID)
	}
	e.signal()
}

// Refresh pulls the three baselines (transcript, approvals, tool inputs)
// and applies each through the staleness guard. Failures surface as notices
// and leave the live-maintained state in place; the first error is
// returned.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	threadID := e.threadID
	e.mu.Unlock()
	if threadID == "" {
		return ErrNoSession
	}

	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	detail, err := e.api.GetSession(ctx, threadID)
	if err != nil {
		e.AddNotice(NoticeError, "failed to load transcript: "+err.Error())
		keep(fmt.Errorf("get session: %w", err))
	} else {
		e.applyTranscriptBaseline(threadID, detail)
	}

	issued := e.pendingEvents()
	approvals, err := e.api.ListApprovals(ctx, threadID)
	if err != nil {
		e.AddNotice(NoticeError, "failed to load approvals: "+err.Error())
		keep(fmt.Errorf("list approvals: %w", err))
	} else {
		e.applyApprovalsBaseline(threadID, approvals, issued)
	}

	issued = e.pendingEvents()
	toolInputs, err := e.api.ListToolInput(ctx, threadID)
	if err != nil {
		e.AddNotice(NoticeError, "failed to load tool-input requests: "+err.Error())
		keep(fmt.Errorf("list tool input: %w", err))
	} else {
		e.applyToolInputsBaseline(threadID, toolInputs, issued)
	}

	return firstErr
}

// SendMessage inserts an optimistic user row, submits the text, and arms
// the send-acknowledgement watchdog with the assigned turn id. On failure
// the optimistic row is marked errored and kept so the user sees what did
// not go through.
func (e *Engine) SendMessage(ctx context.Context, text string) (string, error) {
	e.mu.Lock()
	threadID := e.threadID
	if threadID == "" {
		e.mu.Unlock()
		return "", ErrNoSession
	}
	id := NewOptimisticID()
	e.transcript.Upsert(Message{
		ID:        id,
		Role:      protocol.RoleUser,
		Type:      TypeUserMessage,
		Content:   text,
		Status:    protocol.StatusComplete,
		StartedAt: e.nowMillis(),
	})
	e.mu.Unlock()
	e.signal()

	resp, err := e.api.SendMessage(ctx, threadID, protocol.SendMessageRequest{Text: text})
	if err != nil {
		e.mu.Lock()
		if e.threadID == threadID {
			e.transcript.SetStatus(id, protocol.StatusError)
		}
		e.mu.Unlock()
		e.AddNotice(NoticeError, "failed to send message: "+err.Error())
		return "", fmt.Errorf("send message: %w", err)
	}

	turnID := ""
	if resp != nil {
		turnID = resp.TurnID
	}
	e.mu.Lock()
	if e.threadID == threadID && turnID != "" {
		e.meta.ActiveTurnID = turnID
	}
	e.mu.Unlock()
	if e.link != nil {
		e.link.ArmSendWatch(threadID, turnID)
	}
	e.signal()
	return turnID, nil
}

// DecideApproval submits a decision. On success, or on a 404 meaning the
// server already considers it resolved, the entry is removed and its mirror
// rewritten immediately without waiting for the corroborating push. On any
// other failure the entry stays pending for retry.
func (e *Engine) DecideApproval(ctx context.Context, approvalID string, decision protocol.Decision, scope protocol.ApprovalScope) error {
	e.mu.Lock()
	threadID := e.threadID
	_, ok := e.pending.Approval(approvalID)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("approval %s: %w", approvalID, ErrNotPending)
	}

	err := e.api.DecideApproval(ctx, approvalID, protocol.ApprovalDecisionRequest{Decision: decision, Scope: scope})
	if err != nil && !errors.Is(err, relayclient.ErrNotFound) {
		e.AddNotice(NoticeError, "failed to submit approval decision: "+err.Error())
		return fmt.Errorf("decide approval: %w", err)
	}

	e.mu.Lock()
	if e.threadID == threadID {
		if _, removed := e.pending.ResolveApproval(approvalID); removed {
			e.resolveMirrorLocked(ApprovalMirrorID(approvalID), TypeApproval, string(decision))
		}
	}
	e.mu.Unlock()
	e.signal()
	return nil
}

// DecideToolInput validates the answers against the request's question
// schema, then submits; resolution semantics match DecideApproval.
func (e *Engine) DecideToolInput(ctx context.Context, requestID string, decision protocol.Decision, answers map[string][]string) error {
	e.mu.Lock()
	threadID := e.threadID
	req, ok := e.pending.ToolInput(requestID)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("tool-input request %s: %w", requestID, ErrNotPending)
	}

	if decision == protocol.DecisionAccept {
		if err := schema.ValidateAnswers(req.Questions, answers); err != nil {
			return fmt.Errorf("validate answers: %w", err)
		}
	}

	err := e.api.DecideToolInput(ctx, requestID, protocol.ToolInputDecisionRequest{Decision: decision, Answers: answers})
	if err != nil && !errors.Is(err, relayclient.ErrNotFound) {
		e.AddNotice(NoticeError, "failed to submit tool input: "+err.Error())
		return fmt.Errorf("decide tool input: %w", err)
	}

	e.mu.Lock()
	if e.threadID == threadID {
		if _, removed := e.pending.ResolveToolInput(requestID); removed {
			e.resolveMirrorLocked(ToolInputMirrorID(requestID), TypeToolInput, string(decision))
		}
	}
	e.mu.Unlock()
	e.signal()
	return nil
}

// Interrupt asks the relay to stop the active turn. A conflict response
// means nothing is running, which is not an error worth failing on.
func (e *Engine) Interrupt(ctx context.Context) error {
	e.mu.Lock()
	threadID, turnID := e.threadID, e.meta.ActiveTurnID
	e.mu.Unlock()
	if threadID == "" {
		return ErrNoSession
	}

	err := e.api.Interrupt(ctx, threadID, turnID)
	if errors.Is(err, relayclient.ErrNoActiveTurn) {
		e.AddNotice(NoticeInfo, "nothing to interrupt")
		return nil
	}
	if err != nil {
		e.AddNotice(NoticeError, "failed to interrupt: "+err.Error())
		return fmt.Errorf("interrupt: %w", err)
	}
	return nil
}

// Steer injects additional input into the active turn.
func (e *Engine) Steer(ctx context.Context, input string) error {
	e.mu.Lock()
	threadID, turnID := e.threadID, e.meta.ActiveTurnID
	e.mu.Unlock()
	if threadID == "" {
		return ErrNoSession
	}
	if turnID == "" {
		return ErrNoTurn
	}

	if err := e.api.Steer(ctx, threadID, turnID, input); err != nil {
		e.AddNotice(NoticeError, "failed to steer: "+err.Error())
		return fmt.Errorf("steer: %w", err)
	}
	return nil
}

// Rename sets the session title; the authoritative value still arrives via
// the threadRenamed notification.
func (e *Engine) Rename(ctx context.Context, title string) error {
	e.mu.Lock()
	threadID := e.threadID
	e.mu.Unlock()
	if threadID == "" {
		return ErrNoSession
	}
	if err := e.api.Rename(ctx, threadID, title); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	e.mu.Lock()
	if e.threadID == threadID {
		e.meta.Title = title
	}
	e.mu.Unlock()
	e.signal()
	return nil
}

// Archive marks the session archived.
func (e *Engine) Archive(ctx context.Context) error {
	return e.setArchived(ctx, true)
}

// Unarchive clears the archived flag.
func (e *Engine) Unarchive(ctx context.Context) error {
	return e.setArchived(ctx, false)
}

func (e *Engine) setArchived(ctx context.Context, archived bool) error {
	e.mu.Lock()
	threadID := e.threadID
	e.mu.Unlock()
	if threadID == "" {
		return ErrNoSession
	}
	var err error
	if archived {
		err = e.api.Archive(ctx, threadID)
	} else {
		err = e.api.Unarchive(ctx, threadID)
	}
	if err != nil {
		return fmt.Errorf("set archived: %w", err)
	}
	e.mu.Lock()
	if e.threadID == threadID {
		e.meta.Archived = archived
	}
	e.mu.Unlock()
	e.signal()
	return nil
}

// AssignProject moves the session into a project; nil clears it.
func (e *Engine) AssignProject(ctx context.Context, projectID *string) error {
	e.mu.Lock()
	threadID := e.threadID
	e.mu.Unlock()
	if threadID == "" {
		return ErrNoSession
	}
	if err := e.api.SetProject(ctx, threadID, projectID); err != nil {
		return fmt.Errorf("set project: %w", err)
	}
	e.mu.Lock()
	if e.threadID == threadID {
		if projectID == nil {
			e.meta.ProjectID = ""
		} else {
			e.meta.ProjectID = *projectID
		}
	}
	e.mu.Unlock()
	e.signal()
	return nil
}

// SuggestReply requests a generated reply for the draft. Requests carry a
// monotonically increasing sequence token; a result only lands while it is
// still the newest request for the same session.
func (e *Engine) SuggestReply(ctx context.Context, draft string) {
	e.mu.Lock()
	threadID := e.threadID
	if threadID == "" {
		e.mu.Unlock()
		return
	}
	e.suggestSeq++
	seq := e.suggestSeq
	e.suggestion = Suggestion{Seq: seq, Pending: true}
	e.mu.Unlock()
	e.signal()

	go func() {
		resp, err := e.api.SuggestReply(ctx, threadID, protocol.SuggestReplyRequest{Draft: draft})
		if err != nil {
			e.applySuggestion(threadID, seq, "", err.Error())
			return
		}
		e.applySuggestion(threadID, seq, resp.Suggestion, resp.Error)
	}()
}

// applySuggestion commits a suggested-reply result unless a newer request
// or a session switch superseded it.
func (e *Engine) applySuggestion(threadID string, seq uint64, text, errText string) {
	e.mu.Lock()
	if e.threadID != threadID || seq != e.suggestSeq {
		e.mu.Unlock()
		return
	}
	e.suggestion = Suggestion{Seq: seq, Text: text, Err: errText}
	e.mu.Unlock()
	e.signal()
}

// Snapshot returns a read-only copy of the engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	meta := e.meta
	meta.Plan = append([]protocol.PlanStep(nil), e.meta.Plan...)

	projects := make([]protocol.Project, 0, len(e.projects))
	for _, p := range e.projects {
		projects = append(projects, p)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })

	return Snapshot{
		ThreadID:   e.threadID,
		Meta:       meta,
		Messages:   e.transcript.Messages(),
		Approvals:  e.pending.Approvals(),
		ToolInputs: e.pending.ToolInputs(),
		Projects:   projects,
		Connection: e.conn,
		Notices:    append([]Notice(nil), e.notices...),
		Suggestion: e.suggestion,
	}
}

// AddNotice appends to the bounded notice ring.
func (e *Engine) AddNotice(level NoticeLevel, message string) {
	e.mu.Lock()
	e.notices = append(e.notices, Notice{Level: level, Message: message, At: e.nowMillis()})
	if len(e.notices) > maxNotices {
		e.notices = e.notices[len(e.notices)-maxNotices:]
	}
	e.mu.Unlock()
	e.signal()
}

// SetConnState records the stream manager's state transitions.
func (e *Engine) SetConnState(status string, attempt int) {
	e.mu.Lock()
	e.conn = ConnState{Status: status, Attempt: attempt}
	e.mu.Unlock()
	e.signal()
}

// HandleSendTimeout reacts to the send-ack watchdog firing: the streaming
// indicator stops and a user-visible error surfaces. The stream manager has
// already flipped its state to disconnected.
func (e *Engine) HandleSendTimeout(threadID, turnID string) {
	e.mu.Lock()
	if e.threadID == threadID {
		if turnID == "" || e.meta.ActiveTurnID == turnID {
			e.meta.ActiveTurnID = ""
		}
	}
	e.mu.Unlock()
	e.AddNotice(NoticeError, "no response to the sent message; connection appears disconnected")
}

// HandleThreadRenamed applies the authoritative title.
func (e *Engine) HandleThreadRenamed(p protocol.ThreadRenamedParams) {
	e.mu.Lock()
	if !e.sameThreadLocked(p.ThreadID) {
		e.mu.Unlock()
		return
	}
	e.meta.Title = p.Title
	e.mu.Unlock()
	e.signal()
}

// HandleTurnStarted marks the turn active.
func (e *Engine) HandleTurnStarted(p protocol.TurnStartedParams) {
	e.mu.Lock()
	if !e.sameThreadLocked(p.ThreadID) {
		e.mu.Unlock()
		return
	}
	e.meta.ActiveTurnID = p.Turn.ID
	e.mu.Unlock()
	e.ack(p.ThreadID)
	e.signal()
}

// HandleTurnCompleted clears the activity indicator and closes out any rows
// the item stream left mid-flight.
func (e *Engine) HandleTurnCompleted(p protocol.TurnCompletedParams) {
	e.mu.Lock()
	if !e.sameThreadLocked(p.ThreadID) {
		e.mu.Unlock()
		return
	}
	status := protocol.StatusComplete
	if p.Turn.Status == protocol.TurnCanceled {
		status = protocol.StatusCanceled
	}
	e.transcript.CloseTurn(p.Turn.ID, status, e.nowMillis())
	if e.meta.ActiveTurnID == p.Turn.ID {
		e.meta.ActiveTurnID = ""
	}
	if p.Turn.Usage != nil {
		e.meta.Usage = *p.Turn.Usage
	}
	e.mu.Unlock()
	e.ack(p.ThreadID)
	e.signal()
}

// HandleTurnFailed synthesizes a deterministic system error row for the
// turn, so repeated failure notifications upsert rather than duplicate.
func (e *Engine) HandleTurnFailed(p protocol.TurnFailedParams) {
	e.mu.Lock()
	if !e.sameThreadLocked(p.ThreadID) {
		e.mu.Unlock()
		return
	}
	now := e.nowMillis()
	content := "turn failed"
	if p.Error != nil && p.Error.Message != "" {
		content = p.Error.Message
	}
	e.transcript.Upsert(Message{
		ID:          TurnFailureID(p.TurnID),
		TurnID:      p.TurnID,
		Role:        protocol.RoleSystem,
		Type:        TypeTurnFailure,
		Content:     content,
		Status:      protocol.StatusError,
		CompletedAt: now,
	})
	e.transcript.CloseTurn(p.TurnID, protocol.StatusError, now)
	if e.meta.ActiveTurnID == p.TurnID {
		e.meta.ActiveTurnID = ""
	}
	e.mu.Unlock()
	e.ack(p.ThreadID)
	e.signal()
}

// HandleAgentDelta extends streamed assistant text.
func (e *Engine) HandleAgentDelta(p protocol.AgentMessageDeltaParams) {
	e.mu.Lock()
	if !e.sameThreadLocked(p.ThreadID) {
		e.mu.Unlock()
		return
	}
	e.transcript.ApplyDelta(p.ItemID, p.TurnID, p.Delta, p.Sequence, e.nowMillis())
	e.mu.Unlock()
	e.ack(p.ThreadID)
	e.signal()
}

// HandleItemStarted upserts a streaming row for the item.
func (e *Engine) HandleItemStarted(p protocol.ItemParams) {
	e.mu.Lock()
	if !e.sameThreadLocked(p.ThreadID) {
		e.mu.Unlock()
		return
	}
	e.transcript.Upsert(MessageFromItem(p.TurnID, p.Item, e.nowMillis()))
	e.mu.Unlock()
	e.ack(p.ThreadID)
	e.signal()
}

// HandleItemCompleted applies the item's authoritative final form. For
// agent text that replaces whatever the deltas accumulated.
func (e *Engine) HandleItemCompleted(p protocol.ItemParams) {
	e.mu.Lock()
	if !e.sameThreadLocked(p.ThreadID) {
		e.mu.Unlock()
		return
	}
	now := e.nowMillis()
	details := p.Item.Decode()
	switch {
	case details.AgentMessage != nil:
		e.transcript.Complete(p.Item.ID, details.AgentMessage.Text, now)
		e.transcript.Upsert(Message{
			ID:      p.Item.ID,
			TurnID:  p.TurnID,
			Role:    protocol.RoleAssistant,
			Type:    string(p.Item.Type),
			Details: p.Item.Raw,
		})
	default:
		msg := MessageFromItem(p.TurnID, p.Item, now)
		msg.Status = completedItemStatus(details)
		msg.CompletedAt = now
		e.transcript.Upsert(msg)
	}
	e.mu.Unlock()
	e.ack(p.ThreadID)
	e.signal()
}

// HandleApprovalRequested adds the approval to the pending set and mirrors
// it into the transcript.
func (e *Engine) HandleApprovalRequested(a protocol.Approval) {
	e.mu.Lock()
	if !e.sameThreadLocked(a.ThreadID) {
		e.mu.Unlock()
		return
	}
	if e.pending.UpsertApproval(a) {
		e.transcript.Upsert(approvalMirror(a, e.nowMillis()))
	}
	e.mu.Unlock()
	e.signal()
}

// HandleApprovalResolved removes the approval and rewrites its mirror with
// the decision outcome.
func (e *Engine) HandleApprovalResolved(p protocol.ApprovalResolvedPayload) {
	e.mu.Lock()
	if !e.sameThreadLocked(p.ThreadID) {
		e.mu.Unlock()
		return
	}
	_, removed := e.pending.ResolveApproval(p.ApprovalID)
	mirrorID := ApprovalMirrorID(p.ApprovalID)
	if _, exists := e.transcript.Get(mirrorID); removed || exists {
		e.resolveMirrorLocked(mirrorID, TypeApproval, p.Resolution.Decision)
	}
	e.mu.Unlock()
	e.signal()
}

// HandleToolInputRequested adds the request to the pending set and mirrors
// it into the transcript.
func (e *Engine) HandleToolInputRequested(r protocol.ToolInputRequest) {
	e.mu.Lock()
	if !e.sameThreadLocked(r.ThreadID) {
		e.mu.Unlock()
		return
	}
	if e.pending.UpsertToolInput(r) {
		e.transcript.Upsert(toolInputMirror(r, e.nowMillis()))
	}
	e.mu.Unlock()
	e.signal()
}

// HandleToolInputResolved removes the request and rewrites its mirror.
func (e *Engine) HandleToolInputResolved(p protocol.ToolInputResolvedPayload) {
	e.mu.Lock()
	if !e.sameThreadLocked(p.ThreadID) {
		e.mu.Unlock()
		return
	}
	_, removed := e.pending.ResolveToolInput(p.RequestID)
	mirrorID := ToolInputMirrorID(p.RequestID)
	if _, exists := e.transcript.Get(mirrorID); removed || exists {
		e.resolveMirrorLocked(mirrorID, TypeToolInput, p.Resolution.Decision)
	}
	e.mu.Unlock()
	e.signal()
}

// HandlePlanUpdated replaces the plan steps.
func (e *Engine) HandlePlanUpdated(p protocol.PlanUpdatedPayload) {
	e.mu.Lock()
	if !e.sameThreadLocked(p.ThreadID) {
		e.mu.Unlock()
		return
	}
	e.meta.Plan = append([]protocol.PlanStep(nil), p.Steps...)
	e.mu.Unlock()
	e.signal()
}

// HandleDiffUpdated replaces the aggregated working-tree diff.
func (e *Engine) HandleDiffUpdated(p protocol.DiffUpdatedPayload) {
	e.mu.Lock()
	if !e.sameThreadLocked(p.ThreadID) {
		e.mu.Unlock()
		return
	}
	e.meta.Diff = p.Diff
	e.mu.Unlock()
	e.signal()
}

// HandleTokenUsage replaces the running token counters.
func (e *Engine) HandleTokenUsage(p protocol.TokenUsageUpdatedPayload) {
	e.mu.Lock()
	if !e.sameThreadLocked(p.ThreadID) {
		e.mu.Unlock()
		return
	}
	e.meta.Usage = p.Usage
	e.mu.Unlock()
	e.signal()
}

// HandleSessionDeleted marks the session gone.
func (e *Engine) HandleSessionDeleted(p protocol.SessionDeletedPayload) {
	e.mu.Lock()
	if !e.sameThreadLocked(p.ThreadID) {
		e.mu.Unlock()
		return
	}
	e.meta.Deleted = true
	e.meta.ActiveTurnID = ""
	e.mu.Unlock()
	e.AddNotice(NoticeInfo, "session was deleted on the server")
}

// HandleSessionProjectUpdated applies a project assignment change.
func (e *Engine) HandleSessionProjectUpdated(p protocol.SessionProjectUpdatedPayload) {
	e.mu.Lock()
	if !e.sameThreadLocked(p.ThreadID) {
		e.mu.Unlock()
		return
	}
	e.meta.ProjectID = p.ProjectID
	e.mu.Unlock()
	e.signal()
}

// HandleProjectUpserted maintains the project catalog.
func (e *Engine) HandleProjectUpserted(p protocol.ProjectUpsertedPayload) {
	e.mu.Lock()
	e.projects[p.Project.ID] = p.Project
	e.mu.Unlock()
	e.signal()
}

// HandleProjectDeleted drops a project from the catalog.
func (e *Engine) HandleProjectDeleted(p protocol.ProjectDeletedPayload) {
	e.mu.Lock()
	delete(e.projects, p.ProjectID)
	e.mu.Unlock()
	e.signal()
}

// HandleServerError surfaces a pushed error frame.
func (e *Engine) HandleServerError(p protocol.ErrorPayload) {
	if p.Message == "" {
		return
	}
	e.AddNotice(NoticeError, p.Message)
}

// applyTranscriptBaseline commits a fetched transcript unless the user has
// switched sessions since; the check compares against the selection at
// arrival time, not at request time.
func (e *Engine) applyTranscriptBaseline(threadID string, detail *protocol.SessionDetail) {
	e.mu.Lock()
	if e.threadID != threadID {
		e.mu.Unlock()
		return
	}
	msgs := make([]Message, 0, len(detail.Transcript))
	for _, entry := range detail.Transcript {
		msgs = append(msgs, MessageFromEntry(entry))
	}
	e.transcript.Hydrate(msgs)
	e.mirrorPendingLocked()

	e.meta.Title = detail.Session.Title
	e.meta.Model = detail.Session.Model
	e.meta.Cwd = detail.Session.Cwd
	e.meta.ProjectID = detail.Session.ProjectID
	e.meta.Archived = detail.Session.Archived
	e.meta.ActiveTurnID = detail.ActiveTurnID()
	e.mu.Unlock()
	e.signal()
}

// applyApprovalsBaseline commits a fetched approval list through the
// union-or-replace rule.
func (e *Engine) applyApprovalsBaseline(threadID string, items []protocol.Approval, issued uint64) {
	e.mu.Lock()
	if e.threadID != threadID {
		e.mu.Unlock()
		return
	}
	e.pending.HydrateApprovals(items, issued)
	e.mirrorPendingLocked()
	e.mu.Unlock()
	e.signal()
}

// applyToolInputsBaseline commits a fetched tool-input list through the
// union-or-replace rule.
func (e *Engine) applyToolInputsBaseline(threadID string, items []protocol.ToolInputRequest, issued uint64) {
	e.mu.Lock()
	if e.threadID != threadID {
		e.mu.Unlock()
		return
	}
	e.pending.HydrateToolInputs(items, issued)
	e.mirrorPendingLocked()
	e.mu.Unlock()
	e.signal()
}

// mirrorPendingLocked re-asserts a transcript mirror for every pending
// entry. Mirror ids are deterministic, so this is an idempotent upsert
// pass; it repairs mirrors regardless of which baseline landed last.
func (e *Engine) mirrorPendingLocked() {
	now := e.nowMillis()
	for _, a := range e.pending.Approvals() {
		e.transcript.Upsert(approvalMirror(a, now))
	}
	for _, r := range e.pending.ToolInputs() {
		e.transcript.Upsert(toolInputMirror(r, now))
	}
}

// resolveMirrorLocked rewrites a mirror row with the decision outcome,
// preserving the prior detail payload under a nested record.
func (e *Engine) resolveMirrorLocked(mirrorID, msgType, decision string) {
	var prev json.RawMessage
	if cur, ok := e.transcript.Get(mirrorID); ok {
		prev = cur.Details
	}
	details, err := json.Marshal(struct {
		Decision string          `json:"decision"`
		Previous json.RawMessage `json:"previous,omitempty"`
	}{Decision: decision, Previous: prev})
	if err != nil {
		details = nil
	}
	e.transcript.Upsert(Message{
		ID:          mirrorID,
		Role:        protocol.RoleSystem,
		Type:        msgType,
		Content:     resolutionLabel(msgType, decision),
		Details:     details,
		Status:      resolutionStatus(decision),
		CompletedAt: e.nowMillis(),
	})
}

func (e *Engine) pendingEvents() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending.LiveEvents()
}

func (e *Engine) sameThreadLocked(threadID string) bool {
	return threadID == "" || threadID == e.threadID
}

func (e *Engine) ack(threadID string) {
	if e.link != nil && threadID != "" {
		e.link.AckActivity(threadID)
	}
}

func (e *Engine) nowMillis() int64 {
	return e.clock().UnixMilli()
}

func (e *Engine) signal() {
	select {
	case e.updates <- struct{}{}:
	default:
	}
}

func approvalMirror(a protocol.Approval, at int64) Message {
	content := a.Summary
	if content == "" {
		if cmd, ok := a.CommandDetails(); ok {
			content = cmd.Command
		}
	}
	if content == "" {
		content = "Approval requested"
	}
	details, _ := json.Marshal(a)
	startedAt := a.CreatedAt
	if startedAt == 0 {
		startedAt = at
	}
	return Message{
		ID:        ApprovalMirrorID(a.ApprovalID),
		TurnID:    a.TurnID,
		Role:      protocol.RoleSystem,
		Type:      TypeApproval,
		Content:   content,
		Details:   details,
		Status:    protocol.StatusStreaming,
		StartedAt: startedAt,
	}
}

func toolInputMirror(r protocol.ToolInputRequest, at int64) Message {
	content := r.Summary
	if content == "" && len(r.Questions) > 0 {
		content = r.Questions[0].Question
	}
	if content == "" {
		content = r.ToolName
	}
	if content == "" {
		content = "Input requested"
	}
	details, _ := json.Marshal(r)
	startedAt := r.CreatedAt
	if startedAt == 0 {
		startedAt = at
	}
	return Message{
		ID:        ToolInputMirrorID(r.RequestID),
		TurnID:    r.TurnID,
		Role:      protocol.RoleSystem,
		Type:      TypeToolInput,
		Content:   content,
		Details:   details,
		Status:    protocol.StatusStreaming,
		StartedAt: startedAt,
	}
}

// resolutionStatus maps a decision outcome to the mirror's terminal status.
func resolutionStatus(decision string) string {
	switch decision {
	case string(protocol.DecisionAccept):
		return protocol.StatusComplete
	case string(protocol.DecisionDecline):
		return protocol.StatusError
	default:
		// cancel, expired, and anything unrecognized
		return protocol.StatusCanceled
	}
}

func resolutionLabel(msgType, decision string) string {
	noun := "Approval"
	if msgType == TypeToolInput {
		noun = "Tool input"
	}
	switch decision {
	case string(protocol.DecisionAccept):
		return noun + " accepted"
	case string(protocol.DecisionDecline):
		return noun + " declined"
	case string(protocol.DecisionCancel):
		return noun + " canceled"
	case protocol.ResolutionExpired:
		return noun + " expired"
	default:
		return noun + " resolved"
	}
}

// completedItemStatus derives a terminal message status from an item's own
// payload; a failed command surfaces as an errored row.
func completedItemStatus(d protocol.ItemDetails) string {
	if ce := d.CommandExecution; ce != nil && ce.ExitCode != nil && *ce.ExitCode != 0 {
		return protocol.StatusError
	}
	return protocol.StatusComplete
}
