package conversation

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/quayside/coxswain/src/protocol"
)

// Dispatcher decodes inbound frames one at a time and routes them to the
// engine's mutators. It performs no deduplication; idempotence lives in the
// stores, so delivering the same frame twice is harmless.
type Dispatcher struct {
	engine *Engine
	logger *slog.Logger
}

func NewDispatcher(engine *Engine, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		engine: engine,
		logger: logger.With("component", "dispatch"),
	}
}

// Dispatch routes one frame. Nothing escapes this boundary: a malformed
// frame surfaces one generic notice and the channel keeps being consumed.
func (d *Dispatcher) Dispatch(raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while dispatching frame", "panic", r)
			d.engine.AddNotice(NoticeError, "internal error while processing an event")
		}
	}()

	env, err := protocol.DecodeEnvelope(raw)
	if err != nil {
		d.drop("envelope", err)
		return
	}

	switch env.Type {
	case protocol.EnvelopeReady, protocol.EnvelopePong:
		// liveness no-ops

	case protocol.EnvelopeError:
		p, err := decode[protocol.ErrorPayload](env.Payload)
		if err != nil {
			d.drop("error payload", err)
			return
		}
		d.engine.HandleServerError(p)

	case protocol.EnvelopeSessionDeleted:
		p, err := decode[protocol.SessionDeletedPayload](env.Payload)
		if err != nil {
			d.drop("sessionDeleted payload", err)
			return
		}
		if p.ThreadID == "" {
			p.ThreadID = env.ThreadID
		}
		d.engine.HandleSessionDeleted(p)

	case protocol.EnvelopeProjectUpserted:
		p, err := decode[protocol.ProjectUpsertedPayload](env.Payload)
		if err != nil {
			d.drop("projectUpserted payload", err)
			return
		}
		d.engine.HandleProjectUpserted(p)

	case protocol.EnvelopeProjectDeleted:
		p, err := decode[protocol.ProjectDeletedPayload](env.Payload)
		if err != nil {
			d.drop("projectDeleted payload", err)
			return
		}
		d.engine.HandleProjectDeleted(p)

	case protocol.EnvelopeSessionProjectUpdated:
		p, err := decode[protocol.SessionProjectUpdatedPayload](env.Payload)
		if err != nil {
			d.drop("sessionProjectUpdated payload", err)
			return
		}
		if p.ThreadID == "" {
			p.ThreadID = env.ThreadID
		}
		d.engine.HandleSessionProjectUpdated(p)

	case protocol.EnvelopeApprovalRequested:
		a, err := decode[protocol.Approval](env.Payload)
		if err != nil {
			d.drop("approvalRequested payload", err)
			return
		}
		if a.ThreadID == "" {
			a.ThreadID = env.ThreadID
		}
		d.engine.HandleApprovalRequested(a)

	case protocol.EnvelopeApprovalResolved:
		p, err := decode[protocol.ApprovalResolvedPayload](env.Payload)
		if err != nil {
			d.drop("approvalResolved payload", err)
			return
		}
		if p.ThreadID == "" {
			p.ThreadID = env.ThreadID
		}
		d.engine.HandleApprovalResolved(p)

	case protocol.EnvelopeToolInputRequested:
		r, err := decode[protocol.ToolInputRequest](env.Payload)
		if err != nil {
			d.drop("toolInputRequested payload", err)
			return
		}
		if r.ThreadID == "" {
			r.ThreadID = env.ThreadID
		}
		d.engine.HandleToolInputRequested(r)

	case protocol.EnvelopeToolInputResolved:
		p, err := decode[protocol.ToolInputResolvedPayload](env.Payload)
		if err != nil {
			d.drop("toolInputResolved payload", err)
			return
		}
		if p.ThreadID == "" {
			p.ThreadID = env.ThreadID
		}
		d.engine.HandleToolInputResolved(p)

	case protocol.EnvelopePlanUpdated:
		p, err := decode[protocol.PlanUpdatedPayload](env.Payload)
		if err != nil {
			d.drop("planUpdated payload", err)
			return
		}
		if p.ThreadID == "" {
			p.ThreadID = env.ThreadID
		}
		d.engine.HandlePlanUpdated(p)

	case protocol.EnvelopeDiffUpdated:
		p, err := decode[protocol.DiffUpdatedPayload](env.Payload)
		if err != nil {
			d.drop("diffUpdated payload", err)
			return
		}
		if p.ThreadID == "" {
			p.ThreadID = env.ThreadID
		}
		d.engine.HandleDiffUpdated(p)

	case protocol.EnvelopeTokenUsageUpdated:
		p, err := decode[protocol.TokenUsageUpdatedPayload](env.Payload)
		if err != nil {
			d.drop("tokenUsageUpdated payload", err)
			return
		}
		if p.ThreadID == "" {
			p.ThreadID = env.ThreadID
		}
		d.engine.HandleTokenUsage(p)

	case protocol.EnvelopeNotification:
		n, err := decode[protocol.Notification](env.Payload)
		if err != nil {
			d.drop("notification payload", err)
			return
		}
		d.notification(env, n)

	case protocol.EnvelopeServerRequest:
		// Server-initiated RPCs are not part of this client's surface.
		d.logger.Debug("ignoring server request frame")

	default:
		d.logger.Debug("ignoring unknown envelope type", "type", env.Type)
	}
}

// notification routes the inner method of a notification frame.
func (d *Dispatcher) notification(env *protocol.Envelope, n protocol.Notification) {
	switch n.Method {
	case protocol.MethodThreadRenamed:
		p, err := decode[protocol.ThreadRenamedParams](n.Params)
		if err != nil {
			d.drop("threadRenamed params", err)
			return
		}
		if p.ThreadID == "" {
			p.ThreadID = env.ThreadID
		}
		d.engine.HandleThreadRenamed(p)

	case protocol.MethodTurnStarted:
		p, err := decode[protocol.TurnStartedParams](n.Params)
		if err != nil {
			d.drop("turnStarted params", err)
			return
		}
		if p.ThreadID == "" {
			p.ThreadID = env.ThreadID
		}
		d.engine.HandleTurnStarted(p)

	case protocol.MethodTurnCompleted:
		p, err := decode[protocol.TurnCompletedParams](n.Params)
		if err != nil {
			d.drop("turnCompleted params", err)
			return
		}
		if p.ThreadID == "" {
			p.ThreadID = env.ThreadID
		}
		d.engine.HandleTurnCompleted(p)

	case protocol.MethodTurnFailed:
		p, err := decode[protocol.TurnFailedParams](n.Params)
		if err != nil {
			d.drop("turnFailed params", err)
			return
		}
		if p.ThreadID == "" {
			p.ThreadID = env.ThreadID
		}
		d.engine.HandleTurnFailed(p)

	case protocol.MethodError:
		p, err := decode[protocol.ErrorPayload](n.Params)
		if err != nil {
			d.drop("error params", err)
			return
		}
		d.engine.HandleServerError(p)

	case protocol.MethodAgentMessageDelta:
		p, err := decode[protocol.AgentMessageDeltaParams](n.Params)
		if err != nil {
			d.drop("agentMessageDelta params", err)
			return
		}
		if p.ThreadID == "" {
			p.ThreadID = env.ThreadID
		}
		d.engine.HandleAgentDelta(p)

	case protocol.MethodItemStarted:
		p, err := decode[protocol.ItemParams](n.Params)
		if err != nil {
			d.drop("itemStarted params", err)
			return
		}
		if p.ThreadID == "" {
			p.ThreadID = env.ThreadID
		}
		d.engine.HandleItemStarted(p)

	case protocol.MethodItemCompleted:
		p, err := decode[protocol.ItemParams](n.Params)
		if err != nil {
			d.drop("itemCompleted params", err)
			return
		}
		if p.ThreadID == "" {
			p.ThreadID = env.ThreadID
		}
		d.engine.HandleItemCompleted(p)

	default:
		d.logger.Debug("ignoring unknown notification method", "method", n.Method)
	}
}

func (d *Dispatcher) drop(part string, err error) {
	d.logger.Warn("dropping undecodable frame", "part", part, "error", err)
	d.engine.AddNotice(NoticeError, "received an undecodable event")
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, errors.New("missing payload")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, err
	}
	return v, nil
}
