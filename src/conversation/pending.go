package conversation

import "github.com/quayside/coxswain/src/protocol"

// Tracker keeps the outstanding approval and tool-input requests for the
// selected session. Not goroutine safe; the engine serializes access.
//
// Two mechanisms make baseline fetches and live pushes converge regardless
// of arrival order:
//
//   - a live-event counter, bumped by every push, lets a fetch that was
//     issued before a push detect that it is stale: such a response merges
//     as a set union instead of a destructive replace, so it can add
//     entries but never remove one a push already confirmed;
//   - tombstones for resolved ids stop any later response, union or
//     replace, from resurrecting an entry that was already decided.
type Tracker struct {
	approvals      map[string]protocol.Approval
	approvalOrder  []string
	toolInputs     map[string]protocol.ToolInputRequest
	toolInputOrder []string
	tombstones     map[string]struct{}
	liveEvents     uint64
}

func NewTracker() *Tracker {
	p := &Tracker{}
	p.Reset()
	return p
}

// Reset clears both pending sets, the tombstones, and the counter; called
// on session switch.
func (p *Tracker) Reset() {
	p.approvals = make(map[string]protocol.Approval)
	p.approvalOrder = nil
	p.toolInputs = make(map[string]protocol.ToolInputRequest)
	p.toolInputOrder = nil
	p.tombstones = make(map[string]struct{})
	p.liveEvents = 0
}

// LiveEvents returns the current counter value. A hydration fetch snapshots
// it when issued and hands it back when the response applies.
func (p *Tracker) LiveEvents() uint64 {
	return p.liveEvents
}

// UpsertApproval records a pushed approval request. Returns false when the
// id is tombstoned, meaning a resolution was already observed and the push
// is a late or duplicated delivery.
func (p *Tracker) UpsertApproval(a protocol.Approval) bool {
	p.liveEvents++
	if _, dead := p.tombstones[a.ApprovalID]; dead {
		return false
	}
	if _, ok := p.approvals[a.ApprovalID]; !ok {
		p.approvalOrder = append(p.approvalOrder, a.ApprovalID)
	}
	p.approvals[a.ApprovalID] = a
	return true
}

// ResolveApproval removes an approval and tombstones its id. The id is
// tombstoned even when the entry was never seen, so a stale baseline cannot
// add it back afterward.
func (p *Tracker) ResolveApproval(id string) (protocol.Approval, bool) {
	p.liveEvents++
	p.tombstones[id] = struct{}{}
	a, ok := p.approvals[id]
	if ok {
		delete(p.approvals, id)
		p.approvalOrder = removeID(p.approvalOrder, id)
	}
	return a, ok
}

// UpsertToolInput records a pushed tool-input request; same contract as
// UpsertApproval.
func (p *Tracker) UpsertToolInput(r protocol.ToolInputRequest) bool {
	p.liveEvents++
	if _, dead := p.tombstones[r.RequestID]; dead {
		return false
	}
	if _, ok := p.toolInputs[r.RequestID]; !ok {
		p.toolInputOrder = append(p.toolInputOrder, r.RequestID)
	}
	p.toolInputs[r.RequestID] = r
	return true
}

// ResolveToolInput removes a tool-input request and tombstones its id.
func (p *Tracker) ResolveToolInput(id string) (protocol.ToolInputRequest, bool) {
	p.liveEvents++
	p.tombstones[id] = struct{}{}
	r, ok := p.toolInputs[id]
	if ok {
		delete(p.toolInputs, id)
		p.toolInputOrder = removeID(p.toolInputOrder, id)
	}
	return r, ok
}

// Approval returns a pending approval by id.
func (p *Tracker) Approval(id string) (protocol.Approval, bool) {
	a, ok := p.approvals[id]
	return a, ok
}

// ToolInput returns a pending tool-input request by id.
func (p *Tracker) ToolInput(id string) (protocol.ToolInputRequest, bool) {
	r, ok := p.toolInputs[id]
	return r, ok
}

// Approvals returns the pending approvals in first-seen order.
func (p *Tracker) Approvals() []protocol.Approval {
	out := make([]protocol.Approval, 0, len(p.approvalOrder))
	for _, id := range p.approvalOrder {
		out = append(out, p.approvals[id])
	}
	return out
}

// ToolInputs returns the pending tool-input requests in first-seen order.
func (p *Tracker) ToolInputs() []protocol.ToolInputRequest {
	out := make([]protocol.ToolInputRequest, 0, len(p.toolInputOrder))
	for _, id := range p.toolInputOrder {
		out = append(out, p.toolInputs[id])
	}
	return out
}

// HydrateApprovals applies a baseline fetch. issued is the LiveEvents value
// snapshotted when the fetch went out: if the counter has moved since, the
// response merges additively; otherwise it replaces the set. Tombstoned ids
// are dropped either way.
func (p *Tracker) HydrateApprovals(items []protocol.Approval, issued uint64) {
	if p.liveEvents == issued {
		p.approvals = make(map[string]protocol.Approval)
		p.approvalOrder = nil
	}
	for _, a := range items {
		if _, dead := p.tombstones[a.ApprovalID]; dead {
			continue
		}
		if _, ok := p.approvals[a.ApprovalID]; ok {
			continue
		}
		p.approvals[a.ApprovalID] = a
		p.approvalOrder = append(p.approvalOrder, a.ApprovalID)
	}
}

// HydrateToolInputs applies a baseline fetch; same contract as
// HydrateApprovals.
func (p *Tracker) HydrateToolInputs(items []protocol.ToolInputRequest, issued uint64) {
	if p.liveEvents == issued {
		p.toolInputs = make(map[string]protocol.ToolInputRequest)
		p.toolInputOrder = nil
	}
	for _, r := range items {
		if _, dead := p.tombstones[r.RequestID]; dead {
			continue
		}
		if _, ok := p.toolInputs[r.RequestID]; ok {
			continue
		}
		p.toolInputs[r.RequestID] = r
		p.toolInputOrder = append(p.toolInputOrder, r.RequestID)
	}
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
