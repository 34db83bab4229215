package conversation

import "github.com/quayside/coxswain/src/protocol"

// deltaMark is the per-message replay guard for streamed text: the highest
// applied sequence number when the server stamps one, otherwise the text of
// the last applied fragment.
type deltaMark struct {
	seq  int64
	last string
}

// Transcript is the ordered, id-keyed message collection. It is not
// goroutine safe; the engine serializes access.
//
// All merge operations are idempotent and commutative per id, so a baseline
// fetch and live push events may land in either order and terminate in the
// same state.
type Transcript struct {
	order []string
	byID  map[string]*Message
	marks map[string]deltaMark
}

func NewTranscript() *Transcript {
	t := &Transcript{}
	t.Reset()
	return t
}

// Reset drops everything, including delta bookkeeping.
func (t *Transcript) Reset() {
	t.order = nil
	t.byID = make(map[string]*Message)
	t.marks = make(map[string]deltaMark)
}

// Len returns the number of rows.
func (t *Transcript) Len() int {
	return len(t.order)
}

// Get returns a copy of the row with the given id.
func (t *Transcript) Get(id string) (Message, bool) {
	if m, ok := t.byID[id]; ok {
		return *m, true
	}
	return Message{}, false
}

// Messages returns ordered copies of every row.
func (t *Transcript) Messages() []Message {
	out := make([]Message, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.byID[id])
	}
	return out
}

// Hydrate replaces the transcript wholesale from a baseline fetch, except
// that locally-synthesized rows absent from the baseline are preserved, in
// their original insertion order, after it. That protects a just-sent
// optimistic message, pending mirrors, and turn-failure entries from
// vanishing until the server echoes their state back.
func (t *Transcript) Hydrate(entries []Message) {
	incoming := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		incoming[e.ID] = struct{}{}
	}

	var kept []Message
	for _, id := range t.order {
		if _, ok := incoming[id]; ok {
			continue
		}
		if IsLocalID(id) {
			kept = append(kept, *t.byID[id])
		}
	}

	t.Reset()
	for _, e := range entries {
		t.Upsert(e)
	}
	for _, m := range kept {
		t.Upsert(m)
	}
}

// Upsert merges by id or appends. Incoming non-zero fields override the
// stored row, except StartedAt, which keeps its first stamp. A row whose
// CompletedAt is known but StartedAt is not gets StartedAt backfilled to
// the completion instant, which covers atomically-completed tool events.
func (t *Transcript) Upsert(msg Message) {
	cur, ok := t.byID[msg.ID]
	if !ok {
		m := msg
		if m.CompletedAt != 0 && m.StartedAt == 0 {
			m.StartedAt = m.CompletedAt
		}
		t.byID[m.ID] = &m
		t.order = append(t.order, m.ID)
		return
	}

	if msg.TurnID != "" {
		cur.TurnID = msg.TurnID
	}
	if msg.Role != "" {
		cur.Role = msg.Role
	}
	if msg.Type != "" {
		cur.Type = msg.Type
	}
	if msg.Content != "" {
		cur.Content = msg.Content
	}
	if msg.Details != nil {
		cur.Details = msg.Details
	}
	if msg.Status != "" {
		cur.Status = msg.Status
	}
	if msg.StartedAt != 0 && cur.StartedAt == 0 {
		cur.StartedAt = msg.StartedAt
	}
	if msg.CompletedAt != 0 {
		cur.CompletedAt = msg.CompletedAt
	}
	if cur.CompletedAt != 0 && cur.StartedAt == 0 {
		cur.StartedAt = cur.CompletedAt
	}
}

// ApplyDelta extends a streaming row's content by concatenation, creating
// the row on first sight. Deltas for a row already in a terminal state are
// dropped. Redelivery is detected by the server's sequence number when
// present, otherwise by a consecutive-duplicate check, so applying the same
// delta twice equals applying it once.
func (t *Transcript) ApplyDelta(id, turnID, delta string, seq int64, at int64) {
	cur, ok := t.byID[id]
	if !ok {
		t.Upsert(Message{
			ID:        id,
			TurnID:    turnID,
			Role:      protocol.RoleAssistant,
			Type:      string(protocol.ItemAgentMessage),
			Content:   delta,
			Status:    protocol.StatusStreaming,
			StartedAt: at,
		})
		t.marks[id] = deltaMark{seq: seq, last: delta}
		return
	}
	if terminalStatus(cur.Status) {
		return
	}

	mark := t.marks[id]
	if seq > 0 {
		if seq <= mark.seq {
			return
		}
		mark.seq = seq
	} else if delta == mark.last {
		return
	}
	mark.last = delta
	t.marks[id] = mark

	cur.Content += delta
	cur.Status = protocol.StatusStreaming
	if cur.StartedAt == 0 {
		cur.StartedAt = at
	}
	if cur.TurnID == "" {
		cur.TurnID = turnID
	}
}

// Complete replaces any accumulated streamed content with the authoritative
// final text and stamps CompletedAt if absent; server truth wins over
// locally-accumulated deltas. StartedAt defaults to the completion instant
// when no delta was ever seen.
func (t *Transcript) Complete(id, text string, at int64) {
	cur, ok := t.byID[id]
	if !ok {
		t.Upsert(Message{
			ID:          id,
			Role:        protocol.RoleAssistant,
			Type:        string(protocol.ItemAgentMessage),
			Content:     text,
			Status:      protocol.StatusComplete,
			CompletedAt: at,
		})
		return
	}
	cur.Content = text
	cur.Status = protocol.StatusComplete
	if cur.CompletedAt == 0 {
		cur.CompletedAt = at
	}
	if cur.StartedAt == 0 {
		cur.StartedAt = cur.CompletedAt
	}
	delete(t.marks, id)
}

// SetStatus overrides a row's status, reporting whether the row exists.
func (t *Transcript) SetStatus(id, status string) bool {
	cur, ok := t.byID[id]
	if !ok {
		return false
	}
	cur.Status = status
	return true
}

// CloseTurn moves every still-streaming row of a turn to the given terminal
// status, stamping CompletedAt. Pending mirrors are skipped: their
// streaming status means "awaiting a human decision" and only a resolution
// may end it.
func (t *Transcript) CloseTurn(turnID, status string, at int64) {
	if turnID == "" {
		return
	}
	for _, id := range t.order {
		cur := t.byID[id]
		if cur.TurnID != turnID || cur.Status != protocol.StatusStreaming {
			continue
		}
		if _, mirror := PendingRefID(id); mirror {
			continue
		}
		cur.Status = status
		if cur.CompletedAt == 0 {
			cur.CompletedAt = at
		}
	}
}

func terminalStatus(status string) bool {
	switch status {
	case protocol.StatusComplete, protocol.StatusCanceled, protocol.StatusError:
		return true
	}
	return false
}
