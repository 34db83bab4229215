package stream

import (
	"sync"
	"time"
)

// ackWatch tracks at most one armed send-acknowledgement deadline. Arming
// while armed replaces the deadline rather than stacking a second one.
type ackWatch struct {
	mu       sync.Mutex
	gen      uint64
	timer    *time.Timer
	threadID string
	turnID   string
}

// arm schedules fire unless disarmed first. The generation counter makes a
// stale timer callback a no-op after a re-arm or disarm.
func (w *ackWatch) arm(threadID, turnID string, d time.Duration, fire func(threadID, turnID string)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.gen++
	gen := w.gen
	if w.timer != nil {
		w.timer.Stop()
	}
	w.threadID = threadID
	w.turnID = turnID
	w.timer = time.AfterFunc(d, func() {
		w.mu.Lock()
		if w.gen != gen {
			w.mu.Unlock()
			return
		}
		th, tn := w.threadID, w.turnID
		w.timer = nil
		w.threadID = ""
		w.turnID = ""
		w.mu.Unlock()
		fire(th, tn)
	})
}

// disarm cancels the deadline when it is armed for the given thread. An
// empty threadID cancels unconditionally. Reports whether a deadline was
// actually cancelled.
func (w *ackWatch) disarm(threadID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer == nil {
		return false
	}
	if threadID != "" && w.threadID != threadID {
		return false
	}
	w.gen++
	w.timer.Stop()
	w.timer = nil
	w.threadID = ""
	w.turnID = ""
	return true
}
