package turns

import "strings"

// DisplayMode selects how an open turn panel renders.
type DisplayMode string

const (
	// ModeFull shows the whole activity list.
	ModeFull DisplayMode = "full"
	// ModePendingOnly focuses the newly pending item and summarizes the
	// rest of the turn's activity in one line.
	ModePendingOnly DisplayMode = "pendingOnly"
)

// ViewState remembers per-turn panel state (open or collapsed, display
// mode) for the lifetime of a session. Reset it on session switch.
type ViewState struct {
	open map[string]bool
	mode map[string]DisplayMode
	sigs map[string]string
}

func NewViewState() *ViewState {
	return &ViewState{
		open: make(map[string]bool),
		mode: make(map[string]DisplayMode),
		sigs: make(map[string]string),
	}
}

// Reset drops all remembered panel state.
func (s *ViewState) Reset() {
	clear(s.open)
	clear(s.mode)
	clear(s.sigs)
}

// Observe records one projection pass. A panel whose pending signature
// transitions from empty to non-empty while collapsed auto-opens in the
// focused pending-only mode; once the signature empties again the mode
// reverts to full for subsequent opens.
func (s *ViewState) Observe(groups []Group) {
	for _, g := range groups {
		sig := strings.Join(g.PendingSignature, ",")
		prev, had := s.sigs[g.Key]
		if had && sig == prev {
			continue
		}
		if prev == "" && sig != "" && !s.open[g.Key] {
			s.open[g.Key] = true
			s.mode[g.Key] = ModePendingOnly
		}
		if sig == "" {
			s.mode[g.Key] = ModeFull
		}
		s.sigs[g.Key] = sig
	}
}

// IsOpen reports whether the group's detail panel is open.
func (s *ViewState) IsOpen(key string) bool {
	return s.open[key]
}

// Mode returns the group's current display mode.
func (s *ViewState) Mode(key string) DisplayMode {
	if m, ok := s.mode[key]; ok {
		return m
	}
	return ModeFull
}

// SetOpen records a user open or collapse action.
func (s *ViewState) SetOpen(key string, open bool) {
	s.open[key] = open
}

// Toggle flips the panel.
func (s *ViewState) Toggle(key string) {
	s.SetOpen(key, !s.open[key])
}
