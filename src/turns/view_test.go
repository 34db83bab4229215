package turns

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func groupWithPending(key string, pending ...string) Group {
	return Group{Key: key, TurnID: key, PendingSignature: pending}
}

func TestAutoOpensOnNewPendingWork(t *testing.T) {
	s := NewViewState()

	s.Observe([]Group{groupWithPending("turn-1")})
	assert.False(t, s.IsOpen("turn-1"))

	s.Observe([]Group{groupWithPending("turn-1", "appr-1")})
	assert.True(t, s.IsOpen("turn-1"))
	assert.Equal(t, ModePendingOnly, s.Mode("turn-1"))
}

func TestCollapsedPanelStaysCollapsedWhileSignatureUnchanged(t *testing.T) {
	s := NewViewState()
	s.Observe([]Group{groupWithPending("turn-1", "appr-1")})
	assert.True(t, s.IsOpen("turn-1"))

	// The user collapses it; the same signature must not force it back
	// open on the next render pass.
	s.SetOpen("turn-1", false)
	s.Observe([]Group{groupWithPending("turn-1", "appr-1")})
	assert.False(t, s.IsOpen("turn-1"))
}

func TestOpenPanelIsNotSwitchedToPendingOnly(t *testing.T) {
	s := NewViewState()
	s.SetOpen("turn-1", true)

	s.Observe([]Group{groupWithPending("turn-1", "appr-1")})
	assert.True(t, s.IsOpen("turn-1"))
	assert.Equal(t, ModeFull, s.Mode("turn-1"))
}

func TestModeRevertsToFullWhenPendingClears(t *testing.T) {
	s := NewViewState()
	s.Observe([]Group{groupWithPending("turn-1", "appr-1")})
	assert.Equal(t, ModePendingOnly, s.Mode("turn-1"))

	s.Observe([]Group{groupWithPending("turn-1")})
	assert.Equal(t, ModeFull, s.Mode("turn-1"))
	// The open flag is left alone; only the mode resets.
	assert.True(t, s.IsOpen("turn-1"))
}

func TestSecondPendingItemKeepsFocusedMode(t *testing.T) {
	s := NewViewState()
	s.Observe([]Group{groupWithPending("turn-1", "appr-1")})
	s.Observe([]Group{groupWithPending("turn-1", "appr-1", "appr-2")})
	assert.Equal(t, ModePendingOnly, s.Mode("turn-1"))
}

func TestToggle(t *testing.T) {
	s := NewViewState()
	s.Toggle("turn-1")
	assert.True(t, s.IsOpen("turn-1"))
	s.Toggle("turn-1")
	assert.False(t, s.IsOpen("turn-1"))
}

func TestResetForgetsEverything(t *testing.T) {
	s := NewViewState()
	s.Observe([]Group{groupWithPending("turn-1", "appr-1")})
	assert.True(t, s.IsOpen("turn-1"))

	s.Reset()
	assert.False(t, s.IsOpen("turn-1"))
	assert.Equal(t, ModeFull, s.Mode("turn-1"))

	// After a reset the same signature counts as a fresh transition.
	s.Observe([]Group{groupWithPending("turn-1", "appr-1")})
	assert.True(t, s.IsOpen("turn-1"))
}
