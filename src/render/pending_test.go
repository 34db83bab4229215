package render

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quayside/coxswain/src/conversation"
	"github.com/quayside/coxswain/src/protocol"
	"github.com/quayside/coxswain/src/theme"
)

func TestPendingEmpty(t *testing.T) {
	r := testRenderer()
	assert.Empty(t, r.Pending(conversation.Snapshot{}))
}

func TestApprovalCommandDetails(t *testing.T) {
	r := testRenderer()

	out := r.Approval(protocol.Approval{
		ApprovalID: "appr-1",
		Method:     protocol.ApprovalMethodCommand,
		Summary:    "Agent wants to run a command",
		Details:    json.RawMessage(`{"command":"rm -rf build","cwd":"/repo","reason":"clean rebuild"}`),
	})

	assert.Contains(t, out, "appr-1")
	assert.Contains(t, out, "commandApproval")
	assert.Contains(t, out, "Agent wants to run a command")
	assert.Contains(t, out, "$ rm -rf build")
	assert.Contains(t, out, "cwd: /repo")
	assert.Contains(t, out, "reason: clean rebuild")
	assert.Contains(t, out, "coxswain approve appr-1")
}

func TestApprovalFileChangeDetails(t *testing.T) {
	r := testRenderer()

	details, err := json.Marshal(protocol.FileChangeApprovalDetails{
		Changes: []protocol.FileChange{
			{Path: "main.go", Kind: "update", OldContent: "value: 1\n", NewContent: "value: 2\n"},
			{Path: "docs.md", Kind: "add", NewContent: "hello\n"},
		},
	})
	assert.NoError(t, err)

	out := r.Approval(protocol.Approval{
		ApprovalID: "appr-2",
		Method:     protocol.ApprovalMethodFileChange,
		Details:    details,
	})

	assert.Contains(t, out, "2 file(s)")
	assert.Contains(t, out, "M main.go")
	assert.Contains(t, out, "A docs.md")
	// NoColor passes the unified diff through untouched.
	assert.Contains(t, out, "-value: 1")
	assert.Contains(t, out, "+value: 2")
	assert.Contains(t, out, "+hello")
}

func TestApprovalFileChangeCompactIntraline(t *testing.T) {
	r := New(Options{Width: 80, Theme: theme.Dark, Plain: true, NoColor: true, Compact: true})

	details, err := json.Marshal(protocol.FileChangeApprovalDetails{
		Changes: []protocol.FileChange{
			{Path: "main.go", Kind: "update", OldContent: "value: 1\n", NewContent: "value: 2\n"},
		},
	})
	assert.NoError(t, err)

	out := r.Approval(protocol.Approval{
		ApprovalID: "appr-3",
		Method:     protocol.ApprovalMethodFileChange,
		Details:    details,
	})

	// Compact mode shows the character-level line, not the full diff.
	assert.NotContains(t, out, "@@")
	assert.Contains(t, out, "value: ")
	assert.Contains(t, out, "1")
	assert.Contains(t, out, "2")
}

func TestToolInputQuestions(t *testing.T) {
	r := testRenderer()

	out := r.ToolInput(protocol.ToolInputRequest{
		RequestID: "req-1",
		ToolName:  "deploy",
		Summary:   "Pick a region",
		Questions: []protocol.ToolInputQuestion{
			{
				ID:       "region",
				Question: "Which region?",
				Options: []protocol.QuestionOption{
					{Value: "us", Label: "United States"},
					{Value: "eu", Label: "Europe"},
				},
			},
			{
				ID:          "flags",
				Question:    "Extra flags?",
				MultiSelect: true,
			},
			{
				ID:       "token",
				Question: "Deploy token",
				Secret:   true,
			},
		},
	})

	assert.Contains(t, out, "req-1")
	assert.Contains(t, out, "[deploy]")
	assert.Contains(t, out, "Pick a region")
	assert.Contains(t, out, "1. Which region?")
	assert.Contains(t, out, "• us (United States)")
	assert.Contains(t, out, "• eu (Europe)")
	assert.Contains(t, out, "(multi-select)")
	assert.Contains(t, out, "(secret)")
	assert.Contains(t, out, "coxswain respond req-1")
}

func TestPendingCountsBothKinds(t *testing.T) {
	r := testRenderer()

	out := r.Pending(conversation.Snapshot{
		Approvals: []protocol.Approval{
			{ApprovalID: "appr-1", Method: protocol.ApprovalMethodCommand},
		},
		ToolInputs: []protocol.ToolInputRequest{
			{RequestID: "req-1"},
		},
	})

	assert.Contains(t, out, "pending (2)")
	assert.Contains(t, out, "appr-1")
	assert.Contains(t, out, "req-1")
}

func TestSingleLineEdit(t *testing.T) {
	unified := "--- a/x\n+++ b/x\n@@ -1 +1 @@\n-old line\n+new line\n"
	oldLine, newLine, ok := singleLineEdit(unified)
	assert.True(t, ok)
	assert.Equal(t, "old line", oldLine)
	assert.Equal(t, "new line", newLine)
}
