package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadItemDecode(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, d ItemDetails)
	}{
		{
			name: "agent message",
			raw:  `{"id":"item-1","type":"agentMessage","text":"done"}`,
			check: func(t *testing.T, d ItemDetails) {
				require.NotNil(t, d.AgentMessage)
				assert.Equal(t, "done", d.AgentMessage.Text)
			},
		},
		{
			name: "command execution",
			raw:  `{"id":"item-2","type":"commandExecution","command":"go vet ./...","cwd":"/srv","exitCode":0,"aggregatedOutput":""}`,
			check: func(t *testing.T, d ItemDetails) {
				require.NotNil(t, d.CommandExecution)
				assert.Equal(t, "go vet ./...", d.CommandExecution.Command)
				require.NotNil(t, d.CommandExecution.ExitCode)
				assert.Equal(t, 0, *d.CommandExecution.ExitCode)
			},
		},
		{
			name: "file change",
			raw:  `{"id":"item-3","type":"fileChange","changes":[{"path":"main.go","kind":"update","diff":"@@ -1 +1 @@"}]}`,
			check: func(t *testing.T, d ItemDetails) {
				require.NotNil(t, d.FileChange)
				require.Len(t, d.FileChange.Changes, 1)
				assert.Equal(t, "main.go", d.FileChange.Changes[0].Path)
			},
		},
		{
			name: "mcp tool call",
			raw:  `{"id":"item-4","type":"mcpToolCall","server":"github","tool":"create_issue","arguments":{"title":"bug"}}`,
			check: func(t *testing.T, d ItemDetails) {
				require.NotNil(t, d.MCPToolCall)
				assert.Equal(t, "github", d.MCPToolCall.Server)
				assert.JSONEq(t, `{"title":"bug"}`, string(d.MCPToolCall.Arguments))
			},
		},
		{
			name: "unknown type preserved",
			raw:  `{"id":"item-5","type":"holodeck","payload":{"x":1}}`,
			check: func(t *testing.T, d ItemDetails) {
				require.NotNil(t, d.Unknown)
				assert.JSONEq(t, `{"id":"item-5","type":"holodeck","payload":{"x":1}}`, string(d.Unknown))
			},
		},
		{
			name: "malformed body of known type falls back",
			raw:  `{"id":"item-6","type":"commandExecution","command":["not","a","string"]}`,
			check: func(t *testing.T, d ItemDetails) {
				assert.Nil(t, d.CommandExecution)
				require.NotNil(t, d.Unknown)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var item ThreadItem
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &item))
			tt.check(t, item.Decode())
		})
	}
}

func TestThreadItemRoundTrip(t *testing.T) {
	raw := `{"id":"item-7","type":"webSearch","query":"golang sqlite driver"}`

	var item ThreadItem
	require.NoError(t, json.Unmarshal([]byte(raw), &item))
	assert.Equal(t, ItemWebSearch, item.Type)

	out, err := json.Marshal(item)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestThreadItemDisplayText(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"id":"a","type":"agentMessage","text":"All set."}`, "All set."},
		{`{"id":"b","type":"reasoning","text":"Checking tests"}`, "Checking tests"},
		{`{"id":"c","type":"commandExecution","command":"make build"}`, "make build"},
		{`{"id":"d","type":"fileChange","changes":[{"path":"a.go"},{"path":"b.go"}]}`, "a.go, b.go"},
		{`{"id":"e","type":"mcpToolCall","server":"jira","tool":"search"}`, "jira.search"},
		{`{"id":"f","type":"mystery"}`, ""},
	}

	for _, tt := range tests {
		var item ThreadItem
		require.NoError(t, json.Unmarshal([]byte(tt.raw), &item))
		assert.Equal(t, tt.want, item.DisplayText())
	}
}
