package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ItemType discriminates thread items inside itemStarted/itemCompleted
// notifications and transcript entries.
type ItemType string

const (
	ItemAgentMessage     ItemType = "agentMessage"
	ItemReasoning        ItemType = "reasoning"
	ItemCommandExecution ItemType = "commandExecution"
	ItemFileChange       ItemType = "fileChange"
	ItemMCPToolCall      ItemType = "mcpToolCall"
	ItemWebSearch        ItemType = "webSearch"
)

// ThreadItem is one unit of agent activity within a turn. Only ID and Type
// are decoded eagerly; the full object is kept raw so unknown item types
// survive a round trip and typed access can fail soft.
type ThreadItem struct {
	ID   string
	Type ItemType
	Raw  json.RawMessage
}

func (it *ThreadItem) UnmarshalJSON(data []byte) error {
	var header struct {
		ID   string   `json:"id"`
		Type ItemType `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return fmt.Errorf("decode thread item: %w", err)
	}
	it.ID = header.ID
	it.Type = header.Type
	it.Raw = append(it.Raw[:0], data...)
	return nil
}

func (it ThreadItem) MarshalJSON() ([]byte, error) {
	if len(it.Raw) > 0 {
		return it.Raw, nil
	}
	return json.Marshal(struct {
		ID   string   `json:"id"`
		Type ItemType `json:"type"`
	}{it.ID, it.Type})
}

// AgentMessageItem is the agent's user-facing answer text.
type AgentMessageItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ReasoningItem is an intermediate thinking fragment.
type ReasoningItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// CommandExecutionItem describes a command the agent ran (or is running).
type CommandExecutionItem struct {
	ID               string `json:"id"`
	Command          string `json:"command"`
	Cwd              string `json:"cwd,omitempty"`
	Status           string `json:"status,omitempty"`
	ExitCode         *int   `json:"exitCode,omitempty"`
	AggregatedOutput string `json:"aggregatedOutput,omitempty"`
}

// FileChange is a single touched path inside a fileChange item or a
// file-change approval.
type FileChange struct {
	Path       string `json:"path"`
	Kind       string `json:"kind,omitempty"` // add, update, delete, rename
	Diff       string `json:"diff,omitempty"`
	OldContent string `json:"oldContent,omitempty"`
	NewContent string `json:"newContent,omitempty"`
}

// FileChangeItem describes edits the agent applied.
type FileChangeItem struct {
	ID      string       `json:"id"`
	Status  string       `json:"status,omitempty"`
	Changes []FileChange `json:"changes"`
}

// MCPToolCallItem describes an MCP tool invocation.
type MCPToolCallItem struct {
	ID        string          `json:"id"`
	Server    string          `json:"server"`
	Tool      string          `json:"tool"`
	Status    string          `json:"status,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// WebSearchItem records a web search the agent issued.
type WebSearchItem struct {
	ID    string `json:"id"`
	Query string `json:"query"`
}

// ItemDetails is the decoded form of a thread item: exactly one typed field
// is set, or Unknown carries the raw object for item types this client does
// not understand.
type ItemDetails struct {
	AgentMessage     *AgentMessageItem
	Reasoning        *ReasoningItem
	CommandExecution *CommandExecutionItem
	FileChange       *FileChangeItem
	MCPToolCall      *MCPToolCallItem
	WebSearch        *WebSearchItem
	Unknown          json.RawMessage
}

// Decode parses the item's raw object into its typed detail struct. Decode
// never fails: malformed or unrecognized payloads land in Unknown so the
// merge step keeps going.
func (it ThreadItem) Decode() ItemDetails {
	var d ItemDetails
	switch it.Type {
	case ItemAgentMessage:
		var v AgentMessageItem
		if json.Unmarshal(it.Raw, &v) == nil {
			d.AgentMessage = &v
			return d
		}
	case ItemReasoning:
		var v ReasoningItem
		if json.Unmarshal(it.Raw, &v) == nil {
			d.Reasoning = &v
			return d
		}
	case ItemCommandExecution:
		var v CommandExecutionItem
		if json.Unmarshal(it.Raw, &v) == nil {
			d.CommandExecution = &v
			return d
		}
	case ItemFileChange:
		var v FileChangeItem
		if json.Unmarshal(it.Raw, &v) == nil {
			d.FileChange = &v
			return d
		}
	case ItemMCPToolCall:
		var v MCPToolCallItem
		if json.Unmarshal(it.Raw, &v) == nil {
			d.MCPToolCall = &v
			return d
		}
	case ItemWebSearch:
		var v WebSearchItem
		if json.Unmarshal(it.Raw, &v) == nil {
			d.WebSearch = &v
			return d
		}
	}
	d.Unknown = it.Raw
	return d
}

// DisplayText returns the natural one-line content for an item, used as the
// transcript message content when the server sends no prose.
func (it ThreadItem) DisplayText() string {
	d := it.Decode()
	switch {
	case d.AgentMessage != nil:
		return d.AgentMessage.Text
	case d.Reasoning != nil:
		return d.Reasoning.Text
	case d.CommandExecution != nil:
		return d.CommandExecution.Command
	case d.FileChange != nil:
		paths := make([]string, 0, len(d.FileChange.Changes))
		for _, c := range d.FileChange.Changes {
			paths = append(paths, c.Path)
		}
		return strings.Join(paths, ", ")
	case d.MCPToolCall != nil:
		return d.MCPToolCall.Server + "." + d.MCPToolCall.Tool
	case d.WebSearch != nil:
		return d.WebSearch.Query
	}
	return ""
}
