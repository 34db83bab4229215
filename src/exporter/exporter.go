// Package exporter writes a session's transcript to disk as a small
// markdown file tree: transcript.md plus one unified patch file per
// file-change item, and the session's cumulative diff when the server
// published one.
package exporter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/quayside/coxswain/src/conversation"
	"github.com/quayside/coxswain/src/diffview"
	"github.com/quayside/coxswain/src/protocol"
	"github.com/quayside/coxswain/src/turns"
)

const (
	transcriptName  = "transcript.md"
	sessionDiffName = "session.patch"
	patchDirName    = "files"
)

var (
	ErrNoSession   = errors.New("no session selected")
	ErrNoDirectory = errors.New("export directory not set")
)

// Options controls one export run.
type Options struct {
	// Dir is the target directory; the session's files land under
	// Dir/<thread id>/.
	Dir string
	// IncludeThoughts keeps the agent's intermediate activity (reasoning,
	// commands, tool calls) in the transcript. File changes and turn
	// failures are outcomes and are exported regardless.
	IncludeThoughts bool
}

// Result lists what an export wrote, transcript first.
type Result struct {
	Dir   string
	Files []string
}

// Exporter writes transcripts through an afero filesystem so tests run
// against MemMapFs.
type Exporter struct {
	fs     afero.Fs
	logger *slog.Logger
}

func New(fs afero.Fs, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{fs: fs, logger: logger.With("component", "exporter")}
}

// patch is one file-change diff scheduled for writing, named relative to
// the session directory.
type patch struct {
	name string
	fd   diffview.FileDiff
}

// Export writes the snapshot's transcript and patches. The snapshot is
// whatever the engine currently holds; callers refresh first if they want
// the server's latest.
func (e *Exporter) Export(snap conversation.Snapshot, opts Options) (*Result, error) {
	if snap.ThreadID == "" {
		return nil, ErrNoSession
	}
	if opts.Dir == "" {
		return nil, ErrNoDirectory
	}

	dir := filepath.Join(opts.Dir, safeName(snap.ThreadID))
	if err := e.fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}

	groups := turns.Build(snap)
	patches := collectPatches(groups)

	res := &Result{Dir: dir}

	transcript := buildTranscript(snap, groups, patches, opts.IncludeThoughts)
	path := filepath.Join(dir, transcriptName)
	if err := afero.WriteFile(e.fs, path, []byte(transcript), 0644); err != nil {
		return nil, fmt.Errorf("write transcript: %w", err)
	}
	res.Files = append(res.Files, path)

	if snap.Meta.Diff != "" {
		path := filepath.Join(dir, sessionDiffName)
		if err := afero.WriteFile(e.fs, path, []byte(snap.Meta.Diff), 0644); err != nil {
			return nil, fmt.Errorf("write session diff: %w", err)
		}
		res.Files = append(res.Files, path)
	}

	if len(patches) > 0 {
		if err := e.fs.MkdirAll(filepath.Join(dir, patchDirName), 0755); err != nil {
			return nil, fmt.Errorf("create patch directory: %w", err)
		}
	}
	for _, g := range groups {
		for _, p := range patches[g.Key] {
			full := filepath.Join(dir, p.name)
			if err := afero.WriteFile(e.fs, full, []byte(p.fd.Unified), 0644); err != nil {
				return nil, fmt.Errorf("write patch %s: %w", p.name, err)
			}
			res.Files = append(res.Files, full)
		}
	}

	e.logger.Info("exported transcript", "thread", snap.ThreadID, "dir", dir, "files", len(res.Files))
	return res, nil
}

// collectPatches walks the groups' file-change items and assigns each diff a
// stable numbered filename. Numbering is global across the session so the
// same path touched twice gets two files.
func collectPatches(groups []turns.Group) map[string][]patch {
	byGroup := make(map[string][]patch)
	n := 0
	for _, g := range groups {
		for _, m := range g.ThoughtMessages {
			if m.Type != string(protocol.ItemFileChange) || len(m.Details) == 0 {
				continue
			}
			var item protocol.FileChangeItem
			if err := json.Unmarshal(m.Details, &item); err != nil {
				continue
			}
			for _, fd := range diffview.ForChanges(item.Changes) {
				if fd.Unified == "" {
					continue
				}
				n++
				name := filepath.Join(patchDirName,
					fmt.Sprintf("%03d-%s.patch", n, safeName(filepath.Base(fd.Path))))
				byGroup[g.Key] = append(byGroup[g.Key], patch{name: name, fd: fd})
			}
		}
	}
	return byGroup
}

func buildTranscript(snap conversation.Snapshot, groups []turns.Group, patches map[string][]patch, includeThoughts bool) string {
	var b strings.Builder
	writeHeader(&b, snap)
	writePlan(&b, snap.Meta.Plan)

	n := 0
	for _, g := range groups {
		section := turnSection(g, n+1, patches[g.Key], includeThoughts)
		if section == "" {
			continue
		}
		n++
		b.WriteString(section)
	}
	return b.String()
}

func writeHeader(b *strings.Builder, snap conversation.Snapshot) {
	title := snap.Meta.Title
	if title == "" {
		title = snap.ThreadID
	}
	fmt.Fprintf(b, "# %s\n\n", title)
	fmt.Fprintf(b, "- thread: %s\n", snap.ThreadID)
	if snap.Meta.Model != "" {
		fmt.Fprintf(b, "- model: %s\n", snap.Meta.Model)
	}
	if snap.Meta.Cwd != "" {
		fmt.Fprintf(b, "- cwd: %s\n", snap.Meta.Cwd)
	}
	if u := snap.Meta.Usage; u.TotalTokens > 0 {
		fmt.Fprintf(b, "- tokens: %d in, %d out\n", u.InputTokens, u.OutputTokens)
	}
	b.WriteString("\n")
}

func writePlan(b *strings.Builder, steps []protocol.PlanStep) {
	if len(steps) == 0 {
		return
	}
	b.WriteString("## Plan\n\n")
	for _, s := range steps {
		mark := " "
		if s.Status == protocol.PlanStepCompleted {
			mark = "x"
		}
		line := s.Text
		if s.Status == protocol.PlanStepInProgress {
			line += " *(in progress)*"
		}
		fmt.Fprintf(b, "- [%s] %s\n", mark, line)
	}
	b.WriteString("\n")
}

// turnSection renders one group, or "" when the group has nothing to show
// at this verbosity.
func turnSection(g turns.Group, n int, patches []patch, includeThoughts bool) string {
	failures := turnFailures(g)
	empty := len(g.UserMessages) == 0 && g.FinalAssistant == nil &&
		len(patches) == 0 && len(failures) == 0 &&
		!(includeThoughts && len(g.ThoughtMessages) > 0)
	if empty {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Turn %d", n)
	if d, ok := g.Elapsed(); ok {
		fmt.Fprintf(&b, " (%s)", turns.FormatElapsed(d))
	}
	b.WriteString("\n\n")

	for _, m := range g.UserMessages {
		writeQuoted(&b, m.Content)
		if m.Status == protocol.StatusError {
			b.WriteString("*(send failed)*\n")
		}
		b.WriteString("\n")
	}

	if includeThoughts {
		wrote := false
		for _, m := range g.ThoughtMessages {
			if m.Type == conversation.TypeTurnFailure || m.Content == "" {
				continue
			}
			fmt.Fprintf(&b, "- **%s** %s\n", tagFor(m), thoughtText(m))
			wrote = true
		}
		if wrote {
			b.WriteString("\n")
		}
	}

	for _, f := range failures {
		fmt.Fprintf(&b, "**Turn failed:** %s\n\n", firstLine(f))
	}

	if fa := g.FinalAssistant; fa != nil && fa.Content != "" {
		b.WriteString(strings.TrimRight(fa.Content, "\n"))
		if fa.Status == protocol.StatusStreaming {
			b.WriteString(" *(incomplete)*")
		}
		b.WriteString("\n\n")
	}

	if len(patches) > 0 {
		b.WriteString("Files changed:\n\n")
		for _, p := range patches {
			fmt.Fprintf(&b, "- %s (+%d -%d): %s\n", p.fd.Path, p.fd.Stats.Added, p.fd.Stats.Removed, p.name)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func turnFailures(g turns.Group) []string {
	var out []string
	for _, m := range g.ThoughtMessages {
		if m.Type == conversation.TypeTurnFailure && m.Content != "" {
			out = append(out, m.Content)
		}
	}
	return out
}

func thoughtText(m conversation.Message) string {
	line := firstLine(m.Content)
	if m.Type == string(protocol.ItemCommandExecution) {
		return "`" + line + "`"
	}
	return line
}

func tagFor(m conversation.Message) string {
	switch m.Type {
	case string(protocol.ItemReasoning):
		return "thinking"
	case string(protocol.ItemCommandExecution):
		return "command"
	case string(protocol.ItemFileChange):
		return "files"
	case string(protocol.ItemWebSearch):
		return "search"
	case string(protocol.ItemMCPToolCall):
		return "tool"
	case conversation.TypeApproval:
		return "approval"
	case conversation.TypeToolInput:
		return "input"
	}
	return "activity"
}

func writeQuoted(b *strings.Builder, text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		b.WriteString("> " + line + "\n")
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// safeName keeps filenames portable: anything outside a conservative set
// becomes a dash.
func safeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "session"
	}
	return b.String()
}
