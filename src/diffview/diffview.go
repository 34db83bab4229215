// Package diffview prepares file-change payloads for display: a unified
// diff per file (synthesized from the old/new content pair when the server
// sent none), added/removed line counts for approval summaries, and
// intraline spans for highlighting changed segments within a line.
package diffview

import (
	"strings"

	udiff "github.com/aymanbagabas/go-udiff"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/quayside/coxswain/src/protocol"
)

// Stats counts added and removed lines across a diff.
type Stats struct {
	Added   int
	Removed int
}

// Add accumulates another count.
func (s *Stats) Add(other Stats) {
	s.Added += other.Added
	s.Removed += other.Removed
}

// FileDiff is one file's change prepared for display.
type FileDiff struct {
	Path    string
	Kind    string
	Unified string
	Stats   Stats
}

// ForChange builds the display diff for one file change. A server-rendered
// diff wins; otherwise one is synthesized from the content pair.
func ForChange(c protocol.FileChange) FileDiff {
	unified := c.Diff
	if unified == "" && (c.OldContent != "" || c.NewContent != "") {
		unified = Unified(c.Path, c.Kind, c.OldContent, c.NewContent)
	}
	return FileDiff{
		Path:    c.Path,
		Kind:    c.Kind,
		Unified: unified,
		Stats:   CountStats(unified),
	}
}

// ForChanges prepares a whole change set in order.
func ForChanges(changes []protocol.FileChange) []FileDiff {
	out := make([]FileDiff, 0, len(changes))
	for _, c := range changes {
		out = append(out, ForChange(c))
	}
	return out
}

// Summarize totals line stats across a change set, for one-line approval
// summaries.
func Summarize(changes []protocol.FileChange) Stats {
	var total Stats
	for _, c := range changes {
		total.Add(ForChange(c).Stats)
	}
	return total
}

// Unified synthesizes a unified diff for one path. Added and deleted files
// get /dev/null on the missing side, matching git's convention.
func Unified(path, kind, oldContent, newContent string) string {
	oldLabel, newLabel := "a/"+path, "b/"+path
	switch kind {
	case "add":
		oldLabel = "/dev/null"
	case "delete":
		newLabel = "/dev/null"
	}
	return udiff.Unified(oldLabel, newLabel, oldContent, newContent)
}

// CountStats counts +/- lines in a unified diff, skipping the file headers.
func CountStats(unified string) Stats {
	var s Stats
	for _, line := range strings.Split(unified, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			s.Added++
		case strings.HasPrefix(line, "-"):
			s.Removed++
		}
	}
	return s
}

// Op classifies an intraline span.
type Op int

const (
	OpEqual Op = iota
	OpInsert
	OpDelete
)

// Span is one intraline segment of an old/new line pair.
type Span struct {
	Op   Op
	Text string
}

// IntralineSpans marks character-level differences between two lines so the
// renderer can highlight just the changed segments. Semantic cleanup merges
// the character soup into human-readable runs.
func IntralineSpans(oldLine, newLine string) []Span {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldLine, newLine, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	spans := make([]Span, 0, len(diffs))
	for _, d := range diffs {
		spans = append(spans, Span{Op: opOf(d.Type), Text: d.Text})
	}
	return spans
}

func opOf(t diffmatchpatch.Operation) Op {
	switch t {
	case diffmatchpatch.DiffInsert:
		return OpInsert
	case diffmatchpatch.DiffDelete:
		return OpDelete
	default:
		return OpEqual
	}
}
