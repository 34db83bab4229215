package render

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
)

// markdownRenderer is the subset of glamour the renderer uses.
type markdownRenderer interface {
	Render(in string) (string, error)
}

// Markdown renders agent prose. In plain mode, or whenever glamour fails,
// the raw text comes back unchanged so output never goes missing.
func (r *Renderer) Markdown(text string) string {
	if r.opts.Plain || strings.TrimSpace(text) == "" {
		return text
	}

	if !r.mdReady {
		r.mdReady = true
		wrap := r.opts.Width
		if wrap > 100 {
			wrap = 100
		}
		opts := []glamour.TermRendererOption{glamour.WithWordWrap(wrap)}
		switch r.opts.Theme.Name {
		case "light":
			opts = append(opts, glamour.WithStandardStyle("light"))
		case "dark":
			opts = append(opts, glamour.WithStandardStyle("dark"))
		default:
			opts = append(opts, glamour.WithAutoStyle())
		}
		if md, err := glamour.NewTermRenderer(opts...); err == nil {
			r.md = md
		}
	}
	if r.md == nil {
		return text
	}

	out, err := r.md.Render(text)
	if err != nil {
		return text
	}
	// Glamour pads with blank lines and trailing indentation.
	return strings.Trim(out, "\n")
}

// UnifiedDiff syntax-highlights a unified diff. With colors disabled the
// diff passes through untouched.
func (r *Renderer) UnifiedDiff(diff string) string {
	if r.opts.NoColor || diff == "" {
		return diff
	}

	lexer := lexers.Get("diff")
	if lexer == nil {
		return diff
	}
	lexer = chroma.Coalesce(lexer)

	styleName := "monokai"
	if r.opts.Theme.Name == "light" {
		styleName = "github"
	}
	style := styles.Get(styleName)
	if style == nil {
		style = styles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		return diff
	}

	iterator, err := lexer.Tokenise(nil, diff)
	if err != nil {
		return diff
	}
	var b strings.Builder
	if err := formatter.Format(&b, style, iterator); err != nil {
		return diff
	}
	return b.String()
}
