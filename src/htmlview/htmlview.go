// Package htmlview normalizes HTML fragments that occasionally appear in
// tool results (scraped pages, web-search snippets) into terminal-friendly
// text. Conversion never fails outward: malformed input falls back to plain
// text extraction and finally to the raw string.
package htmlview

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// LooksLikeHTML sniffs whether a payload is an HTML fragment rather than
// plain text. It runs on every tool result, so it only scans for tags.
func LooksLikeHTML(s string) bool {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "<") {
		return false
	}
	lower := strings.ToLower(t)
	for _, tag := range []string{
		"<!doctype", "<html", "<body", "<div", "<p", "<span", "<table",
		"<a ", "<h1", "<h2", "<h3", "<ul", "<ol", "<pre", "<br",
	} {
		if strings.Contains(lower, tag) {
			return true
		}
	}
	return false
}

// Markdown converts an HTML fragment to markdown, with script and style
// subtrees removed first.
func Markdown(html string) (string, error) {
	cleaned, err := stripNoise(html)
	if err != nil {
		return "", err
	}

	converter := md.NewConverter("", true, nil)
	out, err := converter.ConvertString(cleaned)
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}

	out = strings.TrimSpace(out)
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return out, nil
}

// Text extracts the plain text of an HTML fragment, dropping script and
// style content and collapsing blank lines.
func Text(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style").Each(func(_ int, s *goquery.Selection) {
		s.Remove()
	})

	lines := strings.Split(doc.Text(), "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		if t := strings.TrimSpace(line); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return strings.Join(cleaned, "\n"), nil
}

// Normalize renders a tool result for the terminal: HTML becomes markdown,
// falling back to text extraction and finally to the raw input. Plain text
// passes through untouched.
func Normalize(s string) string {
	if !LooksLikeHTML(s) {
		return s
	}
	if out, err := Markdown(s); err == nil && out != "" {
		return out
	}
	if out, err := Text(s); err == nil && out != "" {
		return out
	}
	return s
}

func stripNoise(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style").Each(func(_ int, s *goquery.Selection) {
		s.Remove()
	})
	return doc.Html()
}
