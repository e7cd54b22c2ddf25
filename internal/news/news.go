package news

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Candidate is a single news entry awaiting scoring, ranking or archiving.
type Candidate struct {
	Title string
	Link  string

	// Informational fields filled by collectors; never rendered.
	Category  string
	Published time.Time
}

var (
	htmlEntryPattern = regexp.MustCompile(`<p><a href="(.*?)">(.*?)</a></p>`)

	// The title ends at the first unescaped "](" and the link at the first
	// unescaped ")".
	markdownEntryPattern = regexp.MustCompile(`\[((?:\\.|[^\\\n])*?)\]\(((?:\\.|[^\\)\n])*)\)`)

	titleEscaper = strings.NewReplacer(`\`, `\\`, `[`, `\[`, `]`, `\]`)
	linkEscaper  = strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	unescaper    = strings.NewReplacer(`\\`, `\`, `\[`, `[`, `\]`, `]`, `\(`, `(`, `\)`, `)`)
)

// Parse extracts candidates from a day document.
//
// The HTML form <p><a href="LINK">TITLE</a></p> is tried first; when it yields
// nothing the markdown form [TITLE](LINK) is used. Unrecognized input gives an
// empty slice, never an error.
func Parse(doc string) []Candidate {
	if matches := htmlEntryPattern.FindAllStringSubmatch(doc, -1); len(matches) > 0 {
		out := make([]Candidate, 0, len(matches))
		for _, m := range matches {
			out = append(out, Candidate{Link: m[1], Title: m[2]})
		}
		return out
	}

	matches := markdownEntryPattern.FindAllStringSubmatch(doc, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		out = append(out, Candidate{Title: unescaper.Replace(m[1]), Link: unescaper.Replace(m[2])})
	}
	return out
}

// RenderHTML renders c the way ranked day documents store it.
func RenderHTML(c Candidate) string {
	return fmt.Sprintf(`<p><a href="%s">%s</a></p>`, c.Link, c.Title)
}

// RenderMarkdown renders c as an archive entry. The result is the string
// compared during deduplication. Brackets in the title and parentheses in the
// link are backslash-escaped so Parse gives c back unchanged.
func RenderMarkdown(c Candidate) string {
	return fmt.Sprintf("- [%s](%s)", titleEscaper.Replace(c.Title), linkEscaper.Replace(c.Link))
}

// UniqueByLink drops candidates whose link was already seen, keeping the first.
func UniqueByLink(items []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(items))
	out := make([]Candidate, 0, len(items))
	for _, c := range items {
		if _, dup := seen[c.Link]; dup {
			continue
		}
		seen[c.Link] = struct{}{}
		out = append(out, c)
	}
	return out
}

// DayLabel is the localized heading used for day documents, e.g. "今日新闻 - 2025年03月14日".
func DayLabel(day time.Time) string {
	return "今日新闻 - " + day.Format("2006年01月02日")
}

// Lines splits a document into lines without trailing carriage returns.
func Lines(doc string) []string {
	if doc == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(doc, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
