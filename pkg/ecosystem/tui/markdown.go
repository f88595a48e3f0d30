package tui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

var (
	renderMu  sync.Mutex
	renderers = map[int]*glamour.TermRenderer{}
)

// renderMarkdown renders an instruction at width columns. It falls back
// to the raw text when glamour cannot render it.
func renderMarkdown(md string, width int) string {
	if strings.TrimSpace(md) == "" {
		return md
	}
	if width < 10 {
		width = 10
	}

	renderMu.Lock()
	r, ok := renderers[width]
	if !ok {
		var err error
		r, err = glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			renderMu.Unlock()
			return md
		}
		renderers[width] = r
	}
	renderMu.Unlock()

	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}
