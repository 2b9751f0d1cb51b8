package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

const defaultRenderWidth = 80

// markdownRenderer wraps a glamour renderer cached per width. Assistant turns
// re-render on every viewport rebuild, so the renderer is only recreated when
// the terminal is actually resized.
type markdownRenderer struct {
	renderer *glamour.TermRenderer
	width    int
}

func glamourOptions(width int) []glamour.TermRendererOption {
	return []glamour.TermRendererOption{
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	}
}

// newMarkdownRenderer creates a renderer wrapping at width. A nil return
// means glamour could not initialize; callers fall back to plain text.
func newMarkdownRenderer(width int) *markdownRenderer {
	if width <= 0 {
		width = defaultRenderWidth
	}

	r, err := glamour.NewTermRenderer(glamourOptions(width)...)
	if err != nil {
		return nil
	}

	return &markdownRenderer{renderer: r, width: width}
}

// UpdateWidth recreates the renderer when the wrap width changed. Reports
// whether a new renderer was installed; on error the previous one stays.
func (m *markdownRenderer) UpdateWidth(width int) bool {
	if m == nil || width <= 0 || m.width == width {
		return false
	}

	r, err := glamour.NewTermRenderer(glamourOptions(width)...)
	if err != nil {
		return false
	}

	m.renderer = r
	m.width = width
	return true
}

// Render converts markdown to styled terminal output, returning the input
// unchanged when the renderer is unavailable or fails.
func (m *markdownRenderer) Render(markdown string) string {
	if m == nil || m.renderer == nil {
		return markdown
	}

	rendered, err := m.renderer.Render(markdown)
	if err != nil {
		return markdown
	}

	return strings.TrimSuffix(rendered, "\n")
}
