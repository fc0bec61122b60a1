package tui

import (
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
// The style follows the terminal background; wrap sets the word wrap width.
func NewRenderer(wrap int) func(string) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if wrap > 0 {
		opts = append(opts, glamour.WithWordWrap(wrap))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}
