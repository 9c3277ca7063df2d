package tui

import (
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
// Plain mode uses the ASCII style, for pipes and tests.
func NewRenderer(plain bool) (func(string) (string, error), error) {
	style := glamour.WithAutoStyle() // Automatically detect light/dark background
	if plain {
		style = glamour.WithStandardStyle("ascii")
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(100))
	if err != nil {
		return nil, err
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}, nil
}
