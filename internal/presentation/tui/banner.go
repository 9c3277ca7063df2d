package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the statestack banner with the version underneath.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	// Cool-to-warm ramp, one color per line
	lines := []struct {
		text  string
		color string
	}{
		{"     _        _               _             _    ", "#38bdf8"},
		{" ___| |_ __ _| |_ ___ ___| |_ __ _  ___| | __", "#60a5fa"},
		{"/ __| __/ _` | __/ _ / __| __/ _` |/ __| |/ /", "#818cf8"},
		{"\\__ | || (_| | ||  __\\__ | || (_| | (__|   < ", "#a78bfa"},
		{"|___/\\__\\__,_|\\__\\___|___/\\__\\__,_|\\___|_|\\_\\", "#c084fc"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  "+version).Faint())
	fmt.Fprintln(w)
}
