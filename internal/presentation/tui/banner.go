package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the chatflow ASCII art banner followed by the version.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	lines := []struct {
		text, color string
	}{
		{"        _           _    __ _               ", "#38bdf8"},
		{"   ___ | |__   __ _| |_ / _| | _____      __", "#22d3ee"},
		{"  / __|| '_ \\ / _` | __| |_| |/ _ \\ \\ /\\ / /", "#2dd4bf"},
		{" | (__ | | | | (_| | |_|  _| | (_) \\ V  V / ", "#34d399"},
		{"  \\___||_| |_|\\__,_|\\__|_| |_|\\___/ \\_/\\_/  ", "#4ade80"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	if version != "" {
		fmt.Fprintln(w, out.String("  "+version).Faint())
	}
	fmt.Fprintln(w)
}
