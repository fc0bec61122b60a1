package tui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Printer writes transcript messages to a terminal.
// In rich mode bot messages are rendered as markdown and roles are coloured;
// otherwise output is plain text, suitable for pipes and logs.
type Printer struct {
	w      io.Writer
	out    *termenv.Output
	rich   bool
	render func(string) (string, error)
}

// NewPrinter enables rich mode when w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	rich := false
	width := 0
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		rich = true
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil {
			width = cols - 4
		}
	}
	return NewPrinterWithMode(w, rich, width)
}

// NewPrinterWithMode forces plain or rich output.
func NewPrinterWithMode(w io.Writer, rich bool, width int) *Printer {
	p := &Printer{w: w, out: termenv.NewOutput(w), rich: rich}
	if rich {
		p.render = NewRenderer(width)
	}
	return p
}

// Rich reports whether markdown rendering is enabled.
func (p *Printer) Rich() bool { return p.rich }

// Print writes one message. User messages are skipped since the user just typed them.
func (p *Printer) Print(m domain.ChatMessage) {
	switch m.Role {
	case domain.RoleUser:
		return
	case domain.RoleSystem:
		p.line(p.out.String("!! " + m.Content).Foreground(p.out.Color("#f87171")).String())
	default:
		if p.rich {
			if rendered, err := p.render(m.Content); err == nil {
				fmt.Fprint(p.w, rendered)
				return
			}
		}
		p.line(m.Content)
	}
}

// PrintNew writes the messages appended after the first seen messages and
// returns the new count.
func (p *Printer) PrintNew(msgs []domain.ChatMessage, seen int) int {
	for i := seen; i < len(msgs); i++ {
		p.Print(msgs[i])
	}
	return len(msgs)
}

// Prompt writes the input prompt, with the placeholder as a hint when set.
func (p *Printer) Prompt(placeholder string) {
	hint := ""
	if placeholder != "" {
		hint = p.out.String("(" + placeholder + ") ").Faint().String()
	}
	fmt.Fprint(p.w, hint+p.out.String("> ").Bold().String())
}

// Status writes a system notice such as the session outcome.
func (p *Printer) Status(format string, args ...any) {
	p.line(p.out.String(">>> " + fmt.Sprintf(format, args...)).Faint().String())
}

func (p *Printer) line(s string) {
	fmt.Fprintln(p.w, strings.TrimRight(s, "\n"))
}
