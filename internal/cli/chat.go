package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/presentation/tui"
	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/session"
)

// Chat commands recognised at the prompt.
const (
	cmdQuit  = "/quit"
	cmdExit  = "/exit"
	cmdReset = "/reset"
)

// ChatOptions configures an interactive terminal session.
type ChatOptions struct {
	FlowID string
	UserID string
	In     io.Reader
	// Printer renders the transcript. Defaults to a printer on Out.
	Printer *tui.Printer
	Out     io.Writer
}

// RunChat starts a session on the flow and relays lines from In as user input
// until the session ends, the user quits or In is exhausted. A session left
// waiting is abandoned. It returns the last known session.
func RunChat(ctx context.Context, app *chatflow.App, opts ChatOptions) (*domain.Session, error) {
	p := opts.Printer
	if p == nil {
		p = tui.NewPrinter(opts.Out)
	}

	s, err := app.Start(ctx, opts.FlowID, opts.UserID, nil)
	if err = faultTolerant(s, err); err != nil {
		return nil, err
	}
	seen := p.PrintNew(s.Messages, 0)

	readCtx, stop := context.WithCancel(ctx)
	defer stop()
	lines := readLines(readCtx, opts.In)
	for s.WaitingForInput {
		p.Prompt(placeholder(ctx, app, s))

		var line string
		select {
		case <-ctx.Done():
			return abandon(app, p, s, ctx.Err())
		case l, ok := <-lines:
			if !ok {
				return abandon(app, p, s, io.EOF)
			}
			line = l
		}

		switch strings.TrimSpace(line) {
		case cmdQuit, cmdExit:
			return abandon(app, p, s, nil)
		case cmdReset:
			next, err := app.Sessions.Reset(ctx, s.SessionID)
			if err = faultTolerant(next, err); err != nil {
				return s, err
			}
			p.Status("Session reset")
			s = next
			seen = p.PrintNew(s.Messages, 0)
			continue
		}

		next, err := app.Send(ctx, s.SessionID, line)
		if errors.Is(err, session.ErrInputTooLarge) || errors.Is(err, session.ErrInvalidUTF8) {
			p.Status("%v", err)
			continue
		}
		if err = faultTolerant(next, err); err != nil {
			return s, err
		}
		s = next
		seen = p.PrintNew(s.Messages, seen)
	}

	p.Status("Session ended: %s", s.Status)
	return s, nil
}

// faultTolerant accepts a session that ended in a fault: its transcript
// already tells the user what happened.
func faultTolerant(s *domain.Session, err error) error {
	var execErr *runtime.ExecutionError
	if err != nil && s != nil && errors.As(err, &execErr) {
		return nil
	}
	return err
}

func abandon(app *chatflow.App, p *tui.Printer, s *domain.Session, cause error) (*domain.Session, error) {
	ended, err := app.Sessions.Abandon(context.Background(), s.SessionID)
	if err != nil {
		return s, errors.Join(cause, err)
	}
	p.Status("Session ended: %s", ended.Status)
	if isInterrupted(cause) {
		cause = nil
	}
	return ended, cause
}

// readLines feeds lines from r until EOF or ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case out <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func placeholder(ctx context.Context, app *chatflow.App, s *domain.Session) string {
	flow, err := app.Flows.Repository().FindByID(ctx, s.FlowID)
	if err != nil {
		return ""
	}
	node, ok := flow.NodeByID(s.CurrentNodeID)
	if !ok {
		return ""
	}
	kind, err := node.Kind()
	if err != nil {
		return ""
	}
	if in, ok := kind.(*domain.InputData); ok {
		return in.Placeholder
	}
	return ""
}
