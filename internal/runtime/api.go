package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

var errNoCaller = errors.New("no api caller configured")

// callAPI performs the call configured on an api node at most once.
// Failures are recorded in the transcript and the response variable; only
// errors wrapping domain.ErrFatalCall are returned.
func (e *Engine) callAPI(ctx context.Context, s *domain.Session, n *domain.Node, cfg domain.APIConfig) error {
	req := ports.APIRequest{
		Method:  strings.ToUpper(cfg.Method),
		URL:     interpolate(cfg.URL, s.Variables),
		Body:    cfg.Body,
		Timeout: e.timeoutFor(cfg.Timeout),
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if len(cfg.Headers) > 0 {
		req.Headers = make(map[string]string, len(cfg.Headers))
		for k, v := range cfg.Headers {
			req.Headers[k] = interpolate(v, s.Variables)
		}
	}

	ev := &domain.APIEvent{SessionID: s.SessionID, NodeID: n.ID, Method: req.Method, URL: req.URL}
	if e.hooks.OnAPICall != nil {
		ev.Timestamp = e.clock.Now()
		e.hooks.OnAPICall(ctx, ev)
	}

	started := e.clock.Now()
	resp, err := e.doCall(ctx, req)

	if e.hooks.OnAPIReturn != nil {
		ret := *ev
		ret.Timestamp = e.clock.Now()
		ret.Duration = ret.Timestamp.Sub(started)
		ret.IsError = err != nil
		if resp != nil {
			ret.StatusCode = resp.Status
		}
		e.hooks.OnAPIReturn(ctx, &ret)
	}

	if err != nil {
		if errors.Is(err, domain.ErrFatalCall) {
			return err
		}
		e.logger.Warn("API call failed", "session_id", s.SessionID, "node_id", n.ID, "url", req.URL, "error", err)
		if cfg.ResponseVariable != "" {
			s.Variables[cfg.ResponseVariable] = map[string]any{"status": "error", "error": err.Error()}
		}
		e.appendBot(ctx, s, n.ID, fmt.Sprintf("API call to %s failed.", req.URL), map[string]any{"error": err.Error()})
		return nil
	}

	if cfg.ResponseVariable != "" {
		s.Variables[cfg.ResponseVariable] = map[string]any{
			"status": float64(resp.Status),
			"data":   resp.Data,
		}
	}
	e.appendBot(ctx, s, n.ID, fmt.Sprintf("API call to %s completed successfully.", req.URL), nil)
	return nil
}

func (e *Engine) doCall(ctx context.Context, req ports.APIRequest) (*ports.APIResponse, error) {
	if e.caller == nil {
		return nil, errNoCaller
	}
	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()
	return e.caller.Call(ctx, req)
}

// timeoutFor resolves the timeout of an api node: the configured milliseconds when
// positive, otherwise the engine default, never above the engine maximum.
func (e *Engine) timeoutFor(ms *float64) time.Duration {
	d := e.apiTimeout
	if ms != nil && *ms > 0 {
		d = time.Duration(*ms * float64(time.Millisecond))
	}
	if d > e.apiMaxTimeout {
		d = e.apiMaxTimeout
	}
	return d
}
