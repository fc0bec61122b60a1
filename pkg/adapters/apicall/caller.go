// Package apicall performs the outbound HTTP requests of api nodes.
package apicall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// DefaultMaxResponseSize caps how many bytes of a response body are decoded.
const DefaultMaxResponseSize = 1 << 20

// Caller implements ports.APICaller over net/http.
// Requests are attempted once; the deadline comes from the context.
type Caller struct {
	client  *http.Client
	maxBody int64
	fatal   map[int]bool
	logger  *slog.Logger
}

var _ ports.APICaller = (*Caller)(nil)

// Option configures a Caller.
type Option func(*Caller)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Caller) {
		if c != nil {
			cl.client = c
		}
	}
}

// WithMaxResponseSize sets the response body limit in bytes.
func WithMaxResponseSize(n int64) Option {
	return func(cl *Caller) {
		if n > 0 {
			cl.maxBody = n
		}
	}
}

// WithFatalStatus marks response codes that end the session instead of being
// reported to the flow.
func WithFatalStatus(codes ...int) Option {
	return func(cl *Caller) {
		for _, c := range codes {
			cl.fatal[c] = true
		}
	}
}

// WithLogger configures a logger for the Caller.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Caller) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// NewCaller creates a Caller.
func NewCaller(opts ...Option) *Caller {
	c := &Caller{
		client:  &http.Client{},
		maxBody: DefaultMaxResponseSize,
		fatal:   make(map[int]bool),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call sends req. Non-2xx responses are returned as errors with the response attached.
func (c *Caller) Call(ctx context.Context, req ports.APIRequest) (*ports.APIResponse, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil && method != http.MethodGet && method != http.MethodHead {
		raw, err := encodeBody(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, c.maxBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	resp := &ports.APIResponse{Status: httpResp.StatusCode, Data: decodeBody(raw)}

	c.logger.Debug("API call returned", "method", method, "url", req.URL, "status", resp.Status)

	if resp.Status < 200 || resp.Status > 299 {
		err := fmt.Errorf("request failed with status code %d", resp.Status)
		if c.fatal[resp.Status] {
			err = fmt.Errorf("%w: %w", domain.ErrFatalCall, err)
		}
		return resp, err
	}
	return resp, nil
}

// encodeBody sends strings verbatim and JSON-encodes everything else.
func encodeBody(v any) ([]byte, error) {
	if s, ok := v.(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(v)
}

// decodeBody returns the JSON value of raw, or raw as text when it is not JSON.
func decodeBody(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
