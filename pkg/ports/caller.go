package ports

import (
	"context"
	"time"
)

// APIRequest is the outbound call configured on an api node.
type APIRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
	Timeout time.Duration
}

// APIResponse is the decoded result of an APIRequest.
// Data holds the JSON-decoded body, or the raw text when the body is not JSON.
type APIResponse struct {
	Status int
	Data   any
}

// APICaller performs api node calls. Calls are attempted at most once.
// Wrap domain.ErrFatalCall to make a failure end the session.
type APICaller interface {
	Call(ctx context.Context, req APIRequest) (*APIResponse, error)
}
