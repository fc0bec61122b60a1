package runtime_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apiFlow(cfg map[string]any) *domain.Flow {
	f := chain("api",
		n("start", domain.NodeTypeStart, nil),
		n("call", domain.NodeTypeAPI, map[string]any{"apiConfig": cfg}),
		n("done", domain.NodeTypeEnd, map[string]any{"message": "status {resp}"}),
	)
	f.Variables = []domain.VariableDecl{{Name: "user", Type: domain.VarString, DefaultValue: "ada"}}
	return f
}

func TestEngine_APISuccess(t *testing.T) {
	var got ports.APIRequest
	caller := callerFunc(func(ctx context.Context, req ports.APIRequest) (*ports.APIResponse, error) {
		got = req
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return &ports.APIResponse{Status: 200, Data: map[string]any{"plan": "pro"}}, nil
	})
	h := newHarness(t, apiFlow(map[string]any{
		"url":              "https://api.example.com/users/{user}",
		"method":           "post",
		"headers":          map[string]any{"X-User": "{user}"},
		"body":             map[string]any{"q": 1},
		"responseVariable": "resp",
		"timeout":          2500,
	}), runtime.WithAPICaller(caller))

	s, err := h.engine.StartSession(context.Background(), "api", "", nil)
	require.NoError(t, err)

	assert.Equal(t, "POST", got.Method)
	assert.Equal(t, "https://api.example.com/users/ada", got.URL)
	assert.Equal(t, "ada", got.Headers["X-User"])
	assert.Equal(t, 2500*time.Millisecond, got.Timeout)

	assert.Equal(t, map[string]any{"status": float64(200), "data": map[string]any{"plan": "pro"}}, s.Variables["resp"])
	assert.Equal(t, "API call to https://api.example.com/users/ada completed successfully.", s.Messages[0].Content)
	assert.Equal(t, `status {"data":{"plan":"pro"},"status":200}`, s.Messages[1].Content)
	assert.Equal(t, domain.SessionCompleted, s.Status)
}

func TestEngine_APIFailureIsRecoverable(t *testing.T) {
	caller := callerFunc(func(ctx context.Context, req ports.APIRequest) (*ports.APIResponse, error) {
		return nil, errors.New("connection refused")
	})
	h := newHarness(t, apiFlow(map[string]any{
		"url": "https://down.example.com", "method": "GET", "responseVariable": "resp",
	}), runtime.WithAPICaller(caller))

	s, err := h.engine.StartSession(context.Background(), "api", "", nil)
	require.NoError(t, err)

	assert.Equal(t, domain.SessionCompleted, s.Status, "execution continues past a failed call")
	assert.Equal(t, "API call to https://down.example.com failed.", s.Messages[0].Content)
	assert.Equal(t, "connection refused", s.Messages[0].Metadata["error"])
	assert.Equal(t, map[string]any{"status": "error", "error": "connection refused"}, s.Variables["resp"])
}

func TestEngine_APIFatalFailure(t *testing.T) {
	caller := callerFunc(func(ctx context.Context, req ports.APIRequest) (*ports.APIResponse, error) {
		return nil, fmt.Errorf("quota exhausted: %w", domain.ErrFatalCall)
	})
	h := newHarness(t, apiFlow(map[string]any{"url": "https://x", "method": "GET"}), runtime.WithAPICaller(caller))

	s, err := h.engine.StartSession(context.Background(), "api", "", nil)
	assert.ErrorIs(t, err, domain.ErrFatalCall)
	assert.Equal(t, domain.SessionError, s.Status)
}

func TestEngine_APIPanicIsContained(t *testing.T) {
	caller := callerFunc(func(ctx context.Context, req ports.APIRequest) (*ports.APIResponse, error) {
		panic("nil map write")
	})
	h := newHarness(t, apiFlow(map[string]any{"url": "https://x", "method": "GET"}), runtime.WithAPICaller(caller))

	s, err := h.engine.StartSession(context.Background(), "api", "", nil)

	var execErr *runtime.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "call", execErr.NodeID)
	assert.Equal(t, domain.SessionError, s.Status)
}

func TestEngine_APITimeouts(t *testing.T) {
	tests := []struct {
		name    string
		timeout any
		want    time.Duration
	}{
		{"default", nil, 3 * time.Second},
		{"configured", 1500, 1500 * time.Millisecond},
		{"capped", 120000, 5 * time.Second},
		{"non-positive uses default", 0, 3 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got time.Duration
			caller := callerFunc(func(ctx context.Context, req ports.APIRequest) (*ports.APIResponse, error) {
				got = req.Timeout
				return &ports.APIResponse{Status: 204}, nil
			})
			cfg := map[string]any{"url": "https://x", "method": "GET"}
			if tt.timeout != nil {
				cfg["timeout"] = tt.timeout
			}
			h := newHarness(t, apiFlow(cfg),
				runtime.WithAPICaller(caller),
				runtime.WithAPITimeouts(3*time.Second, 5*time.Second))

			_, err := h.engine.StartSession(context.Background(), "api", "", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_APIHooks(t *testing.T) {
	var calls, returns []*domain.APIEvent
	hooks := domain.LifecycleHooks{
		OnAPICall:   func(_ context.Context, e *domain.APIEvent) { calls = append(calls, e) },
		OnAPIReturn: func(_ context.Context, e *domain.APIEvent) { returns = append(returns, e) },
	}
	caller := callerFunc(func(ctx context.Context, req ports.APIRequest) (*ports.APIResponse, error) {
		return &ports.APIResponse{Status: 201}, nil
	})
	h := newHarness(t, apiFlow(map[string]any{"url": "https://x", "method": "PUT"}),
		runtime.WithAPICaller(caller), runtime.WithLifecycleHooks(hooks))

	_, err := h.engine.StartSession(context.Background(), "api", "", nil)
	require.NoError(t, err)

	require.Len(t, calls, 1)
	require.Len(t, returns, 1)
	assert.Equal(t, "PUT", calls[0].Method)
	assert.Equal(t, 201, returns[0].StatusCode)
	assert.False(t, returns[0].IsError)
}

func TestEngine_APIWithoutCaller(t *testing.T) {
	h := newHarness(t, apiFlow(map[string]any{"url": "https://x", "method": "GET"}))

	s, err := h.engine.StartSession(context.Background(), "api", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "API call to https://x failed.", s.Messages[0].Content)
}

func TestEngine_Delay(t *testing.T) {
	flow := chain("wait",
		n("start", domain.NodeTypeStart, nil),
		n("pause", domain.NodeTypeDelay, map[string]any{"delay": 1500, "displayMessage": "Typing..."}),
		n("after", domain.NodeTypeMessage, map[string]any{"message": "Done"}),
	)
	h := newHarness(t, flow)

	s, err := h.engine.StartSession(context.Background(), "wait", "", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Typing...", "Done"}, contents(s))
	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, h.clock.Sleeps())
	assert.Equal(t, domain.SessionCompleted, s.Status, "a message without a next edge completes the session")
	assert.True(t, s.Messages[1].Timestamp.After(s.Messages[0].Timestamp))
}

func TestEngine_DelayIsCapped(t *testing.T) {
	for _, ms := range []float64{1e13, 9.3e12, float64(runtime.MaxDelay / time.Millisecond)} {
		flow := chain("wait",
			n("start", domain.NodeTypeStart, nil),
			n("pause", domain.NodeTypeDelay, map[string]any{"delay": ms}),
			n("end", domain.NodeTypeEnd, nil),
		)
		h := newHarness(t, flow)

		s, err := h.engine.StartSession(context.Background(), "wait", "", nil)
		require.NoError(t, err)
		assert.Equal(t, domain.SessionCompleted, s.Status)
		assert.Equal(t, []time.Duration{runtime.MaxDelay}, h.clock.Sleeps(), "delay %v", ms)
	}
}

func TestEngine_DelayCancelled(t *testing.T) {
	flow := chain("wait",
		n("start", domain.NodeTypeStart, nil),
		n("pause", domain.NodeTypeDelay, map[string]any{"delay": 10}),
		n("end", domain.NodeTypeEnd, nil),
	)
	h := newHarness(t, flow)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := h.engine.StartSession(ctx, "wait", "", nil)

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, s)
	assert.Equal(t, domain.SessionError, s.Status)
	assert.Equal(t, domain.SessionError, h.persisted(t, s.SessionID).Status)
}
