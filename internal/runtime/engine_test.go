package runtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertSuspensionInvariant(t *testing.T, s *domain.Session) {
	t.Helper()
	waitingOnInput := s.Status == domain.SessionActive && s.InputNodeID == s.CurrentNodeID && s.InputNodeID != ""
	assert.Equal(t, waitingOnInput, s.WaitingForInput, "waitingForInput iff active and parked on an input node")
}

func TestEngine_HappyPath(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, greeter())

	s, err := h.engine.StartSession(ctx, "greeter", "u1", map[string]any{"channel": "web"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hi {name}", "What is your name?"}, contents(s))
	assert.True(t, s.WaitingForInput)
	assert.Equal(t, "ask", s.InputNodeID)
	assert.Equal(t, "ask", s.CurrentNodeID)
	assert.Equal(t, "u1", s.UserID)
	assertSuspensionInvariant(t, s)

	prompt := s.Messages[1]
	assert.Equal(t, domain.RoleBot, prompt.Role)
	assert.Equal(t, "text", prompt.Metadata["inputType"])

	s, err = h.engine.ProcessUserInput(ctx, s, "Ada")
	require.NoError(t, err)

	assert.Equal(t, []string{"Hi {name}", "What is your name?", "Ada", "Nice to meet you, Ada"}, contents(s))
	assert.Equal(t, domain.RoleUser, s.Messages[2].Role)
	assert.Equal(t, "Ada", s.Variables["name"])
	assert.Equal(t, domain.SessionCompleted, s.Status)
	assert.NotNil(t, s.EndedAt)
	assert.NotNil(t, s.Duration)
	assertSuspensionInvariant(t, s)

	stored := h.persisted(t, s.SessionID)
	assert.Equal(t, contents(s), contents(stored))
	assert.Equal(t, domain.SessionCompleted, stored.Status)
	assert.Equal(t, "web", stored.Metadata["channel"])
}

func TestEngine_RetentionFollowsInjectedClock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, greeter())

	s, err := h.engine.StartSession(ctx, "greeter", "u1", nil)
	require.NoError(t, err)
	assert.True(t, s.CreatedAt.Equal(epoch))
	h.persisted(t, s.SessionID)

	h.clock.Advance(memory.DefaultRetention - time.Minute)
	_, err = h.engine.ProcessUserInput(ctx, s, "Ada")
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	_, err = h.store.FindBySessionID(ctx, s.SessionID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestEngine_DeclaredDefaultsAreSeeded(t *testing.T) {
	ctx := context.Background()
	flow := greeter()
	flow.Variables = []domain.VariableDecl{
		{Name: "name", Type: domain.VarString, DefaultValue: ""},
		{Name: "visits", Type: domain.VarNumber, DefaultValue: "3"},
		{Name: "notes", Type: domain.VarArray},
	}
	h := newHarness(t, flow)

	s, err := h.engine.StartSession(ctx, "greeter", "", nil)
	require.NoError(t, err)

	assert.Equal(t, "Hi ", s.Messages[0].Content)
	assert.Equal(t, float64(3), s.Variables["visits"], "defaults are coerced to the declared type")
	assert.NotContains(t, s.Variables, "notes")
}

func TestEngine_NumberInputRoundTrip(t *testing.T) {
	ctx := context.Background()
	flow := chain("age",
		n("start", domain.NodeTypeStart, nil),
		n("ask", domain.NodeTypeInput, map[string]any{
			"inputType": "number", "variableName": "age",
			"validation": map[string]any{"min": 0, "max": 10},
		}),
		n("end", domain.NodeTypeEnd, map[string]any{"message": "Got {age}"}),
	)
	h := newHarness(t, flow)

	s, err := h.engine.StartSession(ctx, "age", "", nil)
	require.NoError(t, err)
	assert.Equal(t, runtime.DefaultInputPrompt, s.Messages[0].Content)

	s, err = h.engine.ProcessUserInput(ctx, s, "15")
	require.NoError(t, err)
	assert.Equal(t, "Maximum value is 10", s.Messages[len(s.Messages)-1].Content)
	assert.NotContains(t, s.Variables, "age")
	assert.True(t, s.WaitingForInput)
	assertSuspensionInvariant(t, s)

	s, err = h.engine.ProcessUserInput(ctx, s, "abc")
	require.NoError(t, err)
	assert.Equal(t, "Please enter a valid number", s.Messages[len(s.Messages)-1].Content)
	assert.True(t, s.WaitingForInput)

	// The whole answer must be a number; a numeric prefix is not enough.
	s, err = h.engine.ProcessUserInput(ctx, s, "5 apples")
	require.NoError(t, err)
	assert.Equal(t, "Please enter a valid number", s.Messages[len(s.Messages)-1].Content)
	assert.NotContains(t, s.Variables, "age")

	s, err = h.engine.ProcessUserInput(ctx, s, " 5 ")
	require.NoError(t, err)
	assert.Equal(t, float64(5), s.Variables["age"])
	assert.Equal(t, "Got 5", s.Messages[len(s.Messages)-1].Content)
	assert.Equal(t, domain.SessionCompleted, s.Status)

	stored := h.persisted(t, s.SessionID)
	assert.Equal(t, float64(5), stored.Variables["age"])
}

func TestEngine_InputCoercedToDeclaredType(t *testing.T) {
	ctx := context.Background()
	flow := chain("typed",
		n("start", domain.NodeTypeStart, nil),
		n("ask", domain.NodeTypeInput, map[string]any{"inputType": "text", "variableName": "agree"}),
		n("end", domain.NodeTypeEnd, nil),
	)
	flow.Variables = []domain.VariableDecl{{Name: "agree", Type: domain.VarBoolean}}
	h := newHarness(t, flow)

	s, err := h.engine.StartSession(ctx, "typed", "", nil)
	require.NoError(t, err)

	s, err = h.engine.ProcessUserInput(ctx, s, "maybe")
	require.NoError(t, err)
	assert.Equal(t, "Please enter a valid boolean", s.Messages[len(s.Messages)-1].Content)
	assert.True(t, s.WaitingForInput)

	s, err = h.engine.ProcessUserInput(ctx, s, "true")
	require.NoError(t, err)
	assert.Equal(t, true, s.Variables["agree"])
}

func conditionFlow() *domain.Flow {
	f := chain("cond",
		n("start", domain.NodeTypeStart, nil),
		n("route", domain.NodeTypeCondition, map[string]any{
			"conditions": []any{
				map[string]any{"variable": "age", "operator": ">=", "value": 18, "targetNodeId": "adult"},
				map[string]any{"variable": "age", "operator": "<", "value": 18, "targetNodeId": "minor"},
			},
		}),
		n("fallback", domain.NodeTypeEnd, map[string]any{"message": "fallback"}),
	)
	f.Nodes = append(f.Nodes,
		n("adult", domain.NodeTypeEnd, map[string]any{"message": "adult"}),
		n("minor", domain.NodeTypeEnd, map[string]any{"message": "minor"}),
	)
	return f
}

func TestEngine_ConditionOrder(t *testing.T) {
	tests := []struct {
		name string
		age  any
		want string
	}{
		{"adult", float64(20), "adult"},
		{"boundary", 18, "adult"},
		{"minor", "12", "minor"},
		{"unbound falls back to default edge", nil, "fallback"},
		{"not a number", "old", "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := conditionFlow()
			if tt.age != nil {
				flow.Variables = []domain.VariableDecl{{Name: "age", Type: domain.VarObject, DefaultValue: tt.age}}
			}
			h := newHarness(t, flow)

			s, err := h.engine.StartSession(context.Background(), "cond", "", nil)
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, contents(s))
			assert.Equal(t, domain.SessionCompleted, s.Status)
		})
	}
}

func TestEngine_ConditionDefaultTarget(t *testing.T) {
	flow := conditionFlow()
	flow.Nodes[1].Data["defaultTarget"] = "minor"
	h := newHarness(t, flow)

	s, err := h.engine.StartSession(context.Background(), "cond", "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"minor"}, contents(s))
}

func TestEngine_StepBudgetStopsCycles(t *testing.T) {
	flow := &domain.Flow{
		ID: "loop", Status: domain.FlowActive,
		Nodes: []domain.Node{
			n("start", domain.NodeTypeStart, nil),
			n("ping", domain.NodeTypeJump, map[string]any{"targetNodeId": "pong"}),
			n("pong", domain.NodeTypeJump, map[string]any{"targetNodeId": "ping"}),
		},
		Edges: []domain.Edge{{ID: "e1", Source: "start", Target: "ping"}},
	}
	h := newHarness(t, flow, runtime.WithStepBudget(50))

	s, err := h.engine.StartSession(context.Background(), "loop", "", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStepBudgetExceeded)
	var execErr *runtime.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, s.SessionID, execErr.SessionID)

	require.NotNil(t, s)
	assert.Equal(t, domain.SessionError, s.Status)
	last := s.Messages[len(s.Messages)-1]
	assert.Equal(t, domain.RoleSystem, last.Role)
	assert.Equal(t, runtime.FaultMessage, last.Content)
	assertSuspensionInvariant(t, s)

	assert.Equal(t, domain.SessionError, h.persisted(t, s.SessionID).Status)
}

func TestEngine_StartSessionMisuse(t *testing.T) {
	ctx := context.Background()

	inactive := greeter()
	inactive.Status = domain.FlowDraft
	h := newHarness(t, inactive)
	s, err := h.engine.StartSession(ctx, "greeter", "", nil)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, domain.ErrFlowNotActive)

	_, err = h.engine.StartSession(ctx, "missing", "", nil)
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)

	headless := chain("headless", n("hi", domain.NodeTypeMessage, map[string]any{"message": "hi"}))
	h = newHarness(t, headless)
	_, err = h.engine.StartSession(ctx, "headless", "", nil)
	assert.ErrorIs(t, err, domain.ErrNoStartNode)

	page, err := h.store.Query(ctx, domain.SessionQuery{FlowID: "headless"})
	require.NoError(t, err)
	assert.Empty(t, page.Sessions, "misuse creates no session")
}

func TestEngine_ProcessUserInputMisuse(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, greeter())

	s, err := h.engine.StartSession(ctx, "greeter", "", nil)
	require.NoError(t, err)
	s, err = h.engine.ProcessUserInput(ctx, s, "Ada")
	require.NoError(t, err)

	before := s.Clone()
	_, err = h.engine.ProcessUserInput(ctx, s, "again")
	assert.ErrorIs(t, err, domain.ErrNotWaitingForInput)
	assert.Equal(t, before, s)

	bogus := domain.NewSession("bogus", "greeter", "hi", epoch)
	bogus.WaitingForInput = true
	bogus.InputNodeID = "hi"
	_, err = h.engine.ProcessUserInput(ctx, bogus, "x")
	assert.ErrorIs(t, err, domain.ErrInvalidInputNode)
	assert.Empty(t, bogus.Messages)
}

func TestEngine_Determinism(t *testing.T) {
	flow := func() *domain.Flow {
		return chain("quiz",
			n("start", domain.NodeTypeStart, nil),
			n("ask", domain.NodeTypeInput, map[string]any{"inputType": "number", "variableName": "n", "message": "Pick"}),
			n("route", domain.NodeTypeCondition, map[string]any{
				"conditions": []any{
					map[string]any{"variable": "n", "operator": "==", "value": "7", "targetNodeId": "end"},
				},
			}),
			n("end", domain.NodeTypeEnd, map[string]any{"message": "You picked {n}"}),
		)
	}
	inputs := []string{"abc", "", "7"}

	run := func() *domain.Session {
		h := newHarness(t, flow())
		s, err := h.engine.StartSession(context.Background(), "quiz", "", nil)
		require.NoError(t, err)
		for _, in := range inputs {
			s, err = h.engine.ProcessUserInput(context.Background(), s, in)
			require.NoError(t, err)
		}
		return s
	}

	a, b := run(), run()
	assert.Equal(t, contents(a), contents(b))
	assert.Equal(t, a.Variables, b.Variables)
	assert.Equal(t, domain.SessionCompleted, a.Status)
	assert.Equal(t, "You picked 7", a.Messages[len(a.Messages)-1].Content)
}

func TestEngine_Events(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, greeter())

	s, err := h.engine.StartSession(ctx, "greeter", "u9", nil)
	require.NoError(t, err)
	_, err = h.engine.ProcessUserInput(ctx, s, "Ada")
	require.NoError(t, err)

	assert.Equal(t, []domain.EventType{
		domain.EventSessionStarted,
		domain.EventBotMessage,
		domain.EventBotMessage,
		domain.EventWaitingInput,
		domain.EventBotMessage,
		domain.EventSessionEnded,
	}, h.events.types())

	ended := h.events.events[len(h.events.events)-1]
	assert.Equal(t, domain.SessionCompleted, ended.Status)
	assert.Equal(t, "u9", ended.UserID)
	assert.Equal(t, s.SessionID, ended.SessionID)
	assert.Equal(t, "Nice to meet you, Ada", h.events.events[4].Message.Content)
}

func TestEngine_LifecycleHooks(t *testing.T) {
	var entered, left []string
	hooks := domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) { entered = append(entered, e.NodeID) },
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) { left = append(left, e.NodeID) },
	}
	h := newHarness(t, greeter(), runtime.WithLifecycleHooks(hooks))

	_, err := h.engine.StartSession(context.Background(), "greeter", "", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"start", "hi", "ask"}, entered)
	assert.Equal(t, entered, left)
}

func TestEngine_FaultsEndSession(t *testing.T) {
	tests := []struct {
		name string
		node domain.Node
		want error
	}{
		{"jump without target", n("bad", domain.NodeTypeJump, nil), domain.ErrJumpWithoutTarget},
		{"unknown type", n("bad", "carousel", map[string]any{}), domain.ErrUnknownNodeType},
		{"dangling jump", n("bad", domain.NodeTypeJump, map[string]any{"targetNodeId": "nowhere"}), domain.ErrNodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := chain("faulty",
				n("start", domain.NodeTypeStart, nil),
				n("hello", domain.NodeTypeMessage, map[string]any{"message": "hello"}),
				tt.node,
			)
			h := newHarness(t, flow)

			s, err := h.engine.StartSession(context.Background(), "faulty", "", nil)
			assert.ErrorIs(t, err, tt.want)
			require.NotNil(t, s)
			assert.Equal(t, domain.SessionError, s.Status)
			assert.Equal(t, []string{"hello", runtime.FaultMessage}, contents(s), "transcript up to the fault is kept")
			assert.Contains(t, h.events.types(), domain.EventError)
		})
	}
}

func TestEngine_EndSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, greeter())

	s, err := h.engine.StartSession(ctx, "greeter", "", nil)
	require.NoError(t, err)
	h.clock.Advance(42 * time.Second)

	require.NoError(t, h.engine.EndSession(ctx, s, domain.SessionAbandoned))
	assert.Equal(t, domain.SessionAbandoned, s.Status)
	assert.False(t, s.WaitingForInput)
	assert.EqualValues(t, 42, *s.Duration)
	assertSuspensionInvariant(t, s)

	stored := h.persisted(t, s.SessionID)
	assert.Equal(t, domain.SessionAbandoned, stored.Status)

	require.NoError(t, h.engine.EndSession(ctx, s, domain.SessionError), "ending twice is a no-op")
	assert.Equal(t, domain.SessionAbandoned, s.Status)

	_, err = h.engine.ProcessUserInput(ctx, s, "late")
	assert.True(t, errors.Is(err, domain.ErrNotWaitingForInput))
}
