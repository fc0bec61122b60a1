package runtime_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	contract "github.com/aretw0/chatflow/pkg/ports/tests"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Emit(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type harness struct {
	engine *runtime.Engine
	store  *memory.Store
	clock  *contract.FakeClock
	events *recorder
}

func newHarness(t *testing.T, flow *domain.Flow, opts ...runtime.EngineOption) *harness {
	t.Helper()
	flows, err := memory.NewFromFlows(flow)
	require.NoError(t, err)

	clock := contract.NewFakeClock(epoch)
	h := &harness{
		store:  memory.NewStore(memory.WithClock(clock)),
		clock:  clock,
		events: &recorder{},
	}
	seq := 0
	base := []runtime.EngineOption{
		runtime.WithClock(h.clock),
		runtime.WithEventSink(h.events),
		runtime.WithIDGenerator(func() string { seq++; return fmt.Sprintf("id-%d", seq) }),
	}
	h.engine = runtime.NewEngine(flows, h.store, append(base, opts...)...)
	return h
}

func (h *harness) persisted(t *testing.T, id string) *domain.Session {
	t.Helper()
	s, err := h.store.FindBySessionID(context.Background(), id)
	require.NoError(t, err)
	return s
}

func n(id string, typ domain.NodeType, data map[string]any) domain.Node {
	return domain.Node{ID: id, Type: typ, Data: data}
}

// chain links nodes in order with default edges.
func chain(id string, nodes ...domain.Node) *domain.Flow {
	f := &domain.Flow{ID: id, Name: id, Status: domain.FlowActive, Version: 1, Nodes: nodes}
	for i := 0; i+1 < len(nodes); i++ {
		f.Edges = append(f.Edges, domain.Edge{
			ID:     fmt.Sprintf("e%d", i+1),
			Source: nodes[i].ID,
			Target: nodes[i+1].ID,
		})
	}
	return f
}

func greeter() *domain.Flow {
	return chain("greeter",
		n("start", domain.NodeTypeStart, nil),
		n("hi", domain.NodeTypeMessage, map[string]any{"message": "Hi {name}"}),
		n("ask", domain.NodeTypeInput, map[string]any{"inputType": "text", "variableName": "name", "message": "What is your name?"}),
		n("nice", domain.NodeTypeMessage, map[string]any{"message": "Nice to meet you, {name}"}),
		n("end", domain.NodeTypeEnd, nil),
	)
}

func contents(s *domain.Session) []string {
	out := make([]string, len(s.Messages))
	for i, m := range s.Messages {
		out[i] = m.Content
	}
	return out
}

type callerFunc func(ctx context.Context, req ports.APIRequest) (*ports.APIResponse, error)

func (f callerFunc) Call(ctx context.Context, req ports.APIRequest) (*ports.APIResponse, error) {
	return f(ctx, req)
}
