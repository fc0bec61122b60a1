package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/aretw0/chatflow/pkg/schema"
	"github.com/google/uuid"
)

const (
	// DefaultStepBudget bounds the number of nodes executed by one synchronous run.
	DefaultStepBudget = 1000
	// DefaultAPITimeout applies to api nodes that do not configure a timeout.
	DefaultAPITimeout = 10 * time.Second
	// DefaultMaxAPITimeout caps any api node timeout.
	DefaultMaxAPITimeout = 60 * time.Second
	// MaxDelay caps the pause of a delay node.
	MaxDelay = 24 * time.Hour
)

// Engine is the flow interpreter. It walks a flow graph node by node against a
// session until the session suspends on an input node or terminates.
//
// The engine keeps no per-session state and provides no locking: callers must
// serialize calls that touch the same session.
type Engine struct {
	flows  ports.FlowRepository
	store  ports.SessionStore
	caller ports.APICaller
	sink   ports.EventSink
	clock  ports.Clock
	hooks  domain.LifecycleHooks
	logger *slog.Logger
	newID  func() string

	stepBudget    int
	apiTimeout    time.Duration
	apiMaxTimeout time.Duration
}

var _ ports.Interpreter = (*Engine)(nil)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithAPICaller sets the collaborator used by api nodes.
func WithAPICaller(c ports.APICaller) EngineOption {
	return func(e *Engine) {
		e.caller = c
	}
}

// WithEventSink sets the observer that receives session events.
func WithEventSink(s ports.EventSink) EngineOption {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c ports.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithStepBudget sets the maximum number of nodes executed per synchronous run.
func WithStepBudget(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.stepBudget = n
		}
	}
}

// WithAPITimeouts sets the default and maximum timeout of api node calls.
func WithAPITimeouts(def, max time.Duration) EngineOption {
	return func(e *Engine) {
		if def > 0 {
			e.apiTimeout = def
		}
		if max > 0 {
			e.apiMaxTimeout = max
		}
	}
}

// WithIDGenerator replaces the generator of session and message IDs.
func WithIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEngine creates an engine reading flows from flows and persisting sessions to store.
func NewEngine(flows ports.FlowRepository, store ports.SessionStore, opts ...EngineOption) *Engine {
	e := &Engine{
		flows:         flows,
		store:         store,
		clock:         ports.SystemClock{},
		logger:        logging.NewNop(),
		newID:         uuid.NewString,
		stepBudget:    DefaultStepBudget,
		apiTimeout:    DefaultAPITimeout,
		apiMaxTimeout: DefaultMaxAPITimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartSession creates a session on an active flow and runs it until it suspends or terminates.
//
// Caller misuse (missing or inactive flow, no start node) returns a nil session.
// A node-level fault returns the session in error status together with an *ExecutionError.
func (e *Engine) StartSession(ctx context.Context, flowID, userID string, metadata map[string]any) (*domain.Session, error) {
	flow, err := e.flows.FindByID(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("load flow %s: %w", flowID, err)
	}
	if flow.Status != domain.FlowActive {
		return nil, fmt.Errorf("flow %s: %w", flowID, domain.ErrFlowNotActive)
	}
	start, ok := flow.StartNode()
	if !ok {
		return nil, fmt.Errorf("flow %s: %w", flowID, domain.ErrNoStartNode)
	}

	s := domain.NewSession(e.newID(), flow.ID, start.ID, e.clock.Now())
	s.UserID = userID
	if len(metadata) > 0 {
		s.Metadata = metadata
	}
	e.seedVariables(flow, s)

	if err := e.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	e.logger.Info("Session started", "session_id", s.SessionID, "flow_id", flow.ID, "user_id", userID)
	e.emit(ctx, s, domain.Event{Type: domain.EventSessionStarted, NodeID: start.ID})

	return s, e.run(ctx, flow, s)
}

// ProcessUserInput submits raw input to a session suspended on an input node and
// resumes execution. The session is advanced in place and returned.
//
// Invalid input appends a bot message with the validation error and leaves the
// session waiting on the same node; no error is returned in that case.
func (e *Engine) ProcessUserInput(ctx context.Context, s *domain.Session, raw string) (*domain.Session, error) {
	if s.Status != domain.SessionActive || !s.WaitingForInput {
		return s, fmt.Errorf("session %s: %w", s.SessionID, domain.ErrNotWaitingForInput)
	}

	flow, err := e.flows.FindByID(ctx, s.FlowID)
	if err != nil {
		return s, fmt.Errorf("load flow %s: %w", s.FlowID, err)
	}
	node, ok := flow.NodeByID(s.InputNodeID)
	if !ok || node.Type != domain.NodeTypeInput {
		return s, fmt.Errorf("session %s: node %q: %w", s.SessionID, s.InputNodeID, domain.ErrInvalidInputNode)
	}
	kind, err := node.Kind()
	if err != nil {
		return s, fmt.Errorf("session %s: %w: %v", s.SessionID, domain.ErrInvalidInputNode, err)
	}
	data := kind.(*domain.InputData)

	value, problem := validateInput(raw, data)
	if problem == "" && data.VariableName != "" {
		value, problem = e.coerceDeclared(flow, data.VariableName, value)
	}
	if problem != "" {
		e.appendBot(ctx, s, node.ID, problem, nil)
		return s, e.persist(ctx, s)
	}

	if data.VariableName != "" {
		s.Variables[data.VariableName] = value
	}
	s.Messages = append(s.Messages, domain.ChatMessage{
		ID:        e.newID(),
		Role:      domain.RoleUser,
		Content:   raw,
		Timestamp: e.clock.Now(),
		NodeID:    node.ID,
	})
	s.WaitingForInput = false
	s.InputNodeID = ""

	if next := e.defaultTarget(flow, node.ID); next != "" {
		s.CurrentNodeID = next
	} else {
		e.terminate(ctx, s, domain.SessionCompleted)
	}
	if err := e.persist(ctx, s); err != nil {
		return s, err
	}
	return s, e.run(ctx, flow, s)
}

// EndSession terminates an active session with the given status (normally abandoned).
// Ending an already terminated session is a no-op.
func (e *Engine) EndSession(ctx context.Context, s *domain.Session, status domain.SessionStatus) error {
	if s.Status.Terminal() {
		return nil
	}
	e.terminate(ctx, s, status)
	return e.persist(ctx, s)
}

// seedVariables binds declared variables that carry a default value.
func (e *Engine) seedVariables(flow *domain.Flow, s *domain.Session) {
	sch, err := schema.FromDeclarations(flow.Variables)
	if err != nil {
		e.logger.Warn("Ignoring invalid variable declarations", "flow_id", flow.ID, "error", err)
	}
	for _, decl := range flow.Variables {
		if decl.Name == "" || decl.DefaultValue == nil {
			continue
		}
		v, err := sch.Coerce(decl.Name, decl.DefaultValue)
		if err != nil {
			e.logger.Warn("Default value does not match declared type", "flow_id", flow.ID, "variable", decl.Name, "error", err)
			v = decl.DefaultValue
		}
		s.Variables[decl.Name] = v
	}
}

// coerceDeclared converts an input value to the declared type of name.
// It returns a user-facing problem when the value does not fit.
func (e *Engine) coerceDeclared(flow *domain.Flow, name string, value any) (any, string) {
	decl, ok := flow.Declaration(name)
	if !ok {
		return value, ""
	}
	t, err := schema.ParseType(decl.Type)
	if err != nil {
		return value, ""
	}
	v, err := t.Coerce(value)
	if err != nil {
		return nil, "Please enter a valid " + t.Name()
	}
	return v, ""
}

// defaultTarget returns the target of the first edge leaving nodeID, or "".
func (e *Engine) defaultTarget(flow *domain.Flow, nodeID string) string {
	edges := flow.OutgoingEdges(nodeID)
	if len(edges) == 0 {
		return ""
	}
	if len(edges) > 1 {
		e.logger.Warn("Node has multiple default edges, following the first",
			"flow_id", flow.ID, "node_id", nodeID, "edges", len(edges))
	}
	return edges[0].Target
}

func (e *Engine) persist(ctx context.Context, s *domain.Session) error {
	s.UpdatedAt = e.clock.Now()
	if err := e.store.UpdateBySessionID(ctx, s.SessionID, domain.PatchFrom(s)); err != nil {
		return fmt.Errorf("persist session %s: %w", s.SessionID, err)
	}
	return nil
}

func (e *Engine) emit(ctx context.Context, s *domain.Session, ev domain.Event) {
	if e.sink == nil {
		return
	}
	ev.Timestamp = e.clock.Now()
	ev.SessionID = s.SessionID
	ev.FlowID = s.FlowID
	ev.UserID = s.UserID
	e.sink.Emit(ctx, ev)
}

// appendBot adds a bot message to the transcript and publishes it.
func (e *Engine) appendBot(ctx context.Context, s *domain.Session, nodeID, content string, metadata map[string]any) {
	e.appendMessage(ctx, s, domain.RoleBot, nodeID, content, metadata, domain.EventBotMessage)
}

func (e *Engine) appendMessage(ctx context.Context, s *domain.Session, role domain.Role, nodeID, content string, metadata map[string]any, evType domain.EventType) {
	msg := domain.ChatMessage{
		ID:        e.newID(),
		Role:      role,
		Content:   content,
		Timestamp: e.clock.Now(),
		NodeID:    nodeID,
		Metadata:  metadata,
	}
	s.Messages = append(s.Messages, msg)
	e.emit(ctx, s, domain.Event{Type: evType, NodeID: nodeID, Message: &msg})
}

// terminate stamps a terminal status and publishes session_ended.
func (e *Engine) terminate(ctx context.Context, s *domain.Session, status domain.SessionStatus) {
	s.End(status, e.clock.Now())
	e.logger.Info("Session ended", "session_id", s.SessionID, "status", status, "duration", *s.Duration)
	e.emit(ctx, s, domain.Event{
		Type:     domain.EventSessionEnded,
		NodeID:   s.CurrentNodeID,
		Status:   status,
		Duration: *s.Duration,
	})
}
