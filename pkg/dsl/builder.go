package dsl

import (
	"fmt"
	"strings"

	"github.com/aretw0/chatflow/internal/validator"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
)

// Builder manages the graph construction.
type Builder struct {
	flow  domain.Flow
	nodes []*NodeBuilder
	index map[string]*NodeBuilder
}

// New creates a builder for an active flow with the given identity.
func New(id, name string) *Builder {
	return &Builder{
		flow: domain.Flow{
			ID:       id,
			Name:     name,
			Status:   domain.FlowActive,
			Version:  1,
			Viewport: domain.Viewport{Zoom: 1},
		},
		index: make(map[string]*NodeBuilder),
	}
}

// Describe sets the flow description.
func (b *Builder) Describe(text string) *Builder {
	b.flow.Description = text
	return b
}

// Tags appends tags to the flow.
func (b *Builder) Tags(tags ...string) *Builder {
	b.flow.Tags = append(b.flow.Tags, tags...)
	return b
}

// Status overrides the default active status.
func (b *Builder) Status(status domain.FlowStatus) *Builder {
	b.flow.Status = status
	return b
}

// Variable declares a flow variable and its default value.
func (b *Builder) Variable(name string, typ domain.VariableType, def any) *Builder {
	b.flow.Variables = append(b.flow.Variables, domain.VariableDecl{Name: name, Type: typ, DefaultValue: def})
	return b
}

// Add creates a node of the given type.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string, typ domain.NodeType) *NodeBuilder {
	if nb, ok := b.index[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node:    domain.Node{ID: id, Type: typ, Data: map[string]any{}},
		builder: b,
	}
	b.nodes = append(b.nodes, nb)
	b.index[id] = nb
	return nb
}

// Start adds the entry node.
func (b *Builder) Start(id string) *NodeBuilder {
	return b.Add(id, domain.NodeTypeStart)
}

// End adds a terminal node with an optional farewell message.
func (b *Builder) End(id, message string) *NodeBuilder {
	nb := b.Add(id, domain.NodeTypeEnd)
	if message != "" {
		nb.node.Data["message"] = message
	}
	return nb
}

// Message adds a node that sends text to the user.
func (b *Builder) Message(id, text string) *NodeBuilder {
	nb := b.Add(id, domain.NodeTypeMessage)
	nb.node.Data["message"] = text
	return nb
}

// Input adds a node that prompts and waits for the user.
func (b *Builder) Input(id, prompt string, typ domain.InputType) *NodeBuilder {
	nb := b.Add(id, domain.NodeTypeInput)
	nb.node.Data["message"] = prompt
	nb.node.Data["inputType"] = string(typ)
	return nb
}

// Condition adds a branching node. Use When and Otherwise to route it.
func (b *Builder) Condition(id string) *NodeBuilder {
	return b.Add(id, domain.NodeTypeCondition)
}

// API adds a node that performs an HTTP call.
func (b *Builder) API(id, method, url string) *NodeBuilder {
	nb := b.Add(id, domain.NodeTypeAPI)
	nb.node.Data["apiConfig"] = map[string]any{"method": method, "url": url}
	return nb
}

// Delay adds a pause of ms milliseconds.
func (b *Builder) Delay(id string, ms float64) *NodeBuilder {
	nb := b.Add(id, domain.NodeTypeDelay)
	nb.node.Data["delay"] = ms
	return nb
}

// Jump adds a node that continues at target.
func (b *Builder) Jump(id, target string) *NodeBuilder {
	nb := b.Add(id, domain.NodeTypeJump)
	nb.node.Data["targetNodeId"] = target
	return nb
}

func (b *Builder) connect(source, target string) {
	b.flow.Edges = append(b.flow.Edges, domain.Edge{
		ID:     fmt.Sprintf("e%d", len(b.flow.Edges)+1),
		Source: source,
		Target: target,
	})
}

// ValidationError reports a flow that failed validation on Build.
type ValidationError struct {
	FlowID string
	Result validator.Result
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Result.Errors))
	for _, d := range e.Result.Errors {
		msgs = append(msgs, d.String())
	}
	return fmt.Sprintf("flow %s is invalid: %s", e.FlowID, strings.Join(msgs, "; "))
}

// Flow returns the graph as built so far, without validating it.
func (b *Builder) Flow() *domain.Flow {
	f := b.flow
	f.Nodes = make([]domain.Node, 0, len(b.nodes))
	for _, nb := range b.nodes {
		f.Nodes = append(f.Nodes, nb.node)
	}
	return f.Clone()
}

// Build validates the graph and returns the flow.
// Warnings are tolerated; any error yields a *ValidationError.
func (b *Builder) Build() (*domain.Flow, error) {
	f := b.Flow()
	if res := validator.Validate(f); !res.IsValid {
		return nil, &ValidationError{FlowID: f.ID, Result: res}
	}
	return f, nil
}

// MustBuild is like Build but panics on an invalid graph.
func (b *Builder) MustBuild() *domain.Flow {
	f, err := b.Build()
	if err != nil {
		panic(err)
	}
	return f
}

// Store builds the flow and loads it into a fresh in-memory flow store.
func (b *Builder) Store() (*memory.FlowStore, error) {
	f, err := b.Build()
	if err != nil {
		return nil, err
	}
	store, err := memory.NewFromFlows(f)
	if err != nil {
		return nil, fmt.Errorf("failed to build memory store: %w", err)
	}
	return store, nil
}
