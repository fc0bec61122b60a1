package dsl

import "github.com/aretw0/chatflow/pkg/domain"

// NodeBuilder provides a fluent API for configuring a node.
// Setters that do not apply to the node type are stored but ignored by the engine.
type NodeBuilder struct {
	node    domain.Node
	builder *Builder
}

// ID returns the node ID.
func (n *NodeBuilder) ID() string {
	return n.node.ID
}

// Go adds the default edge to the target node.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	n.builder.connect(n.node.ID, target)
	return n
}

// At places the node on the editor canvas.
func (n *NodeBuilder) At(x, y float64) *NodeBuilder {
	n.node.Position = domain.Position{X: x, Y: y}
	return n
}

// Rich attaches opaque rich content to a message node.
func (n *NodeBuilder) Rich(content any) *NodeBuilder {
	n.node.Data["richContent"] = content
	return n
}

// SaveTo names the variable an input or api node writes.
func (n *NodeBuilder) SaveTo(variable string) *NodeBuilder {
	if n.node.Type == domain.NodeTypeAPI {
		n.api()["responseVariable"] = variable
		return n
	}
	n.node.Data["variableName"] = variable
	return n
}

// Placeholder sets the input hint shown to the user.
func (n *NodeBuilder) Placeholder(text string) *NodeBuilder {
	n.node.Data["placeholder"] = text
	return n
}

// Choices sets the options of a choice input.
func (n *NodeBuilder) Choices(options ...string) *NodeBuilder {
	n.node.Data["choices"] = append([]string(nil), options...)
	return n
}

// Required rejects empty input.
func (n *NodeBuilder) Required() *NodeBuilder {
	n.validation()["required"] = true
	return n
}

// Pattern constrains input to a regular expression.
func (n *NodeBuilder) Pattern(re string) *NodeBuilder {
	n.validation()["pattern"] = re
	return n
}

// Range bounds a number input, or the length of a text input.
func (n *NodeBuilder) Range(min, max float64) *NodeBuilder {
	v := n.validation()
	v["min"] = min
	v["max"] = max
	return n
}

func (n *NodeBuilder) validation() map[string]any {
	v, ok := n.node.Data["validation"].(map[string]any)
	if !ok {
		v = map[string]any{}
		n.node.Data["validation"] = v
	}
	return v
}

// When adds a branch taken when variable compared with value by op holds.
// Branches are evaluated in the order they were added.
func (n *NodeBuilder) When(variable string, op domain.Operator, value any, target string) *NodeBuilder {
	conds, _ := n.node.Data["conditions"].([]any)
	n.node.Data["conditions"] = append(conds, map[string]any{
		"variable":     variable,
		"operator":     string(op),
		"value":        value,
		"targetNodeId": target,
	})
	return n
}

// Otherwise sets the branch taken when no condition holds.
func (n *NodeBuilder) Otherwise(target string) *NodeBuilder {
	n.node.Data["defaultTarget"] = target
	return n
}

// Header adds a request header to an api node.
func (n *NodeBuilder) Header(key, value string) *NodeBuilder {
	cfg := n.api()
	h, ok := cfg["headers"].(map[string]any)
	if !ok {
		h = map[string]any{}
		cfg["headers"] = h
	}
	h[key] = value
	return n
}

// Body sets the request body of an api node.
func (n *NodeBuilder) Body(body any) *NodeBuilder {
	n.api()["body"] = body
	return n
}

// Timeout sets the api call timeout in milliseconds.
func (n *NodeBuilder) Timeout(ms float64) *NodeBuilder {
	n.api()["timeout"] = ms
	return n
}

func (n *NodeBuilder) api() map[string]any {
	cfg, ok := n.node.Data["apiConfig"].(map[string]any)
	if !ok {
		cfg = map[string]any{}
		n.node.Data["apiConfig"] = cfg
	}
	return cfg
}

// Display sets the text shown while a delay node waits.
func (n *NodeBuilder) Display(text string) *NodeBuilder {
	n.node.Data["displayMessage"] = text
	return n
}
