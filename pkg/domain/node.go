package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// NodeType names the behavior of a node.
type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeEnd       NodeType = "end"
	NodeTypeMessage   NodeType = "message"
	NodeTypeInput     NodeType = "input"
	NodeTypeCondition NodeType = "condition"
	NodeTypeAPI       NodeType = "api"
	NodeTypeDelay     NodeType = "delay"
	NodeTypeJump      NodeType = "jump"
)

// NodeTypes lists every node type the engine knows how to execute.
var NodeTypes = []NodeType{
	NodeTypeStart, NodeTypeEnd, NodeTypeMessage, NodeTypeInput,
	NodeTypeCondition, NodeTypeAPI, NodeTypeDelay, NodeTypeJump,
}

// Known reports whether t is one of NodeTypes.
func (t NodeType) Known() bool {
	for _, k := range NodeTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Position is the editor canvas location of a node. The interpreter ignores it.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is a typed step of a flow.
// Data holds the raw per-type payload as authored by the editor; use Kind to decode it.
type Node struct {
	ID       string         `json:"id" yaml:"id"`
	Type     NodeType       `json:"type" yaml:"type"`
	Position Position       `json:"position" yaml:"position"`
	Data     map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// Edge is the default (unconditional) continuation from Source to Target.
type Edge struct {
	ID     string `json:"id" yaml:"id"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// Kind decodes the node payload into its typed configuration.
// It returns ErrUnknownNodeType if the node type has no kind.
func (n *Node) Kind() (NodeKind, error) {
	var kind NodeKind
	switch n.Type {
	case NodeTypeStart:
		kind = &StartData{}
	case NodeTypeEnd:
		kind = &EndData{}
	case NodeTypeMessage:
		kind = &MessageData{}
	case NodeTypeInput:
		kind = &InputData{}
	case NodeTypeCondition:
		kind = &ConditionData{}
	case NodeTypeAPI:
		kind = &APIData{}
	case NodeTypeDelay:
		kind = &DelayData{}
	case NodeTypeJump:
		kind = &JumpData{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, n.Type)
	}

	if len(n.Data) == 0 {
		return kind, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           kind,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(n.Data); err != nil {
		return nil, fmt.Errorf("node %s: invalid %s data: %w", n.ID, n.Type, err)
	}
	return kind, nil
}

// NodeKind is the decoded configuration of one node type.
// The set of kinds is closed: every kind dispatches to its own KindVisitor method.
type NodeKind interface {
	Type() NodeType
	Accept(v KindVisitor, n *Node) error
}

// KindVisitor handles each node kind. Adding a kind adds a method here,
// so every implementation fails to compile until it handles the new kind.
type KindVisitor interface {
	VisitStart(n *Node, d *StartData) error
	VisitEnd(n *Node, d *EndData) error
	VisitMessage(n *Node, d *MessageData) error
	VisitInput(n *Node, d *InputData) error
	VisitCondition(n *Node, d *ConditionData) error
	VisitAPI(n *Node, d *APIData) error
	VisitDelay(n *Node, d *DelayData) error
	VisitJump(n *Node, d *JumpData) error
}

// StartData configures a start node. It has no fields.
type StartData struct{}

// EndData configures an end node.
type EndData struct {
	Message string `json:"message,omitempty"`
}

// MessageData configures a message node.
type MessageData struct {
	Message     string `json:"message,omitempty"`
	RichContent any    `json:"richContent,omitempty"`
}

// InputType is the shape of value an input node collects.
type InputType string

const (
	InputText   InputType = "text"
	InputNumber InputType = "number"
	InputEmail  InputType = "email"
	InputChoice InputType = "choice"
)

// InputValidation constrains the value collected by an input node.
// For numbers Min/Max bound the value; for text they bound the length.
type InputValidation struct {
	Required bool     `json:"required,omitempty"`
	Pattern  string   `json:"pattern,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
}

// InputData configures an input node.
type InputData struct {
	Message      string           `json:"message,omitempty"`
	InputType    InputType        `json:"inputType,omitempty"`
	VariableName string           `json:"variableName,omitempty"`
	Placeholder  string           `json:"placeholder,omitempty"`
	Validation   *InputValidation `json:"validation,omitempty"`
	Choices      []string         `json:"choices,omitempty"`
}

// Operator is a condition comparison operator.
type Operator string

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpContains     Operator = "contains"
	OpStartsWith   Operator = "startsWith"
	OpEndsWith     Operator = "endsWith"
)

// Condition routes to TargetNodeID when Variable compared with Value by Operator holds.
type Condition struct {
	Variable     string   `json:"variable,omitempty"`
	Operator     Operator `json:"operator,omitempty"`
	Value        any      `json:"value,omitempty"`
	TargetNodeID string   `json:"targetNodeId,omitempty"`
}

// ConditionData configures a condition node.
type ConditionData struct {
	Conditions    []Condition `json:"conditions,omitempty"`
	DefaultTarget string      `json:"defaultTarget,omitempty"`
}

// Targets returns the node IDs this condition node may route to, excluding the default edge.
func (d *ConditionData) Targets() []string {
	var out []string
	for _, c := range d.Conditions {
		if c.TargetNodeID != "" {
			out = append(out, c.TargetNodeID)
		}
	}
	if d.DefaultTarget != "" {
		out = append(out, d.DefaultTarget)
	}
	return out
}

// APIConfig describes the HTTP call performed by an api node.
// Timeout is expressed in milliseconds.
type APIConfig struct {
	URL              string            `json:"url,omitempty"`
	Method           string            `json:"method,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`
	Body             any               `json:"body,omitempty"`
	ResponseVariable string            `json:"responseVariable,omitempty"`
	Timeout          *float64          `json:"timeout,omitempty"`
}

// APIData configures an api node.
type APIData struct {
	APIConfig *APIConfig `json:"apiConfig,omitempty"`
}

// Config returns the api configuration, never nil.
func (d *APIData) Config() APIConfig {
	if d.APIConfig == nil {
		return APIConfig{}
	}
	return *d.APIConfig
}

// DelayData configures a delay node. Delay is expressed in milliseconds.
type DelayData struct {
	Delay          *float64 `json:"delay,omitempty"`
	DisplayMessage string   `json:"displayMessage,omitempty"`
}

// JumpData configures a jump node.
type JumpData struct {
	TargetNodeID string `json:"targetNodeId,omitempty"`
}

func (*StartData) Type() NodeType     { return NodeTypeStart }
func (*EndData) Type() NodeType       { return NodeTypeEnd }
func (*MessageData) Type() NodeType   { return NodeTypeMessage }
func (*InputData) Type() NodeType     { return NodeTypeInput }
func (*ConditionData) Type() NodeType { return NodeTypeCondition }
func (*APIData) Type() NodeType       { return NodeTypeAPI }
func (*DelayData) Type() NodeType     { return NodeTypeDelay }
func (*JumpData) Type() NodeType      { return NodeTypeJump }

func (d *StartData) Accept(v KindVisitor, n *Node) error     { return v.VisitStart(n, d) }
func (d *EndData) Accept(v KindVisitor, n *Node) error       { return v.VisitEnd(n, d) }
func (d *MessageData) Accept(v KindVisitor, n *Node) error   { return v.VisitMessage(n, d) }
func (d *InputData) Accept(v KindVisitor, n *Node) error     { return v.VisitInput(n, d) }
func (d *ConditionData) Accept(v KindVisitor, n *Node) error { return v.VisitCondition(n, d) }
func (d *APIData) Accept(v KindVisitor, n *Node) error       { return v.VisitAPI(n, d) }
func (d *DelayData) Accept(v KindVisitor, n *Node) error     { return v.VisitDelay(n, d) }
func (d *JumpData) Accept(v KindVisitor, n *Node) error      { return v.VisitJump(n, d) }
