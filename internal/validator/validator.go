// Package validator checks the structure of a flow graph before it is saved or activated.
//
// Validation is pure: it never mutates the flow and always returns the same
// diagnostics for the same input. Errors make a flow invalid; warnings never do.
package validator

import (
	"fmt"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Code is the stable identifier of a diagnostic, shared with the editor.
type Code string

const (
	CodeEmptyFlow          Code = "EMPTY_FLOW"
	CodeDuplicateNodeID    Code = "DUPLICATE_NODE_ID"
	CodeNoStartNode        Code = "NO_START_NODE"
	CodeMultipleStartNodes Code = "MULTIPLE_START_NODES"
	CodeNoEndNode          Code = "NO_END_NODE"
	CodeUnknownNodeType    Code = "UNKNOWN_NODE_TYPE"
	CodeInvalidNodeData    Code = "INVALID_NODE_DATA"

	CodeEmptyMessage        Code = "EMPTY_MESSAGE"
	CodeNoInputType         Code = "NO_INPUT_TYPE"
	CodeNoVariableName      Code = "NO_VARIABLE_NAME"
	CodeNoConditions        Code = "NO_CONDITIONS"
	CodeConditionNoVariable Code = "CONDITION_NO_VARIABLE"
	CodeConditionNoOperator Code = "CONDITION_NO_OPERATOR"
	CodeAPINoURL            Code = "API_NO_URL"
	CodeAPINoMethod         Code = "API_NO_METHOD"
	CodeDelayNoDuration     Code = "DELAY_NO_DURATION"
	CodeDelayNegative       Code = "DELAY_NEGATIVE"
	CodeDelayTooLong        Code = "DELAY_TOO_LONG"
	CodeJumpNoTarget        Code = "JUMP_NO_TARGET"

	CodeDuplicateEdgeID   Code = "DUPLICATE_EDGE_ID"
	CodeInvalidEdgeSource Code = "INVALID_EDGE_SOURCE"
	CodeInvalidEdgeTarget Code = "INVALID_EDGE_TARGET"
	CodeSelfLoop          Code = "SELF_LOOP"

	CodeUnreachableNode        Code = "UNREACHABLE_NODE"
	CodeNoOutgoingEdges        Code = "NO_OUTGOING_EDGES"
	CodePotentialInfiniteLoop  Code = "POTENTIAL_INFINITE_LOOP"
	CodeMultipleDefaultEdges   Code = "MULTIPLE_DEFAULT_EDGES"
	CodeInvalidConditionTarget Code = "INVALID_CONDITION_TARGET"
	CodeInvalidJumpTarget      Code = "INVALID_JUMP_TARGET"
)

// MaxDelay is the delay (in milliseconds) above which a delay node is flagged.
const MaxDelay = 300000

// activationBlocking lists the error codes that prevent a flow from being activated.
var activationBlocking = map[Code]bool{
	CodeNoStartNode:        true,
	CodeMultipleStartNodes: true,
	CodeEmptyMessage:       true,
	CodeNoInputType:        true,
	CodeNoConditions:       true,
	CodeAPINoURL:           true,
	CodeDelayNoDuration:    true,
	CodeJumpNoTarget:       true,
	CodeInvalidEdgeSource:  true,
	CodeInvalidEdgeTarget:  true,
}

// BlocksActivation reports whether an error with code c prevents activation.
func BlocksActivation(c Code) bool {
	return activationBlocking[c]
}

// Diagnostic is one finding about a flow.
type Diagnostic struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	NodeID  string `json:"nodeId,omitempty"`
	EdgeID  string `json:"edgeId,omitempty"`
}

func (d Diagnostic) String() string {
	switch {
	case d.NodeID != "":
		return fmt.Sprintf("%s (node %s): %s", d.Code, d.NodeID, d.Message)
	case d.EdgeID != "":
		return fmt.Sprintf("%s (edge %s): %s", d.Code, d.EdgeID, d.Message)
	default:
		return fmt.Sprintf("%s: %s", d.Code, d.Message)
	}
}

// Result is the outcome of validating a flow.
type Result struct {
	IsValid  bool         `json:"isValid"`
	Errors   []Diagnostic `json:"errors"`
	Warnings []Diagnostic `json:"warnings"`
}

// HasError reports whether the result carries an error with code c.
func (r Result) HasError(c Code) bool {
	return hasCode(r.Errors, c)
}

// HasWarning reports whether the result carries a warning with code c.
func (r Result) HasWarning(c Code) bool {
	return hasCode(r.Warnings, c)
}

func hasCode(ds []Diagnostic, c Code) bool {
	for _, d := range ds {
		if d.Code == c {
			return true
		}
	}
	return false
}

type collector struct {
	errors   []Diagnostic
	warnings []Diagnostic
}

func (c *collector) err(code Code, nodeID, edgeID, msg string) {
	c.errors = append(c.errors, Diagnostic{Code: code, Message: msg, NodeID: nodeID, EdgeID: edgeID})
}

func (c *collector) warn(code Code, nodeID, edgeID, msg string) {
	c.warnings = append(c.warnings, Diagnostic{Code: code, Message: msg, NodeID: nodeID, EdgeID: edgeID})
}

func (c *collector) result() Result {
	r := Result{Errors: c.errors, Warnings: c.warnings}
	if r.Errors == nil {
		r.Errors = []Diagnostic{}
	}
	if r.Warnings == nil {
		r.Warnings = []Diagnostic{}
	}
	r.IsValid = len(r.Errors) == 0
	return r
}

// Validate runs every structural and semantic check over the flow.
func Validate(flow *domain.Flow) Result {
	var c collector
	if flow == nil || len(flow.Nodes) == 0 {
		c.warn(CodeEmptyFlow, "", "", "Flow has no nodes")
		return c.result()
	}

	kinds := checkNodes(&c, flow.Nodes)
	if len(flow.Edges) > 0 {
		checkEdges(&c, flow.Nodes, flow.Edges)
	}
	checkStructure(&c, flow, kinds)
	return c.result()
}

// ValidateForActivation re-runs Validate and keeps only the errors that block activation.
// Warnings pass through unfiltered.
func ValidateForActivation(flow *domain.Flow) Result {
	full := Validate(flow)
	blocking := make([]Diagnostic, 0, len(full.Errors))
	for _, d := range full.Errors {
		if BlocksActivation(d.Code) {
			blocking = append(blocking, d)
		}
	}
	return Result{
		IsValid:  len(blocking) == 0,
		Errors:   blocking,
		Warnings: full.Warnings,
	}
}

// checkNodes validates identity, start/end counts and per-kind data.
// It returns the decoded kinds by node index (nil where decoding failed).
func checkNodes(c *collector, nodes []domain.Node) []domain.NodeKind {
	seen := make(map[string]bool, len(nodes))
	kinds := make([]domain.NodeKind, len(nodes))
	starts, ends := 0, 0

	for i := range nodes {
		n := &nodes[i]
		if seen[n.ID] {
			c.err(CodeDuplicateNodeID, n.ID, "", "Duplicate node ID: "+n.ID)
		}
		seen[n.ID] = true

		switch n.Type {
		case domain.NodeTypeStart:
			starts++
		case domain.NodeTypeEnd:
			ends++
		}

		if !n.Type.Known() {
			c.warn(CodeUnknownNodeType, n.ID, "", fmt.Sprintf("Unknown node type %q", n.Type))
			continue
		}
		kind, err := n.Kind()
		if err != nil {
			c.err(CodeInvalidNodeData, n.ID, "", fmt.Sprintf("Node data is malformed: %v", err))
			continue
		}
		kinds[i] = kind
		checkNodeData(c, n, kind)
	}

	switch {
	case starts == 0:
		c.err(CodeNoStartNode, "", "", "Flow must have a start node")
	case starts > 1:
		c.err(CodeMultipleStartNodes, "", "", "Flow can only have one start node")
	}
	if ends == 0 {
		c.warn(CodeNoEndNode, "", "", "Flow should have at least one end node")
	}
	return kinds
}

func checkNodeData(c *collector, n *domain.Node, kind domain.NodeKind) {
	switch d := kind.(type) {
	case *domain.MessageData:
		if d.Message == "" && isEmpty(d.RichContent) {
			c.err(CodeEmptyMessage, n.ID, "", "Message node must have content")
		}
	case *domain.InputData:
		if d.VariableName == "" {
			c.warn(CodeNoVariableName, n.ID, "", "Input node should store result in a variable")
		}
		if d.InputType == "" {
			c.err(CodeNoInputType, n.ID, "", "Input node must specify input type")
		}
	case *domain.ConditionData:
		if len(d.Conditions) == 0 {
			c.err(CodeNoConditions, n.ID, "", "Condition node must have at least one condition")
			return
		}
		for _, cond := range d.Conditions {
			if cond.Variable == "" {
				c.err(CodeConditionNoVariable, n.ID, "", "Condition must specify a variable")
			}
			if cond.Operator == "" {
				c.err(CodeConditionNoOperator, n.ID, "", "Condition must specify an operator")
			}
		}
	case *domain.APIData:
		cfg := d.Config()
		if cfg.URL == "" {
			c.err(CodeAPINoURL, n.ID, "", "API node must have a URL")
		}
		if cfg.Method == "" {
			c.err(CodeAPINoMethod, n.ID, "", "API node must have a method")
		}
	case *domain.DelayData:
		switch {
		case d.Delay == nil:
			c.err(CodeDelayNoDuration, n.ID, "", "Delay node must have a duration")
		case *d.Delay < 0:
			c.err(CodeDelayNegative, n.ID, "", "Delay duration cannot be negative")
		case *d.Delay > MaxDelay:
			c.warn(CodeDelayTooLong, n.ID, "", "Delay is longer than 5 minutes")
		}
	case *domain.JumpData:
		if d.TargetNodeID == "" {
			c.err(CodeJumpNoTarget, n.ID, "", "Jump node must have a target node")
		}
	}
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	}
	return false
}

func checkEdges(c *collector, nodes []domain.Node, edges []domain.Edge) {
	ids := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		ids[n.ID] = true
	}
	seen := make(map[string]bool, len(edges))

	for _, e := range edges {
		if seen[e.ID] {
			c.err(CodeDuplicateEdgeID, "", e.ID, "Duplicate edge ID: "+e.ID)
		}
		seen[e.ID] = true

		if !ids[e.Source] {
			c.err(CodeInvalidEdgeSource, "", e.ID, "Edge references non-existent source node: "+e.Source)
		}
		if !ids[e.Target] {
			c.err(CodeInvalidEdgeTarget, "", e.ID, "Edge references non-existent target node: "+e.Target)
		}
		if e.Source == e.Target {
			c.warn(CodeSelfLoop, "", e.ID, "Node connects to itself")
		}
	}
}
