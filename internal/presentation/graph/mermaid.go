package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// maxLabel bounds the node detail shown under the node ID.
const maxLabel = 32

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// OverlayFromSession marks the nodes that produced transcript messages as visited
// and the session's current node as current.
func OverlayFromSession(s *domain.Session) *GraphOverlay {
	if s == nil {
		return nil
	}
	o := &GraphOverlay{CurrentNode: s.CurrentNodeID}
	for _, m := range s.Messages {
		if m.NodeID != "" {
			o.VisitedNodes = append(o.VisitedNodes, m.NodeID)
		}
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart for a flow.
// It applies semantic styling:
// - Start/End: ((Circle)) / (((Double circle)))
// - Input: [/Parallelogram/]
// - Condition: {Rhombus}
// - API: [[Subroutine]]
// - Delay: {{Hexagon}}
// - Jump: >Flag]
// Default edges are solid; condition branches carry their predicate as label;
// jumps and condition fallbacks are dotted.
// It also applies overlay styles (Visited/Current) if provided.
func GenerateMermaid(flow *domain.Flow, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	if flow == nil {
		return sb.String()
	}

	for i := range flow.Nodes {
		node := &flow.Nodes[i]
		safeID := sanitizeMermaidID(node.ID)

		kind, err := node.Kind()
		opener, closer := shape(node.Type)
		label := node.ID
		if detail := describe(kind); err == nil && detail != "" {
			label += " <br/> " + detail
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, escape(label), closer)

		switch d := kind.(type) {
		case *domain.ConditionData:
			for _, c := range d.Conditions {
				if c.TargetNodeID == "" {
					continue
				}
				pred := fmt.Sprintf("%s %s %v", c.Variable, c.Operator, c.Value)
				fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", safeID, escape(pred), sanitizeMermaidID(c.TargetNodeID))
			}
			if d.DefaultTarget != "" {
				fmt.Fprintf(&sb, "    %s -. \"default\" .-> %s\n", safeID, sanitizeMermaidID(d.DefaultTarget))
			}
		case *domain.JumpData:
			if d.TargetNodeID != "" {
				fmt.Fprintf(&sb, "    %s -.-> %s\n", safeID, sanitizeMermaidID(d.TargetNodeID))
			}
		}
	}

	for _, e := range flow.Edges {
		fmt.Fprintf(&sb, "    %s --> %s\n", sanitizeMermaidID(e.Source), sanitizeMermaidID(e.Target))
	}

	// Apply Overlay Styles
	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}

		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

func shape(t domain.NodeType) (string, string) {
	switch t {
	case domain.NodeTypeStart:
		return "((", "))"
	case domain.NodeTypeEnd:
		return "(((", ")))"
	case domain.NodeTypeInput:
		return "[/", "/]"
	case domain.NodeTypeCondition:
		return "{", "}"
	case domain.NodeTypeAPI:
		return "[[", "]]"
	case domain.NodeTypeDelay:
		return "{{", "}}"
	case domain.NodeTypeJump:
		return ">", "]"
	}
	return "[", "]"
}

func describe(kind domain.NodeKind) string {
	var s string
	switch d := kind.(type) {
	case *domain.MessageData:
		s = d.Message
	case *domain.EndData:
		s = d.Message
	case *domain.InputData:
		if d.VariableName != "" {
			s = "→ " + d.VariableName
		}
	case *domain.APIData:
		cfg := d.Config()
		method := cfg.Method
		if method == "" {
			method = "GET"
		}
		s = strings.ToUpper(method) + " " + cfg.URL
	case *domain.DelayData:
		if d.Delay != nil {
			s = fmt.Sprintf("⏱️ %gms", *d.Delay)
		}
	}
	return truncate(s)
}

func truncate(s string) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= maxLabel {
		return string(r)
	}
	return string(r[:maxLabel-1]) + "…"
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
