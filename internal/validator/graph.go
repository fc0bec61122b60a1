package validator

import (
	"fmt"

	"github.com/aretw0/chatflow/pkg/domain"
)

// adjacency maps a node to every node it may transfer control to:
// default edges plus the implicit targets of condition and jump nodes.
type adjacency map[string][]string

func buildAdjacency(flow *domain.Flow, kinds []domain.NodeKind) adjacency {
	adj := make(adjacency, len(flow.Nodes))
	for _, n := range flow.Nodes {
		if _, ok := adj[n.ID]; !ok {
			adj[n.ID] = nil
		}
	}
	for _, e := range flow.Edges {
		if _, ok := adj[e.Source]; ok {
			adj[e.Source] = append(adj[e.Source], e.Target)
		}
	}
	for i, kind := range kinds {
		id := flow.Nodes[i].ID
		switch d := kind.(type) {
		case *domain.ConditionData:
			adj[id] = append(adj[id], d.Targets()...)
		case *domain.JumpData:
			if d.TargetNodeID != "" {
				adj[id] = append(adj[id], d.TargetNodeID)
			}
		}
	}
	return adj
}

func checkStructure(c *collector, flow *domain.Flow, kinds []domain.NodeKind) {
	ids := make(map[string]bool, len(flow.Nodes))
	for _, n := range flow.Nodes {
		ids[n.ID] = true
	}

	for i, kind := range kinds {
		id := flow.Nodes[i].ID
		switch d := kind.(type) {
		case *domain.ConditionData:
			for _, target := range d.Targets() {
				if !ids[target] {
					c.warn(CodeInvalidConditionTarget, id, "", "Condition routes to non-existent node: "+target)
				}
			}
		case *domain.JumpData:
			if d.TargetNodeID != "" && !ids[d.TargetNodeID] {
				c.warn(CodeInvalidJumpTarget, id, "", "Jump targets non-existent node: "+d.TargetNodeID)
			}
		}
	}

	defaults := make(map[string]int, len(flow.Edges))
	for _, e := range flow.Edges {
		defaults[e.Source]++
	}
	for _, n := range flow.Nodes {
		if count := defaults[n.ID]; count > 1 {
			c.warn(CodeMultipleDefaultEdges, n.ID, "",
				fmt.Sprintf("Node has %d outgoing edges; only the first is followed", count))
			defaults[n.ID] = 0 // report duplicate node IDs once
		}
	}

	start, ok := flow.StartNode()
	if !ok {
		return
	}

	adj := buildAdjacency(flow, kinds)
	reachable := reach(adj, start.ID)
	for _, n := range flow.Nodes {
		if n.Type != domain.NodeTypeStart && !reachable[n.ID] {
			c.warn(CodeUnreachableNode, n.ID, "", "Node is not reachable from start node")
		}
	}
	for _, n := range flow.Nodes {
		if n.Type != domain.NodeTypeEnd && len(adj[n.ID]) == 0 {
			c.warn(CodeNoOutgoingEdges, n.ID, "", "Non-end node has no outgoing connections")
		}
	}

	if hasCycle(adj, flow.Nodes) {
		c.warn(CodePotentialInfiniteLoop, "", "", "Flow contains cycles which may cause infinite loops")
	}
}

// reach returns the set of nodes reachable from root, root included.
func reach(adj adjacency, root string) map[string]bool {
	seen := map[string]bool{root: true}
	stack := []string{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range adj[id] {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return seen
}

const (
	white = iota // unvisited
	grey         // on the current DFS path
	black        // fully explored
)

// hasCycle runs an iterative three-colour DFS from every node in declaration order.
func hasCycle(adj adjacency, nodes []domain.Node) bool {
	color := make(map[string]int, len(adj))

	type frame struct {
		id   string
		next int
	}

	for _, n := range nodes {
		if color[n.ID] != white {
			continue
		}
		color[n.ID] = grey
		stack := []frame{{id: n.ID}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			neighbors := adj[top.id]
			if top.next >= len(neighbors) {
				color[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}
			next := neighbors[top.next]
			top.next++

			switch color[next] {
			case grey:
				return true
			case white:
				color[next] = grey
				stack = append(stack, frame{id: next})
			}
		}
	}
	return false
}
