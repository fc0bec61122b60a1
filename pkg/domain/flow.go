package domain

import "time"

// FlowStatus is the lifecycle state of a flow.
type FlowStatus string

const (
	FlowDraft    FlowStatus = "draft"
	FlowActive   FlowStatus = "active"
	FlowInactive FlowStatus = "inactive"
)

// VariableType is the declared type of a flow variable.
type VariableType string

const (
	VarString  VariableType = "string"
	VarNumber  VariableType = "number"
	VarBoolean VariableType = "boolean"
	VarArray   VariableType = "array"
	VarObject  VariableType = "object"
)

// VariableDecl declares a flow variable.
type VariableDecl struct {
	Name         string       `json:"name" yaml:"name"`
	Type         VariableType `json:"type" yaml:"type"`
	DefaultValue any          `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	Description  string       `json:"description,omitempty" yaml:"description,omitempty"`
}

// Viewport is the editor camera. Opaque to the engine.
type Viewport struct {
	X    float64 `json:"x" yaml:"x"`
	Y    float64 `json:"y" yaml:"y"`
	Zoom float64 `json:"zoom" yaml:"zoom"`
}

// FlowStats aggregates finished runs of a flow.
// AverageCompletionTime is expressed in seconds.
type FlowStats struct {
	TotalRuns             int        `json:"totalRuns"`
	SuccessfulRuns        int        `json:"successfulRuns"`
	FailedRuns            int        `json:"failedRuns"`
	AverageCompletionTime float64    `json:"averageCompletionTime"`
	LastRunAt             *time.Time `json:"lastRunAt,omitempty"`
}

// Flow is a user-authored conversation graph.
type Flow struct {
	ID          string         `json:"id" yaml:"id"`
	UserID      string         `json:"userId,omitempty" yaml:"userId,omitempty"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []Node         `json:"nodes" yaml:"nodes"`
	Edges       []Edge         `json:"edges" yaml:"edges"`
	Viewport    Viewport       `json:"viewport" yaml:"viewport"`
	Variables   []VariableDecl `json:"variables,omitempty" yaml:"variables,omitempty"`
	Tags        []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Status      FlowStatus     `json:"status" yaml:"status"`
	Version     int            `json:"version" yaml:"version"`
	IsTemplate  bool           `json:"isTemplate,omitempty" yaml:"isTemplate,omitempty"`
	Stats       FlowStats      `json:"stats" yaml:"-"`
	CreatedAt   time.Time      `json:"createdAt" yaml:"-"`
	UpdatedAt   time.Time      `json:"updatedAt" yaml:"-"`
}

// NodeByID returns the first node with the given ID.
func (f *Flow) NodeByID(id string) (*Node, bool) {
	for i := range f.Nodes {
		if f.Nodes[i].ID == id {
			return &f.Nodes[i], true
		}
	}
	return nil, false
}

// StartNode returns the first start node.
func (f *Flow) StartNode() (*Node, bool) {
	for i := range f.Nodes {
		if f.Nodes[i].Type == NodeTypeStart {
			return &f.Nodes[i], true
		}
	}
	return nil, false
}

// OutgoingEdges returns every edge leaving nodeID, in insertion order.
func (f *Flow) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range f.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Declaration returns the variable declaration for name.
func (f *Flow) Declaration(name string) (VariableDecl, bool) {
	for _, v := range f.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return VariableDecl{}, false
}

// FlowSnapshot holds the editable fields of a flow.
type FlowSnapshot struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []Node         `json:"nodes" yaml:"nodes"`
	Edges       []Edge         `json:"edges" yaml:"edges"`
	Viewport    Viewport       `json:"viewport" yaml:"viewport"`
	Variables   []VariableDecl `json:"variables,omitempty" yaml:"variables,omitempty"`
	Tags        []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Snapshot copies the editable fields of the flow.
func (f *Flow) Snapshot() FlowSnapshot {
	return FlowSnapshot{
		Name:        f.Name,
		Description: f.Description,
		Nodes:       cloneNodes(f.Nodes),
		Edges:       append([]Edge(nil), f.Edges...),
		Viewport:    f.Viewport,
		Variables:   cloneVariables(f.Variables),
		Tags:        append([]string(nil), f.Tags...),
	}
}

// Restore overwrites the editable fields of the flow with a snapshot copy.
func (f *Flow) Restore(s FlowSnapshot) {
	c := s.Clone()
	f.Name = c.Name
	f.Description = c.Description
	f.Nodes = c.Nodes
	f.Edges = c.Edges
	f.Viewport = c.Viewport
	f.Variables = c.Variables
	f.Tags = c.Tags
}

// Clone returns a deep copy of the snapshot.
func (s FlowSnapshot) Clone() FlowSnapshot {
	s.Nodes = cloneNodes(s.Nodes)
	s.Edges = append([]Edge(nil), s.Edges...)
	s.Variables = cloneVariables(s.Variables)
	s.Tags = append([]string(nil), s.Tags...)
	return s
}

// Clone returns a deep copy of the flow.
func (f *Flow) Clone() *Flow {
	c := *f
	c.Restore(f.Snapshot())
	if f.Stats.LastRunAt != nil {
		t := *f.Stats.LastRunAt
		c.Stats.LastRunAt = &t
	}
	return &c
}

// ChangeType tells whether a version was requested by a user or taken automatically.
type ChangeType string

const (
	ChangeManual ChangeType = "manual"
	ChangeAuto   ChangeType = "auto"
)

// FlowVersion is an immutable snapshot of a flow, addressed by (FlowID, VersionNumber).
type FlowVersion struct {
	FlowID            string       `json:"flowId"`
	VersionNumber     int          `json:"versionNumber"`
	Snapshot          FlowSnapshot `json:"snapshot"`
	ChangeDescription string       `json:"changeDescription,omitempty"`
	ChangeType        ChangeType   `json:"changeType"`
	CreatedBy         string       `json:"createdBy"`
	FileSize          int          `json:"fileSize,omitempty"`
	CreatedAt         time.Time    `json:"createdAt"`
}

func cloneNodes(in []Node) []Node {
	if in == nil {
		return nil
	}
	out := make([]Node, len(in))
	for i, n := range in {
		out[i] = n
		if n.Data != nil {
			out[i].Data = cloneMap(n.Data)
		}
	}
	return out
}

func cloneVariables(in []VariableDecl) []VariableDecl {
	if in == nil {
		return nil
	}
	out := make([]VariableDecl, len(in))
	for i, v := range in {
		out[i] = v
		out[i].DefaultValue = cloneValue(v.DefaultValue)
	}
	return out
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
