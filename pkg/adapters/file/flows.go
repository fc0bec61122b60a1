package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"gopkg.in/yaml.v3"
)

// Repository is a read-only ports.FlowRepository over a directory of flow
// definitions. Each .json, .yaml or .yml file holds one flow.
type Repository struct {
	flows map[string]*domain.Flow
	order []string
}

var _ ports.FlowRepository = (*Repository)(nil)

// LoadDir parses every flow definition in dir. Flow IDs must be unique.
func LoadDir(dir string) (*Repository, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read flow directory: %w", err)
	}

	r := &Repository{flows: make(map[string]*domain.Flow)}
	for _, entry := range entries {
		if entry.IsDir() || !IsFlowFile(entry.Name()) {
			continue
		}
		flow, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if _, dup := r.flows[flow.ID]; dup {
			return nil, fmt.Errorf("duplicate flow id %q in %s", flow.ID, entry.Name())
		}
		r.flows[flow.ID] = flow
		r.order = append(r.order, flow.ID)
	}
	sort.Strings(r.order)
	return r, nil
}

// IsFlowFile reports whether name has a supported extension.
func IsFlowFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// LoadFile parses one flow definition.
//
// A missing id defaults to the file name without extension and a missing
// status defaults to active, so a definition on disk is runnable as written.
func LoadFile(path string) (*domain.Flow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow %s: %w", path, err)
	}
	flow, err := Decode(raw, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parse flow %s: %w", path, err)
	}
	if flow.ID == "" {
		flow.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if flow.Status == "" {
		flow.Status = domain.FlowActive
	}
	return flow, nil
}

// Decode parses a flow from JSON or YAML. YAML is converted to JSON first so
// both formats share the JSON field names and number representation.
func Decode(raw []byte, ext string) (*domain.Flow, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		raw = converted
	}

	var flow domain.Flow
	if err := json.Unmarshal(raw, &flow); err != nil {
		return nil, err
	}
	return &flow, nil
}

// FindByID returns a copy of the flow.
func (r *Repository) FindByID(ctx context.Context, flowID string) (*domain.Flow, error) {
	f, ok := r.flows[flowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrFlowNotFound, flowID)
	}
	return f.Clone(), nil
}

// Flows returns copies of every loaded flow, ordered by ID.
func (r *Repository) Flows() []*domain.Flow {
	out := make([]*domain.Flow, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.flows[id].Clone())
	}
	return out
}
