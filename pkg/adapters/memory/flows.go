package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/google/uuid"
)

// FlowStore implements ports.FlowStore in memory.
// Flows are copied on the way in and out. Safe for concurrent use.
type FlowStore struct {
	mu    sync.RWMutex
	flows map[string]*domain.Flow
}

// NewFlowStore creates an empty flow store.
func NewFlowStore() *FlowStore {
	return &FlowStore{flows: make(map[string]*domain.Flow)}
}

// NewFromFlows creates a store preloaded with flows.
// This is the quickest way to hand a fixed graph to the engine in tests.
func NewFromFlows(flows ...*domain.Flow) (*FlowStore, error) {
	s := NewFlowStore()
	for _, f := range flows {
		if f.ID == "" {
			return nil, fmt.Errorf("flow %q missing ID", f.Name)
		}
		if err := s.Insert(context.Background(), f); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *FlowStore) FindByID(ctx context.Context, flowID string) (*domain.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flows[flowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrFlowNotFound, flowID)
	}
	return f.Clone(), nil
}

func (s *FlowStore) Insert(ctx context.Context, flow *domain.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if flow.ID == "" {
		flow.ID = uuid.NewString()
	}
	if _, ok := s.flows[flow.ID]; ok {
		return fmt.Errorf("flow %s already exists", flow.ID)
	}
	s.flows[flow.ID] = flow.Clone()
	return nil
}

func (s *FlowStore) Save(ctx context.Context, flow *domain.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flows[flow.ID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrFlowNotFound, flow.ID)
	}
	s.flows[flow.ID] = flow.Clone()
	return nil
}

func (s *FlowStore) Delete(ctx context.Context, flowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flows[flowID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrFlowNotFound, flowID)
	}
	delete(s.flows, flowID)
	return nil
}

func (s *FlowStore) List(ctx context.Context, filter ports.FlowFilter) ([]*domain.Flow, int, error) {
	s.mu.RLock()
	all := make([]*domain.Flow, 0, len(s.flows))
	for _, f := range s.flows {
		all = append(all, f)
	}
	page, total := filter.Apply(all)
	out := make([]*domain.Flow, len(page))
	for i, f := range page {
		out[i] = f.Clone()
	}
	s.mu.RUnlock()
	return out, total, nil
}

func (s *FlowStore) DeactivateAll(ctx context.Context, userID, keepID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, f := range s.flows {
		if id != keepID && f.UserID == userID && f.Status == domain.FlowActive {
			f.Status = domain.FlowInactive
		}
	}
	return nil
}

// VersionStore implements ports.VersionStore in memory.
type VersionStore struct {
	mu       sync.RWMutex
	versions map[string][]*domain.FlowVersion
}

// NewVersionStore creates an empty version store.
func NewVersionStore() *VersionStore {
	return &VersionStore{versions: make(map[string][]*domain.FlowVersion)}
}

func (s *VersionStore) Append(ctx context.Context, v *domain.FlowVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.versions[v.FlowID]
	v.VersionNumber = len(existing) + 1
	stored := *v
	stored.Snapshot = v.Snapshot.Clone()
	s.versions[v.FlowID] = append(existing, &stored)
	return nil
}

func (s *VersionStore) List(ctx context.Context, flowID string) ([]*domain.FlowVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	existing := s.versions[flowID]
	out := make([]*domain.FlowVersion, 0, len(existing))
	for _, v := range existing {
		c := *v
		c.Snapshot = v.Snapshot.Clone()
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber > out[j].VersionNumber })
	return out, nil
}

func (s *VersionStore) Get(ctx context.Context, flowID string, number int) (*domain.FlowVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.versions[flowID] {
		if v.VersionNumber == number {
			c := *v
			c.Snapshot = v.Snapshot.Clone()
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: flow %s version %d", domain.ErrVersionNotFound, flowID, number)
}

func (s *VersionStore) DeleteAll(ctx context.Context, flowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.versions, flowID)
	return nil
}
