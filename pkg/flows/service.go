package flows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/internal/validator"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// Service owns every mutation of flows and their versions.
type Service struct {
	flows    ports.FlowStore
	versions ports.VersionStore
	clock    ports.Clock
	logger   *slog.Logger

	// mu serializes read-modify-write cycles (updates, activation, stats).
	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source for timestamps.
func WithClock(c ports.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger configures a logger for the Service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a flow service on top of the given stores.
func NewService(flows ports.FlowStore, versions ports.VersionStore, opts ...Option) *Service {
	s := &Service{
		flows:    flows,
		versions: versions,
		clock:    ports.SystemClock{},
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repository exposes the underlying store as a read-only repository for the interpreter.
func (s *Service) Repository() ports.FlowRepository {
	return s.flows
}

// CreateInput carries the fields of a new flow.
type CreateInput struct {
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Nodes       []domain.Node         `json:"nodes,omitempty"`
	Edges       []domain.Edge         `json:"edges,omitempty"`
	Viewport    *domain.Viewport      `json:"viewport,omitempty"`
	Variables   []domain.VariableDecl `json:"variables,omitempty"`
	Tags        []string              `json:"tags,omitempty"`
	IsTemplate  bool                  `json:"isTemplate,omitempty"`
}

// UpdateInput carries a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	Name        *string               `json:"name,omitempty"`
	Description *string               `json:"description,omitempty"`
	Nodes       []domain.Node         `json:"nodes,omitempty"`
	Edges       []domain.Edge         `json:"edges,omitempty"`
	Viewport    *domain.Viewport      `json:"viewport,omitempty"`
	Variables   []domain.VariableDecl `json:"variables,omitempty"`
	Tags        []string              `json:"tags,omitempty"`
	// Status changes go through the same gates as Activate: becoming active
	// requires activation validation and deactivates the owner's other flows.
	Status      *domain.FlowStatus    `json:"status,omitempty"`
}

// ListQuery selects a page of a user's flows.
type ListQuery struct {
	Page      int
	Limit     int
	Search    string
	Status    domain.FlowStatus
	Tags      []string
	SortBy    string
	SortOrder string // "asc" or "desc" (default)
}

func (q ListQuery) filter(userID string) ports.FlowFilter {
	return ports.FlowFilter{
		UserID:    userID,
		Status:    q.Status,
		Search:    q.Search,
		Tags:      q.Tags,
		SortBy:    q.SortBy,
		Ascending: q.SortOrder == "asc",
		Page:      q.Page,
		Limit:     q.Limit,
	}.Normalize()
}

// FlowPage is one page of flow summaries.
type FlowPage struct {
	Flows      []*domain.Flow    `json:"flows"`
	Pagination domain.Pagination `json:"pagination"`
}

// Create stores a new draft flow owned by userID.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*domain.Flow, error) {
	now := s.clock.Now()
	flow := &domain.Flow{
		UserID:      userID,
		Name:        in.Name,
		Description: in.Description,
		Nodes:       in.Nodes,
		Edges:       in.Edges,
		Variables:   in.Variables,
		Tags:        in.Tags,
		IsTemplate:  in.IsTemplate,
		Viewport:    defaultViewport(in.Viewport),
		Status:      domain.FlowDraft,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if flow.Nodes == nil {
		flow.Nodes = []domain.Node{}
	}
	if flow.Edges == nil {
		flow.Edges = []domain.Edge{}
	}
	if err := s.flows.Insert(ctx, flow); err != nil {
		return nil, fmt.Errorf("create flow: %w", err)
	}
	s.logger.Info("Flow created", "flow_id", flow.ID, "user_id", userID)

	if len(flow.Nodes) > 0 {
		if _, err := s.snapshot(ctx, flow, userID, "Initial version", domain.ChangeAuto); err != nil {
			return nil, err
		}
	}
	return flow, nil
}

// Get returns a flow owned by userID.
func (s *Service) Get(ctx context.Context, userID, flowID string) (*domain.Flow, error) {
	flow, err := s.flows.FindByID(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if flow.UserID != userID {
		return nil, fmt.Errorf("flow %s: %w", flowID, domain.ErrForbidden)
	}
	return flow, nil
}

// List returns a page of the user's flows. Nodes and edges are omitted.
func (s *Service) List(ctx context.Context, userID string, q ListQuery) (*FlowPage, error) {
	f := q.filter(userID)
	flows, total, err := s.flows.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	for _, flow := range flows {
		flow.Nodes, flow.Edges = nil, nil
	}
	return &FlowPage{Flows: flows, Pagination: domain.NewPagination(f.Page, f.Limit, total)}, nil
}

// Templates returns a page of flows marked as templates, regardless of owner.
func (s *Service) Templates(ctx context.Context, q ListQuery) (*FlowPage, error) {
	f := q.filter("")
	f.TemplateOnly = true
	f.Status = ""
	flows, total, err := s.flows.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	for _, flow := range flows {
		flow.Nodes, flow.Edges, flow.UserID = nil, nil, ""
	}
	return &FlowPage{Flows: flows, Pagination: domain.NewPagination(f.Page, f.Limit, total)}, nil
}

// Update applies a partial update. Changing nodes or edges requires the result to validate.
func (s *Service) Update(ctx context.Context, userID, flowID string, in UpdateInput) (*domain.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, err := s.Get(ctx, userID, flowID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		flow.Name = *in.Name
	}
	if in.Description != nil {
		flow.Description = *in.Description
	}
	if in.Nodes != nil {
		flow.Nodes = in.Nodes
	}
	if in.Edges != nil {
		flow.Edges = in.Edges
	}
	if in.Viewport != nil {
		flow.Viewport = *in.Viewport
	}
	if in.Variables != nil {
		flow.Variables = in.Variables
	}
	if in.Tags != nil {
		flow.Tags = in.Tags
	}

	if in.Nodes != nil || in.Edges != nil {
		if res := validator.Validate(flow); !res.IsValid {
			return nil, &ValidationFailedError{Message: "Flow validation failed", Result: res}
		}
	}

	activating := false
	if in.Status != nil && *in.Status != flow.Status {
		switch *in.Status {
		case domain.FlowActive:
			if res := validator.ValidateForActivation(flow); !res.IsValid {
				return nil, &ValidationFailedError{Message: "Cannot activate flow with validation errors", Result: res}
			}
			activating = true
		case domain.FlowDraft, domain.FlowInactive:
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *in.Status)
		}
		flow.Status = *in.Status
	}
	if activating {
		if err := s.flows.DeactivateAll(ctx, userID, flowID); err != nil {
			return nil, fmt.Errorf("deactivate flows of %s: %w", userID, err)
		}
	}

	flow.Version++
	flow.UpdatedAt = s.clock.Now()
	if err := s.flows.Save(ctx, flow); err != nil {
		return nil, fmt.Errorf("save flow %s: %w", flowID, err)
	}
	return flow, nil
}

// Delete removes a flow and all its versions.
func (s *Service) Delete(ctx context.Context, userID, flowID string) error {
	if _, err := s.Get(ctx, userID, flowID); err != nil {
		return err
	}
	if err := s.versions.DeleteAll(ctx, flowID); err != nil {
		return fmt.Errorf("delete versions of %s: %w", flowID, err)
	}
	if err := s.flows.Delete(ctx, flowID); err != nil {
		return fmt.Errorf("delete flow %s: %w", flowID, err)
	}
	s.logger.Info("Flow deleted", "flow_id", flowID, "user_id", userID)
	return nil
}

// Duplicate copies a flow into a new draft. An empty description keeps the original one.
func (s *Service) Duplicate(ctx context.Context, userID, flowID, name, description string) (*domain.Flow, error) {
	orig, err := s.Get(ctx, userID, flowID)
	if err != nil {
		return nil, err
	}
	snap := orig.Snapshot()
	if description == "" {
		description = orig.Description
	}

	now := s.clock.Now()
	dup := &domain.Flow{UserID: userID, Status: domain.FlowDraft, Version: 1, CreatedAt: now, UpdatedAt: now}
	dup.Restore(snap)
	dup.Name = name
	dup.Description = description

	if err := s.flows.Insert(ctx, dup); err != nil {
		return nil, fmt.Errorf("duplicate flow %s: %w", flowID, err)
	}
	if _, err := s.snapshot(ctx, dup, userID, "Duplicated from "+orig.Name, domain.ChangeAuto); err != nil {
		return nil, err
	}
	return dup, nil
}

// Activate makes the flow the user's single active flow after the activation gate passes.
func (s *Service) Activate(ctx context.Context, userID, flowID string) (*domain.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, err := s.Get(ctx, userID, flowID)
	if err != nil {
		return nil, err
	}
	if res := validator.ValidateForActivation(flow); !res.IsValid {
		return nil, &ValidationFailedError{Message: "Cannot activate flow with validation errors", Result: res}
	}
	if err := s.flows.DeactivateAll(ctx, userID, flowID); err != nil {
		return nil, fmt.Errorf("deactivate flows of %s: %w", userID, err)
	}

	flow.Status = domain.FlowActive
	flow.UpdatedAt = s.clock.Now()
	if err := s.flows.Save(ctx, flow); err != nil {
		return nil, fmt.Errorf("save flow %s: %w", flowID, err)
	}
	s.logger.Info("Flow activated", "flow_id", flowID, "user_id", userID)
	return flow, nil
}

// Deactivate moves an active flow to inactive.
func (s *Service) Deactivate(ctx context.Context, userID, flowID string) (*domain.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, err := s.Get(ctx, userID, flowID)
	if err != nil {
		return nil, err
	}
	if flow.Status != domain.FlowActive {
		return nil, fmt.Errorf("flow %s: %w", flowID, domain.ErrFlowNotActive)
	}
	flow.Status = domain.FlowInactive
	flow.UpdatedAt = s.clock.Now()
	if err := s.flows.Save(ctx, flow); err != nil {
		return nil, fmt.Errorf("save flow %s: %w", flowID, err)
	}
	return flow, nil
}

// Validate runs the full validator over a stored flow.
func (s *Service) Validate(ctx context.Context, userID, flowID string) (validator.Result, error) {
	flow, err := s.Get(ctx, userID, flowID)
	if err != nil {
		return validator.Result{}, err
	}
	return validator.Validate(flow), nil
}

// RecordRun folds one finished session into the flow's statistics.
// Unknown flows are ignored.
func (s *Service) RecordRun(ctx context.Context, flowID string, success bool, seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, err := s.flows.FindByID(ctx, flowID)
	if errors.Is(err, domain.ErrFlowNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	st := &flow.Stats
	st.TotalRuns++
	if success {
		st.SuccessfulRuns++
	} else {
		st.FailedRuns++
	}
	total := st.AverageCompletionTime*float64(st.TotalRuns-1) + seconds
	st.AverageCompletionTime = total / float64(st.TotalRuns)
	now := s.clock.Now()
	st.LastRunAt = &now

	return s.flows.Save(ctx, flow)
}

// StatsRecorder returns an event sink that records every completed or failed session.
// Abandoned sessions are not counted.
func (s *Service) StatsRecorder() ports.EventSink {
	return ports.EventSinkFunc(func(ctx context.Context, ev domain.Event) {
		if ev.Type != domain.EventSessionEnded {
			return
		}
		var success bool
		switch ev.Status {
		case domain.SessionCompleted:
			success = true
		case domain.SessionError:
			success = false
		default:
			return
		}
		if err := s.RecordRun(context.WithoutCancel(ctx), ev.FlowID, success, float64(ev.Duration)); err != nil {
			s.logger.Warn("Failed to record flow run", "flow_id", ev.FlowID, "err", err)
		}
	})
}

func defaultViewport(v *domain.Viewport) domain.Viewport {
	if v == nil {
		return domain.Viewport{Zoom: 1}
	}
	return *v
}
