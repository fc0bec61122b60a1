package flows

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/chatflow/internal/validator"
	"github.com/aretw0/chatflow/pkg/domain"
)

// CreateVersion snapshots the current state of a flow.
func (s *Service) CreateVersion(ctx context.Context, userID, flowID, description string, change domain.ChangeType) (*domain.FlowVersion, error) {
	flow, err := s.Get(ctx, userID, flowID)
	if err != nil {
		return nil, err
	}
	if change == "" {
		change = domain.ChangeManual
	}
	return s.snapshot(ctx, flow, userID, description, change)
}

// ListVersions returns the versions of a flow, newest first, without snapshots.
func (s *Service) ListVersions(ctx context.Context, userID, flowID string) ([]*domain.FlowVersion, error) {
	if _, err := s.Get(ctx, userID, flowID); err != nil {
		return nil, err
	}
	versions, err := s.versions.List(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("list versions of %s: %w", flowID, err)
	}
	for _, v := range versions {
		v.Snapshot = domain.FlowSnapshot{}
	}
	return versions, nil
}

// GetVersion returns one version with its snapshot.
func (s *Service) GetVersion(ctx context.Context, userID, flowID string, number int) (*domain.FlowVersion, error) {
	if _, err := s.Get(ctx, userID, flowID); err != nil {
		return nil, err
	}
	return s.versions.Get(ctx, flowID, number)
}

// RestoreVersion rewinds the editable fields of a flow to a version.
// The state before and after the restore are both kept as automatic versions.
func (s *Service) RestoreVersion(ctx context.Context, userID, flowID string, number int) (*domain.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.GetVersion(ctx, userID, flowID, number)
	if err != nil {
		return nil, err
	}
	flow, err := s.Get(ctx, userID, flowID)
	if err != nil {
		return nil, err
	}

	restored := flow.Clone()
	restored.Restore(v.Snapshot)
	if flow.Status == domain.FlowActive {
		if res := validator.ValidateForActivation(restored); !res.IsValid {
			return nil, &ValidationFailedError{Message: "Cannot restore an active flow to a version with validation errors", Result: res}
		}
	}

	if _, err := s.snapshot(ctx, flow, userID, fmt.Sprintf("Before restoring to version %d", number), domain.ChangeAuto); err != nil {
		return nil, err
	}

	flow = restored
	flow.UpdatedAt = s.clock.Now()
	if err := s.flows.Save(ctx, flow); err != nil {
		return nil, fmt.Errorf("save flow %s: %w", flowID, err)
	}

	if _, err := s.snapshot(ctx, flow, userID, fmt.Sprintf("Restored to version %d", number), domain.ChangeAuto); err != nil {
		return nil, err
	}
	s.logger.Info("Flow restored", "flow_id", flowID, "version", number)
	return flow, nil
}

func (s *Service) snapshot(ctx context.Context, flow *domain.Flow, userID, description string, change domain.ChangeType) (*domain.FlowVersion, error) {
	v := &domain.FlowVersion{
		FlowID:            flow.ID,
		Snapshot:          flow.Snapshot(),
		ChangeDescription: description,
		ChangeType:        change,
		CreatedBy:         userID,
		CreatedAt:         s.clock.Now(),
	}
	if raw, err := json.Marshal(v.Snapshot); err == nil {
		v.FileSize = len(raw)
	}
	if err := s.versions.Append(ctx, v); err != nil {
		return nil, fmt.Errorf("create version of %s: %w", flow.ID, err)
	}
	return v, nil
}
