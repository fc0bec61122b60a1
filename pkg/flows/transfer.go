package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/chatflow/internal/validator"
	"github.com/aretw0/chatflow/pkg/domain"
)

// ExportFormatVersion is written into every export document.
const ExportFormatVersion = "1.0"

// Document is the portable representation of a flow.
type Document struct {
	Version    string               `json:"version" yaml:"version"`
	ExportedAt time.Time            `json:"exportedAt" yaml:"exportedAt"`
	Flow       *domain.FlowSnapshot `json:"flow" yaml:"flow"`
}

// Export returns the portable document of a flow.
func (s *Service) Export(ctx context.Context, userID, flowID string) (*Document, error) {
	flow, err := s.Get(ctx, userID, flowID)
	if err != nil {
		return nil, err
	}
	snap := flow.Snapshot()
	return &Document{Version: ExportFormatVersion, ExportedAt: s.clock.Now(), Flow: &snap}, nil
}

// Import creates a draft flow from a document. name overrides the document's name.
func (s *Service) Import(ctx context.Context, userID string, doc *Document, name string) (*domain.Flow, error) {
	if doc == nil || doc.Flow == nil {
		return nil, domain.ErrInvalidImport
	}
	snap := doc.Flow.Clone()
	switch {
	case name != "":
		snap.Name = name
	case snap.Name == "":
		snap.Name = "Imported Flow"
	}
	if snap.Nodes == nil {
		snap.Nodes = []domain.Node{}
	}
	if snap.Edges == nil {
		snap.Edges = []domain.Edge{}
	}
	if snap.Viewport == (domain.Viewport{}) {
		snap.Viewport = domain.Viewport{Zoom: 1}
	}

	now := s.clock.Now()
	flow := &domain.Flow{UserID: userID, Status: domain.FlowDraft, Version: 1, CreatedAt: now, UpdatedAt: now}
	flow.Restore(snap)

	if res := validator.Validate(flow); !res.IsValid {
		return nil, &ValidationFailedError{Message: "Imported flow has validation errors", Result: res}
	}
	if err := s.flows.Insert(ctx, flow); err != nil {
		return nil, fmt.Errorf("import flow: %w", err)
	}
	if _, err := s.snapshot(ctx, flow, userID, "Imported from JSON", domain.ChangeAuto); err != nil {
		return nil, err
	}
	return flow, nil
}
