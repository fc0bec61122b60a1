package flows

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

const (
	popularTagLimit = 10
	recentFlowLimit = 5
)

// TagCount is the number of flows carrying a tag.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// RecentFlow summarizes a recently updated flow.
type RecentFlow struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Status    domain.FlowStatus `json:"status"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// UserStats describes the flows owned by one user.
type UserStats struct {
	TotalFlows    int          `json:"totalFlows"`
	DraftFlows    int          `json:"draftFlows"`
	ActiveFlows   int          `json:"activeFlows"`
	InactiveFlows int          `json:"inactiveFlows"`
	PopularTags   []TagCount   `json:"popularTags"`
	RecentFlows   []RecentFlow `json:"recentFlows"`
}

// Stats aggregates the user's flows.
func (s *Service) Stats(ctx context.Context, userID string) (*UserStats, error) {
	all, err := s.all(ctx, ports.FlowFilter{UserID: userID})
	if err != nil {
		return nil, err
	}

	out := &UserStats{TotalFlows: len(all), PopularTags: []TagCount{}, RecentFlows: []RecentFlow{}}
	tags := map[string]int{}
	for _, f := range all {
		switch f.Status {
		case domain.FlowDraft:
			out.DraftFlows++
		case domain.FlowActive:
			out.ActiveFlows++
		case domain.FlowInactive:
			out.InactiveFlows++
		}
		for _, t := range f.Tags {
			tags[t]++
		}
	}

	for t, n := range tags {
		out.PopularTags = append(out.PopularTags, TagCount{Tag: t, Count: n})
	}
	sort.Slice(out.PopularTags, func(i, j int) bool {
		a, b := out.PopularTags[i], out.PopularTags[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Tag < b.Tag
	})
	if len(out.PopularTags) > popularTagLimit {
		out.PopularTags = out.PopularTags[:popularTagLimit]
	}

	// all is ordered by updatedAt descending.
	for i, f := range all {
		if i == recentFlowLimit {
			break
		}
		out.RecentFlows = append(out.RecentFlows, RecentFlow{ID: f.ID, Name: f.Name, Status: f.Status, UpdatedAt: f.UpdatedAt})
	}
	return out, nil
}

// all walks every page of filter.
func (s *Service) all(ctx context.Context, filter ports.FlowFilter) ([]*domain.Flow, error) {
	filter.Limit = domain.MaxPageLimit
	var out []*domain.Flow
	for page := 1; ; page++ {
		filter.Page = page
		flows, total, err := s.flows.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list flows: %w", err)
		}
		out = append(out, flows...)
		if len(flows) == 0 || len(out) >= total {
			return out, nil
		}
	}
}
