package ports

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// FlowRepository defines how the engine retrieves flow definitions.
type FlowRepository interface {
	// FindByID returns the flow or domain.ErrFlowNotFound.
	FindByID(ctx context.Context, flowID string) (*domain.Flow, error)
}

// FlowFilter selects flows for listing.
type FlowFilter struct {
	UserID       string
	Status       domain.FlowStatus
	Search       string   // case-insensitive match on name or description
	Tags         []string // any of
	TemplateOnly bool
	SortBy       string // "updatedAt" (default), "createdAt" or "name"
	Ascending    bool
	Page         int
	Limit        int
}

// Normalize applies paging defaults.
func (f FlowFilter) Normalize() FlowFilter {
	f.Page, f.Limit = domain.NormalizePage(f.Page, f.Limit)
	return f
}

// Matches reports whether flow satisfies every filter criterion.
func (f FlowFilter) Matches(flow *domain.Flow) bool {
	if f.UserID != "" && flow.UserID != f.UserID {
		return false
	}
	if f.Status != "" && flow.Status != f.Status {
		return false
	}
	if f.TemplateOnly && !flow.IsTemplate {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(flow.Name), q) && !strings.Contains(strings.ToLower(flow.Description), q) {
			return false
		}
	}
	if len(f.Tags) > 0 && !slices.ContainsFunc(flow.Tags, func(t string) bool { return slices.Contains(f.Tags, t) }) {
		return false
	}
	return true
}

// Sort orders flows in place by the filter's sort key, ties broken by ID.
func (f FlowFilter) Sort(flows []*domain.Flow) {
	less := func(a, b *domain.Flow) int {
		switch f.SortBy {
		case "name":
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		case "createdAt":
			return a.CreatedAt.Compare(b.CreatedAt)
		default:
			return a.UpdatedAt.Compare(b.UpdatedAt)
		}
	}
	sort.SliceStable(flows, func(i, j int) bool {
		c := less(flows[i], flows[j])
		if c == 0 {
			c = strings.Compare(flows[i].ID, flows[j].ID)
			return c < 0
		}
		if f.Ascending {
			return c < 0
		}
		return c > 0
	})
}

// Apply filters, sorts and pages flows, returning the page and the total match count.
func (f FlowFilter) Apply(flows []*domain.Flow) ([]*domain.Flow, int) {
	f = f.Normalize()
	matched := make([]*domain.Flow, 0, len(flows))
	for _, flow := range flows {
		if f.Matches(flow) {
			matched = append(matched, flow)
		}
	}
	f.Sort(matched)
	start, end := domain.PageBounds(f.Page, f.Limit, len(matched))
	return matched[start:end], len(matched)
}

// FlowStore is the writable flow persistence used by the flow management layer.
type FlowStore interface {
	FlowRepository

	// Insert stores a new flow. The store assigns the ID when empty.
	Insert(ctx context.Context, flow *domain.Flow) error
	// Save replaces an existing flow or returns domain.ErrFlowNotFound.
	Save(ctx context.Context, flow *domain.Flow) error
	// Delete removes a flow or returns domain.ErrFlowNotFound.
	Delete(ctx context.Context, flowID string) error
	// List returns one page of flows matching the filter and the total match count.
	List(ctx context.Context, filter FlowFilter) ([]*domain.Flow, int, error)
	// DeactivateAll marks every active flow owned by userID as inactive, except keepID.
	DeactivateAll(ctx context.Context, userID, keepID string) error
}

// VersionStore persists immutable flow versions.
type VersionStore interface {
	// Append stores a snapshot, assigning the next version number (starting at 1).
	Append(ctx context.Context, version *domain.FlowVersion) error
	// List returns every version of a flow, newest first.
	List(ctx context.Context, flowID string) ([]*domain.FlowVersion, error)
	// Get returns a version or domain.ErrVersionNotFound.
	Get(ctx context.Context, flowID string, number int) (*domain.FlowVersion, error)
	// DeleteAll removes every version of a flow.
	DeleteAll(ctx context.Context, flowID string) error
}
