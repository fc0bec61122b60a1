package session

import (
	"context"
	"math"

	"github.com/aretw0/chatflow/pkg/domain"
)

const recentSessionLimit = 10

// FlowAnalytics summarizes the retained sessions of one flow.
type FlowAnalytics struct {
	TotalSessions     int               `json:"totalSessions"`
	CompletedSessions int               `json:"completedSessions"`
	AbandonedSessions int               `json:"abandonedSessions"`
	ErrorSessions     int               `json:"errorSessions"`
	ActiveSessions    int               `json:"activeSessions"`
	CompletionRate    float64           `json:"completionRate"`  // percent, two decimals
	AverageDuration   int64             `json:"averageDuration"` // seconds, over ended sessions
	RecentSessions    []*domain.Session `json:"recentSessions"`
}

// Analytics walks every retained session of flowID.
func (m *Manager) Analytics(ctx context.Context, flowID string) (*FlowAnalytics, error) {
	out := &FlowAnalytics{RecentSessions: []*domain.Session{}}
	var durations, ended int64

	q := domain.SessionQuery{FlowID: flowID, Limit: domain.MaxPageLimit}
	for q.Page = 1; ; q.Page++ {
		page, err := m.store.Query(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, s := range page.Sessions {
			out.TotalSessions++
			switch s.Status {
			case domain.SessionCompleted:
				out.CompletedSessions++
			case domain.SessionAbandoned:
				out.AbandonedSessions++
			case domain.SessionError:
				out.ErrorSessions++
			default:
				out.ActiveSessions++
			}
			if s.Duration != nil {
				durations += *s.Duration
				ended++
			}
			if len(out.RecentSessions) < recentSessionLimit {
				out.RecentSessions = append(out.RecentSessions, s)
			}
		}
		if q.Page >= page.Pagination.TotalPages {
			break
		}
	}

	if out.TotalSessions > 0 {
		rate := float64(out.CompletedSessions) / float64(out.TotalSessions) * 100
		out.CompletionRate = math.Round(rate*100) / 100
	}
	if ended > 0 {
		out.AverageDuration = int64(math.Round(float64(durations) / float64(ended)))
	}
	return out, nil
}
