package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/chatflow/pkg/domain"
)

// LogSink writes every session event as a structured log record.
// Bot message bodies are logged at Debug only.
type LogSink struct {
	Logger *slog.Logger
}

func (l LogSink) Emit(ctx context.Context, ev domain.Event) {
	if l.Logger == nil {
		return
	}
	attrs := []any{"session_id", ev.SessionID, "flow_id", ev.FlowID}
	if ev.NodeID != "" {
		attrs = append(attrs, "node_id", ev.NodeID)
	}

	switch ev.Type {
	case domain.EventSessionEnded:
		attrs = append(attrs, "status", ev.Status, "duration", ev.Duration)
		l.Logger.InfoContext(ctx, "session_ended", attrs...)
	case domain.EventError:
		l.Logger.WarnContext(ctx, "session_fault", attrs...)
	case domain.EventBotMessage:
		if ev.Message != nil {
			attrs = append(attrs, "content", ev.Message.Content)
		}
		l.Logger.DebugContext(ctx, string(ev.Type), attrs...)
	default:
		l.Logger.InfoContext(ctx, string(ev.Type), attrs...)
	}
}

// LogHooks returns lifecycle hooks that trace node execution and API calls.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter", "session_id", e.SessionID, "node_id", e.NodeID, "type", e.NodeType)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_leave", "session_id", e.SessionID, "node_id", e.NodeID)
		},
		OnAPICall: func(ctx context.Context, e *domain.APIEvent) {
			logger.InfoContext(ctx, "api_call", "session_id", e.SessionID, "node_id", e.NodeID, "method", e.Method, "url", e.URL)
		},
		OnAPIReturn: func(ctx context.Context, e *domain.APIEvent) {
			logger.InfoContext(ctx, "api_return",
				"session_id", e.SessionID,
				"node_id", e.NodeID,
				"status_code", e.StatusCode,
				"duration", e.Duration,
				"is_error", e.IsError,
			)
		},
	}
}
