package observability

import (
	"context"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// Multi combines several sinks into one. Events are delivered to each sink in
// argument order; nil sinks are skipped.
func Multi(sinks ...ports.EventSink) ports.EventSink {
	live := make([]ports.EventSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return multiSink(live)
}

type multiSink []ports.EventSink

func (m multiSink) Emit(ctx context.Context, ev domain.Event) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}

// MergeHooks chains lifecycle hooks so that each callback runs every non-nil
// callback of the given hooks, in order.
func MergeHooks(all ...domain.LifecycleHooks) domain.LifecycleHooks {
	var (
		enter, leave []func(context.Context, *domain.NodeEvent)
		call, ret    []func(context.Context, *domain.APIEvent)
	)
	for _, h := range all {
		if h.OnNodeEnter != nil {
			enter = append(enter, h.OnNodeEnter)
		}
		if h.OnNodeLeave != nil {
			leave = append(leave, h.OnNodeLeave)
		}
		if h.OnAPICall != nil {
			call = append(call, h.OnAPICall)
		}
		if h.OnAPIReturn != nil {
			ret = append(ret, h.OnAPIReturn)
		}
	}
	return domain.LifecycleHooks{
		OnNodeEnter: chain(enter),
		OnNodeLeave: chain(leave),
		OnAPICall:   chain(call),
		OnAPIReturn: chain(ret),
	}
}

func chain[E any](fns []func(context.Context, *E)) func(context.Context, *E) {
	switch len(fns) {
	case 0:
		return nil
	case 1:
		return fns[0]
	}
	return func(ctx context.Context, e *E) {
		for _, fn := range fns {
			fn(ctx, e)
		}
	}
}
