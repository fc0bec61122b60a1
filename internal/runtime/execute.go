package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/chatflow/pkg/domain"
)

// run is the trampoline: it executes one node per iteration until the session
// suspends, terminates, or exhausts the step budget.
func (e *Engine) run(ctx context.Context, flow *domain.Flow, s *domain.Session) error {
	for steps := 0; ; steps++ {
		if s.Status.Terminal() || s.WaitingForInput {
			return nil
		}
		if steps >= e.stepBudget {
			return e.fail(ctx, s, s.CurrentNodeID,
				fmt.Errorf("%w: %d nodes executed without suspending", domain.ErrStepBudgetExceeded, steps))
		}

		node, ok := flow.NodeByID(s.CurrentNodeID)
		if !ok {
			return e.fail(ctx, s, s.CurrentNodeID, fmt.Errorf("%w: %q", domain.ErrNodeNotFound, s.CurrentNodeID))
		}
		if err := e.execute(ctx, flow, s, node); err != nil {
			return e.fail(ctx, s, node.ID, err)
		}
		if err := e.persist(ctx, s); err != nil {
			return err
		}
	}
}

// execute runs a single node handler, converting panics into errors.
func (e *Engine) execute(ctx context.Context, flow *domain.Flow, s *domain.Session, node *domain.Node) (err error) {
	e.logger.Debug("Executing node", "session_id", s.SessionID, "node_id", node.ID, "node_type", node.Type)

	ev := &domain.NodeEvent{SessionID: s.SessionID, NodeID: node.ID, NodeType: node.Type}
	if e.hooks.OnNodeEnter != nil {
		ev.Timestamp = e.clock.Now()
		e.hooks.OnNodeEnter(ctx, ev)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s handler: %v", node.Type, r)
		}
		if e.hooks.OnNodeLeave != nil {
			leave := *ev
			leave.Timestamp = e.clock.Now()
			e.hooks.OnNodeLeave(ctx, &leave)
		}
	}()

	kind, err := node.Kind()
	if err != nil {
		return err
	}
	return kind.Accept(&step{engine: e, ctx: ctx, flow: flow, session: s}, node)
}

// fail ends the session with error status after a node-level fault.
// The partial transcript is kept and persisted; the cause is logged, not shown.
func (e *Engine) fail(ctx context.Context, s *domain.Session, nodeID string, cause error) error {
	execErr := &ExecutionError{SessionID: s.SessionID, NodeID: nodeID, Err: cause}
	e.logger.Error("Node execution failed", "session_id", s.SessionID, "node_id", nodeID, "error", cause)

	// The run may have been aborted by cancellation; the final state is still recorded.
	ctx = context.WithoutCancel(ctx)

	e.appendMessage(ctx, s, domain.RoleSystem, nodeID, FaultMessage, nil, domain.EventError)
	e.terminate(ctx, s, domain.SessionError)
	if err := e.persist(ctx, s); err != nil {
		return errors.Join(execErr, err)
	}
	return execErr
}
