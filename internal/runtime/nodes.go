package runtime

import (
	"context"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
)

// DefaultInputPrompt is shown by input nodes that configure neither a message nor a placeholder.
const DefaultInputPrompt = "Please provide input:"

// step executes node handlers for one session. Each handler either suspends,
// terminates, or moves the session pointer to the next node.
type step struct {
	engine  *Engine
	ctx     context.Context
	flow    *domain.Flow
	session *domain.Session
}

var _ domain.KindVisitor = (*step)(nil)

// goTo moves to nodeID, or completes the session when nodeID is empty.
func (st *step) goTo(nodeID string) {
	if nodeID == "" {
		st.engine.terminate(st.ctx, st.session, domain.SessionCompleted)
		return
	}
	st.session.CurrentNodeID = nodeID
}

// advance follows the default edge out of n.
func (st *step) advance(n *domain.Node) {
	st.goTo(st.engine.defaultTarget(st.flow, n.ID))
}

func (st *step) VisitStart(n *domain.Node, _ *domain.StartData) error {
	st.advance(n)
	return nil
}

func (st *step) VisitMessage(n *domain.Node, d *domain.MessageData) error {
	var meta map[string]any
	if d.RichContent != nil {
		meta = map[string]any{"richContent": d.RichContent}
	}
	st.engine.appendBot(st.ctx, st.session, n.ID, interpolate(d.Message, st.session.Variables), meta)
	st.advance(n)
	return nil
}

func (st *step) VisitInput(n *domain.Node, d *domain.InputData) error {
	prompt := d.Message
	if prompt == "" {
		prompt = d.Placeholder
	}
	if prompt == "" {
		prompt = DefaultInputPrompt
	}

	inputType := d.InputType
	if inputType == "" {
		inputType = domain.InputText
	}
	meta := map[string]any{"inputType": string(inputType)}
	if d.Placeholder != "" {
		meta["placeholder"] = d.Placeholder
	}
	if len(d.Choices) > 0 {
		choices := make([]any, len(d.Choices))
		for i, c := range d.Choices {
			choices[i] = c
		}
		meta["choices"] = choices
	}

	s := st.session
	st.engine.appendBot(st.ctx, s, n.ID, interpolate(prompt, s.Variables), meta)
	s.CurrentNodeID = n.ID
	s.WaitingForInput = true
	s.InputNodeID = n.ID
	st.engine.emit(st.ctx, s, domain.Event{Type: domain.EventWaitingInput, NodeID: n.ID})
	return nil
}

func (st *step) VisitCondition(n *domain.Node, d *domain.ConditionData) error {
	for _, c := range d.Conditions {
		if c.TargetNodeID == "" {
			continue
		}
		if evaluate(lookup(st.session.Variables, c.Variable), c.Operator, c.Value) {
			st.goTo(c.TargetNodeID)
			return nil
		}
	}
	if d.DefaultTarget != "" {
		st.goTo(d.DefaultTarget)
		return nil
	}
	st.advance(n)
	return nil
}

func (st *step) VisitAPI(n *domain.Node, d *domain.APIData) error {
	if err := st.engine.callAPI(st.ctx, st.session, n, d.Config()); err != nil {
		return err
	}
	st.advance(n)
	return nil
}

func (st *step) VisitDelay(n *domain.Node, d *domain.DelayData) error {
	if d.DisplayMessage != "" {
		st.engine.appendBot(st.ctx, st.session, n.ID, interpolate(d.DisplayMessage, st.session.Variables), nil)
	}
	var wait time.Duration
	if d.Delay != nil && *d.Delay > 0 {
		// Compare in milliseconds: the product overflows Duration long before it reaches float limits.
		if *d.Delay >= float64(MaxDelay/time.Millisecond) {
			wait = MaxDelay
		} else {
			wait = time.Duration(*d.Delay * float64(time.Millisecond))
		}
	}
	if err := st.engine.clock.Sleep(st.ctx, wait); err != nil {
		return err
	}
	st.advance(n)
	return nil
}

func (st *step) VisitJump(n *domain.Node, d *domain.JumpData) error {
	if d.TargetNodeID == "" {
		return domain.ErrJumpWithoutTarget
	}
	st.goTo(d.TargetNodeID)
	return nil
}

func (st *step) VisitEnd(n *domain.Node, d *domain.EndData) error {
	if d.Message != "" {
		st.engine.appendBot(st.ctx, st.session, n.ID, interpolate(d.Message, st.session.Variables), nil)
	}
	st.engine.terminate(st.ctx, st.session, domain.SessionCompleted)
	return nil
}
