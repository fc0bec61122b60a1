package runtime

import "fmt"

// FaultMessage is appended to the transcript when a node-level fault ends a session.
const FaultMessage = "Something went wrong. This conversation has ended."

// ExecutionError reports a node-level fault that ended a session with error status.
type ExecutionError struct {
	SessionID string
	NodeID    string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("session %s: node %s: %v", e.SessionID, e.NodeID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
