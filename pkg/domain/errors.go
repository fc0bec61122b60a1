package domain

import "errors"

// ErrFlowNotFound is returned when a flow ID cannot be found in the repository.
var ErrFlowNotFound = errors.New("flow not found")

// ErrFlowNotActive is returned when a session is started on a flow that is not active,
// or when deactivating a flow that is not active.
var ErrFlowNotActive = errors.New("flow is not active")

// ErrNoStartNode is returned when a flow has no start node.
var ErrNoStartNode = errors.New("flow has no start node")

// ErrNotWaitingForInput is returned when input is submitted to a session that is not suspended on an input node.
var ErrNotWaitingForInput = errors.New("session is not waiting for input")

// ErrInvalidInputNode is returned when the suspended input node is missing or is not an input node.
var ErrInvalidInputNode = errors.New("invalid input node")

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExists is returned when creating a session whose ID is already taken.
var ErrSessionExists = errors.New("session already exists")

var (
	// ErrNodeNotFound is returned when execution transfers to a node ID that does not exist.
	ErrNodeNotFound = errors.New("node not found")
	// ErrUnknownNodeType is returned when a node's type has no handler.
	ErrUnknownNodeType = errors.New("unknown node type")
	// ErrJumpWithoutTarget is returned when a jump node has no target.
	ErrJumpWithoutTarget = errors.New("jump node has no target")
	// ErrStepBudgetExceeded is returned when a synchronous run executes too many nodes without suspending.
	ErrStepBudgetExceeded = errors.New("step budget exceeded")
)

// ErrFatalCall may be wrapped by an APICaller to signal that the failure must end the session.
// Any other API failure is treated as recoverable.
var ErrFatalCall = errors.New("fatal api call failure")

// ErrForbidden is returned when a user accesses a flow owned by someone else.
var ErrForbidden = errors.New("access to flow denied")

// ErrVersionNotFound is returned when a flow version does not exist.
var ErrVersionNotFound = errors.New("flow version not found")

// ErrInvalidImport is returned when an import document has no flow payload.
var ErrInvalidImport = errors.New("invalid flow data format")
