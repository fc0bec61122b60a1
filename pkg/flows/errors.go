package flows

import (
	"errors"
	"fmt"

	"github.com/aretw0/chatflow/internal/validator"
)

// ErrInvalidStatus is returned when an update names an unknown flow status.
var ErrInvalidStatus = errors.New("invalid flow status")

// ValidationFailedError is returned when a change is rejected by the flow validator.
type ValidationFailedError struct {
	Message string
	Result  validator.Result
}

func (e *ValidationFailedError) Error() string {
	if len(e.Result.Errors) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Result.Errors[0])
}
