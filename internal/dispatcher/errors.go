package dispatcher

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/obstacle-panel/backend/internal/model"
)

var (
	// ErrBusy is returned when the actuator already has a dispatch in flight.
	ErrBusy = errors.New("actuator busy")
	// ErrAuthRequired means the remote API rejected the command as
	// unauthenticated. The optimistic value is left in place.
	ErrAuthRequired = errors.New("authentication required")
)

// ActuatorError reports an actuator index outside the configured range.
type ActuatorError struct {
	Index int
	Count int
}

func (e *ActuatorError) Error() string {
	return fmt.Sprintf("actuator index %d out of range [0,%d)", e.Index, e.Count)
}

// DispatchError is a failed remote submission together with the state the
// dispatch ended in.
type DispatchError struct {
	CommandID uuid.UUID
	Subject   string
	State     model.DispatchState
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s %s: %s: %v", e.Subject, e.CommandID, e.State, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
