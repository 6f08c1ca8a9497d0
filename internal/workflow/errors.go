package workflow

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrValidation wraps malformed input: missing amount, bad currency, empty
// submission, and so on. No state change is applied.
var ErrValidation = errors.New("validation failed")

// InvalidTransitionError reports an attempted transition that is not legal
// from the item's current state. Nothing is partially applied.
type InvalidTransitionError struct {
	WorkItemID uuid.UUID
	Current    string
	Attempted  string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("work item %s: cannot transition from %s to %s", e.WorkItemID, e.Current, e.Attempted)
}
