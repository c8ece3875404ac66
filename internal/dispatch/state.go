package dispatch

import (
	"errors"
	"fmt"

	"quickping/internal/models"
)

type State string

const (
	StateIdle                   State = "idle"
	StateSelecting              State = "selecting"
	StateComposing              State = "composing"
	StateConfirming             State = "confirming"
	StateDispatching            State = "dispatching"
	StateAwaitingExternalReturn State = "awaiting_external_return"
	StateCompleted              State = "completed"
	StateCancelled              State = "cancelled"
	StateFailed                 State = "failed"
)

// Terminal states end a run; Begin starts a new one from any of them.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

func (s State) dispatching() bool {
	return s == StateDispatching || s == StateAwaitingExternalReturn
}

// ErrInvalidTransition is returned when an operation is not allowed in the
// current state.
var ErrInvalidTransition = errors.New("invalid dispatch transition")

func invalid(op string, from State) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, op, from)
}

// Choice resolves a per-recipient failure.
type Choice string

const (
	ChoiceStop Choice = "stop"
	ChoiceSkip Choice = "skip"
)

func ParseChoice(s string) (Choice, error) {
	switch Choice(s) {
	case ChoiceStop, ChoiceSkip:
		return Choice(s), nil
	}
	return "", models.Invalid("choice", fmt.Sprintf("unknown choice %q, want stop or skip", s))
}

// RecipientFailure is a hand-off that could not be opened. It pauses the run
// until the user chooses to stop or skip.
type RecipientFailure struct {
	Recipient Recipient `json:"recipient"`
	Index     int       `json:"index"`
	Reason    string    `json:"reason"`
	Err       error     `json:"-"`
}

func (f *RecipientFailure) Error() string {
	return fmt.Sprintf("hand-off to %s failed: %v", f.Recipient.PhoneNumber, f.Err)
}

func (f *RecipientFailure) Unwrap() error { return f.Err }
