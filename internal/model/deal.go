package model

import "errors"

// DealState is the lifecycle stage of the transaction behind a chat.
type DealState string

const (
	DealOpen                 DealState = "open"
	DealCompletionRequested  DealState = "completion_requested"
	DealCompleted            DealState = "completed"
	DealCancelled            DealState = "cancelled"
)

// ErrInvalidTransition is returned when a deal action is attempted on a
// terminal state.
var ErrInvalidTransition = errors.New("invalid deal transition")

// Terminal reports whether no further transitions are possible.
func (s DealState) Terminal() bool {
	return s == DealCompleted || s == DealCancelled
}

// DealActor identifies which side of the deal performs an action.
type DealActor int

const (
	ActorBuyer DealActor = iota
	ActorSeller
)

// NextOnCompletionRequest is the single transition function for the
// complete-payment action. A seller confirmation is authoritative and
// completes the deal from any non-terminal state; a buyer call only records
// the request. A repeated buyer request is a no-op and returns the current
// state unchanged.
func (s DealState) NextOnCompletionRequest(actor DealActor) (DealState, error) {
	if s.Terminal() {
		return s, ErrInvalidTransition
	}
	if actor == ActorSeller {
		return DealCompleted, nil
	}
	// Buyer: idempotent request.
	return DealCompletionRequested, nil
}

// NextOnCancel transitions to Cancelled. Either participant may cancel while
// the deal is open or merely requested; a completed or already cancelled deal
// cannot be cancelled.
func (s DealState) NextOnCancel() (DealState, error) {
	if s.Terminal() {
		return s, ErrInvalidTransition
	}
	return DealCancelled, nil
}
