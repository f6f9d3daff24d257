package ticket

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned when a status change is attempted from a
// state that doesn't permit it. The ticket is left unchanged.
var ErrIllegalTransition = errors.New("illegal ticket transition")

// TransitionError describes a rejected status change.
type TransitionError struct {
	From   Status
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s ticket in status %s", e.Action, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// transition returns to if from is one of the allowed source states,
// otherwise a TransitionError.
func transition(from Status, action string, to Status, allowed ...Status) (Status, error) {
	for _, a := range allowed {
		if from == a {
			return to, nil
		}
	}
	return from, &TransitionError{From: from, Action: action}
}

// StartAnalysis moves a ticket into ANALYZING. OPEN is the normal entry;
// WAITING_CONFIRM is the explicit re-analysis edge.
func StartAnalysis(from Status) (Status, error) {
	return transition(from, "analyze", StatusAnalyzing, StatusOpen, StatusWaitingConfirm)
}

// CompleteAnalysis applies the solver's routing decision. Only the solver
// pipeline transitions out of ANALYZING, and only into WAITING_CONFIRM or
// MANUAL_REQUIRED.
func CompleteAnalysis(from Status, to Status) (Status, error) {
	if to != StatusWaitingConfirm && to != StatusManualRequired {
		return from, &TransitionError{From: from, Action: "complete analysis into " + string(to)}
	}
	return transition(from, "complete analysis for", to, StatusAnalyzing)
}

// Confirm accepts a proposed resolution (WAITING_CONFIRM -> DONE).
func Confirm(from Status) (Status, error) {
	return transition(from, "confirm", StatusDone, StatusWaitingConfirm)
}

// Reject declines a proposed resolution (WAITING_CONFIRM -> REJECTED).
func Reject(from Status) (Status, error) {
	return transition(from, "reject", StatusRejected, StatusWaitingConfirm)
}

// Retry requests re-analysis (WAITING_CONFIRM -> ANALYZING).
func Retry(from Status) (Status, error) {
	return transition(from, "retry", StatusAnalyzing, StatusWaitingConfirm)
}

// CompleteManual records a human resolution (MANUAL_REQUIRED -> DONE).
func CompleteManual(from Status) (Status, error) {
	return transition(from, "complete", StatusDone, StatusManualRequired)
}
