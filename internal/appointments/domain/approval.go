package domain

import (
	"maps"
	"slices"

	"faculty_meetings_backend/platform/apperr"
)

const (
	errNotPending  = "appointment is not pending approval"
	errNotApprover = "user is not a required approver for this appointment"
	errNoApprovers = "appointment has no required approvers"
)

// Vote is one approver's decision.
type Vote struct {
	ApproverID string
	Approved   bool
}

// Decision is the outcome of applying a vote.
type Decision struct {
	Approvals map[string]bool
	Status    Status
}

// Aggregate applies vote to the current approvals under unanimous consent:
// a single rejection vetoes, and the appointment is scheduled only once every
// required approver has approved. A voter may change their vote while the
// appointment is still pending. The approvals map passed in is not modified.
func Aggregate(current Status, approvals map[string]bool, required []string, vote Vote) (Decision, error) {
	if current != StatusPendingApproval {
		return Decision{}, apperr.InvalidState(errNotPending)
	}
	if len(required) == 0 {
		return Decision{}, apperr.InvalidState(errNoApprovers)
	}
	if !slices.Contains(required, vote.ApproverID) {
		return Decision{}, apperr.Forbidden(errNotApprover)
	}

	next := maps.Clone(approvals)
	if next == nil {
		next = make(map[string]bool, len(required))
	}
	next[vote.ApproverID] = vote.Approved

	if !vote.Approved {
		return Decision{Approvals: next, Status: StatusRejected}, nil
	}

	for _, approver := range required {
		if !next[approver] {
			return Decision{Approvals: next, Status: StatusPendingApproval}, nil
		}
	}
	return Decision{Approvals: next, Status: StatusScheduled}, nil
}
