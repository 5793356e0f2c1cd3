package domain

import "time"

// EffectiveStatus derives the status shown to callers from the persisted
// status and the current time. It never has side effects: a SCHEDULED
// appointment whose end time has passed reads as COMPLETED while the stored
// row stays SCHEDULED until something chooses to persist it.
func EffectiveStatus(persisted Status, endTime, now time.Time) Status {
	if persisted == StatusScheduled && !now.Before(endTime) {
		return StatusCompleted
	}
	return persisted
}

// IsTerminal reports whether no further transition can leave s.
func IsTerminal(s Status) bool {
	return s == StatusRejected || s == StatusCompleted
}
