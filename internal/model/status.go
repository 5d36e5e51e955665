package model

import "fmt"

// QueueStatus is the lifecycle state of a queue entry.
type QueueStatus string

const (
	StatusWaiting    QueueStatus = "waiting"
	StatusInProgress QueueStatus = "in-progress"
	StatusServed     QueueStatus = "served"
	StatusNoShow     QueueStatus = "no-show"
)

// transitions lists every legal move. Anything absent is rejected.
var transitions = map[QueueStatus][]QueueStatus{
	StatusWaiting:    {StatusInProgress, StatusNoShow},
	StatusInProgress: {StatusServed},
}

// ParseQueueStatus accepts only the four known statuses.
func ParseQueueStatus(s string) (QueueStatus, error) {
	switch st := QueueStatus(s); st {
	case StatusWaiting, StatusInProgress, StatusServed, StatusNoShow:
		return st, nil
	}
	return "", fmt.Errorf("unknown queue status %q", s)
}

func (s QueueStatus) String() string {
	return string(s)
}

// CanTransition is the single guard for status changes.
func CanTransition(from, to QueueStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PriorStatus returns the only status from which target can be reached.
func PriorStatus(target QueueStatus) (QueueStatus, bool) {
	for from, nexts := range transitions {
		for _, next := range nexts {
			if next == target {
				return from, true
			}
		}
	}
	return "", false
}

// EventTypeFor names the realtime event emitted when an entry enters status.
func EventTypeFor(status QueueStatus) string {
	switch status {
	case StatusWaiting:
		return EventPatientJoined
	case StatusInProgress:
		return EventPatientCalled
	case StatusServed:
		return EventPatientServed
	default:
		return EventPatientUpdated
	}
}
