package model

import "time"

type QueueStats struct {
	Total                  int        `db:"total" json:"total"`
	WaitingCount           int        `db:"waiting_count" json:"waitingCount"`
	ActiveCount            int        `db:"active_count" json:"activeCount"`
	ServedCountToday       int        `db:"served_count_today" json:"servedCountToday"`
	OldestWaitingTimestamp *time.Time `db:"oldest_waiting" json:"oldestWaitingTimestamp"`
}

// WaitEstimate is the answer to "how long until my turn".
type WaitEstimate struct {
	TicketNumber     string `json:"ticketNumber,omitempty"`
	PatientsAhead    int    `json:"patientsAhead"`
	EstimatedMinutes int    `json:"estimatedMinutes"`
	Display          string `json:"display"`
}

// GeneralEstimate is the wait a new arrival would face.
type GeneralEstimate struct {
	WaitingCount     int    `json:"waitingCount"`
	EstimatedMinutes int    `json:"estimatedMinutes"`
	Display          string `json:"display"`
}
