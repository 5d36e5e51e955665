package model

import "time"

// ServiceLogEntry is appended once per served ticket.
type ServiceLogEntry struct {
	ID           int64      `db:"id" json:"id"`
	TicketNumber string     `db:"ticket_number" json:"ticketNumber"`
	CheckinTime  time.Time  `db:"checkin_time" json:"checkinTime"`
	CalledTime   *time.Time `db:"called_time" json:"calledTime,omitempty"`
	ServedTime   time.Time  `db:"served_time" json:"servedTime"`
	TotalWait    int        `db:"total_wait_time" json:"totalWaitMinutes"`
	StaffID      *string    `db:"staff_id" json:"staffId,omitempty"`
}

// ServiceMinutes is the time spent at the counter, or false when the entry
// has no call time.
func (e ServiceLogEntry) ServiceMinutes() (float64, bool) {
	if e.CalledTime == nil || e.ServedTime.Before(*e.CalledTime) {
		return 0, false
	}
	return e.ServedTime.Sub(*e.CalledTime).Minutes(), true
}
