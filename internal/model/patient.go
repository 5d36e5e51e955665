package model

import (
	"strings"
	"time"
)

// Patient is one ticket in the queue.
type Patient struct {
	ID            int64       `db:"id" json:"id"`
	TicketNumber  string      `db:"ticket_number" json:"ticketNumber"`
	Status        QueueStatus `db:"status" json:"status"`
	Phone         *string     `db:"phone" json:"phone,omitempty"`
	Email         *string     `db:"email" json:"email,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updatedAt"`
	CalledAt      *time.Time  `db:"called_at" json:"calledAt,omitempty"`
	ServedAt      *time.Time  `db:"served_at" json:"servedAt,omitempty"`
	ServedBy      *string     `db:"served_by" json:"servedBy,omitempty"`
	EstimatedWait int         `db:"estimated_wait" json:"estimatedWaitMinutes"`
	ActualWait    *int        `db:"actual_wait" json:"actualWaitMinutes,omitempty"`

	// PatientsAhead is filled in on reads of waiting entries.
	PatientsAhead *int `db:"-" json:"patientsAhead,omitempty"`
}

// Contact is the optional reachability info given at join time.
type Contact struct {
	Phone string `json:"phone" validate:"omitempty,phone"`
	Email string `json:"email" validate:"omitempty,email,max=255"`
}

// Normalize trims whitespace and lowercases the email.
func (c Contact) Normalize() Contact {
	return Contact{
		Phone: strings.TrimSpace(c.Phone),
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
	}
}

// IsEmpty reports whether no contact value was supplied.
func (c Contact) IsEmpty() bool {
	return c.Phone == "" && c.Email == ""
}

// Values returns the non-empty contact values.
func (c Contact) Values() []string {
	var out []string
	if c.Phone != "" {
		out = append(out, c.Phone)
	}
	if c.Email != "" {
		out = append(out, c.Email)
	}
	return out
}

// WaitMinutes is the whole number of minutes between arrival and service.
func WaitMinutes(createdAt, servedAt time.Time) int {
	d := servedAt.Sub(createdAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}
