package model

import (
	"fmt"
	"time"
)

const (
	DefaultCounterStart          = 100
	DefaultAverageServiceMinutes = 15
	MinAverageServiceMinutes     = 1
	MaxAverageServiceMinutes     = 240
	DefaultClinicName            = "Community Health Clinic"
)

// ClinicSettings is the singleton row that also carries the ticket counter.
type ClinicSettings struct {
	ID                    int       `db:"id" json:"-"`
	ClinicName            string    `db:"clinic_name" json:"clinicName"`
	CurrentQueueNumber    int64     `db:"current_queue_number" json:"currentQueueNumber"`
	AverageServiceMinutes int       `db:"avg_service_time" json:"averageServiceTime"`
	OpeningTime           *string   `db:"opening_time" json:"openingTime,omitempty"`
	ClosingTime           *string   `db:"closing_time" json:"closingTime,omitempty"`
	ContactPhone          *string   `db:"contact_phone" json:"contactPhone,omitempty"`
	ContactEmail          *string   `db:"contact_email" json:"contactEmail,omitempty"`
	Address               *string   `db:"address" json:"address,omitempty"`
	UpdatedAt             time.Time `db:"updated_at" json:"updatedAt"`
}

// SettingsUpdate is a partial update. Only these columns may be changed.
type SettingsUpdate struct {
	ClinicName     *string `json:"clinic_name" validate:"omitempty,min=1,max=255"`
	AvgServiceTime *int    `json:"avg_service_time" validate:"omitempty,min=1,max=240"`
	OpeningTime    *string `json:"opening_time" validate:"omitempty,clocktime"`
	ClosingTime    *string `json:"closing_time" validate:"omitempty,clocktime"`
	ContactPhone   *string `json:"contact_phone" validate:"omitempty,phone"`
	ContactEmail   *string `json:"contact_email" validate:"omitempty,email"`
	Address        *string `json:"address" validate:"omitempty,max=500"`
}

// IsEmpty reports whether no field was supplied.
func (u SettingsUpdate) IsEmpty() bool {
	return u.ClinicName == nil && u.AvgServiceTime == nil && u.OpeningTime == nil &&
		u.ClosingTime == nil && u.ContactPhone == nil && u.ContactEmail == nil && u.Address == nil
}

// Columns returns the column/value pairs to set, in a stable order.
func (u SettingsUpdate) Columns() ([]string, []interface{}) {
	var cols []string
	var vals []interface{}
	add := func(col string, v interface{}) {
		cols = append(cols, col)
		vals = append(vals, v)
	}
	if u.ClinicName != nil {
		add("clinic_name", *u.ClinicName)
	}
	if u.AvgServiceTime != nil {
		add("avg_service_time", *u.AvgServiceTime)
	}
	if u.OpeningTime != nil {
		add("opening_time", *u.OpeningTime)
	}
	if u.ClosingTime != nil {
		add("closing_time", *u.ClosingTime)
	}
	if u.ContactPhone != nil {
		add("contact_phone", *u.ContactPhone)
	}
	if u.ContactEmail != nil {
		add("contact_email", *u.ContactEmail)
	}
	if u.Address != nil {
		add("address", *u.Address)
	}
	return cols, vals
}

// Allocation is one consumed counter value together with the service time
// read in the same statement.
type Allocation struct {
	Number            int64  `db:"current_queue_number"`
	AvgServiceMinutes int    `db:"avg_service_time"`
	Ticket            string `db:"-"`
}

// FormatTicket renders a ticket number from the clinic code and counter value.
func FormatTicket(code string, n int64) string {
	return fmt.Sprintf("%s-%d", code, n)
}

// IsOpenAt reports whether t (already in the clinic timezone) falls inside
// opening hours. Missing hours mean always open.
func (s *ClinicSettings) IsOpenAt(t time.Time) bool {
	if s.OpeningTime == nil || s.ClosingTime == nil {
		return true
	}
	open, err1 := time.Parse("15:04:05", *s.OpeningTime)
	closing, err2 := time.Parse("15:04:05", *s.ClosingTime)
	if err1 != nil || err2 != nil {
		return true
	}
	now := t.Hour()*3600 + t.Minute()*60 + t.Second()
	from := open.Hour()*3600 + open.Minute()*60 + open.Second()
	to := closing.Hour()*3600 + closing.Minute()*60 + closing.Second()
	if from <= to {
		return now >= from && now < to
	}
	// overnight hours
	return now >= from || now < to
}
