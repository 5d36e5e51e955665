package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSettingsUpdateColumns(t *testing.T) {
	name := "Eastside Clinic"
	avg := 20
	u := SettingsUpdate{ClinicName: &name, AvgServiceTime: &avg}

	cols, vals := u.Columns()
	assert.Equal(t, []string{"clinic_name", "avg_service_time"}, cols)
	assert.Equal(t, []interface{}{"Eastside Clinic", 20}, vals)
	assert.False(t, u.IsEmpty())
	assert.True(t, SettingsUpdate{}.IsEmpty())
}

func TestIsOpenAt(t *testing.T) {
	open, closing := "08:00:00", "17:00:00"
	s := &ClinicSettings{OpeningTime: &open, ClosingTime: &closing}
	day := func(h, m int) time.Time { return time.Date(2024, 3, 1, h, m, 0, 0, time.UTC) }

	assert.False(t, s.IsOpenAt(day(7, 59)))
	assert.True(t, s.IsOpenAt(day(8, 0)))
	assert.True(t, s.IsOpenAt(day(16, 59)))
	assert.False(t, s.IsOpenAt(day(17, 0)))

	assert.True(t, (&ClinicSettings{}).IsOpenAt(day(3, 0)))

	nightOpen, nightClose := "22:00:00", "06:00:00"
	night := &ClinicSettings{OpeningTime: &nightOpen, ClosingTime: &nightClose}
	assert.True(t, night.IsOpenAt(day(23, 0)))
	assert.True(t, night.IsOpenAt(day(5, 0)))
	assert.False(t, night.IsOpenAt(day(12, 0)))
}

func TestFormatTicket(t *testing.T) {
	assert.Equal(t, "CLINIC-101", FormatTicket("CLINIC", 101))
}

func TestContactNormalize(t *testing.T) {
	c := Contact{Phone: " 555-0100 ", Email: " Ana@Example.COM "}.Normalize()
	assert.Equal(t, "555-0100", c.Phone)
	assert.Equal(t, "ana@example.com", c.Email)
	assert.Equal(t, []string{"555-0100", "ana@example.com"}, c.Values())
	assert.True(t, Contact{}.IsEmpty())
}
