package model

import (
	"fmt"
	"time"
)

// Status is an appointment lifecycle state. Any status may follow any other;
// the clinic has no terminal states at this layer.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusScheduled, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return Status(s), nil
	}
	return "", fmt.Errorf("invalid appointment status %q", s)
}

// Appointment is a booked or historical visit. Cancellation is a status
// transition; records are never deleted by this service.
type Appointment struct {
	ID              string
	PatientID       string
	ProviderID      string
	Date            time.Time // midnight UTC of the visit day
	StartTime       time.Time // Date + clock offset
	EndTime         time.Time // StartTime + DurationMinutes
	DurationMinutes int
	Status          Status
	Notes           string
	PatientNotes    string
	ProviderNotes   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Wire formats at the service boundary. Both are parsed strictly.
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// ParseDate parses a YYYY-MM-DD calendar date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

// ParseClock parses an HH:MM time of day as an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	c, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	return time.Duration(c.Hour())*time.Hour + time.Duration(c.Minute())*time.Minute, nil
}

func FormatClock(t time.Time) string {
	return t.UTC().Format(ClockLayout)
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
