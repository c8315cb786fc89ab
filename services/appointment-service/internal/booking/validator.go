// Package booking enforces the clinic's booking rules: provider non-overlap,
// the patient's daily minute quota, and the same-day adjacency policy.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trami25/FisioNet/services/appointment-service/internal/schedule"
)

var (
	ErrInvalidDuration  = errors.New("duration must be 20, 40 or 60 minutes")
	ErrProviderConflict = errors.New("provider is not available at this time")
	ErrQuotaExceeded    = errors.New("patient daily booking quota of 60 minutes exceeded")
	ErrNonAdjacentSlot  = errors.New("same-day bookings must be adjacent to an existing appointment")
)

// MaxDailyMinutes is the cumulative booked time a patient may hold per day.
const MaxDailyMinutes = 60

// PatientBooking is a patient's existing same-day appointment as the
// validator needs to see it.
type PatientBooking struct {
	Start           time.Time
	End             time.Time
	DurationMinutes int
}

// Source supplies the day's non-cancelled bookings the validator checks
// against. Both queries must be answered from the same consistent snapshot;
// the caller serializes concurrent bookings for the affected keys.
type Source interface {
	ProviderBookings(ctx context.Context, providerID string, day time.Time) ([]schedule.Interval, error)
	PatientBookings(ctx context.Context, patientID string, day time.Time) ([]PatientBooking, error)
}

// Request is a proposed booking.
type Request struct {
	PatientID       string
	ProviderID      string
	Day             time.Time // midnight UTC
	Start           time.Time
	DurationMinutes int
}

func (r Request) End() time.Time {
	return r.Start.Add(time.Duration(r.DurationMinutes) * time.Minute)
}

type Validator struct {
	src Source
}

func NewValidator(src Source) *Validator {
	return &Validator{src: src}
}

// Validate runs the booking checks in order; the first failure rejects the
// request. A storage error aborts the booking rather than proceeding as if
// no conflicts existed.
func (v *Validator) Validate(ctx context.Context, req Request) error {
	switch req.DurationMinutes {
	case 20, 40, 60:
	default:
		return ErrInvalidDuration
	}

	proposed := schedule.Interval{Start: req.Start, End: req.End()}

	taken, err := v.src.ProviderBookings(ctx, req.ProviderID, req.Day)
	if err != nil {
		return fmt.Errorf("load provider bookings: %w", err)
	}
	for _, iv := range taken {
		if proposed.Overlaps(iv) {
			return ErrProviderConflict
		}
	}

	existing, err := v.src.PatientBookings(ctx, req.PatientID, req.Day)
	if err != nil {
		return fmt.Errorf("load patient bookings: %w", err)
	}

	total := req.DurationMinutes
	for _, b := range existing {
		total += b.DurationMinutes
	}
	if total > MaxDailyMinutes {
		return ErrQuotaExceeded
	}

	// A patient's same-day appointments form one contiguous block: every
	// booking after the first must share a boundary instant with one it
	// already holds.
	if len(existing) > 0 && !adjacentToAny(proposed, existing) {
		return ErrNonAdjacentSlot
	}

	return nil
}

func adjacentToAny(proposed schedule.Interval, existing []PatientBooking) bool {
	for _, b := range existing {
		if proposed.Start.Equal(b.End) || proposed.End.Equal(b.Start) {
			return true
		}
	}
	return false
}
