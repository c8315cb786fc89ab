// Package storage persists appointments. The engine talks to the Repository
// interface; adapters exist for Postgres (production) and memory (tests and
// local development).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/trami25/FisioNet/services/appointment-service/internal/booking"
	"github.com/trami25/FisioNet/services/appointment-service/internal/model"
)

var (
	// ErrNotFound means no appointment exists for the given id.
	ErrNotFound = errors.New("appointment not found")
	// ErrConflict means a write collided with the provider non-overlap
	// constraint (another non-cancelled appointment holds the interval).
	ErrConflict = errors.New("appointment interval already taken")
)

// Repository is the storage contract the scheduling engine requires.
// List results are ordered by date descending, then start time ascending.
type Repository interface {
	booking.Source

	Insert(ctx context.Context, appt *model.Appointment) error
	Update(ctx context.Context, appt *model.Appointment) error
	FindByID(ctx context.Context, id string) (*model.Appointment, error)
	ListByPatient(ctx context.Context, patientID string) ([]model.Appointment, error)
	ListByProvider(ctx context.Context, providerID string) ([]model.Appointment, error)
}

func sameDay(a, b time.Time) bool {
	return a.UTC().Truncate(24 * time.Hour).Equal(b.UTC().Truncate(24 * time.Hour))
}
