package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/trami25/FisioNet/services/appointment-service/internal/booking"
	"github.com/trami25/FisioNet/services/appointment-service/internal/model"
	"github.com/trami25/FisioNet/services/appointment-service/internal/schedule"
)

// MemoryRepository keeps appointments in a map. Used by tests and local
// development without a database. It mirrors the Postgres exclusion
// constraint: writes that would give a provider two overlapping non-cancelled
// appointments fail with ErrConflict.
type MemoryRepository struct {
	mu    sync.RWMutex
	appts map[string]model.Appointment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{appts: make(map[string]model.Appointment)}
}

func (r *MemoryRepository) Insert(_ context.Context, appt *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if appt.Status != model.StatusCancelled && r.overlapsProvider(*appt) {
		return ErrConflict
	}
	r.appts[appt.ID] = *appt
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, appt *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.appts[appt.ID]; !ok {
		return ErrNotFound
	}
	// Reinstating a cancelled appointment must not reintroduce an overlap.
	if appt.Status != model.StatusCancelled && r.overlapsProvider(*appt) {
		return ErrConflict
	}
	r.appts[appt.ID] = *appt
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*model.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	appt, ok := r.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &appt, nil
}

func (r *MemoryRepository) ProviderBookings(_ context.Context, providerID string, day time.Time) ([]schedule.Interval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []schedule.Interval
	for _, a := range r.appts {
		if a.ProviderID == providerID && sameDay(a.Date, day) && a.Status != model.StatusCancelled {
			out = append(out, schedule.Interval{Start: a.StartTime, End: a.EndTime})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r *MemoryRepository) PatientBookings(_ context.Context, patientID string, day time.Time) ([]booking.PatientBooking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []booking.PatientBooking
	for _, a := range r.appts {
		if a.PatientID == patientID && sameDay(a.Date, day) && a.Status != model.StatusCancelled {
			out = append(out, booking.PatientBooking{
				Start:           a.StartTime,
				End:             a.EndTime,
				DurationMinutes: a.DurationMinutes,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r *MemoryRepository) ListByPatient(_ context.Context, patientID string) ([]model.Appointment, error) {
	return r.listWhere(func(a model.Appointment) bool { return a.PatientID == patientID }), nil
}

func (r *MemoryRepository) ListByProvider(_ context.Context, providerID string) ([]model.Appointment, error) {
	return r.listWhere(func(a model.Appointment) bool { return a.ProviderID == providerID }), nil
}

func (r *MemoryRepository) listWhere(match func(model.Appointment) bool) []model.Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Appointment
	for _, a := range r.appts {
		if match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// overlapsProvider reports whether appt overlaps another non-cancelled
// appointment of the same provider. Called with r.mu held.
func (r *MemoryRepository) overlapsProvider(appt model.Appointment) bool {
	iv := schedule.Interval{Start: appt.StartTime, End: appt.EndTime}
	for _, other := range r.appts {
		if other.ID == appt.ID || other.ProviderID != appt.ProviderID || other.Status == model.StatusCancelled {
			continue
		}
		if iv.Overlaps(schedule.Interval{Start: other.StartTime, End: other.EndTime}) {
			return true
		}
	}
	return false
}
