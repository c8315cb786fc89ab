// Package service is the public entry point of the scheduling engine. It
// combines the booking validator with the appointment repository and owns
// identifier assignment and timestamping.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/trami25/FisioNet/services/appointment-service/internal/booking"
	"github.com/trami25/FisioNet/services/appointment-service/internal/model"
	"github.com/trami25/FisioNet/services/appointment-service/internal/schedule"
	"github.com/trami25/FisioNet/services/appointment-service/internal/storage"
)

// ErrInvalidFormat rejects malformed dates and times before any booking
// logic runs.
var ErrInvalidFormat = errors.New("invalid date or time format")

type Service struct {
	repo      storage.Repository
	validator *booking.Validator
	locks     *keyedMutex
	workday   schedule.Workday
	logger    *slog.Logger

	now   func() time.Time
	newID func() string
}

func New(repo storage.Repository, workday schedule.Workday, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		validator: booking.NewValidator(repo),
		locks:     newKeyedMutex(),
		workday:   workday,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

type CreateRequest struct {
	PatientID       string
	ProviderID      string
	Date            string // YYYY-MM-DD
	StartTime       string // HH:MM
	DurationMinutes int
	Notes           string
}

// Create validates and books an appointment. Validation and insert run under
// per-key locks so two racing requests for the same provider or patient day
// cannot both pass against a stale snapshot; the losing request is rejected
// with the validator's error. Either the whole create commits or none of it
// does.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.Appointment, error) {
	day, err := model.ParseDate(req.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	clock, err := model.ParseClock(req.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	start := day.Add(clock)
	end := start.Add(time.Duration(req.DurationMinutes) * time.Minute)

	unlock := s.locks.Lock(
		"provider:"+req.ProviderID+":"+req.Date,
		"patient:"+req.PatientID+":"+req.Date,
	)
	defer unlock()

	if err := s.validator.Validate(ctx, booking.Request{
		PatientID:       req.PatientID,
		ProviderID:      req.ProviderID,
		Day:             day,
		Start:           start,
		DurationMinutes: req.DurationMinutes,
	}); err != nil {
		return nil, err
	}

	now := s.now()
	appt := &model.Appointment{
		ID:              s.newID(),
		PatientID:       req.PatientID,
		ProviderID:      req.ProviderID,
		Date:            day,
		StartTime:       start,
		EndTime:         end,
		DurationMinutes: req.DurationMinutes,
		Status:          model.StatusScheduled,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Insert(ctx, appt); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// The storage constraint caught a write we did not see; treat it
			// like any other provider conflict.
			return nil, booking.ErrProviderConflict
		}
		return nil, fmt.Errorf("persist appointment: %w", err)
	}

	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"provider_id", appt.ProviderID,
		"date", req.Date,
		"start", req.StartTime,
		"duration_min", appt.DurationMinutes,
	)
	return appt, nil
}

// UpdateStatus sets the appointment's status. Transitions are unrestricted:
// any status may follow any other.
func (s *Service) UpdateStatus(ctx context.Context, id string, status string) (*model.Appointment, error) {
	parsed, err := model.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	appt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Reinstating a cancelled appointment is a re-booking: the interval
	// stopped counting against the provider's calendar and the patient's
	// daily quota when it was cancelled, so it must pass the same checks a
	// fresh create would, under the same locks.
	if appt.Status == model.StatusCancelled && parsed != model.StatusCancelled {
		date := model.FormatDate(appt.Date)
		unlock := s.locks.Lock(
			"provider:"+appt.ProviderID+":"+date,
			"patient:"+appt.PatientID+":"+date,
		)
		defer unlock()

		if err := s.validator.Validate(ctx, booking.Request{
			PatientID:       appt.PatientID,
			ProviderID:      appt.ProviderID,
			Day:             appt.Date,
			Start:           appt.StartTime,
			DurationMinutes: appt.DurationMinutes,
		}); err != nil {
			return nil, err
		}
	}

	appt.Status = parsed
	appt.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, appt); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Reinstating a cancelled appointment collided with a booking
			// made in the meantime.
			return nil, booking.ErrProviderConflict
		}
		return nil, err
	}
	return appt, nil
}

// UpdateNotes applies a partial notes update; nil fields are left unchanged.
func (s *Service) UpdateNotes(ctx context.Context, id string, notes, patientNotes, providerNotes *string) (*model.Appointment, error) {
	appt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if notes != nil {
		appt.Notes = *notes
	}
	if patientNotes != nil {
		appt.PatientNotes = *patientNotes
	}
	if providerNotes != nil {
		appt.ProviderNotes = *providerNotes
	}
	appt.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

// AvailableSlots returns the day's slot grid for a provider with booked
// intervals marked unavailable. A failing conflict query aborts the request;
// availability is never reported from a partial view.
func (s *Service) AvailableSlots(ctx context.Context, providerID, date string) ([]schedule.TimeSlot, error) {
	day, err := model.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	busy, err := s.repo.ProviderBookings(ctx, providerID, day)
	if err != nil {
		return nil, fmt.Errorf("load provider bookings: %w", err)
	}

	slots := s.workday.Grid(day)
	schedule.MarkBusy(slots, busy)
	return slots, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Appointment, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

func (s *Service) ListByProvider(ctx context.Context, providerID string) ([]model.Appointment, error) {
	return s.repo.ListByProvider(ctx, providerID)
}
