package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/trami25/FisioNet/services/appointment-service/internal/booking"
	"github.com/trami25/FisioNet/services/appointment-service/internal/model"
	"github.com/trami25/FisioNet/services/appointment-service/internal/schedule"
	"github.com/trami25/FisioNet/services/appointment-service/internal/storage"
)

func newTestService() *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(storage.NewMemoryRepository(), schedule.DefaultWorkday, logger)
}

func create(t *testing.T, s *Service, patient, provider, date, start string, mins int) *model.Appointment {
	t.Helper()
	appt, err := s.Create(context.Background(), CreateRequest{
		PatientID:       patient,
		ProviderID:      provider,
		Date:            date,
		StartTime:       start,
		DurationMinutes: mins,
	})
	if err != nil {
		t.Fatalf("Create(%s %s %dmin) failed: %v", date, start, mins, err)
	}
	return appt
}

func TestCreate_HappyPath(t *testing.T) {
	s := newTestService()
	appt := create(t, s, "pat-1", "phys-1", "2026-03-10", "10:00", 40)

	if appt.ID == "" {
		t.Fatal("expected assigned id")
	}
	if appt.Status != model.StatusScheduled {
		t.Fatalf("expected status scheduled, got %s", appt.Status)
	}
	if got := model.FormatClock(appt.StartTime); got != "10:00" {
		t.Fatalf("start time = %s, want 10:00", got)
	}
	if got := model.FormatClock(appt.EndTime); got != "10:40" {
		t.Fatalf("end time = %s, want 10:40", got)
	}
	if appt.CreatedAt.IsZero() || !appt.CreatedAt.Equal(appt.UpdatedAt) {
		t.Fatal("expected createdAt == updatedAt on creation")
	}
}

func TestCreate_RejectsMalformedInput(t *testing.T) {
	s := newTestService()
	cases := []struct{ date, start string }{
		{"2026/03/10", "10:00"},
		{"10-03-2026", "10:00"},
		{"2026-03-10", "10am"},
		{"2026-03-10", "25:00"},
		{"", "10:00"},
		{"2026-03-10", ""},
	}
	for _, tc := range cases {
		_, err := s.Create(context.Background(), CreateRequest{
			PatientID:       "pat-1",
			ProviderID:      "phys-1",
			Date:            tc.date,
			StartTime:       tc.start,
			DurationMinutes: 20,
		})
		if !errors.Is(err, ErrInvalidFormat) {
			t.Fatalf("date=%q start=%q: expected ErrInvalidFormat, got %v", tc.date, tc.start, err)
		}
	}
}

func TestCreate_ProviderConflict(t *testing.T) {
	s := newTestService()
	create(t, s, "pat-1", "phys-1", "2026-03-10", "10:00", 20)

	_, err := s.Create(context.Background(), CreateRequest{
		PatientID: "pat-2", ProviderID: "phys-1",
		Date: "2026-03-10", StartTime: "10:00", DurationMinutes: 20,
	})
	if !errors.Is(err, booking.ErrProviderConflict) {
		t.Fatalf("expected ErrProviderConflict, got %v", err)
	}

	// A slot ending exactly at the existing start is free.
	create(t, s, "pat-2", "phys-1", "2026-03-10", "09:40", 20)
}

func TestCreate_QuotaAndAdjacency(t *testing.T) {
	s := newTestService()
	create(t, s, "pat-1", "phys-1", "2026-03-10", "09:00", 20)
	// Adjacent extension to exactly 60 minutes is fine.
	create(t, s, "pat-1", "phys-1", "2026-03-10", "09:20", 40)

	// Beyond the daily quota.
	_, err := s.Create(context.Background(), CreateRequest{
		PatientID: "pat-1", ProviderID: "phys-1",
		Date: "2026-03-10", StartTime: "10:20", DurationMinutes: 20,
	})
	if !errors.Is(err, booking.ErrQuotaExceeded) && !errors.Is(err, booking.ErrNonAdjacentSlot) {
		t.Fatalf("expected quota or adjacency rejection, got %v", err)
	}

	// Non-adjacent second booking within quota.
	create(t, s, "pat-2", "phys-2", "2026-03-10", "09:00", 20)
	_, err = s.Create(context.Background(), CreateRequest{
		PatientID: "pat-2", ProviderID: "phys-2",
		Date: "2026-03-10", StartTime: "11:00", DurationMinutes: 20,
	})
	if !errors.Is(err, booking.ErrNonAdjacentSlot) {
		t.Fatalf("expected ErrNonAdjacentSlot, got %v", err)
	}
}

func TestCreate_CancellationFreesInterval(t *testing.T) {
	s := newTestService()
	appt := create(t, s, "pat-1", "phys-1", "2026-03-10", "10:00", 20)

	if _, err := s.UpdateStatus(context.Background(), appt.ID, "cancelled"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	// The interval is bookable again.
	create(t, s, "pat-2", "phys-1", "2026-03-10", "10:00", 20)
}

func TestUpdateStatus_ReinstateCollides(t *testing.T) {
	s := newTestService()
	first := create(t, s, "pat-1", "phys-1", "2026-03-10", "10:00", 20)
	if _, err := s.UpdateStatus(context.Background(), first.ID, "cancelled"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	create(t, s, "pat-2", "phys-1", "2026-03-10", "10:00", 20)

	_, err := s.UpdateStatus(context.Background(), first.ID, "scheduled")
	if !errors.Is(err, booking.ErrProviderConflict) {
		t.Fatalf("expected ErrProviderConflict when reinstating over a new booking, got %v", err)
	}
}

func TestUpdateStatus_ReinstateExceedsQuota(t *testing.T) {
	s := newTestService()
	first := create(t, s, "pat-1", "phys-1", "2026-03-10", "10:00", 40)
	if _, err := s.UpdateStatus(context.Background(), first.ID, "cancelled"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	// The freed 40 minutes let the patient book a full hour elsewhere.
	create(t, s, "pat-1", "phys-2", "2026-03-10", "11:00", 60)

	// Reinstating the first appointment would put the day at 100 minutes.
	_, err := s.UpdateStatus(context.Background(), first.ID, "scheduled")
	if !errors.Is(err, booking.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded on reinstate, got %v", err)
	}

	appts, err := s.ListByPatient(context.Background(), "pat-1")
	if err != nil {
		t.Fatalf("ListByPatient failed: %v", err)
	}
	total := 0
	for _, a := range appts {
		if a.Status != model.StatusCancelled {
			total += a.DurationMinutes
		}
	}
	if total > booking.MaxDailyMinutes {
		t.Fatalf("daily quota violated after reinstate attempt: %d minutes", total)
	}
}

func TestUpdateStatus_ReinstateMustStayAdjacent(t *testing.T) {
	s := newTestService()
	first := create(t, s, "pat-1", "phys-1", "2026-03-10", "09:00", 20)
	if _, err := s.UpdateStatus(context.Background(), first.ID, "cancelled"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	create(t, s, "pat-1", "phys-1", "2026-03-10", "11:00", 20)

	// 09:00-09:20 no longer touches the patient's remaining block.
	if _, err := s.UpdateStatus(context.Background(), first.ID, "scheduled"); !errors.Is(err, booking.ErrNonAdjacentSlot) {
		t.Fatalf("expected ErrNonAdjacentSlot on reinstate, got %v", err)
	}
}

func TestUpdateStatus_ReinstateSucceedsWhenStillValid(t *testing.T) {
	s := newTestService()
	first := create(t, s, "pat-1", "phys-1", "2026-03-10", "09:00", 20)
	create(t, s, "pat-1", "phys-1", "2026-03-10", "09:20", 20)
	if _, err := s.UpdateStatus(context.Background(), first.ID, "cancelled"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	updated, err := s.UpdateStatus(context.Background(), first.ID, "scheduled")
	if err != nil {
		t.Fatalf("reinstate of a still-valid interval failed: %v", err)
	}
	if updated.Status != model.StatusScheduled {
		t.Fatalf("expected scheduled, got %s", updated.Status)
	}
}

func TestUpdateStatus_UnrestrictedTransitions(t *testing.T) {
	s := newTestService()
	appt := create(t, s, "pat-1", "phys-1", "2026-03-10", "10:00", 20)

	for _, status := range []string{"confirmed", "completed", "no_show", "scheduled", "cancelled"} {
		updated, err := s.UpdateStatus(context.Background(), appt.ID, status)
		if err != nil {
			t.Fatalf("transition to %s failed: %v", status, err)
		}
		if string(updated.Status) != status {
			t.Fatalf("status = %s, want %s", updated.Status, status)
		}
	}
}

func TestUpdateStatus_Unknown(t *testing.T) {
	s := newTestService()
	appt := create(t, s, "pat-1", "phys-1", "2026-03-10", "10:00", 20)
	if _, err := s.UpdateStatus(context.Background(), appt.ID, "archived"); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat for unknown status, got %v", err)
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	s := newTestService()
	if _, err := s.UpdateStatus(context.Background(), "missing", "confirmed"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateNotes_Partial(t *testing.T) {
	s := newTestService()
	appt := create(t, s, "pat-1", "phys-1", "2026-03-10", "10:00", 20)

	notes := "bring previous MRI"
	updated, err := s.UpdateNotes(context.Background(), appt.ID, &notes, nil, nil)
	if err != nil {
		t.Fatalf("UpdateNotes failed: %v", err)
	}
	if updated.Notes != notes || updated.PatientNotes != "" || updated.ProviderNotes != "" {
		t.Fatalf("unexpected notes after partial update: %+v", updated)
	}

	patientNotes := "knee feels better"
	updated, err = s.UpdateNotes(context.Background(), appt.ID, nil, &patientNotes, nil)
	if err != nil {
		t.Fatalf("UpdateNotes failed: %v", err)
	}
	if updated.Notes != notes || updated.PatientNotes != patientNotes {
		t.Fatalf("partial update clobbered other fields: %+v", updated)
	}
	if !updated.UpdatedAt.After(appt.CreatedAt) && !updated.UpdatedAt.Equal(appt.CreatedAt) {
		t.Fatal("expected updatedAt refresh")
	}
}

func TestAvailableSlots(t *testing.T) {
	s := newTestService()
	create(t, s, "pat-1", "phys-1", "2026-03-10", "10:00", 40)

	slots, err := s.AvailableSlots(context.Background(), "phys-1", "2026-03-10")
	if err != nil {
		t.Fatalf("AvailableSlots failed: %v", err)
	}
	if len(slots) != 30 {
		t.Fatalf("expected 30 slots, got %d", len(slots))
	}
	for _, slot := range slots {
		clock := model.FormatClock(slot.Start)
		booked := clock == "10:00" || clock == "10:20"
		if booked && slot.Available {
			t.Fatalf("slot %s should be unavailable", clock)
		}
		if !booked && !slot.Available {
			t.Fatalf("slot %s should be available", clock)
		}
	}

	if _, err := s.AvailableSlots(context.Background(), "phys-1", "bad-date"); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestListOrdering(t *testing.T) {
	s := newTestService()
	create(t, s, "pat-1", "phys-1", "2026-03-10", "10:00", 20)
	create(t, s, "pat-1", "phys-1", "2026-03-11", "09:00", 20)
	create(t, s, "pat-1", "phys-2", "2026-03-11", "11:00", 20)

	appts, err := s.ListByPatient(context.Background(), "pat-1")
	if err != nil {
		t.Fatalf("ListByPatient failed: %v", err)
	}
	if len(appts) != 3 {
		t.Fatalf("expected 3 appointments, got %d", len(appts))
	}
	// Date descending, start time ascending within a day.
	if model.FormatDate(appts[0].Date) != "2026-03-11" || model.FormatClock(appts[0].StartTime) != "09:00" {
		t.Fatalf("unexpected first entry: %s %s", model.FormatDate(appts[0].Date), model.FormatClock(appts[0].StartTime))
	}
	if model.FormatClock(appts[1].StartTime) != "11:00" {
		t.Fatalf("unexpected second entry: %s", model.FormatClock(appts[1].StartTime))
	}
	if model.FormatDate(appts[2].Date) != "2026-03-10" {
		t.Fatalf("unexpected third entry: %s", model.FormatDate(appts[2].Date))
	}
}

func TestCreate_ConcurrentSameSlot(t *testing.T) {
	s := newTestService()

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Create(context.Background(), CreateRequest{
				PatientID:       "pat-" + string(rune('a'+i)),
				ProviderID:      "phys-1",
				Date:            "2026-03-10",
				StartTime:       "10:00",
				DurationMinutes: 20,
			})
		}(i)
	}
	wg.Wait()

	accepted := 0
	for i, err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, booking.ErrProviderConflict):
		default:
			t.Fatalf("request %d: unexpected error %v", i, err)
		}
	}
	if accepted != 1 {
		t.Fatalf("expected exactly 1 accepted booking, got %d", accepted)
	}
}

func TestCreate_ConcurrentQuotaInvariant(t *testing.T) {
	s := newTestService()

	// One patient races to book five 20-minute slots back to back; at most
	// 60 minutes may ever be accepted no matter how the race resolves.
	starts := []string{"09:00", "09:20", "09:40", "10:00", "10:20"}
	var wg sync.WaitGroup
	errs := make([]error, len(starts))
	for i, start := range starts {
		wg.Add(1)
		go func(i int, start string) {
			defer wg.Done()
			_, errs[i] = s.Create(context.Background(), CreateRequest{
				PatientID:       "pat-1",
				ProviderID:      "phys-1",
				Date:            "2026-03-10",
				StartTime:       start,
				DurationMinutes: 20,
			})
		}(i, start)
	}
	wg.Wait()

	appts, err := s.ListByPatient(context.Background(), "pat-1")
	if err != nil {
		t.Fatalf("ListByPatient failed: %v", err)
	}
	total := 0
	for _, a := range appts {
		if a.Status != model.StatusCancelled {
			total += a.DurationMinutes
		}
	}
	if total > booking.MaxDailyMinutes {
		t.Fatalf("daily quota violated: %d minutes accepted", total)
	}
	for i := range appts {
		for j := i + 1; j < len(appts); j++ {
			a, b := appts[i], appts[j]
			if a.StartTime.Before(b.EndTime) && b.StartTime.Before(a.EndTime) {
				t.Fatalf("accepted overlapping appointments %s and %s",
					model.FormatClock(a.StartTime), model.FormatClock(b.StartTime))
			}
		}
	}
}

func TestCreate_TimestampsAreUTC(t *testing.T) {
	s := newTestService()
	fixed := time.Date(2026, 3, 9, 15, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	appt := create(t, s, "pat-1", "phys-1", "2026-03-10", "10:00", 20)
	if !appt.CreatedAt.Equal(fixed) || !appt.UpdatedAt.Equal(fixed) {
		t.Fatalf("expected stamps %s, got created=%s updated=%s", fixed, appt.CreatedAt, appt.UpdatedAt)
	}
}
