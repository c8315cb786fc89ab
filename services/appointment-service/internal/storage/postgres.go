package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/trami25/FisioNet/libs/db"
	"github.com/trami25/FisioNet/services/appointment-service/internal/booking"
	"github.com/trami25/FisioNet/services/appointment-service/internal/model"
	"github.com/trami25/FisioNet/services/appointment-service/internal/outbox"
	"github.com/trami25/FisioNet/services/appointment-service/internal/schedule"
)

// PostgresRepository stores appointments in Postgres. Expected schema:
//
//	CREATE TABLE appointments (
//	    id               UUID PRIMARY KEY,
//	    patient_id       TEXT NOT NULL,
//	    provider_id      TEXT NOT NULL,
//	    appointment_date DATE NOT NULL,
//	    start_time       TIMESTAMPTZ NOT NULL,
//	    end_time         TIMESTAMPTZ NOT NULL,
//	    duration_minutes INT NOT NULL,
//	    status           TEXT NOT NULL,
//	    notes            TEXT NOT NULL DEFAULT '',
//	    patient_notes    TEXT NOT NULL DEFAULT '',
//	    provider_notes   TEXT NOT NULL DEFAULT '',
//	    created_at       TIMESTAMPTZ NOT NULL,
//	    updated_at       TIMESTAMPTZ NOT NULL
//	);
//	ALTER TABLE appointments ADD CONSTRAINT appointments_provider_no_overlap
//	    EXCLUDE USING gist (provider_id WITH =, tstzrange(start_time, end_time) WITH &&)
//	    WHERE (status <> 'cancelled');
//
// The exclusion constraint is the storage-level backstop for provider
// non-overlap; violations surface as ErrConflict. The outbox_events table is
// the one the outbox package documents.
type PostgresRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewPostgresRepository(pool *db.Pool, outboxRepo *outbox.Repository) *PostgresRepository {
	return &PostgresRepository{pool: pool, outbox: outboxRepo}
}

const appointmentColumns = `
	id, patient_id, provider_id, appointment_date, start_time, end_time,
	duration_minutes, status, notes, patient_notes, provider_notes,
	created_at, updated_at`

func (r *PostgresRepository) Insert(ctx context.Context, appt *model.Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, appt.ID, appt.PatientID, appt.ProviderID, appt.Date, appt.StartTime, appt.EndTime,
		appt.DurationMinutes, string(appt.Status), appt.Notes, appt.PatientNotes, appt.ProviderNotes,
		appt.CreatedAt, appt.UpdatedAt)
	if err != nil {
		if isExclusionViolation(err) {
			return ErrConflict
		}
		return err
	}

	evt, err := outbox.AppointmentEvent(outbox.EventAppointmentScheduled, appt)
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) Update(ctx context.Context, appt *model.Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			notes = $3,
			patient_notes = $4,
			provider_notes = $5,
			updated_at = $6
		WHERE id = $1
	`, appt.ID, string(appt.Status), appt.Notes, appt.PatientNotes, appt.ProviderNotes, appt.UpdatedAt)
	if err != nil {
		if isExclusionViolation(err) {
			return ErrConflict
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	eventType := outbox.EventAppointmentUpdated
	if appt.Status == model.StatusCancelled {
		eventType = outbox.EventAppointmentCancelled
	}
	evt, err := outbox.AppointmentEvent(eventType, appt)
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return appt, nil
}

func (r *PostgresRepository) ProviderBookings(ctx context.Context, providerID string, day time.Time) ([]schedule.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM appointments
		WHERE provider_id = $1
			AND appointment_date = $2
			AND status <> 'cancelled'
		ORDER BY start_time
	`, providerID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []schedule.Interval
	for rows.Next() {
		var iv schedule.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}

func (r *PostgresRepository) PatientBookings(ctx context.Context, patientID string, day time.Time) ([]booking.PatientBooking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, end_time, duration_minutes
		FROM appointments
		WHERE patient_id = $1
			AND appointment_date = $2
			AND status <> 'cancelled'
		ORDER BY start_time
	`, patientID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []booking.PatientBooking
	for rows.Next() {
		var b booking.PatientBooking
		if err := rows.Scan(&b.Start, &b.End, &b.DurationMinutes); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (r *PostgresRepository) ListByPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appointment_date DESC, start_time ASC
	`, patientID)
}

func (r *PostgresRepository) ListByProvider(ctx context.Context, providerID string) ([]model.Appointment, error) {
	return r.list(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		ORDER BY appointment_date DESC, start_time ASC
	`, providerID)
}

func (r *PostgresRepository) list(ctx context.Context, query, arg string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, *appt)
	}
	return appts, rows.Err()
}

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	var appt model.Appointment
	var status string
	err := row.Scan(
		&appt.ID,
		&appt.PatientID,
		&appt.ProviderID,
		&appt.Date,
		&appt.StartTime,
		&appt.EndTime,
		&appt.DurationMinutes,
		&status,
		&appt.Notes,
		&appt.PatientNotes,
		&appt.ProviderNotes,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	appt.Status = model.Status(status)
	return &appt, nil
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "23P01" || pgErr.Code == "23505")
}
