package outbox

import (
	"encoding/json"
	"time"

	"github.com/trami25/FisioNet/services/appointment-service/internal/model"
)

// Event types consumed by the chat/notification service.
const (
	EventAppointmentScheduled = "appointment.scheduled.v1"
	EventAppointmentUpdated   = "appointment.updated.v1"
	EventAppointmentCancelled = "appointment.cancelled.v1"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// AppointmentEvent builds the event for an appointment state change. Status
// changes to cancelled get their own event type so downstream consumers can
// notify without inspecting payloads.
func AppointmentEvent(eventType string, appt *model.Appointment) (Event, error) {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"patient_id":     appt.PatientID,
		"provider_id":    appt.ProviderID,
		"date":           model.FormatDate(appt.Date),
		"start_time":     model.FormatClock(appt.StartTime),
		"end_time":       model.FormatClock(appt.EndTime),
		"duration_min":   appt.DurationMinutes,
		"status":         string(appt.Status),
		"updated_at":     appt.UpdatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
