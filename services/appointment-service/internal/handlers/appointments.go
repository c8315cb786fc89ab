package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/trami25/FisioNet/libs/auth"
	"github.com/trami25/FisioNet/services/appointment-service/internal/booking"
	"github.com/trami25/FisioNet/services/appointment-service/internal/model"
	"github.com/trami25/FisioNet/services/appointment-service/internal/service"
	"github.com/trami25/FisioNet/services/appointment-service/internal/storage"
)

type AppointmentHandler struct {
	svc    *service.Service
	logger *slog.Logger
}

func NewAppointmentHandler(svc *service.Service, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, logger: logger}
}

type createAppointmentRequest struct {
	PatientID       string `json:"patient_id"`
	ProviderID      string `json:"provider_id"`
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Notes           string `json:"notes"`
}

type updateStatusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

type updateNotesRequest struct {
	AppointmentID string  `json:"appointment_id"`
	Notes         *string `json:"notes"`
	PatientNotes  *string `json:"patient_notes"`
	ProviderNotes *string `json:"provider_notes"`
}

type appointmentResponse struct {
	ID              string `json:"id"`
	PatientID       string `json:"patient_id"`
	ProviderID      string `json:"provider_id"`
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	Notes           string `json:"notes,omitempty"`
	PatientNotes    string `json:"patient_notes,omitempty"`
	ProviderNotes   string `json:"provider_notes,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available bool   `json:"available"`
}

type slotsResponse struct {
	ProviderID string     `json:"provider_id"`
	Date       string     `json:"date"`
	Slots      []slotItem `json:"slots"`
}

// Slots returns the provider's slot grid for a day with availability marked.
// Public: patients browse availability before signing in.
func (h *AppointmentHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if providerID == "" || date == "" {
		http.Error(w, "provider_id and date are required", http.StatusBadRequest)
		return
	}

	slots, err := h.svc.AvailableSlots(r.Context(), providerID, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := slotsResponse{ProviderID: providerID, Date: date, Slots: make([]slotItem, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, slotItem{
			StartTime: model.FormatClock(s.Start),
			EndTime:   model.FormatClock(s.End),
			Available: s.Available,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	// Patients book for themselves; staff may book on a patient's behalf.
	patientID := strings.TrimSpace(req.PatientID)
	if actor.Role == auth.RolePatient {
		patientID = actor.ID
	}
	providerID := strings.TrimSpace(req.ProviderID)
	if patientID == "" || providerID == "" {
		http.Error(w, "patient_id and provider_id are required", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Create(r.Context(), service.CreateRequest{
		PatientID:       patientID,
		ProviderID:      providerID,
		Date:            strings.TrimSpace(req.Date),
		StartTime:       strings.TrimSpace(req.StartTime),
		DurationMinutes: req.DurationMinutes,
		Notes:           strings.TrimSpace(req.Notes),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(appt))
}

// List returns the actor's own appointments: patients see their bookings,
// physiotherapists their calendar. Admins pass patient_id or provider_id.
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var (
		appts []model.Appointment
		err   error
	)
	switch actor.Role {
	case auth.RolePatient:
		appts, err = h.svc.ListByPatient(r.Context(), actor.ID)
	case auth.RolePhysiotherapist:
		appts, err = h.svc.ListByProvider(r.Context(), actor.ID)
	case auth.RoleAdmin:
		if patientID := strings.TrimSpace(r.URL.Query().Get("patient_id")); patientID != "" {
			appts, err = h.svc.ListByPatient(r.Context(), patientID)
		} else if providerID := strings.TrimSpace(r.URL.Query().Get("provider_id")); providerID != "" {
			appts, err = h.svc.ListByProvider(r.Context(), providerID)
		} else {
			http.Error(w, "patient_id or provider_id required", http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]appointmentResponse, 0, len(appts))
	for i := range appts {
		items = append(items, toResponse(&appts[i]))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *AppointmentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Status = strings.TrimSpace(req.Status)
	if req.AppointmentID == "" || req.Status == "" {
		http.Error(w, "appointment_id and status are required", http.StatusBadRequest)
		return
	}

	if !h.authorizeParticipant(w, r, req.AppointmentID) {
		return
	}

	appt, err := h.svc.UpdateStatus(r.Context(), req.AppointmentID, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

func (h *AppointmentHandler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req updateNotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	if !h.authorizeParticipant(w, r, req.AppointmentID) {
		return
	}

	appt, err := h.svc.UpdateNotes(r.Context(), req.AppointmentID, req.Notes, req.PatientNotes, req.ProviderNotes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

// authorizeParticipant allows the appointment's patient, its provider, and
// admins. Writes the response itself on rejection.
func (h *AppointmentHandler) authorizeParticipant(w http.ResponseWriter, r *http.Request, appointmentID string) bool {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if actor.Role == auth.RoleAdmin {
		return true
	}

	appt, err := h.svc.Get(r.Context(), appointmentID)
	if err != nil {
		h.writeError(w, r, err)
		return false
	}
	if actor.ID != appt.PatientID && actor.ID != appt.ProviderID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func (h *AppointmentHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidFormat), errors.Is(err, booking.ErrInvalidDuration):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, booking.ErrProviderConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, booking.ErrQuotaExceeded), errors.Is(err, booking.ErrNonAdjacentSlot):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toResponse(appt *model.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:              appt.ID,
		PatientID:       appt.PatientID,
		ProviderID:      appt.ProviderID,
		Date:            model.FormatDate(appt.Date),
		StartTime:       model.FormatClock(appt.StartTime),
		EndTime:         model.FormatClock(appt.EndTime),
		DurationMinutes: appt.DurationMinutes,
		Status:          string(appt.Status),
		Notes:           appt.Notes,
		PatientNotes:    appt.PatientNotes,
		ProviderNotes:   appt.ProviderNotes,
		CreatedAt:       appt.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       appt.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
