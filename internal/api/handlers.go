package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/healthbridge/appointment-engine/internal/scheduling"
)

// Handlers holds the engine services the HTTP surface exposes.
type Handlers struct {
	directory *scheduling.Directory
	ledger    *scheduling.Ledger
	lifecycle *scheduling.Lifecycle
	projector *scheduling.Projector
}

func NewHandlers(directory *scheduling.Directory, ledger *scheduling.Ledger, lifecycle *scheduling.Lifecycle, projector *scheduling.Projector) *Handlers {
	return &Handlers{
		directory: directory,
		ledger:    ledger,
		lifecycle: lifecycle,
		projector: projector,
	}
}

func mustIdentity(w http.ResponseWriter, r *http.Request) (scheduling.Identity, bool) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_identity", "request has no caller identity")
		return scheduling.Identity{}, false
	}
	return id, true
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// Doctors

func (h *Handlers) CreateDoctor(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	var req CreateDoctorRequest
	if !decodeBody(w, r, &req) {
		return
	}

	doc, err := h.directory.CreateDoctor(r.Context(), actor, scheduling.DoctorInput{
		Name:           req.Name,
		Specialization: req.Specialization,
		Location:       req.Location,
		Contact:        req.Contact,
		Experience:     req.Experience,
		Rating:         req.Rating,
		Availability:   scheduling.DoctorAvailability(req.Availability),
		Description:    req.Description,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *Handlers) ListDoctors(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	doctors, err := h.projector.Doctors(r.Context(), actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doctors)
}

func (h *Handlers) DeleteDoctor(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.directory.DeleteDoctor(r.Context(), actor, id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Patients

func (h *Handlers) CreatePatient(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	var req CreatePatientRequest
	if !decodeBody(w, r, &req) {
		return
	}

	// A patient may only register the profile matching their own login
	// contact; administrators may register anyone.
	if actor.Role == scheduling.RolePatient && req.Contact != actor.Subject {
		writeDomainError(w, scheduling.ErrForbidden)
		return
	}
	if actor.Role != scheduling.RolePatient && actor.Role != scheduling.RoleAdmin {
		writeDomainError(w, scheduling.ErrForbidden)
		return
	}

	p, err := h.directory.CreatePatient(r.Context(), scheduling.PatientInput{
		Name:        req.Name,
		DateOfBirth: req.DateOfBirth,
		Gender:      req.Gender,
		Contact:     req.Contact,
		Status:      scheduling.PatientStatus(req.Status),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handlers) ListPatients(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	patients, err := h.projector.Patients(r.Context(), actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patients)
}

func (h *Handlers) DeletePatient(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.directory.DeletePatient(r.Context(), actor, id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Slots

func (h *Handlers) CreateSlot(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	if actor.Role != scheduling.RoleAdmin {
		writeDomainError(w, scheduling.ErrForbidden)
		return
	}
	var req CreateSlotRequest
	if !decodeBody(w, r, &req) {
		return
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
		return
	}

	slot, err := h.ledger.CreateSlot(r.Context(), doctorID, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSlotResponse(*slot))
}

func (h *Handlers) ListSlots(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	slots, err := h.projector.Slots(r.Context(), actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotResponses(slots))
}

func (h *Handlers) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	if actor.Role != scheduling.RoleAdmin {
		writeDomainError(w, scheduling.ErrForbidden)
		return
	}
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.ledger.DeleteSlot(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) BlockSlot(w http.ResponseWriter, r *http.Request) {
	h.slotStateChange(w, r, h.ledger.Block)
}

func (h *Handlers) UnblockSlot(w http.ResponseWriter, r *http.Request) {
	h.slotStateChange(w, r, h.ledger.Unblock)
}

func (h *Handlers) slotStateChange(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID) error) {
	actor, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	if actor.Role != scheduling.RoleAdmin {
		writeDomainError(w, scheduling.ErrForbidden)
		return
	}
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	if err := op(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DoctorAvailability lists the doctor's Available, strictly-future
// slots for booking screens.
func (h *Handlers) DoctorAvailability(w http.ResponseWriter, r *http.Request) {
	if _, ok := mustIdentity(w, r); !ok {
		return
	}
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	slots, err := h.ledger.ListAvailable(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotResponses(slots))
}

// Appointments

func (h *Handlers) BookAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	var req BookAppointmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
		return
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
		return
	}
	slotID, err := uuid.Parse(req.SlotID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
		return
	}

	// A patient may only book for themselves; the target patient record
	// is resolved from the caller's contact, not the request body.
	if actor.Role == scheduling.RolePatient {
		self, err := h.projector.SelfPatient(r.Context(), actor)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if self.ID != patientID {
			writeDomainError(w, scheduling.ErrForbidden)
			return
		}
	} else if actor.Role != scheduling.RoleAdmin {
		writeDomainError(w, scheduling.ErrForbidden)
		return
	}

	appt, err := h.lifecycle.Book(r.Context(), patientID, doctorID, slotID, req.Condition)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
}

func (h *Handlers) ListAppointments(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	appts, err := h.projector.Appointments(r.Context(), actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]AppointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) GetAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	appt, err := h.projector.Appointment(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
}

func (h *Handlers) UpdateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	appt, err := h.lifecycle.SetStatus(r.Context(), id, scheduling.AppointmentStatus(req.Status), actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
}

func (h *Handlers) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.lifecycle.Delete(r.Context(), id, actor); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
