package api

import (
	"github.com/google/uuid"

	"github.com/healthbridge/appointment-engine/internal/conversation"
	"github.com/healthbridge/appointment-engine/internal/scheduling"
)

type CreateDoctorRequest struct {
	Name           string  `json:"name"`
	Specialization string  `json:"specialization"`
	Location       string  `json:"location"`
	Contact        string  `json:"contact"`
	Experience     int     `json:"experience"`
	Rating         float64 `json:"rating"`
	Availability   string  `json:"availability"`
	Description    string  `json:"description"`
}

type CreatePatientRequest struct {
	Name        string `json:"name"`
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender"`
	Contact     string `json:"contact"`
	Status      string `json:"status"`
}

type CreateSlotRequest struct {
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type BookAppointmentRequest struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	SlotID    string `json:"slot_id"`
	Condition string `json:"condition"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type SelectDoctorRequest struct {
	DoctorID string `json:"doctor_id"`
}

type SelectSlotRequest struct {
	SlotID string `json:"slot_id"`
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	SlotID    uuid.UUID `json:"slot_id"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Condition string    `json:"condition"`
	Type      string    `json:"type"`
	Notes     string    `json:"notes"`
	Status    string    `json:"status"`
}

func toAppointmentResponse(a scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		SlotID:    a.SlotID,
		Date:      a.Date,
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		Condition: a.Condition,
		Type:      a.Type,
		Notes:     a.Condition, // notes mirror the condition for display
		Status:    string(a.Status),
	}
}

type SlotResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Status    string    `json:"status"`
}

func toSlotResponse(s scheduling.TimeSlot) SlotResponse {
	return SlotResponse{
		ID:        s.ID,
		DoctorID:  s.DoctorID,
		Date:      s.Date,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Status:    string(s.Status),
	}
}

func toSlotResponses(slots []scheduling.TimeSlot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResponse(s))
	}
	return out
}

type DoctorRefResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization"`
	Location       string    `json:"location"`
	Experience     int       `json:"experience"`
	Rating         float64   `json:"rating"`
}

type ChatResponse struct {
	Message         string               `json:"message"`
	Phase           string               `json:"phase"`
	Recommendations []DoctorRefResponse  `json:"recommendations,omitempty"`
	Slots           []SlotResponse       `json:"slots,omitempty"`
	Appointment     *AppointmentResponse `json:"appointment,omitempty"`
}

func toChatResponse(r *conversation.Reply) ChatResponse {
	resp := ChatResponse{
		Message: r.Message,
		Phase:   string(r.Phase),
		Slots:   toSlotResponses(r.Slots),
	}
	for _, rec := range r.Recommendations {
		resp.Recommendations = append(resp.Recommendations, DoctorRefResponse{
			ID:             rec.ID,
			Name:           rec.Name,
			Specialization: rec.Specialization,
			Location:       rec.Location,
			Experience:     rec.Experience,
			Rating:         rec.Rating,
		})
	}
	if r.Appointment != nil {
		ar := toAppointmentResponse(*r.Appointment)
		resp.Appointment = &ar
	}
	return resp
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
