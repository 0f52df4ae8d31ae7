package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// Repository contains all store interactions needed by the services.
// UpdateSlotStatus and UpdateAppointmentStatus are conditional updates:
// they succeed only when the row is currently in the `from` state, which
// is what makes Reserve linearizable across concurrent callers.
type Repository interface {
	CreateDoctor(ctx context.Context, d *Doctor) error
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)
	ListDoctorsBySpecialization(ctx context.Context, specialization string) ([]Doctor, error)
	DeleteDoctor(ctx context.Context, id uuid.UUID) error

	CreatePatient(ctx context.Context, p *Patient) error
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPatientByContact(ctx context.Context, contact string) (*Patient, error)
	ListPatients(ctx context.Context) ([]Patient, error)
	DeletePatient(ctx context.Context, id uuid.UUID) error

	CreateSlot(ctx context.Context, s *TimeSlot) error
	GetSlotByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error)
	ListSlots(ctx context.Context) ([]TimeSlot, error)
	ListSlotsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]TimeSlot, error)
	ListSlotsByDoctorDate(ctx context.Context, doctorID uuid.UUID, date string) ([]TimeSlot, error)
	// ListAvailableSlots returns Available slots strictly after the given
	// date/time cutoff, ordered by date then start time ascending.
	ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, afterDate, afterTime string) ([]TimeSlot, error)
	// UpdateSlotStatus transitions from -> to atomically. Returns
	// ErrSlotNotFound when no row matched, whether the slot is missing
	// or in a different state; callers re-read to tell the two apart.
	UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*TimeSlot, error)
	DeleteSlot(ctx context.Context, id uuid.UUID) error

	CreateAppointment(ctx context.Context, a *Appointment) error
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context) ([]Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)
	// ListActiveAppointmentsByDoctor returns appointments not in a
	// terminal state, used to guard doctor deletion.
	ListActiveAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error)
	ListActiveAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	// InsertEvent appends an audit entry. Failures are logged by the
	// caller, never surfaced to the patient.
	InsertEvent(ctx context.Context, ev EventLog) error
}
