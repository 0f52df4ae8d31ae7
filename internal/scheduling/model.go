package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "Pending"
	StatusConfirmed AppointmentStatus = "Confirmed"
	StatusCancelled AppointmentStatus = "Cancelled"
	StatusCompleted AppointmentStatus = "Completed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s AppointmentStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

type SlotStatus string

const (
	SlotAvailable SlotStatus = "Available"
	SlotBooked    SlotStatus = "Booked"
	SlotBlocked   SlotStatus = "Blocked"
)

// EventLog is one append-only audit entry for an appointment. Entries
// outlive the appointment they describe, so AppointmentID carries no
// foreign key and stays set after a hard delete.
type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// DoctorAvailability is the coarse, advisory presence state shown on a
// doctor's profile. It never drives booking decisions; only TimeSlot
// status does.
type DoctorAvailability string

const (
	DoctorAvailable DoctorAvailability = "Available"
	DoctorBusy      DoctorAvailability = "Busy"
	DoctorOffline   DoctorAvailability = "Offline"
)

type PatientStatus string

const (
	PatientActive   PatientStatus = "Active"
	PatientInactive PatientStatus = "Inactive"
	PatientCritical PatientStatus = "Critical"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RolePatient Role = "patient"
)

// Identity is the caller claim supplied by the auth collaborator.
// Subject is the unique login contact; the engine trusts both fields
// and never re-derives them.
type Identity struct {
	Subject string
	Role    Role
}

type Doctor struct {
	ID             uuid.UUID
	Name           string
	Specialization string
	Location       string
	Contact        string
	Experience     int
	Rating         float64
	Availability   DoctorAvailability
	Description    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Patient struct {
	ID          uuid.UUID
	Name        string
	DateOfBirth string
	Gender      string
	Contact     string // unique login handle, email or phone
	Status      PatientStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TimeSlot is a bookable (doctor, date, time-range) unit. Status is the
// single source of truth for bookability: Available -> Booked happens
// only through a successful reservation, Booked -> Available only when
// the owning appointment is cancelled.
type TimeSlot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Date      string // YYYY-MM-DD
	StartTime string // HH:MM, 24h
	EndTime   string // HH:MM, 24h
	Status    SlotStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	SlotID    uuid.UUID
	// Date and times are denormalized from the slot at booking time so
	// the record stays readable if the slot is later removed.
	Date      string
	StartTime string
	EndTime   string
	Condition string
	Type      string
	Status    AppointmentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
