package scheduling

import "errors"

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrForbidden covers role and ownership violations.
	ErrForbidden = errors.New("operation not permitted for caller")

	// ErrInvalidTransition is an illegal appointment status change.
	ErrInvalidTransition = errors.New("invalid appointment status transition")

	// ErrInvalidState is an illegal slot status change, or a delete that
	// would orphan dependent records.
	ErrInvalidState = errors.New("operation not valid in current state")

	// ErrSlotUnavailable means the slot is not Available, typically
	// because a concurrent booking won the reservation race.
	ErrSlotUnavailable = errors.New("slot is not available")

	ErrOverlappingSlot = errors.New("slot overlaps an existing slot for this doctor")

	ErrValidation = errors.New("invalid input")
)
