package scheduling

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Projector is the read-side filter. It never mutates; it only decides
// which rows a caller may see. Any role it does not recognize fails
// closed.
type Projector struct {
	repo Repository
}

func NewProjector(repo Repository) *Projector {
	return &Projector{repo: repo}
}

// Patients: administrators see every patient; patients cannot enumerate
// other patients at all.
func (p *Projector) Patients(ctx context.Context, actor Identity) ([]Patient, error) {
	if actor.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	return p.repo.ListPatients(ctx)
}

// Doctors are browsable by both roles to support booking.
func (p *Projector) Doctors(ctx context.Context, actor Identity) ([]Doctor, error) {
	switch actor.Role {
	case RoleAdmin, RolePatient:
		return p.repo.ListDoctors(ctx)
	default:
		return nil, ErrForbidden
	}
}

// Slots are browsable by both roles to support booking.
func (p *Projector) Slots(ctx context.Context, actor Identity) ([]TimeSlot, error) {
	switch actor.Role {
	case RoleAdmin, RolePatient:
		return p.repo.ListSlots(ctx)
	default:
		return nil, ErrForbidden
	}
}

// Appointments: administrators see all; a patient sees only records
// whose patient reference matches their own profile, resolved from the
// caller's contact identity rather than any request parameter.
func (p *Projector) Appointments(ctx context.Context, actor Identity) ([]Appointment, error) {
	switch actor.Role {
	case RoleAdmin:
		return p.repo.ListAppointments(ctx)
	case RolePatient:
		self, err := p.repo.GetPatientByContact(ctx, actor.Subject)
		if err != nil {
			return nil, err
		}
		return p.repo.ListAppointmentsByPatient(ctx, self.ID)
	default:
		return nil, ErrForbidden
	}
}

// SelfPatient resolves the caller's own patient profile from their
// contact identity. Only patient callers have one.
func (p *Projector) SelfPatient(ctx context.Context, actor Identity) (*Patient, error) {
	if actor.Role != RolePatient {
		return nil, ErrForbidden
	}
	return p.repo.GetPatientByContact(ctx, actor.Subject)
}

// Appointment returns a single record under the same visibility rules.
func (p *Projector) Appointment(ctx context.Context, actor Identity, id uuid.UUID) (*Appointment, error) {
	appt, err := p.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case RoleAdmin:
		return appt, nil
	case RolePatient:
		self, err := p.repo.GetPatientByContact(ctx, actor.Subject)
		if err != nil {
			if errors.Is(err, ErrPatientNotFound) {
				return nil, ErrForbidden
			}
			return nil, err
		}
		if self.ID != appt.PatientID {
			return nil, ErrForbidden
		}
		return appt, nil
	default:
		return nil, ErrForbidden
	}
}
