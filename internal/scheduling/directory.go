package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Directory manages doctor and patient records. Deleting either with
// outstanding dependents is rejected rather than cascaded: the admin
// must resolve slots and appointments first.
type Directory struct {
	repo Repository
	log  *zap.Logger
}

func NewDirectory(repo Repository, log *zap.Logger) *Directory {
	return &Directory{repo: repo, log: log}
}

type DoctorInput struct {
	Name           string
	Specialization string
	Location       string
	Contact        string
	Experience     int
	Rating         float64
	Availability   DoctorAvailability
	Description    string
}

func (d *Directory) CreateDoctor(ctx context.Context, actor Identity, in DoctorInput) (*Doctor, error) {
	if actor.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	if in.Name == "" || in.Specialization == "" {
		return nil, fmt.Errorf("%w: name and specialization are required", ErrValidation)
	}
	if in.Rating < 0 || in.Rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 0 and 5", ErrValidation)
	}
	if in.Experience < 0 {
		return nil, fmt.Errorf("%w: experience cannot be negative", ErrValidation)
	}
	if in.Availability == "" {
		in.Availability = DoctorAvailable
	}
	switch in.Availability {
	case DoctorAvailable, DoctorBusy, DoctorOffline:
	default:
		return nil, fmt.Errorf("%w: unknown availability %q", ErrValidation, in.Availability)
	}

	doc := &Doctor{
		Name:           in.Name,
		Specialization: in.Specialization,
		Location:       in.Location,
		Contact:        in.Contact,
		Experience:     in.Experience,
		Rating:         in.Rating,
		Availability:   in.Availability,
		Description:    in.Description,
	}
	if err := d.repo.CreateDoctor(ctx, doc); err != nil {
		return nil, fmt.Errorf("create doctor: %w", err)
	}
	d.log.Info("doctor created", zap.String("doctor_id", doc.ID.String()), zap.String("specialization", doc.Specialization))
	return doc, nil
}

// DeleteDoctor refuses while the doctor still owns slots or has
// non-terminal appointments.
func (d *Directory) DeleteDoctor(ctx context.Context, actor Identity, id uuid.UUID) error {
	if actor.Role != RoleAdmin {
		return ErrForbidden
	}
	if _, err := d.repo.GetDoctorByID(ctx, id); err != nil {
		return err
	}
	slots, err := d.repo.ListSlotsByDoctor(ctx, id)
	if err != nil {
		return fmt.Errorf("list doctor slots: %w", err)
	}
	if len(slots) > 0 {
		return fmt.Errorf("%w: doctor still owns %d slot(s)", ErrInvalidState, len(slots))
	}
	active, err := d.repo.ListActiveAppointmentsByDoctor(ctx, id)
	if err != nil {
		return fmt.Errorf("list doctor appointments: %w", err)
	}
	if len(active) > 0 {
		return fmt.Errorf("%w: doctor has %d active appointment(s)", ErrInvalidState, len(active))
	}
	return d.repo.DeleteDoctor(ctx, id)
}

type PatientInput struct {
	Name        string
	DateOfBirth string
	Gender      string
	Contact     string
	Status      PatientStatus
}

// CreatePatient serves both signup and admin creation; the contact is
// the unique login handle.
func (d *Directory) CreatePatient(ctx context.Context, in PatientInput) (*Patient, error) {
	if in.Name == "" || in.Contact == "" {
		return nil, fmt.Errorf("%w: name and contact are required", ErrValidation)
	}
	if in.Status == "" {
		in.Status = PatientActive
	}
	switch in.Status {
	case PatientActive, PatientInactive, PatientCritical:
	default:
		return nil, fmt.Errorf("%w: unknown patient status %q", ErrValidation, in.Status)
	}

	if _, err := d.repo.GetPatientByContact(ctx, in.Contact); err == nil {
		return nil, fmt.Errorf("%w: contact already registered", ErrValidation)
	} else if !errors.Is(err, ErrPatientNotFound) {
		return nil, err
	}

	p := &Patient{
		Name:        in.Name,
		DateOfBirth: in.DateOfBirth,
		Gender:      in.Gender,
		Contact:     in.Contact,
		Status:      in.Status,
	}
	if err := d.repo.CreatePatient(ctx, p); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	d.log.Info("patient created", zap.String("patient_id", p.ID.String()))
	return p, nil
}

// DeletePatient refuses while non-terminal appointments remain.
func (d *Directory) DeletePatient(ctx context.Context, actor Identity, id uuid.UUID) error {
	if actor.Role != RoleAdmin {
		return ErrForbidden
	}
	if _, err := d.repo.GetPatientByID(ctx, id); err != nil {
		return err
	}
	active, err := d.repo.ListActiveAppointmentsByPatient(ctx, id)
	if err != nil {
		return fmt.Errorf("list patient appointments: %w", err)
	}
	if len(active) > 0 {
		return fmt.Errorf("%w: patient has %d active appointment(s)", ErrInvalidState, len(active))
	}
	return d.repo.DeletePatient(ctx, id)
}
