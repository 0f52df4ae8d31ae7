package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/healthbridge/appointment-engine/internal/redis"
)

const (
	EventAppointmentBooked        = "APPOINTMENT_BOOKED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentDeleted       = "APPOINTMENT_DELETED"
)

// Lifecycle owns appointment records and their status transitions. It
// is the only component that asks the Ledger to reserve or release.
type Lifecycle struct {
	repo   Repository
	ledger *Ledger
	locker redisclient.Locker
	log    *zap.Logger
}

func NewLifecycle(repo Repository, ledger *Ledger, locker redisclient.Locker, log *zap.Logger) *Lifecycle {
	return &Lifecycle{
		repo:   repo,
		ledger: ledger,
		locker: locker,
		log:    log,
	}
}

const defaultAppointmentType = "Consultation"

// Book reserves the slot first and only then creates the appointment.
// That ordering is the correctness guarantee: an appointment can never
// exist whose slot was concurrently handed to another booking. The
// per-slot lock keeps the reserve+create pair a single critical section
// so a failed create can hand the slot back cleanly.
func (lf *Lifecycle) Book(ctx context.Context, patientID, doctorID, slotID uuid.UUID, condition string) (*Appointment, error) {
	if _, err := lf.repo.GetPatientByID(ctx, patientID); err != nil {
		return nil, err
	}
	if _, err := lf.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}
	slot, err := lf.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.DoctorID != doctorID {
		return nil, fmt.Errorf("%w: slot does not belong to doctor", ErrValidation)
	}
	if condition == "" {
		condition = "General consultation"
	}

	var created *Appointment

	err = lf.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		reserved, err := lf.ledger.Reserve(lockCtx, slotID)
		if err != nil {
			return err
		}

		appt := &Appointment{
			PatientID: patientID,
			DoctorID:  doctorID,
			SlotID:    slotID,
			Date:      reserved.Date,
			StartTime: reserved.StartTime,
			EndTime:   reserved.EndTime,
			Condition: condition,
			Type:      defaultAppointmentType,
			Status:    StatusPending,
		}
		if err := lf.repo.CreateAppointment(lockCtx, appt); err != nil {
			if relErr := lf.ledger.Release(lockCtx, slotID); relErr != nil {
				lf.log.Error("release after failed create",
					zap.String("slot_id", slotID.String()),
					zap.Error(relErr))
			}
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			// Someone else is mid-reservation on this slot. No queueing:
			// the caller lost the race.
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}

	lf.logEvent(ctx, created.ID, EventAppointmentBooked, map[string]any{
		"patient_id": patientID.String(),
		"doctor_id":  doctorID.String(),
		"slot_id":    slotID.String(),
	})

	lf.log.Info("appointment booked",
		zap.String("appointment_id", created.ID.String()),
		zap.String("patient_id", patientID.String()),
		zap.String("slot_id", slotID.String()))

	return created, nil
}

// logEvent appends an audit entry. The trail is informational: a failed
// insert is logged and the operation proceeds.
func (lf *Lifecycle) logEvent(ctx context.Context, apptID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		lf.log.Warn("marshal event payload",
			zap.String("event_type", eventType),
			zap.Error(err))
		data = nil
	}

	id := apptID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &id,
		Payload:       data,
		CreatedAt:     time.Now(),
	}
	if err := lf.repo.InsertEvent(ctx, ev); err != nil {
		lf.log.Error("insert event log",
			zap.String("event_type", eventType),
			zap.String("appointment_id", apptID.String()),
			zap.Error(err))
	}
}

// validTransition is the closed transition table. Initial state is
// Pending; Cancelled and Completed are terminal.
func validTransition(from, to AppointmentStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCancelled || to == StatusCompleted
	default:
		return false
	}
}

// SetStatus applies a transition on behalf of the actor. Only
// administrators confirm or complete; cancellation is allowed to the
// administrator or the owning patient. Transitioning into Cancelled
// releases the slot.
func (lf *Lifecycle) SetStatus(ctx context.Context, apptID uuid.UUID, to AppointmentStatus, actor Identity) (*Appointment, error) {
	appt, err := lf.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}

	if err := lf.authorizeTransition(ctx, appt, to, actor); err != nil {
		return nil, err
	}
	if !validTransition(appt.Status, to) {
		return nil, ErrInvalidTransition
	}

	updated, err := lf.repo.UpdateAppointmentStatus(ctx, apptID, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Status moved under us between read and write.
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	if to == StatusCancelled {
		if err := lf.ledger.Release(ctx, appt.SlotID); err != nil {
			lf.log.Error("release slot on cancellation",
				zap.String("appointment_id", apptID.String()),
				zap.String("slot_id", appt.SlotID.String()),
				zap.Error(err))
		}
	}

	lf.logEvent(ctx, apptID, EventAppointmentStatusChanged, map[string]any{
		"from":       string(appt.Status),
		"to":         string(to),
		"actor_role": string(actor.Role),
	})

	lf.log.Info("appointment status changed",
		zap.String("appointment_id", apptID.String()),
		zap.String("from", string(appt.Status)),
		zap.String("to", string(to)),
		zap.String("actor_role", string(actor.Role)))

	return updated, nil
}

func (lf *Lifecycle) authorizeTransition(ctx context.Context, appt *Appointment, to AppointmentStatus, actor Identity) error {
	switch to {
	case StatusConfirmed, StatusCompleted:
		if actor.Role != RoleAdmin {
			return ErrForbidden
		}
		return nil
	case StatusCancelled:
		if actor.Role == RoleAdmin {
			return nil
		}
		if actor.Role != RolePatient {
			return ErrForbidden
		}
		// Ownership is matched by the caller's contact identity, never
		// a client-supplied patient id.
		owner, err := lf.repo.GetPatientByContact(ctx, actor.Subject)
		if err != nil {
			if errors.Is(err, ErrPatientNotFound) {
				return ErrForbidden
			}
			return err
		}
		if owner.ID != appt.PatientID {
			return ErrForbidden
		}
		return nil
	default:
		// No role may force an appointment back to Pending.
		if actor.Role != RoleAdmin && actor.Role != RolePatient {
			return ErrForbidden
		}
		return ErrInvalidTransition
	}
}

// Delete hard-deletes an appointment, administrator only. A non-terminal
// appointment releases its slot first, exactly as cancellation does.
func (lf *Lifecycle) Delete(ctx context.Context, apptID uuid.UUID, actor Identity) error {
	if actor.Role != RoleAdmin {
		return ErrForbidden
	}
	appt, err := lf.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return err
	}

	if !appt.Status.IsTerminal() {
		if err := lf.ledger.Release(ctx, appt.SlotID); err != nil && !errors.Is(err, ErrSlotNotFound) {
			return fmt.Errorf("release slot before delete: %w", err)
		}
	}

	if err := lf.repo.DeleteAppointment(ctx, apptID); err != nil {
		return err
	}

	lf.logEvent(ctx, apptID, EventAppointmentDeleted, map[string]any{
		"status_at_delete": string(appt.Status),
	})

	lf.log.Info("appointment deleted",
		zap.String("appointment_id", apptID.String()),
		zap.String("status_at_delete", string(appt.Status)))

	return nil
}
