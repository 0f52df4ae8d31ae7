package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger owns the authoritative availability state of every slot. All
// slot status transitions go through it; nothing else writes slot rows.
type Ledger struct {
	repo Repository
	log  *zap.Logger
	now  func() time.Time
}

func NewLedger(repo Repository, log *zap.Logger) *Ledger {
	return &Ledger{
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// CreateSlot validates bounds and rejects any interval intersection with
// an existing non-Blocked slot for the same doctor on the same date.
func (l *Ledger) CreateSlot(ctx context.Context, doctorID uuid.UUID, date, start, end string) (*TimeSlot, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}
	if _, err := time.Parse(timeLayout, start); err != nil {
		return nil, fmt.Errorf("%w: start time must be HH:MM", ErrValidation)
	}
	if _, err := time.Parse(timeLayout, end); err != nil {
		return nil, fmt.Errorf("%w: end time must be HH:MM", ErrValidation)
	}
	if start >= end {
		return nil, fmt.Errorf("%w: start time must be before end time", ErrValidation)
	}

	if _, err := l.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}

	existing, err := l.repo.ListSlotsByDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list slots for overlap check: %w", err)
	}
	for _, s := range existing {
		if s.Status == SlotBlocked {
			continue
		}
		if start < s.EndTime && s.StartTime < end {
			return nil, ErrOverlappingSlot
		}
	}

	slot := &TimeSlot{
		DoctorID:  doctorID,
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Status:    SlotAvailable,
	}
	if err := l.repo.CreateSlot(ctx, slot); err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}

	l.log.Info("slot created",
		zap.String("slot_id", slot.ID.String()),
		zap.String("doctor_id", doctorID.String()),
		zap.String("date", date),
		zap.String("start", start))

	return slot, nil
}

// Reserve atomically transitions Available -> Booked. When two callers
// race on the same slot exactly one wins; the loser sees
// ErrSlotUnavailable.
func (l *Ledger) Reserve(ctx context.Context, slotID uuid.UUID) (*TimeSlot, error) {
	slot, err := l.repo.UpdateSlotStatus(ctx, slotID, SlotAvailable, SlotBooked)
	if err == nil {
		return slot, nil
	}
	if !errors.Is(err, ErrSlotNotFound) {
		return nil, fmt.Errorf("reserve slot: %w", err)
	}
	// The conditional update matched nothing: missing slot or wrong
	// state. Re-read to report the right failure.
	if _, getErr := l.repo.GetSlotByID(ctx, slotID); getErr != nil {
		return nil, getErr
	}
	return nil, ErrSlotUnavailable
}

// Release transitions Booked -> Available. Releasing an Available slot
// is a no-op; releasing a Blocked slot fails.
func (l *Ledger) Release(ctx context.Context, slotID uuid.UUID) error {
	_, err := l.repo.UpdateSlotStatus(ctx, slotID, SlotBooked, SlotAvailable)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrSlotNotFound) {
		return fmt.Errorf("release slot: %w", err)
	}
	slot, getErr := l.repo.GetSlotByID(ctx, slotID)
	if getErr != nil {
		return getErr
	}
	switch slot.Status {
	case SlotAvailable:
		return nil
	default:
		return ErrInvalidState
	}
}

// Block is an administrator transition meaning "never offer this slot".
// A Booked slot cannot be blocked; cancel the appointment first.
func (l *Ledger) Block(ctx context.Context, slotID uuid.UUID) error {
	_, err := l.repo.UpdateSlotStatus(ctx, slotID, SlotAvailable, SlotBlocked)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrSlotNotFound) {
		return fmt.Errorf("block slot: %w", err)
	}
	slot, getErr := l.repo.GetSlotByID(ctx, slotID)
	if getErr != nil {
		return getErr
	}
	switch slot.Status {
	case SlotBlocked:
		return nil
	default:
		return ErrInvalidState
	}
}

func (l *Ledger) Unblock(ctx context.Context, slotID uuid.UUID) error {
	_, err := l.repo.UpdateSlotStatus(ctx, slotID, SlotBlocked, SlotAvailable)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrSlotNotFound) {
		return fmt.Errorf("unblock slot: %w", err)
	}
	slot, getErr := l.repo.GetSlotByID(ctx, slotID)
	if getErr != nil {
		return getErr
	}
	switch slot.Status {
	case SlotAvailable:
		return nil
	default:
		return ErrInvalidState
	}
}

// ListAvailable returns the doctor's Available slots whose start is
// strictly after now, ordered by date then start time. Pure read.
func (l *Ledger) ListAvailable(ctx context.Context, doctorID uuid.UUID) ([]TimeSlot, error) {
	now := l.now().UTC()
	slots, err := l.repo.ListAvailableSlots(ctx, doctorID, now.Format(dateLayout), now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	return slots, nil
}

// DeleteSlot removes a slot outright. Booked slots cannot be deleted
// while an appointment holds them.
func (l *Ledger) DeleteSlot(ctx context.Context, slotID uuid.UUID) error {
	slot, err := l.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return err
	}
	if slot.Status == SlotBooked {
		return ErrInvalidState
	}
	return l.repo.DeleteSlot(ctx, slotID)
}
