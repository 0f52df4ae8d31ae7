package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/healthbridge/appointment-engine/internal/scheduling"
)

// Reply is the outbound message for one conversational step.
type Reply struct {
	Message         string
	Phase           Phase
	Recommendations []DoctorRef
	Slots           []scheduling.TimeSlot
	Appointment     *scheduling.Appointment
}

// Orchestrator drives the guided booking dialogue:
// Intake -> Recommending -> AwaitingDoctorChoice -> AwaitingSlotChoice -> Booked.
// It routes messages to the recommendation collaborator and converts a
// chosen slot into a confirmed appointment; it never interprets symptom
// text itself.
type Orchestrator struct {
	sessions  *SessionStore
	rec       Recommender
	ledger    *scheduling.Ledger
	lifecycle *scheduling.Lifecycle
	repo      scheduling.Repository
	log       *zap.Logger

	recommendTimeout time.Duration
	listTimeout      time.Duration
}

type OrchestratorConfig struct {
	Sessions         *SessionStore
	Recommender      Recommender
	Ledger           *scheduling.Ledger
	Lifecycle        *scheduling.Lifecycle
	Repo             scheduling.Repository
	Log              *zap.Logger
	RecommendTimeout time.Duration
	ListTimeout      time.Duration
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{
		sessions:         cfg.Sessions,
		rec:              cfg.Recommender,
		ledger:           cfg.Ledger,
		lifecycle:        cfg.Lifecycle,
		repo:             cfg.Repo,
		log:              cfg.Log,
		recommendTimeout: cfg.RecommendTimeout,
		listTimeout:      cfg.ListTimeout,
	}
	if o.recommendTimeout <= 0 {
		o.recommendTimeout = 20 * time.Second
	}
	if o.listTimeout <= 0 {
		o.listTimeout = 5 * time.Second
	}
	// A swept session must also drop the collaborator's server-held
	// context, or the patient's next conversation resumes on top of it.
	o.sessions.SetOnEvict(o.clearExternal)
	return o
}

const retryMessage = "Sorry, I'm having trouble reaching our assistant right now. Please try again in a moment."

// resolvePatient maps the caller identity onto their patient record.
// Only patients converse; anything else fails closed.
func (o *Orchestrator) resolvePatient(ctx context.Context, actor scheduling.Identity) (*scheduling.Patient, error) {
	if actor.Role != scheduling.RolePatient {
		return nil, scheduling.ErrForbidden
	}
	return o.repo.GetPatientByContact(ctx, actor.Subject)
}

// HandleMessage appends the message to the transcript, forwards it to
// the recommendation collaborator, and advances the phase when
// recommendations come back. On a collaborator timeout the phase does
// not move and the patient gets a retryable reply.
func (o *Orchestrator) HandleMessage(ctx context.Context, actor scheduling.Identity, text string) (*Reply, error) {
	patient, err := o.resolvePatient(ctx, actor)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, fmt.Errorf("%w: message is empty", scheduling.ErrValidation)
	}

	var reply *Reply
	err = o.sessions.WithSession(actor.Subject, patient.ID, func(s *Session) error {
		s.Transcript = append(s.Transcript, Turn{Role: TurnUser, Content: text})

		recCtx, cancel := context.WithTimeout(ctx, o.recommendTimeout)
		defer cancel()

		res, err := o.rec.Recommend(recCtx, s.PatientKey, s.Transcript)
		if err != nil {
			// Undo the appended turn so a retry replays cleanly.
			s.Transcript = s.Transcript[:len(s.Transcript)-1]
			if errors.Is(err, ErrRecommenderTimeout) || errors.Is(err, context.DeadlineExceeded) {
				o.log.Warn("recommendation collaborator timed out",
					zap.String("patient_key", s.PatientKey))
				reply = &Reply{Message: retryMessage, Phase: s.Phase}
				return nil
			}
			return fmt.Errorf("recommend: %w", err)
		}

		s.Transcript = append(s.Transcript, Turn{Role: TurnAssistant, Content: res.Reply})
		if res.Condition != "" {
			s.Condition = res.Condition
		}

		if len(res.Recommendations) > 0 {
			s.Recommendations = res.Recommendations
			if s.Phase == PhaseIntake {
				s.Phase = PhaseRecommending
			}
		}
		if res.IsConfirming && s.Phase == PhaseRecommending && len(s.Recommendations) > 0 {
			s.Phase = PhaseAwaitingDoctorChoice
		}

		reply = &Reply{
			Message:         res.Reply,
			Phase:           s.Phase,
			Recommendations: s.Recommendations,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// SelectDoctor records the patient's choice from the cached
// recommendations and surfaces that doctor's future availability.
func (o *Orchestrator) SelectDoctor(ctx context.Context, actor scheduling.Identity, doctorID uuid.UUID) (*Reply, error) {
	patient, err := o.resolvePatient(ctx, actor)
	if err != nil {
		return nil, err
	}

	var reply *Reply
	err = o.sessions.WithSession(actor.Subject, patient.ID, func(s *Session) error {
		if s.Phase != PhaseRecommending && s.Phase != PhaseAwaitingDoctorChoice {
			return fmt.Errorf("%w: no doctor recommendations pending", scheduling.ErrInvalidState)
		}
		ref := s.recommendationFor(doctorID)
		if ref == nil {
			return scheduling.ErrDoctorNotFound
		}

		listCtx, cancel := context.WithTimeout(ctx, o.listTimeout)
		defer cancel()

		slots, err := o.ledger.ListAvailable(listCtx, doctorID)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				reply = &Reply{Message: retryMessage, Phase: s.Phase}
				return nil
			}
			return err
		}

		s.SelectedDoctor = ref
		s.OfferedSlots = slots
		s.Phase = PhaseAwaitingSlotChoice

		msg := fmt.Sprintf("Great choice. Dr. %s has %d upcoming slot(s). Pick one to book.", ref.Name, len(slots))
		if len(slots) == 0 {
			msg = fmt.Sprintf("Dr. %s has no upcoming availability. You can pick another doctor or check back later.", ref.Name)
		}
		reply = &Reply{
			Message: msg,
			Phase:   s.Phase,
			Slots:   slots,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// SelectSlot books the chosen slot. Losing the reservation race is not
// an error surfaced to the patient: the slot list is refreshed and
// re-presented, and the phase stays AwaitingSlotChoice.
func (o *Orchestrator) SelectSlot(ctx context.Context, actor scheduling.Identity, slotID uuid.UUID) (*Reply, error) {
	patient, err := o.resolvePatient(ctx, actor)
	if err != nil {
		return nil, err
	}

	var reply *Reply
	var booked bool
	err = o.sessions.WithSession(actor.Subject, patient.ID, func(s *Session) error {
		if s.Phase != PhaseAwaitingSlotChoice || s.SelectedDoctor == nil {
			return fmt.Errorf("%w: no slot selection pending", scheduling.ErrInvalidState)
		}
		if !s.offersSlot(slotID) {
			return scheduling.ErrSlotNotFound
		}

		appt, err := o.lifecycle.Book(ctx, s.PatientID, s.SelectedDoctor.ID, slotID, s.Condition)
		if err != nil {
			if errors.Is(err, scheduling.ErrSlotUnavailable) {
				return o.refreshSlots(ctx, s, &reply)
			}
			return err
		}

		s.Phase = PhaseBooked
		s.Recommendations = nil
		s.SelectedDoctor = nil
		s.OfferedSlots = nil
		booked = true

		reply = &Reply{
			Message: fmt.Sprintf("Your appointment on %s at %s is booked and pending confirmation.",
				appt.Date, appt.StartTime),
			Phase:       PhaseBooked,
			Appointment: appt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if booked {
		// Booking completes the conversation; the session does not outlive it.
		o.sessions.Delete(actor.Subject)
		o.clearExternal(actor.Subject)
	}
	return reply, nil
}

// refreshSlots re-queries availability after a lost race and re-presents
// the refreshed set. The session stays in AwaitingSlotChoice.
func (o *Orchestrator) refreshSlots(ctx context.Context, s *Session, reply **Reply) error {
	listCtx, cancel := context.WithTimeout(ctx, o.listTimeout)
	defer cancel()

	slots, err := o.ledger.ListAvailable(listCtx, s.SelectedDoctor.ID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			*reply = &Reply{Message: retryMessage, Phase: s.Phase}
			return nil
		}
		return err
	}
	s.OfferedSlots = slots

	msg := "That slot was just taken by another booking. Here are the current openings."
	if len(slots) == 0 {
		msg = "That slot was just taken and no other openings remain for this doctor. You can pick another doctor."
	}
	*reply = &Reply{
		Message: msg,
		Phase:   s.Phase,
		Slots:   slots,
	}
	return nil
}

// Clear tears the session down at any phase and signals the
// collaborator to drop its context. The external clear is best effort:
// a failure is logged, never surfaced.
func (o *Orchestrator) Clear(ctx context.Context, actor scheduling.Identity) error {
	if _, err := o.resolvePatient(ctx, actor); err != nil {
		return err
	}
	o.sessions.Delete(actor.Subject)
	o.clearExternal(actor.Subject)
	return nil
}

func (o *Orchestrator) clearExternal(key string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.rec.Clear(ctx, key); err != nil {
			o.log.Warn("external session clear failed",
				zap.String("patient_key", key),
				zap.Error(err))
		}
	}()
}
