package conversation

import (
	"time"

	"github.com/google/uuid"

	"github.com/healthbridge/appointment-engine/internal/scheduling"
)

type Phase string

const (
	PhaseIntake               Phase = "Intake"
	PhaseRecommending         Phase = "Recommending"
	PhaseAwaitingDoctorChoice Phase = "AwaitingDoctorChoice"
	PhaseAwaitingSlotChoice   Phase = "AwaitingSlotChoice"
	PhaseBooked               Phase = "Booked"
)

const (
	TurnUser      = "user"
	TurnAssistant = "assistant"
)

type Turn struct {
	Role    string
	Content string
}

// Session is the ephemeral per-patient conversation state. It lives
// only in process memory, keyed by the patient's contact identity, and
// is destroyed on explicit clear or booking completion.
type Session struct {
	PatientKey      string
	PatientID       uuid.UUID
	Phase           Phase
	Transcript      []Turn
	Condition       string
	Recommendations []DoctorRef
	SelectedDoctor  *DoctorRef
	OfferedSlots    []scheduling.TimeSlot
	UpdatedAt       time.Time
}

func newSession(patientKey string, patientID uuid.UUID) *Session {
	return &Session{
		PatientKey: patientKey,
		PatientID:  patientID,
		Phase:      PhaseIntake,
		UpdatedAt:  time.Now(),
	}
}

// recommendationFor returns the cached recommendation matching id.
func (s *Session) recommendationFor(id uuid.UUID) *DoctorRef {
	for i := range s.Recommendations {
		if s.Recommendations[i].ID == id {
			return &s.Recommendations[i]
		}
	}
	return nil
}

// offersSlot reports whether the slot was in the last presented set.
func (s *Session) offersSlot(id uuid.UUID) bool {
	for _, slot := range s.OfferedSlots {
		if slot.ID == id {
			return true
		}
	}
	return false
}
