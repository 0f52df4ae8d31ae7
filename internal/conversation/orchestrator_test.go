package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	redisclient "github.com/healthbridge/appointment-engine/internal/redis"
	"github.com/healthbridge/appointment-engine/internal/scheduling"
)

// scriptedRecommender returns queued results in order and records Clear
// calls. Safe for concurrent use.
type scriptedRecommender struct {
	mu      sync.Mutex
	queue   []Result
	err     error
	cleared []string
	calls   int
}

func (r *scriptedRecommender) Recommend(_ context.Context, _ string, _ []Turn) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return Result{}, r.err
	}
	if len(r.queue) == 0 {
		return Result{Reply: "Tell me more."}, nil
	}
	res := r.queue[0]
	r.queue = r.queue[1:]
	return res, nil
}

func (r *scriptedRecommender) Clear(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, key)
	return nil
}

func (r *scriptedRecommender) clearedKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.cleared...)
}

type sequentialLocker struct{ mu sync.Mutex }

func (l *sequentialLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

var _ redisclient.Locker = (*sequentialLocker)(nil)

type orchestratorFixture struct {
	repo      *scheduling.MemoryRepository
	ledger    *scheduling.Ledger
	rec       *scriptedRecommender
	store     *SessionStore
	orch      *Orchestrator
	doctor    *scheduling.Doctor
	patient   *scheduling.Patient
	slotA     *scheduling.TimeSlot
	slotB     *scheduling.TimeSlot
	actor     scheduling.Identity
	doctorRef DoctorRef
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()

	repo := scheduling.NewMemoryRepository()
	ledger := scheduling.NewLedger(repo, log)
	lifecycle := scheduling.NewLifecycle(repo, ledger, &sequentialLocker{}, log)

	doctor := &scheduling.Doctor{
		Name:           "Priya Iyer",
		Specialization: "Dermatology",
		Location:       "Pune",
		Experience:     10,
		Rating:         4.7,
		Availability:   scheduling.DoctorAvailable,
	}
	require.NoError(t, repo.CreateDoctor(ctx, doctor))

	patient := &scheduling.Patient{
		Name:    "Sam Verma",
		Contact: "sam@example.com",
		Status:  scheduling.PatientActive,
	}
	require.NoError(t, repo.CreatePatient(ctx, patient))

	// Far-future slots so ListAvailable always offers them.
	slotA, err := ledger.CreateSlot(ctx, doctor.ID, "2030-01-15", "09:00", "10:00")
	require.NoError(t, err)
	slotB, err := ledger.CreateSlot(ctx, doctor.ID, "2030-01-15", "10:00", "11:00")
	require.NoError(t, err)

	rec := &scriptedRecommender{}
	store := NewSessionStore(30*time.Minute, log)

	orch := NewOrchestrator(OrchestratorConfig{
		Sessions:    store,
		Recommender: rec,
		Ledger:      ledger,
		Lifecycle:   lifecycle,
		Repo:        repo,
		Log:         log,
	})

	return &orchestratorFixture{
		repo:    repo,
		ledger:  ledger,
		rec:     rec,
		store:   store,
		orch:    orch,
		doctor:  doctor,
		patient: patient,
		slotA:   slotA,
		slotB:   slotB,
		actor:   scheduling.Identity{Subject: patient.Contact, Role: scheduling.RolePatient},
		doctorRef: DoctorRef{
			ID:             doctor.ID,
			Name:           doctor.Name,
			Specialization: doctor.Specialization,
			Location:       doctor.Location,
			Experience:     doctor.Experience,
			Rating:         doctor.Rating,
		},
	}
}

func (f *orchestratorFixture) advanceToSlotChoice(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	f.rec.mu.Lock()
	f.rec.queue = append(f.rec.queue, Result{
		Reply:           "Here are some dermatologists.",
		Condition:       "Skin rash",
		Recommendations: []DoctorRef{f.doctorRef},
		HasEnoughInfo:   true,
	})
	f.rec.mu.Unlock()

	reply, err := f.orch.HandleMessage(ctx, f.actor, "I have an itchy rash on my arm")
	require.NoError(t, err)
	require.Equal(t, PhaseRecommending, reply.Phase)

	reply, err = f.orch.SelectDoctor(ctx, f.actor, f.doctor.ID)
	require.NoError(t, err)
	require.Equal(t, PhaseAwaitingSlotChoice, reply.Phase)
	require.Len(t, reply.Slots, 2)
}

func TestHandleMessageOnlyPatients(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.orch.HandleMessage(ctx, scheduling.Identity{Subject: "a", Role: scheduling.RoleAdmin}, "hi")
	assert.ErrorIs(t, err, scheduling.ErrForbidden)

	_, err = f.orch.HandleMessage(ctx, scheduling.Identity{Subject: "ghost@example.com", Role: scheduling.RolePatient}, "hi")
	assert.ErrorIs(t, err, scheduling.ErrPatientNotFound)
}

func TestHandleMessageIntakeStaysUntilRecommendations(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	reply, err := f.orch.HandleMessage(ctx, f.actor, "I don't feel well")
	require.NoError(t, err)
	assert.Equal(t, PhaseIntake, reply.Phase)
	assert.Equal(t, "Tell me more.", reply.Message)
	assert.Empty(t, reply.Recommendations)

	s, ok := f.store.Peek(f.actor.Subject)
	require.True(t, ok)
	assert.Len(t, s.Transcript, 2)
}

func TestHandleMessageAdvancesOnRecommendations(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	f.rec.queue = []Result{{
		Reply:           "These doctors can help.",
		Condition:       "Skin rash",
		Recommendations: []DoctorRef{f.doctorRef},
		HasEnoughInfo:   true,
	}}

	reply, err := f.orch.HandleMessage(ctx, f.actor, "itchy rash for a week")
	require.NoError(t, err)
	assert.Equal(t, PhaseRecommending, reply.Phase)
	require.Len(t, reply.Recommendations, 1)
	assert.Equal(t, f.doctor.ID, reply.Recommendations[0].ID)

	// A confirming follow-up moves the phase to awaiting a choice.
	f.rec.queue = []Result{{Reply: "Great, pick a doctor.", IsConfirming: true}}
	reply, err = f.orch.HandleMessage(ctx, f.actor, "yes, let's book")
	require.NoError(t, err)
	assert.Equal(t, PhaseAwaitingDoctorChoice, reply.Phase)
	// Cached recommendations survive turns that return none.
	require.Len(t, reply.Recommendations, 1)
}

func TestHandleMessageTimeoutKeepsPhaseAndTranscript(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	f.rec.err = ErrRecommenderTimeout
	reply, err := f.orch.HandleMessage(ctx, f.actor, "hello?")
	require.NoError(t, err)
	assert.Equal(t, PhaseIntake, reply.Phase)
	assert.Equal(t, retryMessage, reply.Message)

	// The failed turn is not kept, so the retry replays cleanly.
	s, ok := f.store.Peek(f.actor.Subject)
	require.True(t, ok)
	assert.Empty(t, s.Transcript)

	f.rec.err = nil
	reply, err = f.orch.HandleMessage(ctx, f.actor, "hello?")
	require.NoError(t, err)
	assert.Equal(t, "Tell me more.", reply.Message)
}

func TestSelectDoctorRequiresPendingRecommendation(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.orch.SelectDoctor(ctx, f.actor, f.doctor.ID)
	assert.ErrorIs(t, err, scheduling.ErrInvalidState)

	f.rec.queue = []Result{{
		Reply:           "These doctors can help.",
		Recommendations: []DoctorRef{f.doctorRef},
	}}
	_, err = f.orch.HandleMessage(ctx, f.actor, "rash")
	require.NoError(t, err)

	// Only doctors from the cached recommendation set are selectable.
	_, err = f.orch.SelectDoctor(ctx, f.actor, uuid.New())
	assert.ErrorIs(t, err, scheduling.ErrDoctorNotFound)

	reply, err := f.orch.SelectDoctor(ctx, f.actor, f.doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseAwaitingSlotChoice, reply.Phase)
	assert.Len(t, reply.Slots, 2)
}

func TestSelectSlotBooksAndEndsSession(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	f.advanceToSlotChoice(t)

	reply, err := f.orch.SelectSlot(ctx, f.actor, f.slotA.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseBooked, reply.Phase)
	require.NotNil(t, reply.Appointment)
	assert.Equal(t, f.patient.ID, reply.Appointment.PatientID)
	assert.Equal(t, "Skin rash", reply.Appointment.Condition)
	assert.Equal(t, scheduling.StatusPending, reply.Appointment.Status)

	slot, err := f.repo.GetSlotByID(ctx, f.slotA.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.SlotBooked, slot.Status)

	// Booking destroys the session and clears the collaborator context.
	_, ok := f.store.Peek(f.actor.Subject)
	assert.False(t, ok)
	assert.Eventually(t, func() bool {
		keys := f.rec.clearedKeys()
		return len(keys) == 1 && keys[0] == f.actor.Subject
	}, time.Second, 10*time.Millisecond)
}

func TestSelectSlotRejectsUnofferedSlot(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	f.advanceToSlotChoice(t)

	_, err := f.orch.SelectSlot(ctx, f.actor, uuid.New())
	assert.ErrorIs(t, err, scheduling.ErrSlotNotFound)
}

func TestSelectSlotBeforeChoiceFails(t *testing.T) {
	f := newOrchestratorFixture(t)

	_, err := f.orch.SelectSlot(context.Background(), f.actor, f.slotA.ID)
	assert.ErrorIs(t, err, scheduling.ErrInvalidState)
}

func TestSelectSlotLostRaceRefreshesOffers(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	f.advanceToSlotChoice(t)

	// Another booking takes the slot between presentation and selection.
	_, err := f.ledger.Reserve(ctx, f.slotA.ID)
	require.NoError(t, err)

	reply, err := f.orch.SelectSlot(ctx, f.actor, f.slotA.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseAwaitingSlotChoice, reply.Phase)
	require.Len(t, reply.Slots, 1)
	assert.Equal(t, f.slotB.ID, reply.Slots[0].ID)
	assert.Contains(t, reply.Message, "just taken")

	// The refreshed offer is bookable.
	reply, err = f.orch.SelectSlot(ctx, f.actor, f.slotB.ID)
	require.NoError(t, err)
	assert.Equal(t, PhaseBooked, reply.Phase)
}

func TestClearAtAnyPhase(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	f.advanceToSlotChoice(t)

	require.NoError(t, f.orch.Clear(ctx, f.actor))

	_, ok := f.store.Peek(f.actor.Subject)
	assert.False(t, ok)
	assert.Eventually(t, func() bool {
		return len(f.rec.clearedKeys()) == 1
	}, time.Second, 10*time.Millisecond)

	// A fresh conversation starts back at intake.
	reply, err := f.orch.HandleMessage(ctx, f.actor, "new problem")
	require.NoError(t, err)
	assert.Equal(t, PhaseIntake, reply.Phase)
}

func TestConcurrentMessagesSameSessionSerialized(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	const msgs = 10
	var wg sync.WaitGroup
	for i := 0; i < msgs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orch.HandleMessage(ctx, f.actor, "still unwell")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Every turn landed exactly once: user+assistant per message.
	s, ok := f.store.Peek(f.actor.Subject)
	require.True(t, ok)
	assert.Len(t, s.Transcript, msgs*2)
}

func TestSweptSessionClearsCollaboratorContext(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	_, err := f.orch.HandleMessage(ctx, f.actor, "hello")
	require.NoError(t, err)

	// Backdate the session past the idle cutoff; the error return keeps
	// WithSession from re-touching it.
	backdated := errors.New("backdated")
	err = f.store.WithSession(f.actor.Subject, f.patient.ID, func(s *Session) error {
		s.UpdatedAt = time.Now().Add(-time.Hour)
		return backdated
	})
	require.ErrorIs(t, err, backdated)

	f.store.sweep()

	_, ok := f.store.Peek(f.actor.Subject)
	assert.False(t, ok)
	assert.Eventually(t, func() bool {
		keys := f.rec.clearedKeys()
		return len(keys) == 1 && keys[0] == f.actor.Subject
	}, time.Second, 10*time.Millisecond)
}
