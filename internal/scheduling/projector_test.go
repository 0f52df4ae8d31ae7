package scheduling

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type projectorFixture struct {
	repo      *MemoryRepository
	projector *Projector
	doctorID  uuid.UUID
	alice     *Patient
	bob       *Patient
	aliceAppt *Appointment
	bobAppt   *Appointment
}

func newProjectorFixture(t *testing.T) *projectorFixture {
	t.Helper()
	ctx := context.Background()

	repo := NewMemoryRepository()
	ledger := NewLedger(repo, zap.NewNop())
	lifecycle := NewLifecycle(repo, ledger, newLocalLocker(), zap.NewNop())

	doctorID := seedDoctor(t, repo)

	alice := &Patient{Name: "Alice", Contact: "alice@example.com", Status: PatientActive}
	require.NoError(t, repo.CreatePatient(ctx, alice))
	bob := &Patient{Name: "Bob", Contact: "bob@example.com", Status: PatientActive}
	require.NoError(t, repo.CreatePatient(ctx, bob))

	s1, err := ledger.CreateSlot(ctx, doctorID, "2026-10-01", "09:00", "10:00")
	require.NoError(t, err)
	s2, err := ledger.CreateSlot(ctx, doctorID, "2026-10-01", "10:00", "11:00")
	require.NoError(t, err)

	a1, err := lifecycle.Book(ctx, alice.ID, doctorID, s1.ID, "")
	require.NoError(t, err)
	a2, err := lifecycle.Book(ctx, bob.ID, doctorID, s2.ID, "")
	require.NoError(t, err)

	return &projectorFixture{
		repo:      repo,
		projector: NewProjector(repo),
		doctorID:  doctorID,
		alice:     alice,
		bob:       bob,
		aliceAppt: a1,
		bobAppt:   a2,
	}
}

func patientActor(p *Patient) Identity {
	return Identity{Subject: p.Contact, Role: RolePatient}
}

func TestProjectorPatients(t *testing.T) {
	f := newProjectorFixture(t)
	ctx := context.Background()

	patients, err := f.projector.Patients(ctx, adminActor)
	require.NoError(t, err)
	assert.Len(t, patients, 2)

	_, err = f.projector.Patients(ctx, patientActor(f.alice))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestProjectorDoctorsAndSlots(t *testing.T) {
	f := newProjectorFixture(t)
	ctx := context.Background()

	for _, actor := range []Identity{adminActor, patientActor(f.alice)} {
		doctors, err := f.projector.Doctors(ctx, actor)
		require.NoError(t, err)
		assert.Len(t, doctors, 1)

		slots, err := f.projector.Slots(ctx, actor)
		require.NoError(t, err)
		assert.Len(t, slots, 2)
	}
}

func TestProjectorAppointmentsScoped(t *testing.T) {
	f := newProjectorFixture(t)
	ctx := context.Background()

	all, err := f.projector.Appointments(ctx, adminActor)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.projector.Appointments(ctx, patientActor(f.alice))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, f.aliceAppt.ID, mine[0].ID)
}

func TestProjectorSingleAppointment(t *testing.T) {
	f := newProjectorFixture(t)
	ctx := context.Background()

	got, err := f.projector.Appointment(ctx, patientActor(f.alice), f.aliceAppt.ID)
	require.NoError(t, err)
	assert.Equal(t, f.aliceAppt.ID, got.ID)

	// A foreign appointment reads as forbidden, not as not-found.
	_, err = f.projector.Appointment(ctx, patientActor(f.alice), f.bobAppt.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.projector.Appointment(ctx, adminActor, f.bobAppt.ID)
	assert.NoError(t, err)

	_, err = f.projector.Appointment(ctx, adminActor, uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestProjectorUnknownRoleFailsClosed(t *testing.T) {
	f := newProjectorFixture(t)
	ctx := context.Background()
	ghost := Identity{Subject: "x", Role: Role("auditor")}

	_, err := f.projector.Doctors(ctx, ghost)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.projector.Slots(ctx, ghost)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.projector.Appointments(ctx, ghost)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.projector.Appointment(ctx, ghost, f.aliceAppt.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.projector.SelfPatient(ctx, ghost)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestProjectorSelfPatient(t *testing.T) {
	f := newProjectorFixture(t)
	ctx := context.Background()

	self, err := f.projector.SelfPatient(ctx, patientActor(f.alice))
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, self.ID)

	_, err = f.projector.SelfPatient(ctx, adminActor)
	assert.ErrorIs(t, err, ErrForbidden)
}
