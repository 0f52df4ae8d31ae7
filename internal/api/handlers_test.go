package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/golang-jwt/jwt/v5"

	"github.com/healthbridge/appointment-engine/internal/conversation"
	"github.com/healthbridge/appointment-engine/internal/scheduling"
)

const testSecret = "test-secret"

// stubRecommender immediately recommends every doctor in the directory
// so chat flows can be driven end to end without the external service.
type stubRecommender struct {
	directory conversation.DoctorDirectory
}

func (r *stubRecommender) Recommend(ctx context.Context, _ string, _ []conversation.Turn) (conversation.Result, error) {
	doctors, err := r.directory.SearchBySpecialization(ctx, "Dermatology")
	if err != nil {
		return conversation.Result{}, err
	}
	return conversation.Result{
		Reply:           "Here are some doctors.",
		Condition:       "Skin rash",
		Recommendations: doctors,
		HasEnoughInfo:   true,
	}, nil
}

func (r *stubRecommender) Clear(context.Context, string) error { return nil }

type inProcessLocker struct{ mu sync.Mutex }

func (l *inProcessLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

type apiFixture struct {
	server  *httptest.Server
	repo    *scheduling.MemoryRepository
	doctor  *scheduling.Doctor
	patient *scheduling.Patient
	slot    *scheduling.TimeSlot
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()

	repo := scheduling.NewMemoryRepository()
	ledger := scheduling.NewLedger(repo, log)
	lifecycle := scheduling.NewLifecycle(repo, ledger, &inProcessLocker{}, log)
	projector := scheduling.NewProjector(repo)
	directory := scheduling.NewDirectory(repo, log)

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

	slot, err := ledger.CreateSlot(ctx, doctor.ID, "2030-01-15", "09:00", "10:00")
	require.NoError(t, err)

	sessions := conversation.NewSessionStore(30*time.Minute, log)
	t.Cleanup(sessions.Close)

	orchestrator := conversation.NewOrchestrator(conversation.OrchestratorConfig{
		Sessions:    sessions,
		Recommender: &stubRecommender{directory: conversation.NewRepoDirectory(repo)},
		Ledger:      ledger,
		Lifecycle:   lifecycle,
		Repo:        repo,
		Log:         log,
	})

	router := NewRouter(RouterConfig{
		Directory:    directory,
		Ledger:       ledger,
		Lifecycle:    lifecycle,
		Projector:    projector,
		Orchestrator: orchestrator,
		JWTSecret:    testSecret,
		Env:          "test",
		Version:      "test",
		Log:          log,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &apiFixture{
		server:  server,
		repo:    repo,
		doctor:  doctor,
		patient: patient,
		slot:    slot,
	}
}

func signToken(t *testing.T, sub, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return raw
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func (f *apiFixture) adminToken(t *testing.T) string {
	return signToken(t, "admin@example.com", "admin")
}

func (f *apiFixture) patientToken(t *testing.T) string {
	return signToken(t, f.patient.Contact, "patient")
}

func TestAuthRequired(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodGet, "/doctors", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Token signed with a different secret is rejected.
	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "x", "role": "admin", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	resp = f.do(t, http.MethodGet, "/doctors", bad, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Missing role claim is rejected.
	noRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "x", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	resp = f.do(t, http.MethodGet, "/doctors", noRole, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateDoctorEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/doctors", f.adminToken(t), CreateDoctorRequest{
		Name:           "Dr. Arun Mehta",
		Specialization: "Cardiology",
		Rating:         4.2,
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var doc scheduling.Doctor
	decodeInto(t, resp, &doc)
	assert.NotEqual(t, uuid.Nil, doc.ID)

	resp = f.do(t, http.MethodPost, "/doctors", f.patientToken(t), CreateDoctorRequest{
		Name: "Dr. X", Specialization: "ENT",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/doctors", f.adminToken(t), CreateDoctorRequest{
		Name: "Dr. X", Specialization: "ENT", Rating: 9,
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPatientSelfRegistration(t *testing.T) {
	f := newAPIFixture(t)
	token := signToken(t, "new@example.com", "patient")

	// A patient may only register their own contact.
	resp := f.do(t, http.MethodPost, "/patients", token, CreatePatientRequest{
		Name: "Evil Twin", Contact: "someone-else@example.com",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/patients", token, CreatePatientRequest{
		Name: "New Person", Contact: "new@example.com",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var p scheduling.Patient
	decodeInto(t, resp, &p)
	assert.Equal(t, "new@example.com", p.Contact)

	// Duplicate contact is a validation failure.
	resp = f.do(t, http.MethodPost, "/patients", f.adminToken(t), CreatePatientRequest{
		Name: "Dup", Contact: "new@example.com",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSlotEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.adminToken(t)

	resp := f.do(t, http.MethodPost, "/timeslots", admin, CreateSlotRequest{
		DoctorID:  f.doctor.ID.String(),
		Date:      "2030-01-16",
		StartTime: "09:00",
		EndTime:   "10:00",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var created SlotResponse
	decodeInto(t, resp, &created)
	assert.Equal(t, "Available", created.Status)

	// Overlap with the fixture slot conflicts.
	resp = f.do(t, http.MethodPost, "/timeslots", admin, CreateSlotRequest{
		DoctorID:  f.doctor.ID.String(),
		Date:      "2030-01-15",
		StartTime: "09:30",
		EndTime:   "10:30",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Slot management is admin-only.
	resp = f.do(t, http.MethodPost, "/timeslots", f.patientToken(t), CreateSlotRequest{
		DoctorID: f.doctor.ID.String(), Date: "2030-01-17", StartTime: "09:00", EndTime: "10:00",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPost, fmt.Sprintf("/timeslots/%s/block", created.ID), admin, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Blocked slots do not show in availability.
	resp = f.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/availability", f.doctor.ID), f.patientToken(t), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var avail []SlotResponse
	decodeInto(t, resp, &avail)
	require.Len(t, avail, 1)
	assert.Equal(t, f.slot.ID, avail[0].ID)

	resp = f.do(t, http.MethodPost, fmt.Sprintf("/timeslots/%s/unblock", created.ID), admin, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/timeslots/"+created.ID.String(), admin, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/timeslots/not-a-uuid", admin, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBookingEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	book := BookAppointmentRequest{
		PatientID: f.patient.ID.String(),
		DoctorID:  f.doctor.ID.String(),
		SlotID:    f.slot.ID.String(),
		Condition: "Rash",
	}

	resp := f.do(t, http.MethodPost, "/appointments", f.patientToken(t), book)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var appt AppointmentResponse
	decodeInto(t, resp, &appt)
	assert.Equal(t, "Pending", appt.Status)
	assert.Equal(t, "Rash", appt.Notes)

	// The same slot cannot be booked twice.
	resp = f.do(t, http.MethodPost, "/appointments", f.patientToken(t), book)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestBookingForAnotherPatientForbidden(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	other := &scheduling.Patient{Name: "Other", Contact: "other@example.com", Status: scheduling.PatientActive}
	require.NoError(t, f.repo.CreatePatient(ctx, other))

	resp := f.do(t, http.MethodPost, "/appointments", f.patientToken(t), BookAppointmentRequest{
		PatientID: other.ID.String(),
		DoctorID:  f.doctor.ID.String(),
		SlotID:    f.slot.ID.String(),
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Admins may book on behalf of any patient.
	resp = f.do(t, http.MethodPost, "/appointments", f.adminToken(t), BookAppointmentRequest{
		PatientID: other.ID.String(),
		DoctorID:  f.doctor.ID.String(),
		SlotID:    f.slot.ID.String(),
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestAppointmentVisibilityAndStatus(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.adminToken(t)
	patientTok := f.patientToken(t)

	resp := f.do(t, http.MethodPost, "/appointments", patientTok, BookAppointmentRequest{
		PatientID: f.patient.ID.String(),
		DoctorID:  f.doctor.ID.String(),
		SlotID:    f.slot.ID.String(),
	})
	var appt AppointmentResponse
	decodeInto(t, resp, &appt)

	// Another patient cannot see it.
	ctx := context.Background()
	other := &scheduling.Patient{Name: "Other", Contact: "other@example.com", Status: scheduling.PatientActive}
	require.NoError(t, f.repo.CreatePatient(ctx, other))
	otherTok := signToken(t, other.Contact, "patient")

	resp = f.do(t, http.MethodGet, "/appointments/"+appt.ID.String(), otherTok, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/appointments", otherTok, nil)
	var theirList []AppointmentResponse
	decodeInto(t, resp, &theirList)
	assert.Empty(t, theirList)

	// Patients cannot confirm; admins can.
	resp = f.do(t, http.MethodPatch, "/appointments/"+appt.ID.String()+"/status", patientTok,
		UpdateStatusRequest{Status: "Confirmed"})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPatch, "/appointments/"+appt.ID.String()+"/status", admin,
		UpdateStatusRequest{Status: "Confirmed"})
	var confirmed AppointmentResponse
	decodeInto(t, resp, &confirmed)
	assert.Equal(t, "Confirmed", confirmed.Status)

	// The owner cancels; the slot frees up.
	resp = f.do(t, http.MethodPatch, "/appointments/"+appt.ID.String()+"/status", patientTok,
		UpdateStatusRequest{Status: "Cancelled"})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	slot, err := f.repo.GetSlotByID(ctx, f.slot.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.SlotAvailable, slot.Status)

	// Terminal state rejects further transitions.
	resp = f.do(t, http.MethodPatch, "/appointments/"+appt.ID.String()+"/status", admin,
		UpdateStatusRequest{Status: "Completed"})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestChatFlowEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	tok := f.patientToken(t)

	// Chat is patient-facing only.
	resp := f.do(t, http.MethodPost, "/chat", f.adminToken(t), ChatRequest{Message: "hi"})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/chat", tok, ChatRequest{Message: "   "})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/chat", tok, ChatRequest{Message: "I have a rash"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var chat ChatResponse
	decodeInto(t, resp, &chat)
	assert.Equal(t, "Recommending", chat.Phase)
	require.Len(t, chat.Recommendations, 1)

	resp = f.do(t, http.MethodPost, "/chat/select-doctor", tok, SelectDoctorRequest{
		DoctorID: f.doctor.ID.String(),
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	decodeInto(t, resp, &chat)
	assert.Equal(t, "AwaitingSlotChoice", chat.Phase)
	require.Len(t, chat.Slots, 1)

	resp = f.do(t, http.MethodPost, "/chat/select-slot", tok, SelectSlotRequest{
		SlotID: chat.Slots[0].ID.String(),
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	decodeInto(t, resp, &chat)
	assert.Equal(t, "Booked", chat.Phase)
	require.NotNil(t, chat.Appointment)
	assert.Equal(t, "Skin rash", chat.Appointment.Notes)

	// Out-of-order selection after completion is a conflict.
	resp = f.do(t, http.MethodPost, "/chat/select-slot", tok, SelectSlotRequest{
		SlotID: f.slot.ID.String(),
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/chat/clear", tok, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
