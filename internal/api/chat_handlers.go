package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/healthbridge/appointment-engine/internal/conversation"
)

// ChatHandlers exposes the booking conversation over HTTP. Every route
// here is patient-facing; role checks live in the orchestrator.
type ChatHandlers struct {
	orchestrator *conversation.Orchestrator
}

func NewChatHandlers(orchestrator *conversation.Orchestrator) *ChatHandlers {
	return &ChatHandlers{orchestrator: orchestrator}
}

func (h *ChatHandlers) Message(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	var req ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "empty_message", "message must not be empty")
		return
	}

	reply, err := h.orchestrator.HandleMessage(r.Context(), actor, req.Message)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChatResponse(reply))
}

func (h *ChatHandlers) SelectDoctor(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	var req SelectDoctorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
		return
	}

	reply, err := h.orchestrator.SelectDoctor(r.Context(), actor, doctorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChatResponse(reply))
}

func (h *ChatHandlers) SelectSlot(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	var req SelectSlotRequest
	if !decodeBody(w, r, &req) {
		return
	}
	slotID, err := uuid.Parse(req.SlotID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
		return
	}

	reply, err := h.orchestrator.SelectSlot(r.Context(), actor, slotID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChatResponse(reply))
}

func (h *ChatHandlers) Clear(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustIdentity(w, r)
	if !ok {
		return
	}
	if err := h.orchestrator.Clear(r.Context(), actor); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
