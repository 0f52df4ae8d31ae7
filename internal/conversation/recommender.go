package conversation

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrRecommenderTimeout is the retryable external-collaborator failure.
// It never advances a session phase and never mutates booking state.
var ErrRecommenderTimeout = errors.New("recommendation collaborator timed out")

// DoctorRef is a ranked recommendation entry surfaced to the patient.
type DoctorRef struct {
	ID             uuid.UUID
	Name           string
	Specialization string
	Location       string
	Experience     int
	Rating         float64
}

// Result is what the recommendation collaborator returns for one
// inbound message. The orchestrator routes it; it never parses symptom
// text itself.
type Result struct {
	Reply           string
	Condition       string
	Recommendations []DoctorRef
	HasEnoughInfo   bool
	IsConfirming    bool
}

// Recommender is the opaque external recommendation collaborator.
// Clear drops any server-held conversational context for the key and is
// best effort.
type Recommender interface {
	Recommend(ctx context.Context, key string, transcript []Turn) (Result, error)
	Clear(ctx context.Context, key string) error
}

// DoctorDirectory resolves a specialty into ranked doctors. The Gemini
// recommender uses it so that recommendations always reference real
// records.
type DoctorDirectory interface {
	SearchBySpecialization(ctx context.Context, specialization string) ([]DoctorRef, error)
}
