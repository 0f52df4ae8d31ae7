package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionStore holds sessions in process memory. Concurrent requests
// for the same patient are serialized behind a per-session mutex;
// unrelated patients never contend.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	onEvict  func(patientKey string)
	ttl      time.Duration
	log      *zap.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

type sessionEntry struct {
	mu sync.Mutex
	s  *Session
}

func NewSessionStore(ttl time.Duration, log *zap.Logger) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*sessionEntry),
		ttl:      ttl,
		log:      log,
		stop:     make(chan struct{}),
	}
}

// WithSession runs fn with exclusive access to the patient's session,
// creating one in Intake if none exists.
func (st *SessionStore) WithSession(patientKey string, patientID uuid.UUID, fn func(*Session) error) error {
	st.mu.Lock()
	entry, ok := st.sessions[patientKey]
	if !ok {
		entry = &sessionEntry{s: newSession(patientKey, patientID)}
		st.sessions[patientKey] = entry
	}
	st.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err := fn(entry.s); err != nil {
		return err
	}
	entry.s.UpdatedAt = time.Now()
	return nil
}

// Peek returns a copy of the session if one exists. Read-only helper
// for handlers and tests.
func (st *SessionStore) Peek(patientKey string) (Session, bool) {
	st.mu.Lock()
	entry, ok := st.sessions[patientKey]
	st.mu.Unlock()
	if !ok {
		return Session{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return *entry.s, true
}

// SetOnEvict registers a hook fired for each session the sweeper drops.
// State held elsewhere for the same key (the recommendation
// collaborator's server-side context) is torn down through it. Explicit
// Delete does not fire the hook; those callers clear directly.
func (st *SessionStore) SetOnEvict(fn func(patientKey string)) {
	st.mu.Lock()
	st.onEvict = fn
	st.mu.Unlock()
}

// Delete discards the session outright.
func (st *SessionStore) Delete(patientKey string) {
	st.mu.Lock()
	delete(st.sessions, patientKey)
	st.mu.Unlock()
}

// StartSweeper drops sessions idle longer than the TTL. Sessions are
// ephemeral by contract, so an occasional early sweep only costs the
// patient a restarted conversation.
func (st *SessionStore) StartSweeper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-st.stop:
				return
			case <-ticker.C:
				st.sweep()
			}
		}
	}()
}

func (st *SessionStore) sweep() {
	cutoff := time.Now().Add(-st.ttl)
	var evicted []string
	st.mu.Lock()
	for key, entry := range st.sessions {
		// An entry that is locked is mid-request and by definition not idle.
		if !entry.mu.TryLock() {
			continue
		}
		idle := entry.s.UpdatedAt.Before(cutoff)
		entry.mu.Unlock()
		if idle {
			delete(st.sessions, key)
			evicted = append(evicted, key)
			st.log.Debug("swept idle conversation session", zap.String("patient_key", key))
		}
	}
	onEvict := st.onEvict
	st.mu.Unlock()

	if onEvict != nil {
		for _, key := range evicted {
			onEvict(key)
		}
	}
}

func (st *SessionStore) Close() {
	st.stopOnce.Do(func() { close(st.stop) })
}
