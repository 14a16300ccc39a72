// Package store holds the in-memory session registry and attendance ledger.
// Both are process-local: sessions are short-lived and the service makes no
// durability promises across restarts.
package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"geoattend/internal/geo"
)

// Session is a teacher-created, time-boxed attendance window anchored to the
// teacher's coordinate at creation time. Immutable after Create.
type Session struct {
	ID          string
	ClassName   string
	TeacherName string
	Origin      geo.Coordinate
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Active reports whether the session still accepts check-ins at now.
// Existence and validity are separate concerns: Get answers the former,
// Active the latter.
func (s Session) Active(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// SessionStore is a mutex-guarded registry of sessions keyed by id.
type SessionStore struct {
	mu       sync.RWMutex
	validity time.Duration
	sessions map[string]Session
}

func NewSessionStore(validity time.Duration) *SessionStore {
	return &SessionStore{
		validity: validity,
		sessions: make(map[string]Session),
	}
}

// Create registers a new session and returns it with id and expiry stamped.
func (s *SessionStore) Create(className, teacherName string, origin geo.Coordinate) Session {
	now := time.Now().UTC()
	session := Session{
		ID:          uuid.NewString(),
		ClassName:   className,
		TeacherName: teacherName,
		Origin:      origin,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.validity),
	}
	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	return session
}

// Get looks up a session by id. Expired sessions are still returned until
// purged; callers check Active themselves.
func (s *SessionStore) Get(id string) (Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	return session, ok
}

// PurgeExpired removes sessions whose expiry lies before now and returns the
// purged ids so callers can drop dependent state. No-op when nothing expired.
func (s *SessionStore) PurgeExpired(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged []string
	for id, session := range s.sessions {
		if session.ExpiresAt.Before(now) {
			delete(s.sessions, id)
			purged = append(purged, id)
		}
	}
	return purged
}

// Len returns the number of stored sessions, expired or not.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
