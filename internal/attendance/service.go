// Package attendance is the orchestration core: it owns session creation,
// geofence validation of incoming check-ins, and reads over the ledger.
package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"

	"geoattend/internal/geo"
	"geoattend/internal/store"
)

// Service validates requests against the session registry and geofence and
// writes accepted check-ins to the ledger. All operations are synchronous
// and safe for concurrent use.
type Service struct {
	sessions     *store.SessionStore
	ledger       *store.Ledger
	radiusMeters float64
	validate     *validator.Validate
}

func NewService(sessions *store.SessionStore, ledger *store.Ledger, radiusMeters float64) *Service {
	return &Service{
		sessions:     sessions,
		ledger:       ledger,
		radiusMeters: radiusMeters,
		validate:     validator.New(),
	}
}

type CreateSessionInput struct {
	ClassName   string  `validate:"required"`
	TeacherName string  `validate:"required"`
	Latitude    float64 `validate:"latitude"`
	Longitude   float64 `validate:"longitude"`
}

// CreateSession opens a new attendance window anchored at the teacher's
// coordinate and returns the stored session.
func (s *Service) CreateSession(in CreateSessionInput) (store.Session, error) {
	if err := s.validate.Struct(in); err != nil {
		return store.Session{}, &InvalidInputError{Err: err}
	}
	origin := geo.Coordinate{Latitude: in.Latitude, Longitude: in.Longitude}
	return s.sessions.Create(in.ClassName, in.TeacherName, origin), nil
}

// GetSessionInfo resolves a session for display. Unknown ids and expired
// sessions fail differently so the client can render "invalid link" vs
// "link expired".
func (s *Service) GetSessionInfo(sessionID string) (store.Session, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return store.Session{}, ErrSessionNotFound
	}
	if !session.Active(time.Now().UTC()) {
		return store.Session{}, ErrSessionExpired
	}
	return session, nil
}

type MarkAttendanceInput struct {
	SessionID   string  `validate:"required"`
	StudentName string  `validate:"required"`
	RollNo      string  `validate:"required"`
	Course      string  `validate:"required"`
	Latitude    float64 `validate:"latitude"`
	Longitude   float64 `validate:"longitude"`

	// DeviceKey identifies the submitting device. Optional; when set, a
	// device may produce at most one accepted check-in per session.
	DeviceKey string
}

// MarkAttendance validates a check-in and appends it to the ledger. The
// returned record carries the computed distance from the session origin.
func (s *Service) MarkAttendance(in MarkAttendanceInput) (store.AttendanceRecord, error) {
	if err := s.validate.Struct(in); err != nil {
		return store.AttendanceRecord{}, &InvalidInputError{Err: err}
	}

	session, ok := s.sessions.Get(in.SessionID)
	if !ok {
		return store.AttendanceRecord{}, ErrSessionNotFound
	}
	if !session.Active(time.Now().UTC()) {
		return store.AttendanceRecord{}, ErrSessionExpired
	}

	claimed := geo.Coordinate{Latitude: in.Latitude, Longitude: in.Longitude}
	distance := geo.DistanceMeters(session.Origin, claimed)
	if distance > s.radiusMeters {
		return store.AttendanceRecord{}, &TooFarError{DistanceMeters: distance, RadiusMeters: s.radiusMeters}
	}

	record := store.AttendanceRecord{
		SessionID:      session.ID,
		StudentName:    in.StudentName,
		RollNo:         in.RollNo,
		Course:         in.Course,
		Coordinate:     claimed,
		DistanceMeters: distance,
		Timestamp:      time.Now().UTC(),
	}
	if err := s.ledger.Append(record, in.DeviceKey); err != nil {
		return store.AttendanceRecord{}, err
	}
	return record, nil
}

// Session resolves a session regardless of expiry, for read paths that may
// run after the window closes (exports, dashboards).
func (s *Service) Session(sessionID string) (store.Session, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return store.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// ListAttendance returns the session's accepted check-ins in arrival order.
// The session must exist; expired-but-unpurged sessions still list so the
// teacher can read results after the window closes.
func (s *Service) ListAttendance(sessionID string) ([]store.AttendanceRecord, error) {
	if _, ok := s.sessions.Get(sessionID); !ok {
		return nil, ErrSessionNotFound
	}
	return s.ledger.ListFor(sessionID), nil
}

// PurgeExpired drops expired sessions and their ledger partitions. Returns
// the number of sessions removed.
func (s *Service) PurgeExpired(now time.Time) int {
	purged := s.sessions.PurgeExpired(now)
	if len(purged) > 0 {
		s.ledger.Purge(purged...)
	}
	return len(purged)
}
