package store

import (
	"errors"
	"sync"
	"time"

	"geoattend/internal/geo"
)

var (
	// ErrDuplicateCheckIn means the roll number already has an accepted
	// check-in for the session. Rejected rather than overwritten.
	ErrDuplicateCheckIn = errors.New("attendance already marked for this roll number")
	// ErrDeviceUsed means the device already produced an accepted check-in
	// for the session, regardless of roll number.
	ErrDeviceUsed = errors.New("device already used for this session")
)

// AttendanceRecord is one accepted check-in. Immutable once appended.
type AttendanceRecord struct {
	SessionID      string
	StudentName    string
	RollNo         string
	Course         string
	Coordinate     geo.Coordinate
	DistanceMeters float64
	Timestamp      time.Time
}

type sessionLedger struct {
	records []AttendanceRecord
	byRoll  map[string]struct{}
	devices map[string]struct{}
}

// Ledger is the per-session append-only collection of accepted check-ins,
// partitioned by session id. The roll-number and device duplicate checks are
// performed under the same lock as the insert, so two racing check-ins for
// the same (session, rollNo) can never both succeed.
type Ledger struct {
	mu       sync.Mutex
	sessions map[string]*sessionLedger
}

func NewLedger() *Ledger {
	return &Ledger{sessions: make(map[string]*sessionLedger)}
}

// Append records an accepted check-in. deviceKey may be empty, in which case
// no device restriction applies to this record.
func (l *Ledger) Append(record AttendanceRecord, deviceKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ledger, ok := l.sessions[record.SessionID]
	if !ok {
		ledger = &sessionLedger{
			byRoll:  make(map[string]struct{}),
			devices: make(map[string]struct{}),
		}
		l.sessions[record.SessionID] = ledger
	}
	if _, exists := ledger.byRoll[record.RollNo]; exists {
		return ErrDuplicateCheckIn
	}
	if deviceKey != "" {
		if _, exists := ledger.devices[deviceKey]; exists {
			return ErrDeviceUsed
		}
	}

	ledger.records = append(ledger.records, record)
	ledger.byRoll[record.RollNo] = struct{}{}
	if deviceKey != "" {
		ledger.devices[deviceKey] = struct{}{}
	}
	return nil
}

// ListFor returns the session's records in arrival order. Unknown sessions
// yield an empty slice, not an error.
func (l *Ledger) ListFor(sessionID string) []AttendanceRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	ledger, ok := l.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]AttendanceRecord, len(ledger.records))
	copy(out, ledger.records)
	return out
}

// Purge drops the ledger partitions for the given sessions.
func (l *Ledger) Purge(sessionIDs ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range sessionIDs {
		delete(l.sessions, id)
	}
}
