package dialog

import (
	"context"
	"sync"
)

// Mode identifies which flow a session is currently in.
type Mode string

const (
	// ModeNone means no flow is active; only /start or a menu press advance.
	ModeNone Mode = ""
	// ModeEligibility means the session is inside the Yes/No questionnaire.
	ModeEligibility Mode = "elig"
	// ModeScheduling means the session is collecting scheduling form fields.
	ModeScheduling Mode = "sched"
)

// Eligibility outcome values. These are written verbatim to the audit log.
const (
	EligibleUnset = ""
	EligibleYes   = "SIM"
	EligibleNo    = "NAO"
)

// Criterion sentinels for sessions that never answered a question positively.
const (
	CriterionDirect = "agendamento_direto"
	CriterionNone   = "nenhum"
)

// Session is the per-user dialogue state. It is mutated by exactly one
// inbound event at a time and serialized as JSON by the Redis store.
type Session struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`

	Mode      Mode   `json:"mode"`
	EligStep  int    `json:"elig_step"`
	Eligible  string `json:"eligible"`
	Criterion string `json:"criterion"`

	SchedStep int               `json:"sched_step"`
	Answers   map[string]string `json:"answers"`

	// BookingText is frozen from Answers at confirmation time and written
	// verbatim into the claimed slot cell. Never recomputed afterwards.
	BookingText string `json:"booking_text,omitempty"`

	// CachedSlots holds the candidates presented at the last slot prompt,
	// used to resolve the chosen slot's label for the audit row.
	CachedSlots []Slot `json:"cached_slots,omitempty"`
}

// NewSession returns a session in its initial state.
func NewSession(userID int64, username string) *Session {
	return &Session{
		UserID:   userID,
		Username: username,
		Answers:  make(map[string]string),
	}
}

// Reset returns the session to its initial values, keeping identity fields.
func (s *Session) Reset() {
	s.Mode = ModeNone
	s.EligStep = 0
	s.Eligible = EligibleUnset
	s.Criterion = ""
	s.SchedStep = 0
	s.Answers = make(map[string]string)
	s.BookingText = ""
	s.CachedSlots = nil
}

// MemorySessionStore keeps sessions in a mutex-guarded map. It backs tests
// and deployments without Redis configured.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewMemorySessionStore creates an empty in-memory store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[int64]*Session)}
}

// Load returns the stored session or nil when the user has none.
func (m *MemorySessionStore) Load(_ context.Context, userID int64) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, nil
	}
	copied := *s
	copied.Answers = make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		copied.Answers[k] = v
	}
	copied.CachedSlots = append([]Slot(nil), s.CachedSlots...)
	return &copied, nil
}

// Save stores a copy of the session.
func (m *MemorySessionStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	copied.Answers = make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		copied.Answers[k] = v
	}
	copied.CachedSlots = append([]Slot(nil), s.CachedSlots...)
	m.sessions[s.UserID] = &copied
	return nil
}

var _ SessionStore = (*MemorySessionStore)(nil)
