package transfer

import (
	"context"
	"sync"
	"time"
)

// Session is the in-memory state of one chunked document upload, keyed by an
// opaque transfer id. A session is finalizable only when every sequence
// number in [0, total) has arrived.
type Session struct {
	ID      string
	Total   int
	URL     string
	DocType string
	Chunks  map[int][]byte

	deadline time.Time
}

// touch pushes the idle deadline forward; called on every message that
// references the session.
func (s *Session) touch(ttl time.Duration) {
	s.deadline = time.Now().Add(ttl)
}

// Missing returns how many sequence numbers below total have not arrived,
// together with the effective total. When the client never announced a total
// the maximum received sequence defines it.
func (s *Session) Missing() (missing, total int) {
	total = s.Total
	if total == 0 {
		for seq := range s.Chunks {
			if seq+1 > total {
				total = seq + 1
			}
		}
	}
	for seq := 0; seq < total; seq++ {
		if _, ok := s.Chunks[seq]; !ok {
			missing++
		}
	}
	return missing, total
}

// Assemble concatenates the chunk payloads in sequence order. Callers must
// have checked Missing first.
func (s *Session) Assemble() []byte {
	_, total := s.Missing()
	var size int
	for _, b := range s.Chunks {
		size += len(b)
	}
	out := make([]byte, 0, size)
	for seq := 0; seq < total; seq++ {
		out = append(out, s.Chunks[seq]...)
	}
	return out
}

// SessionManager owns every in-flight transfer session. It replaces the
// module-level assembly map of earlier iterations: state is scoped to the
// server instance and sessions that idle past their TTL are evicted by a
// janitor goroutine instead of leaking for the process lifetime.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
}

// DefaultSessionTTL is how long a silent session survives before eviction.
const DefaultSessionTTL = 30 * time.Minute

func NewSessionManager(ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{sessions: make(map[string]*Session), ttl: ttl}
}

// Begin creates the session for id, or re-creates it preserving any chunks
// already received under the same id.
func (m *SessionManager) Begin(id string, total int, url, docType string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	chunks := map[int][]byte{}
	if prev, ok := m.sessions[id]; ok {
		chunks = prev.Chunks
	}
	sess := &Session{ID: id, Total: total, URL: url, DocType: docType, Chunks: chunks}
	sess.touch(m.ttl)
	m.sessions[id] = sess
	sessionsActive.Set(float64(len(m.sessions)))
	return sess
}

// AddChunk stores one decoded chunk, creating the session on the fly when a
// chunk precedes its begin.
func (m *SessionManager) AddChunk(id string, seq int, data []byte, total int, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		sess = &Session{ID: id, Total: total, URL: url, Chunks: map[int][]byte{}}
		m.sessions[id] = sess
		sessionsActive.Set(float64(len(m.sessions)))
	}
	sess.Chunks[seq] = data
	sess.touch(m.ttl)
}

// Get returns the session for id, refreshing its idle deadline.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if ok {
		sess.touch(m.ttl)
	}
	return sess, ok
}

// FinalizeResult is the outcome of a completeness check. When Missing is
// zero, Payload holds the assembled document.
type FinalizeResult struct {
	Payload []byte
	URL     string
	DocType string
	Missing int
}

// Finalize checks the session for id and, when every chunk is present,
// assembles the payload. Both happen under the manager lock: a chunk written
// by one connection must never race the completeness read of another.
func (m *SessionManager) Finalize(id string) (FinalizeResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return FinalizeResult{}, false
	}
	sess.touch(m.ttl)

	res := FinalizeResult{URL: sess.URL, DocType: sess.DocType}
	if res.Missing, _ = sess.Missing(); res.Missing > 0 {
		return res, true
	}
	res.Payload = sess.Assemble()
	return res, true
}

// Remove discards the in-memory session after a successful finalize.
func (m *SessionManager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	sessionsActive.Set(float64(len(m.sessions)))
}

// Len reports how many sessions are in flight.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// EvictIdle drops every session whose deadline passed and returns how many
// were removed.
func (m *SessionManager) EvictIdle(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, sess := range m.sessions {
		if now.After(sess.deadline) {
			delete(m.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		sessionsEvicted.Add(float64(evicted))
		sessionsActive.Set(float64(len(m.sessions)))
	}
	return evicted
}

// Janitor evicts idle sessions periodically until ctx is cancelled.
func (m *SessionManager) Janitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.EvictIdle(now)
		}
	}
}
