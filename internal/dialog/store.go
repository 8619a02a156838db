package dialog

import (
	"context"
	"sync"
	"time"

	"finman/pkg/clock"

	"go.uber.org/zap"
)

type slot struct {
	mu      sync.Mutex
	session *Session
	refs    int
}

// Store keeps at most one session per user. Callers hold Lock(userID) for a
// whole turn; Get, Upsert and Remove assume that lock is held.
type Store struct {
	mu          sync.Mutex
	slots       map[string]*slot
	idleTimeout time.Duration
	clock       clock.Clock
	logger      *zap.Logger
}

func NewStore(idleTimeout time.Duration, clk clock.Clock, logger *zap.Logger) *Store {
	return &Store{
		slots:       make(map[string]*slot),
		idleTimeout: idleTimeout,
		clock:       clk,
		logger:      logger,
	}
}

// Lock acquires the per-user exclusion scope and returns its release func.
func (s *Store) Lock(userID string) func() {
	s.mu.Lock()
	sl, ok := s.slots[userID]
	if !ok {
		sl = &slot{}
		s.slots[userID] = sl
	}
	sl.refs++
	s.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		s.mu.Lock()
		sl.refs--
		if sl.refs == 0 && sl.session == nil {
			delete(s.slots, userID)
		}
		s.mu.Unlock()
	}
}

func (s *Store) slot(userID string) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[userID]
	if !ok {
		sl = &slot{}
		s.slots[userID] = sl
	}
	return sl
}

// Get returns a copy of the user's session. An idle session is dropped and
// reported as ErrSessionExpired.
func (s *Store) Get(userID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[userID]
	if !ok || sl.session == nil {
		return nil, ErrSessionNotFound
	}
	if s.expired(sl.session, s.clock.Now()) {
		sl.session = nil
		if sl.refs == 0 {
			delete(s.slots, userID)
		}
		return nil, ErrSessionExpired
	}
	return sl.session.clone(), nil
}

func (s *Store) Upsert(session *Session) {
	sl := s.slot(session.UserID)
	s.mu.Lock()
	sl.session = session.clone()
	s.mu.Unlock()
}

func (s *Store) Remove(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.slots[userID]; ok {
		sl.session = nil
		if sl.refs == 0 {
			delete(s.slots, userID)
		}
	}
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sl := range s.slots {
		if sl.session != nil {
			n++
		}
	}
	return n
}

func (s *Store) expired(session *Session, now time.Time) bool {
	return s.idleTimeout > 0 && now.Sub(session.LastActivityAt) > s.idleTimeout
}

// Sweep evicts idle sessions and returns how many were dropped. Sessions
// whose turn is in progress are skipped.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for userID, sl := range s.slots {
		if sl.session == nil || !s.expired(sl.session, now) {
			continue
		}
		if !sl.mu.TryLock() {
			continue
		}
		s.logger.Info("Session evicted",
			zap.String("user_id", userID),
			zap.String("conversation_id", sl.session.ConversationID.String()),
			zap.String("state", sl.session.State().String()),
		)
		sl.session = nil
		sl.mu.Unlock()
		if sl.refs == 0 {
			delete(s.slots, userID)
		}
		evicted++
	}
	return evicted
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(s.clock.Now()); n > 0 {
				s.logger.Info("Idle sessions swept", zap.Int("evicted", n))
			}
		}
	}
}
