package authclient

import (
	"sync"
	"time"
)

// DefaultSessionTTL is how long a session token is reused after acquisition.
const DefaultSessionTTL = 1000 * time.Second

// Session is a token issued by the authentication service.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Valid reports whether the session can still be used at now.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt)
}

// sessionStore holds at most one session. Readers share the lock; a refresh
// only takes the write lock to swap the session in, so concurrent refreshes
// are not de-duplicated and the last writer wins.
type sessionStore struct {
	lock    sync.RWMutex
	session *Session
}

func (s *sessionStore) Load(now time.Time) (string, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if !s.session.Valid(now) {
		return "", false
	}
	return s.session.Token, true
}

func (s *sessionStore) Store(token string, expires time.Time) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.session = &Session{Token: token, ExpiresAt: expires}
}

// Invalidate drops the session if it still holds token.
func (s *sessionStore) Invalidate(token string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.session != nil && s.session.Token == token {
		s.session = nil
	}
}

func (s *sessionStore) Session() (Session, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.session == nil {
		return Session{}, false
	}
	return *s.session, true
}
