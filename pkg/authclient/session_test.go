package authclient

import (
	"testing"
	"time"
)

func TestSessionStore(t *testing.T) {
	var (
		s   sessionStore
		now = time.Time{}.Add(time.Hour)
	)

	if _, ok := s.Load(now); ok {
		t.Fatal("expected empty store")
	}

	s.Store("token-1", now.Add(DefaultSessionTTL))

	for _, tc := range []struct {
		name    string
		advance time.Duration
		valid   bool
	}{
		{name: "immediately valid", advance: 0, valid: true},
		{name: "valid before expiry", advance: DefaultSessionTTL - time.Second, valid: true},
		{name: "invalid at expiry", advance: time.Second, valid: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			now = now.Add(tc.advance)
			token, ok := s.Load(now)
			if ok != tc.valid {
				t.Fatalf("expected valid %t, got %t", tc.valid, ok)
			}
			if ok && token != "token-1" {
				t.Errorf("expected token-1, got %q", token)
			}
		})
	}
}

func TestSessionStoreLastWriterWins(t *testing.T) {
	var s sessionStore
	now := time.Time{}

	s.Store("token-1", now.Add(time.Minute))
	s.Store("token-2", now.Add(time.Minute))

	if token, _ := s.Load(now); token != "token-2" {
		t.Errorf("expected token-2, got %q", token)
	}
}

func TestSessionStoreInvalidate(t *testing.T) {
	var s sessionStore
	now := time.Time{}

	s.Store("token-2", now.Add(time.Minute))

	// A stale token must not drop a newer session.
	s.Invalidate("token-1")
	if _, ok := s.Load(now); !ok {
		t.Fatal("expected session to survive invalidation of another token")
	}

	s.Invalidate("token-2")
	if _, ok := s.Load(now); ok {
		t.Fatal("expected session to be invalidated")
	}
	if _, ok := s.Session(); ok {
		t.Fatal("expected no session")
	}
}
