// Package authservice provides an in-process authentication service speaking
// the session and membership endpoints used by authclient.
package authservice

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
)

// Principal is the service account allowed to open sessions.
type Principal struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Calls counts requests served per endpoint.
type Calls struct {
	Session    int
	Membership int
}

type Mock struct {
	mu        sync.Mutex
	principal Principal
	groups    map[string]map[string]struct{}
	tokens    map[string]struct{}
	calls     Calls

	router http.Handler
	logger log.Logger
}

// NewMock returns a service that issues session tokens to principal and
// answers membership queries from groups, a map of group name to members.
func NewMock(logger log.Logger, principal Principal, groups map[string][]string) *Mock {
	s := &Mock{
		principal: principal,
		groups:    make(map[string]map[string]struct{}),
		tokens:    make(map[string]struct{}),
		logger:    log.With(logger, "component", "authservice/mock"),
	}
	for group, users := range groups {
		for _, user := range users {
			s.AddMember(group, user)
		}
	}

	r := chi.NewRouter()
	r.Get("/session", s.session)
	r.Get("/is-member/{user}/{group}", s.isMember)
	s.router = r

	return s
}

func (s *Mock) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.router.ServeHTTP(w, req)
}

// AddMember puts user into group.
func (s *Mock) AddMember(group, user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groups[group] == nil {
		s.groups[group] = make(map[string]struct{})
	}
	s.groups[group][user] = struct{}{}
}

// RemoveMember takes user out of group.
func (s *Mock) RemoveMember(group, user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups[group], user)
}

// RevokeTokens forgets every issued session token, as if they had expired on
// the service side.
func (s *Mock) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]struct{})
}

// Calls returns the number of requests served so far.
func (s *Mock) Calls() Calls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Mock) session(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Session++

	if q.Get("service_name") != "authentication" {
		write(w, http.StatusBadRequest, "unknown service", s.logger)
		return
	}
	if q.Get("username") != s.principal.Username || q.Get("password") != s.principal.Password {
		level.Debug(s.logger).Log("msg", "rejected session request", "username", q.Get("username"))
		write(w, http.StatusUnauthorized, "invalid credentials", s.logger)
		return
	}

	token := uuid.NewString()
	s.tokens[token] = struct{}{}
	write(w, http.StatusOK, token, s.logger)
}

func (s *Mock) isMember(w http.ResponseWriter, req *http.Request) {
	user, group := chi.URLParam(req, "user"), chi.URLParam(req, "group")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Membership++

	if _, ok := s.tokens[req.Header.Get("Authorization")]; !ok {
		write(w, http.StatusUnauthorized, "invalid session", s.logger)
		return
	}

	if _, ok := s.groups[group][user]; ok {
		write(w, http.StatusOK, "true", s.logger)
		return
	}
	write(w, http.StatusOK, "false", s.logger)
}

func write(w http.ResponseWriter, statusCode int, body string, logger log.Logger) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	if _, err := w.Write([]byte(body)); err != nil {
		level.Error(logger).Log("msg", "writing response failed", "err", err)
	}
}
