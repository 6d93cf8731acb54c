package authz

import (
	"log/slog"
	"net/http"
	"strings"
)

// SubjectHeader carries the authenticated subject identifier, set by the
// upstream gateway after authentication.
const SubjectHeader = "X-Subject"

// Middleware wires authorization guards for HTTP handlers.
type Middleware struct {
	Engine  *Engine
	Logger  *slog.Logger
	Metrics CheckObserver
}

// CheckObserver records check outcomes; satisfied by observability.Metrics.
type CheckObserver interface {
	ObserveCheck(granted bool)
}

// RequireAny admits the request when the subject holds at least one of the
// listed permissions. An empty permission list passes through unchanged.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	required := dedupe(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			subject, ok := m.subject(r)
			if !ok {
				m.deny(w, false)
				return
			}
			granted := m.Engine.HasAnyPermission(subject, required)
			m.observe(granted)
			if !granted {
				m.deny(w, true)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAll admits the request only when the subject holds every listed
// permission.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	required := dedupe(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			subject, ok := m.subject(r)
			if !ok {
				m.deny(w, false)
				return
			}
			granted := m.Engine.HasAllPermissions(subject, required)
			m.observe(granted)
			if !granted {
				m.deny(w, true)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) subject(r *http.Request) (string, bool) {
	subject := strings.TrimSpace(r.Header.Get(SubjectHeader))
	return subject, subject != ""
}

// deny rejects with 403 in all cases; the response never explains whether
// the subject was missing or merely lacked the permission.
func (m Middleware) deny(w http.ResponseWriter, checked bool) {
	if !checked {
		m.observe(false)
	}
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

func (m Middleware) observe(granted bool) {
	if m.Metrics != nil {
		m.Metrics.ObserveCheck(granted)
	}
}

func dedupe(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
