package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

// tokenHeader is the legacy header devices send the shared token in
const tokenHeader = "protected"

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			s.log.Debug("unauthorized request", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, map[string]any{})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return false
	}
	presented := r.Header.Get(tokenHeader)
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		presented = strings.TrimSpace(bearer)
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.token)) == 1
}

// instrument labels request metrics with the matched route template
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.WrapHandler(route, next).ServeHTTP(w, r)
	})
}

const (
	maxTrackedSources = 10000
	sourceIdleTTL     = 10 * time.Minute
)

type sourceEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// sourceLimiter keeps one token bucket per ingest source
type sourceLimiter struct {
	mu      sync.Mutex
	sources map[string]*sourceEntry
	limit   rate.Limit
	burst   int
}

func newSourceLimiter(perSecond float64, burst int) *sourceLimiter {
	return &sourceLimiter{
		sources: make(map[string]*sourceEntry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

func (l *sourceLimiter) allow(source string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.sources[source]
	if !ok {
		if len(l.sources) >= maxTrackedSources {
			l.pruneLocked(now)
		}
		e = &sourceEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.sources[source] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (l *sourceLimiter) pruneLocked(now time.Time) {
	for k, e := range l.sources {
		if now.Sub(e.lastSeen) > sourceIdleTTL {
			delete(l.sources, k)
		}
	}
}
