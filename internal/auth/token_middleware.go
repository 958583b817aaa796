package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// BearerTokenMiddleware authenticates API requests via Bearer token.
// Session cookies are ignored on API routes; only API tokens are accepted.
type BearerTokenMiddleware struct {
	tokens  TokenStore
	users   UserLookup
	now     func() time.Time
	touches sync.WaitGroup
}

func NewBearerTokenMiddleware(ts TokenStore, users UserLookup) *BearerTokenMiddleware {
	return &BearerTokenMiddleware{tokens: ts, users: users, now: time.Now}
}

// Authenticate resolves the Bearer token to its owner. Missing, unknown,
// revoked and expired tokens are 401; a read token on a mutating method is 403.
func (m *BearerTokenMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		plaintext, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		plaintext = strings.TrimSpace(plaintext)
		if !ok || plaintext == "" {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized", "UNAUTHORIZED")
			return
		}

		now := m.now()
		tok, err := m.tokens.Lookup(r.Context(), plaintext)
		if err != nil || !tok.Usable(now) {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized", "UNAUTHORIZED")
			return
		}
		user, err := m.users.GetByID(r.Context(), tok.UserID)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized", "UNAUTHORIZED")
			return
		}
		if !tok.Scope.Allows(r.Method) {
			writeAuthError(w, http.StatusForbidden, "token scope does not allow "+r.Method, "FORBIDDEN")
			return
		}

		m.touch(tok.ID, now)
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// touch records the use off the request path.
func (m *BearerTokenMiddleware) touch(id string, at time.Time) {
	m.touches.Add(1)
	go func() {
		defer m.touches.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.tokens.Touch(ctx, id, at); err != nil {
			logrus.WithError(err).WithField("token_id", id).Warn("update token last_used_at")
		}
	}()
}

// Wait blocks until pending last-used writes have finished. Call it after the
// HTTP server has stopped and before the database is closed.
func (m *BearerTokenMiddleware) Wait() {
	m.touches.Wait()
}

func writeAuthError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}
