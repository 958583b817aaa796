package auth

import (
	"context"
	"net/http"
	"net/url"

	"github.com/alexedwards/scs/v2"
	"github.com/sirupsen/logrus"

	"github.com/joestump/bio-links/internal/store"
)

type contextKey string

const UserContextKey contextKey = "user"

// UserLookup loads the user a session or token refers to.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*store.User, error)
}

// Middleware provides session-based HTTP middleware for the HTML surface.
type Middleware struct {
	sessions *scs.SessionManager
	users    UserLookup
}

func NewMiddleware(sm *scs.SessionManager, users UserLookup) *Middleware {
	return &Middleware{sessions: sm, users: users}
}

// RequireAuth redirects to /auth/login if no valid session exists.
// On success, sets the *store.User on the request context.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := m.sessionUser(r)
		if user == nil {
			http.Redirect(w, r, "/auth/login?redirect="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// OptionalUser attaches the session user when there is one and never blocks.
func (m *Middleware) OptionalUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := m.sessionUser(r); user != nil {
			r = r.WithContext(WithUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) sessionUser(r *http.Request) *store.User {
	userID := m.sessions.GetString(r.Context(), SessionUserIDKey)
	if userID == "" {
		return nil
	}
	user, err := m.users.GetByID(r.Context(), userID)
	if err != nil {
		// Session references a deleted user.
		logrus.WithError(err).WithField("user_id", userID).Warn("dropping session for unknown user")
		_ = m.sessions.Destroy(r.Context())
		return nil
	}
	return user
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *store.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// UserFromContext retrieves the authenticated user from the context.
func UserFromContext(ctx context.Context) *store.User {
	u, _ := ctx.Value(UserContextKey).(*store.User)
	return u
}

// UserIDFromContext returns the owner id the link store scopes by, or "" when
// the request is anonymous.
func UserIDFromContext(ctx context.Context) string {
	if u := UserFromContext(ctx); u != nil {
		return u.ID
	}
	return ""
}
