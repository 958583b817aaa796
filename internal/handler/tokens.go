package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/joestump/bio-links/internal/auth"
	"github.com/joestump/bio-links/internal/store"
)

// TokenForm echoes the creation form back after a validation failure.
type TokenForm struct {
	Name      string
	Scope     string
	ExpiresIn string
}

// TokensPage is the template data for the token management settings page.
type TokensPage struct {
	BasePage
	Tokens []*auth.Token
	Issued *auth.IssuedToken // shown once after create or rotate
	Form   TokenForm
	Field  string
	Error  string
	Flash  *Flash
}

// TokensHandler provides web UI handlers for token management.
type TokensHandler struct {
	tokens auth.TokenStore
}

func NewTokensHandler(ts auth.TokenStore) *TokensHandler {
	return &TokensHandler{tokens: ts}
}

// Index renders the token management page with the user's usable tokens.
// GET /dashboard/settings/tokens
func (h *TokensHandler) Index(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	h.respond(w, r, http.StatusOK, TokensPage{BasePage: newBasePage(r, user), Form: TokenForm{ExpiresIn: "2160h"}})
}

// Create processes the token creation form and shows the plaintext once.
// POST /dashboard/settings/tokens
func (h *TokensHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	form := TokenForm{
		Name:      r.FormValue("name"),
		Scope:     r.FormValue("scope"),
		ExpiresIn: strings.TrimSpace(r.FormValue("expires_in")),
	}
	data := TokensPage{BasePage: newBasePage(r, user), Form: form}

	var ttl time.Duration
	if form.ExpiresIn != "" {
		d, err := time.ParseDuration(form.ExpiresIn)
		if err != nil {
			data.Field, data.Error = "expires_in", "Choose how long the token stays valid."
			h.respond(w, r, http.StatusUnprocessableEntity, data)
			return
		}
		ttl = d
	}

	issued, err := h.tokens.Issue(r.Context(), user.ID, auth.TokenSpec{Name: form.Name, Scope: auth.Scope(form.Scope), TTL: ttl})
	var ve *store.ValidationError
	switch {
	case errors.As(err, &ve):
		data.Field, data.Error = ve.Field, ve.Message
		h.respond(w, r, http.StatusUnprocessableEntity, data)
		return
	case err != nil:
		logrus.WithError(err).WithField("user_id", user.ID).Error("issue api token")
		http.Error(w, "could not create token", http.StatusInternalServerError)
		return
	}

	data.Form = TokenForm{ExpiresIn: "2160h"}
	data.Issued = issued
	data.Flash = &Flash{Type: "success", Message: "Token created. Copy it now, it will not be shown again."}
	h.respond(w, r, http.StatusOK, data)
}

// Rotate swaps a token's secret, keeping its name, scope and lifetime.
// POST /dashboard/settings/tokens/{id}/rotate
func (h *TokensHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	data := TokensPage{BasePage: newBasePage(r, user), Form: TokenForm{ExpiresIn: "2160h"}}

	issued, err := h.tokens.Rotate(r.Context(), user.ID, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.NotFound(w, r)
		return
	case errors.Is(err, store.ErrConflict):
		data.Flash = &Flash{Type: "warning", Message: "That token was already rotated or revoked."}
	case err != nil:
		logrus.WithError(err).WithField("user_id", user.ID).Error("rotate api token")
		http.Error(w, "could not rotate token", http.StatusInternalServerError)
		return
	default:
		data.Issued = issued
		data.Flash = &Flash{Type: "success", Message: "Token rotated. The old secret no longer works."}
	}
	h.respond(w, r, http.StatusOK, data)
}

// Revoke ends a token owned by the current user.
// DELETE /dashboard/settings/tokens/{id}
func (h *TokensHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	err := h.tokens.Revoke(r.Context(), user.ID, chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("revoke api token")
		http.Error(w, "revoke failed", http.StatusInternalServerError)
		return
	}
	h.respond(w, r, http.StatusOK, TokensPage{
		BasePage: newBasePage(r, user),
		Form:     TokenForm{ExpiresIn: "2160h"},
		Flash:    &Flash{Type: "success", Message: "Token revoked."},
	})
}

// respond loads the token list and renders either the fragment or the page.
// HTMX only swaps 2xx responses, so fragments always go out as 200.
func (h *TokensHandler) respond(w http.ResponseWriter, r *http.Request, status int, data TokensPage) {
	tokens, err := h.tokens.ListActive(r.Context(), data.User.ID)
	if err != nil {
		logrus.WithError(err).Error("list api tokens")
		http.Error(w, "could not load tokens", http.StatusInternalServerError)
		return
	}
	data.Tokens = tokens
	if isHTMX(r) {
		renderFragment(w, "token_list", data)
		return
	}
	if status != http.StatusOK {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
	}
	render(w, "tokens.html", data)
}
