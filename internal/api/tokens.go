package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/joestump/bio-links/internal/auth"
	"github.com/joestump/bio-links/internal/store"
)

// tokensAPIHandler serves token management for API clients.
type tokensAPIHandler struct {
	tokens auth.TokenStore
}

func registerTokenRoutes(r chi.Router, tokens auth.TokenStore) {
	h := &tokensAPIHandler{tokens: tokens}
	r.Get("/tokens", h.List)
	r.Post("/tokens", h.Create)
	r.Post("/tokens/{id}/rotate", h.Rotate)
	r.Delete("/tokens/{id}", h.Revoke)
}

// List returns the caller's usable tokens. Secrets are never included.
//
// @Summary      List API tokens
// @Tags         Tokens
// @Produce      json
// @Success      200  {object}  TokenListResponse
// @Failure      401  {object}  ErrorResponse
// @Security     BearerToken
// @Router       /tokens [get]
func (h *tokensAPIHandler) List(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.tokens.ListActive(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	resp := &TokenListResponse{Tokens: make([]*TokenResponse, 0, len(tokens))}
	for _, tok := range tokens {
		resp.Tokens = append(resp.Tokens, toTokenResponse(tok))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create issues a token and returns its secret once. Scope defaults to read
// and expiry to 90 days; a user holds at most 10 usable tokens.
//
// @Summary      Create an API token
// @Description  The secret is only returned by this call. Read tokens may only use GET.
// @Tags         Tokens
// @Accept       json
// @Produce      json
// @Param        body  body      CreateTokenRequest  true  "Token"
// @Success      201   {object}  TokenResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      403   {object}  ErrorResponse
// @Security     BearerToken
// @Router       /tokens [post]
func (h *tokensAPIHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var ttl time.Duration
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil {
			writeStoreError(w, r, &store.ValidationError{Field: "expires_in", Message: "expires_in must be a duration such as 720h"})
			return
		}
		ttl = d
	}

	issued, err := h.tokens.Issue(r.Context(), auth.UserIDFromContext(r.Context()), auth.TokenSpec{
		Name:  req.Name,
		Scope: auth.Scope(req.Scope),
		TTL:   ttl,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIssuedResponse(issued))
}

// Rotate replaces a token with a new secret of the same name, scope and
// lifetime. The old secret stops working immediately.
//
// @Summary      Rotate an API token
// @Tags         Tokens
// @Produce      json
// @Param        id  path  string  true  "Token ID"
// @Success      201  {object}  TokenResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Security     BearerToken
// @Router       /tokens/{id}/rotate [post]
func (h *tokensAPIHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	issued, err := h.tokens.Rotate(r.Context(), auth.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIssuedResponse(issued))
}

// Revoke ends a token owned by the caller.
//
// @Summary      Revoke an API token
// @Tags         Tokens
// @Param        id  path  string  true  "Token ID"
// @Success      204
// @Failure      401  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Security     BearerToken
// @Router       /tokens/{id} [delete]
func (h *tokensAPIHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := h.tokens.Revoke(r.Context(), auth.UserIDFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
