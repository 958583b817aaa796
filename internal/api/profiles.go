package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joestump/bio-links/internal/auth"
	"github.com/joestump/bio-links/internal/metrics"
	"github.com/joestump/bio-links/internal/store"
)

type profileAPIHandler struct {
	profiles *store.ProfileStore
}

func registerProfileRoutes(r chi.Router, profiles *store.ProfileStore) {
	h := &profileAPIHandler{profiles: profiles}
	r.Get("/profile", h.Get)
	r.Put("/profile", h.Put)
}

// Get returns the caller's profile.
//
// @Summary      Get my profile
// @Tags         Profile
// @Produce      json
// @Success      200  {object}  ProfileResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Security     BearerToken
// @Router       /profile [get]
func (h *profileAPIHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.GetByUserID(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// Put creates or replaces the caller's profile.
//
// @Summary      Save my profile
// @Description  Claims a username (3-30 letters, digits, '_' or '-') and sets the display fields of the public page.
// @Tags         Profile
// @Accept       json
// @Produce      json
// @Param        body  body      ProfileRequest  true  "Profile"
// @Success      200   {object}  ProfileResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      401   {object}  ErrorResponse
// @Security     BearerToken
// @Router       /profile [put]
func (h *profileAPIHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.profiles.Upsert(r.Context(), auth.UserIDFromContext(r.Context()), store.ProfileInput{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

type publicAPIHandler struct {
	links store.LinkStoreIface
}

func registerPublicRoutes(r chi.Router, links store.LinkStoreIface) {
	h := &publicAPIHandler{links: links}
	r.Get("/public/{username}", h.Get)
}

// Get returns a user's public page. No authentication.
//
// @Summary      Public page
// @Description  Profile display fields and active links, ordered by position.
// @Tags         Public
// @Produce      json
// @Param        username  path      string  true  "Username"
// @Success      200       {object}  PublicPageResponse
// @Failure      404       {object}  ErrorResponse
// @Router       /public/{username} [get]
func (h *publicAPIHandler) Get(w http.ResponseWriter, r *http.Request) {
	page, err := h.links.ListPublic(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		metrics.PublicPageViewsTotal.WithLabelValues("not_found").Inc()
		writeStoreError(w, r, err)
		return
	}
	metrics.PublicPageViewsTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, toPublicPage(page))
}
