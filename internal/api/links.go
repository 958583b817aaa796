package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joestump/bio-links/internal/auth"
	"github.com/joestump/bio-links/internal/store"
)

// linksAPIHandler provides REST handlers for the caller's link collection.
// The owner id always comes from the authenticated token, never the request.
type linksAPIHandler struct {
	links store.LinkStoreIface
}

func registerLinkRoutes(r chi.Router, links store.LinkStoreIface) {
	h := &linksAPIHandler{links: links}
	r.Get("/links", h.List)
	r.Post("/links", h.Create)
	r.Put("/links/order", h.Reorder)
	r.Get("/links/{id}", h.Get)
	r.Patch("/links/{id}", h.Update)
	r.Delete("/links/{id}", h.Delete)
	r.Post("/links/{id}/toggle", h.Toggle)
}

// List returns the caller's links ordered by position.
//
// @Summary      List links
// @Description  Returns every link owned by the caller, active or not, ordered by position.
// @Tags         Links
// @Produce      json
// @Success      200  {object}  LinkListResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Security     BearerToken
// @Router       /links [get]
func (h *linksAPIHandler) List(w http.ResponseWriter, r *http.Request) {
	links, err := h.links.List(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLinkList(links))
}

// Create appends a new link to the end of the caller's list.
//
// @Summary      Create a link
// @Description  Validates the title and URL and appends the link at the next position.
// @Tags         Links
// @Accept       json
// @Produce      json
// @Param        body  body      CreateLinkRequest  true  "Link to create"
// @Success      201   {object}  LinkResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      409   {object}  ErrorResponse
// @Failure      500   {object}  ErrorResponse
// @Security     BearerToken
// @Router       /links [post]
func (h *linksAPIHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	link, err := h.links.Create(r.Context(), auth.UserIDFromContext(r.Context()), store.LinkInput{
		Title:    req.Title,
		URL:      req.URL,
		Icon:     req.Icon,
		IsActive: req.IsActive,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLinkResponse(link))
}

// Get returns one of the caller's links.
//
// @Summary      Get a link
// @Description  Returns a single link. Links owned by someone else are reported as not found.
// @Tags         Links
// @Produce      json
// @Param        id   path      string  true  "Link ID"
// @Success      200  {object}  LinkResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Security     BearerToken
// @Router       /links/{id} [get]
func (h *linksAPIHandler) Get(w http.ResponseWriter, r *http.Request) {
	link, err := h.links.Get(r.Context(), auth.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLinkResponse(link))
}

// Update applies a partial update. A position moves the link and renumbers the rest.
//
// @Summary      Update a link
// @Description  Changes only the fields present in the body. Setting position moves the link within the list.
// @Tags         Links
// @Accept       json
// @Produce      json
// @Param        id    path      string             true  "Link ID"
// @Param        body  body      UpdateLinkRequest  true  "Fields to change"
// @Success      200   {object}  LinkResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      404   {object}  ErrorResponse
// @Failure      409   {object}  ErrorResponse
// @Security     BearerToken
// @Router       /links/{id} [patch]
func (h *linksAPIHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateLinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	link, err := h.links.Update(r.Context(), auth.UserIDFromContext(r.Context()), chi.URLParam(r, "id"), store.LinkPatch{
		Title:    req.Title,
		URL:      req.URL,
		Icon:     req.Icon,
		IsActive: req.IsActive,
		Position: req.Position,
		Metadata: req.Metadata,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLinkResponse(link))
}

// Delete removes a link and closes the gap in the ordering.
//
// @Summary      Delete a link
// @Description  Deletes the link; links after it move up one position.
// @Tags         Links
// @Param        id  path  string  true  "Link ID"
// @Success      204
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Security     BearerToken
// @Router       /links/{id} [delete]
func (h *linksAPIHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.links.Delete(r.Context(), auth.UserIDFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Toggle flips a link between active and hidden.
//
// @Summary      Toggle a link
// @Description  Flips is_active. Hidden links stay in the owner's list but not on the public page.
// @Tags         Links
// @Produce      json
// @Param        id   path      string  true  "Link ID"
// @Success      200  {object}  LinkResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Security     BearerToken
// @Router       /links/{id}/toggle [post]
func (h *linksAPIHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	link, err := h.links.ToggleActive(r.Context(), auth.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLinkResponse(link))
}

// Reorder sets the full order of the caller's links in one transaction.
//
// @Summary      Reorder links
// @Description  ids must list every one of the caller's links exactly once. With versions, any link changed since the client read it fails the whole call with 409.
// @Tags         Links
// @Accept       json
// @Produce      json
// @Param        body  body      ReorderRequest  true  "New order"
// @Success      200   {object}  LinkListResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      409   {object}  ErrorResponse
// @Security     BearerToken
// @Router       /links/order [put]
func (h *linksAPIHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ownerID := auth.UserIDFromContext(r.Context())

	var err error
	if req.Versions == nil {
		err = h.links.Reorder(r.Context(), ownerID, req.IDs)
	} else {
		stamps := make([]store.LinkStamp, len(req.IDs))
		for i, id := range req.IDs {
			v, ok := req.Versions[id]
			if !ok {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{
					Error: fmt.Sprintf("missing version for link %q", id), Code: "VALIDATION_ERROR", Field: "versions",
				})
				return
			}
			stamps[i] = store.LinkStamp{ID: id, Version: v}
		}
		err = h.links.ReorderStamped(r.Context(), ownerID, stamps)
	}
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	links, err := h.links.List(r.Context(), ownerID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLinkList(links))
}
