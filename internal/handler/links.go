package handler

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/joestump/bio-links/internal/auth"
	"github.com/joestump/bio-links/internal/store"
)

// LinkForm holds form input values for creating or editing a link.
type LinkForm struct {
	Title string
	URL   string
	Icon  string
}

// LinkFormPage is the template data for the edit link page.
type LinkFormPage struct {
	BasePage
	Link  *store.Link
	Form  LinkForm
	Field string
	Error string
}

// staleFlash is shown when a write raced another tab or client.
var staleFlash = &Flash{Type: "warning", Message: "Your links changed somewhere else. This is the current list; try again."}

// LinksHandler provides HTTP handlers for link CRUD and ordering.
type LinksHandler struct {
	linkLister
}

func NewLinksHandler(ls store.LinkStoreIface, cs *store.ClickStore) *LinksHandler {
	return &LinksHandler{linkLister: linkLister{links: ls, clicks: cs}}
}

// Create handles POST /dashboard/links. The new link lands at the end of the list.
func (h *LinksHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	icon := r.FormValue("icon")
	_, err := h.links.Create(r.Context(), user.ID, store.LinkInput{
		Title: r.FormValue("title"),
		URL:   r.FormValue("url"),
		Icon:  &icon,
	})

	var ve *store.ValidationError
	switch {
	case errors.As(err, &ve):
		w.Header().Set("X-Form-Error", ve.Field)
		h.respondList(w, r, user, &Flash{Type: "error", Message: ve.Message})
	case errors.Is(err, store.ErrConflict):
		h.respondList(w, r, user, staleFlash)
	case err != nil:
		logrus.WithError(err).WithField("user_id", user.ID).Error("create link")
		http.Error(w, "could not create link", http.StatusInternalServerError)
	default:
		h.respondList(w, r, user, &Flash{Type: "success", Message: "Link added."})
	}
}

// Edit renders the edit-link page.
func (h *LinksHandler) Edit(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	link, err := h.links.Get(r.Context(), user.ID, chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "could not load link", http.StatusInternalServerError)
		return
	}

	data := LinkFormPage{
		BasePage: newBasePage(r, user),
		Link:     link,
		Form:     LinkForm{Title: link.Title, URL: link.URL, Icon: link.IconName()},
	}
	if isHTMX(r) {
		renderPageFragment(w, "links/edit.html", "content", data)
		return
	}
	render(w, "links/edit.html", data)
}

// Update handles PUT /dashboard/links/{id} from the edit page.
func (h *LinksHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	form := LinkForm{
		Title: r.FormValue("title"),
		URL:   r.FormValue("url"),
		Icon:  r.FormValue("icon"),
	}
	_, err := h.links.Update(r.Context(), user.ID, id, store.LinkPatch{
		Title: &form.Title,
		URL:   &form.URL,
		Icon:  &form.Icon,
	})

	var ve *store.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.NotFound(w, r)
		return
	case errors.As(err, &ve), errors.Is(err, store.ErrConflict):
		link, gerr := h.links.Get(r.Context(), user.ID, id)
		if gerr != nil {
			http.NotFound(w, r)
			return
		}
		data := LinkFormPage{BasePage: newBasePage(r, user), Link: link, Form: form}
		if ve != nil {
			data.Field, data.Error = ve.Field, ve.Message
		} else {
			data.Error = staleFlash.Message
		}
		if isHTMX(r) {
			renderPageFragment(w, "links/edit.html", "content", data)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnprocessableEntity)
		render(w, "links/edit.html", data)
		return
	case err != nil:
		logrus.WithError(err).WithField("link_id", id).Error("update link")
		http.Error(w, "could not update link", http.StatusInternalServerError)
		return
	}

	if isHTMX(r) {
		w.Header().Set("HX-Redirect", "/dashboard")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// Delete handles DELETE /dashboard/links/{id}. The links after it move up one place.
func (h *LinksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	err := h.links.Delete(r.Context(), user.ID, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.NotFound(w, r)
	case errors.Is(err, store.ErrConflict):
		h.respondList(w, r, user, staleFlash)
	case err != nil:
		logrus.WithError(err).Error("delete link")
		http.Error(w, "delete failed", http.StatusInternalServerError)
	default:
		h.respondList(w, r, user, &Flash{Type: "success", Message: "Link deleted."})
	}
}

// Toggle handles POST /dashboard/links/{id}/toggle.
func (h *LinksHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	_, err := h.links.ToggleActive(r.Context(), user.ID, chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.NotFound(w, r)
	case err != nil:
		logrus.WithError(err).Error("toggle link")
		http.Error(w, "toggle failed", http.StatusInternalServerError)
	default:
		h.respondList(w, r, user, nil)
	}
}

// Move handles POST /dashboard/links/{id}/move. The form carries the list as
// the browser last rendered it ("order" values of the form id:version) and a
// direction ("up" or "down"). The swap is applied with those versions, so a
// list edited elsewhere in the meantime is reported instead of overwritten.
func (h *LinksHandler) Move(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	order, err := parseOrder(r.Form["order"])
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	i := slices.IndexFunc(order, func(s store.LinkStamp) bool { return s.ID == id })
	if i < 0 {
		h.respondList(w, r, user, staleFlash)
		return
	}
	j := i - 1
	if r.FormValue("dir") == "down" {
		j = i + 1
	}
	if j < 0 || j >= len(order) {
		h.respondList(w, r, user, nil)
		return
	}
	order[i], order[j] = order[j], order[i]

	err = h.links.ReorderStamped(r.Context(), user.ID, order)
	switch {
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrValidation):
		h.respondList(w, r, user, staleFlash)
	case err != nil:
		logrus.WithError(err).Error("reorder links")
		http.Error(w, "reorder failed", http.StatusInternalServerError)
	default:
		h.respondList(w, r, user, nil)
	}
}

// respondList re-renders the link list for HTMX, or sends a plain form post
// back to the dashboard.
func (h *LinksHandler) respondList(w http.ResponseWriter, r *http.Request, user *store.User, flash *Flash) {
	if !isHTMX(r) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	rows, err := h.rows(r.Context(), user.ID)
	if err != nil {
		http.Error(w, "could not load links", http.StatusInternalServerError)
		return
	}
	renderFragment(w, "link_list", LinkListData{Links: rows, Flash: flash})
}

func parseOrder(values []string) ([]store.LinkStamp, error) {
	order := make([]store.LinkStamp, 0, len(values))
	for _, v := range values {
		id, ver, ok := strings.Cut(v, ":")
		if !ok || id == "" {
			return nil, errors.New("malformed order entry")
		}
		n, err := strconv.ParseInt(ver, 10, 64)
		if err != nil {
			return nil, err
		}
		order = append(order, store.LinkStamp{ID: id, Version: n})
	}
	return order, nil
}
