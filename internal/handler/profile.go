package handler

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/joestump/bio-links/internal/auth"
	"github.com/joestump/bio-links/internal/metrics"
	"github.com/joestump/bio-links/internal/store"
)

// ProfilePage is the template data for a public link-in-bio page.
type ProfilePage struct {
	BasePage
	Profile *store.Profile
	Links   []*store.Link
	Owner   bool // the signed-in viewer owns this page
}

type notFoundPage struct {
	BasePage
	Path string
}

// ProfileHandler serves public pages and the click-through redirect.
type ProfileHandler struct {
	links   store.LinkStoreIface
	clickCh chan<- store.ClickEvent
}

// NewProfileHandler creates a ProfileHandler. Click events are offered to
// clickCh without blocking; a nil channel disables click recording.
func NewProfileHandler(ls store.LinkStoreIface, clickCh chan<- store.ClickEvent) *ProfileHandler {
	return &ProfileHandler{links: ls, clickCh: clickCh}
}

// Show renders GET /u/{username}: the profile header and active links in order.
func (h *ProfileHandler) Show(w http.ResponseWriter, r *http.Request) {
	viewer := auth.UserFromContext(r.Context())
	page, err := h.links.ListPublic(r.Context(), chi.URLParam(r, "username"))
	if errors.Is(err, store.ErrNotFound) {
		metrics.PublicPageViewsTotal.WithLabelValues("not_found").Inc()
		renderNotFound(w, r, viewer)
		return
	}
	if err != nil {
		metrics.PublicPageViewsTotal.WithLabelValues("error").Inc()
		logrus.WithError(err).Error("load public page")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	metrics.PublicPageViewsTotal.WithLabelValues("ok").Inc()

	data := ProfilePage{
		BasePage: newBasePage(r, viewer),
		Profile:  page.Profile,
		Links:    page.Links,
		Owner:    viewer != nil && viewer.ID == page.Profile.UserID,
	}
	if isHTMX(r) {
		renderPageFragment(w, "profile.html", "content", data)
		return
	}
	render(w, "profile.html", data)
}

// Click handles GET /u/{username}/{id}: it records a click and redirects to
// the link's URL. Inactive links and links of other users are not found.
func (h *ProfileHandler) Click(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	viewer := auth.UserFromContext(r.Context())

	page, err := h.links.ListPublic(r.Context(), chi.URLParam(r, "username"))
	if errors.Is(err, store.ErrNotFound) {
		renderNotFound(w, r, viewer)
		return
	}
	if err != nil {
		logrus.WithError(err).Error("load public page for click")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	id := chi.URLParam(r, "id")
	var target *store.Link
	for _, l := range page.Links {
		if l.ID == id {
			target = l
			break
		}
	}
	if target == nil {
		renderNotFound(w, r, viewer)
		return
	}

	h.recordClick(r, target.ID)
	http.Redirect(w, r, target.URL, http.StatusFound)
	metrics.RedirectDuration.Observe(time.Since(start).Seconds())
}

// recordClick offers the click to the writer goroutine. A full queue drops
// the event rather than delaying the redirect.
func (h *ProfileHandler) recordClick(r *http.Request, linkID string) {
	if h.clickCh == nil {
		return
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	e := store.ClickEvent{
		LinkID:    linkID,
		IPHash:    store.HashIP(ip),
		UserAgent: r.UserAgent(),
		Referrer:  r.Referer(),
	}
	select {
	case h.clickCh <- e:
	default:
		metrics.ClicksRecordErrorsTotal.Inc()
		logrus.WithField("link_id", linkID).Warn("click queue full, dropping event")
	}
}

func renderNotFound(w http.ResponseWriter, r *http.Request, viewer *store.User) {
	data := notFoundPage{BasePage: newBasePage(r, viewer), Path: r.URL.Path}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	if isHTMX(r) {
		renderPageFragment(w, "404.html", "content", data)
		return
	}
	render(w, "404.html", data)
}
