package handler

import (
	"context"
	"errors"
	"html"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/joestump/bio-links/internal/auth"
	"github.com/joestump/bio-links/internal/store"
)

// LinkRow is one dashboard list entry.
type LinkRow struct {
	*store.Link
	Clicks int64
	First  bool
	Last   bool
}

// LinkListData is the template data for the link_list partial.
type LinkListData struct {
	Links []LinkRow
	Flash *Flash
}

// ProfileForm holds the profile form values as submitted or as stored.
type ProfileForm struct {
	Username    string
	DisplayName string
	Bio         string
	AvatarURL   string
}

// ProfileFormData is the template data for the profile_form partial.
type ProfileFormData struct {
	Profile *store.Profile // nil until a username has been claimed
	Form    ProfileForm
	Field   string
	Error   string
	Flash   *Flash
}

// DashboardPage is the template data for the dashboard view.
type DashboardPage struct {
	BasePage
	ProfileFormData
	LinkListData
}

// linkLister loads an owner's links with their click totals.
type linkLister struct {
	links  store.LinkStoreIface
	clicks *store.ClickStore
}

func (l linkLister) rows(ctx context.Context, ownerID string) ([]LinkRow, error) {
	links, err := l.links.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	counts, err := l.clicks.CountsByOwner(ctx, ownerID)
	if err != nil {
		// Counts are decoration; the list is still usable without them.
		logrus.WithError(err).WithField("owner_id", ownerID).Warn("load click counts")
		counts = nil
	}
	rows := make([]LinkRow, len(links))
	for i, link := range links {
		rows[i] = LinkRow{
			Link:   link,
			Clicks: counts[link.ID],
			First:  i == 0,
			Last:   i == len(links)-1,
		}
	}
	return rows, nil
}

// DashboardHandler serves the authenticated link management dashboard.
type DashboardHandler struct {
	linkLister
	profiles *store.ProfileStore
}

func NewDashboardHandler(ls store.LinkStoreIface, ps *store.ProfileStore, cs *store.ClickStore) *DashboardHandler {
	return &DashboardHandler{linkLister: linkLister{links: ls, clicks: cs}, profiles: ps}
}

// Show renders the dashboard: the profile form and the user's links in order.
func (h *DashboardHandler) Show(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	rows, err := h.rows(r.Context(), user.ID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("load dashboard links")
		http.Error(w, "could not load links", http.StatusInternalServerError)
		return
	}
	profile, err := h.profiles.GetByUserID(r.Context(), user.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		http.Error(w, "could not load profile", http.StatusInternalServerError)
		return
	}

	data := DashboardPage{
		BasePage:        newBasePage(r, user),
		ProfileFormData: ProfileFormData{Profile: profile, Form: profileFormFrom(profile, user)},
		LinkListData:    LinkListData{Links: rows},
	}

	if isHTMX(r) {
		renderFragment(w, "link_list", data.LinkListData)
		return
	}
	render(w, "dashboard.html", data)
}

// SaveProfile handles POST /dashboard/profile.
func (h *DashboardHandler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	form := ProfileForm{
		Username:    r.FormValue("username"),
		DisplayName: r.FormValue("display_name"),
		Bio:         r.FormValue("bio"),
		AvatarURL:   r.FormValue("avatar_url"),
	}
	profile, err := h.profiles.Upsert(r.Context(), user.ID, store.ProfileInput{
		Username:    form.Username,
		DisplayName: form.DisplayName,
		Bio:         &form.Bio,
		AvatarURL:   &form.AvatarURL,
	})

	data := ProfileFormData{Profile: profile, Form: form}
	var ve *store.ValidationError
	switch {
	case errors.As(err, &ve):
		data.Field, data.Error = ve.Field, ve.Message
		if data.Profile, err = h.profiles.GetByUserID(r.Context(), user.ID); errors.Is(err, store.ErrNotFound) {
			err = nil
		}
		if err != nil {
			http.Error(w, "could not load profile", http.StatusInternalServerError)
			return
		}
	case err != nil:
		logrus.WithError(err).WithField("user_id", user.ID).Error("save profile")
		http.Error(w, "could not save profile", http.StatusInternalServerError)
		return
	default:
		data.Form = profileFormFrom(profile, user)
		data.Flash = &Flash{Type: "success", Message: "Profile saved."}
	}

	if isHTMX(r) {
		renderFragment(w, "profile_form", data)
		return
	}
	if data.Error == "" {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	rows, err := h.rows(r.Context(), user.ID)
	if err != nil {
		http.Error(w, "could not load links", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusUnprocessableEntity)
	render(w, "dashboard.html", DashboardPage{
		BasePage:        newBasePage(r, user),
		ProfileFormData: data,
		LinkListData:    LinkListData{Links: rows},
	})
}

// CheckUsername handles GET /dashboard/profile/check-username?username=...
// and returns an inline availability hint.
func (h *DashboardHandler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	raw := r.URL.Query().Get("username")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if raw == "" {
		return
	}
	username, err := store.ValidateUsername(raw)
	var ve *store.ValidationError
	if errors.As(err, &ve) {
		_, _ = w.Write([]byte(`<span class="text-error text-xs">` + html.EscapeString(ve.Message) + `</span>`))
		return
	}
	ok, err := h.profiles.UsernameAvailable(r.Context(), user.ID, username)
	if err != nil {
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	if !ok {
		_, _ = w.Write([]byte(`<span class="text-error text-xs">Username already taken</span>`))
		return
	}
	_, _ = w.Write([]byte(`<span class="text-success text-xs">Available!</span>`))
}

func profileFormFrom(p *store.Profile, user *store.User) ProfileForm {
	if p == nil {
		return ProfileForm{DisplayName: user.DisplayName}
	}
	return ProfileForm{
		Username:    p.Username,
		DisplayName: p.DisplayName,
		Bio:         p.Bio.String,
		AvatarURL:   p.AvatarURL.String,
	}
}
