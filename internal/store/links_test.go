package store_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joestump/bio-links/internal/store"
	"github.com/joestump/bio-links/internal/testutil"
)

type linkEnv struct {
	db       *sqlx.DB
	links    *store.LinkStore
	profiles *store.ProfileStore
	users    *store.UserStore
	owner    string
}

func newLinkEnv(t *testing.T) *linkEnv {
	t.Helper()
	db := testutil.NewTestDB(t)
	profiles := store.NewProfileStore(db)
	env := &linkEnv{
		db:       db,
		links:    store.NewLinkStore(db, profiles),
		profiles: profiles,
		users:    store.NewUserStore(db),
	}
	env.owner = env.seedUser(t, "owner")
	return env
}

func (e *linkEnv) seedUser(t *testing.T, subject string) string {
	t.Helper()
	u, err := e.users.Upsert(context.Background(), "test", subject, subject+"@example.com", subject)
	require.NoError(t, err)
	return u.ID
}

func (e *linkEnv) create(t *testing.T, owner string, titles ...string) []*store.Link {
	t.Helper()
	out := make([]*store.Link, 0, len(titles))
	for _, title := range titles {
		l, err := e.links.Create(context.Background(), owner, store.LinkInput{
			Title: title,
			URL:   "https://example.com/" + title,
		})
		require.NoError(t, err)
		out = append(out, l)
	}
	return out
}

// order returns the owner's titles in list order and asserts positions are 0..n-1.
func (e *linkEnv) order(t *testing.T, owner string) []string {
	t.Helper()
	links, err := e.links.List(context.Background(), owner)
	require.NoError(t, err)
	titles := make([]string, len(links))
	for i, l := range links {
		assert.Equal(t, i, l.Position, "position of %q", l.Title)
		titles[i] = l.Title
	}
	return titles
}

func ids(links []*store.Link) []string {
	out := make([]string, len(links))
	for i, l := range links {
		out[i] = l.ID
	}
	return out
}

func TestLinkStore_CreateAppends(t *testing.T) {
	env := newLinkEnv(t)
	links := env.create(t, env.owner, "Site", "Blog", "Shop")

	for i, l := range links {
		assert.Equal(t, i, l.Position)
		assert.True(t, l.IsActive)
		assert.Equal(t, int64(1), l.Version)
		assert.Equal(t, env.owner, l.OwnerID)
		assert.NotEmpty(t, l.ID)
	}
	assert.Equal(t, []string{"Site", "Blog", "Shop"}, env.order(t, env.owner))
}

func TestLinkStore_CreateFields(t *testing.T) {
	env := newLinkEnv(t)
	ctx := context.Background()
	icon := "github"
	inactive := false

	l, err := env.links.Create(ctx, env.owner, store.LinkInput{
		Title:    "  <b>Code</b>  ",
		URL:      "https://github.com/someone",
		Icon:     &icon,
		IsActive: &inactive,
		Metadata: json.RawMessage(`{"color":"red"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, "Code", l.Title)
	assert.Equal(t, "github", l.IconName())
	assert.False(t, l.IsActive)
	var meta map[string]string
	require.NoError(t, l.Metadata.Unmarshal(&meta))
	assert.Equal(t, "red", meta["color"])
}

func TestLinkStore_CreateValidation(t *testing.T) {
	env := newLinkEnv(t)
	ctx := context.Background()
	badIcon := "no spaces"

	tests := []struct {
		name  string
		in    store.LinkInput
		field string
	}{
		{name: "empty title", in: store.LinkInput{Title: "  ", URL: "https://a.example"}, field: "title"},
		{name: "long title", in: store.LinkInput{Title: strings.Repeat("a", store.MaxTitleLen+1), URL: "https://a.example"}, field: "title"},
		{name: "missing url", in: store.LinkInput{Title: "A", URL: ""}, field: "url"},
		{name: "relative url", in: store.LinkInput{Title: "A", URL: "/just/a/path"}, field: "url"},
		{name: "javascript url", in: store.LinkInput{Title: "A", URL: "javascript:alert(1)"}, field: "url"},
		{name: "bad icon", in: store.LinkInput{Title: "A", URL: "https://a.example", Icon: &badIcon}, field: "icon"},
		{name: "metadata array", in: store.LinkInput{Title: "A", URL: "https://a.example", Metadata: json.RawMessage(`[1,2]`)}, field: "metadata"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.links.Create(ctx, env.owner, tt.in)
			var ve *store.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.ErrorIs(t, err, store.ErrValidation)
		})
	}

	links, err := env.links.List(ctx, env.owner)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestLinkStore_RequiresOwner(t *testing.T) {
	env := newLinkEnv(t)
	ctx := context.Background()

	_, err := env.links.Create(ctx, "", store.LinkInput{Title: "A", URL: "https://a.example"})
	assert.ErrorIs(t, err, store.ErrUnauthenticated)
	_, err = env.links.List(ctx, "")
	assert.ErrorIs(t, err, store.ErrUnauthenticated)
	assert.ErrorIs(t, env.links.Delete(ctx, "", "x"), store.ErrUnauthenticated)
	assert.ErrorIs(t, env.links.Reorder(ctx, "", nil), store.ErrUnauthenticated)
	_, err = env.links.ToggleActive(ctx, "", "x")
	assert.ErrorIs(t, err, store.ErrUnauthenticated)
}

func TestLinkStore_ReorderScenario(t *testing.T) {
	env := newLinkEnv(t)
	links := env.create(t, env.owner, "Site", "Blog", "Shop")
	site, blog, shop := links[0], links[1], links[2]

	err := env.links.Reorder(context.Background(), env.owner, []string{blog.ID, shop.ID, site.ID})
	require.NoError(t, err)

	assert.Equal(t, []string{"Blog", "Shop", "Site"}, env.order(t, env.owner))
}

func TestLinkStore_ReorderPermutations(t *testing.T) {
	env := newLinkEnv(t)
	ctx := context.Background()
	links := env.create(t, env.owner, "a", "b", "c", "d", "e", "f")
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 10; round++ {
		perm := ids(links)
		rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })

		require.NoError(t, env.links.Reorder(ctx, env.owner, perm))

		got, err := env.links.List(ctx, env.owner)
		require.NoError(t, err)
		assert.Equal(t, perm, ids(got), "round %d", round)
		for i, l := range got {
			assert.Equal(t, i, l.Position)
		}
	}
}

func TestLinkStore_ReorderRejectsBadSets(t *testing.T) {
	env := newLinkEnv(t)
	ctx := context.Background()
	links := env.create(t, env.owner, "a", "b", "c")
	other := env.seedUser(t, "other")
	foreign := env.create(t, other, "x")[0]

	tests := []struct {
		name string
		ids  []string
	}{
		{name: "omits an id", ids: []string{links[2].ID, links[0].ID}},
		{name: "foreign id", ids: []string{links[2].ID, links[1].ID, links[0].ID, foreign.ID}},
		{name: "foreign id replacing own", ids: []string{links[2].ID, links[1].ID, foreign.ID}},
		{name: "duplicate", ids: []string{links[2].ID, links[2].ID, links[1].ID, links[0].ID}},
		{name: "unknown id", ids: []string{links[2].ID, links[1].ID, "nope"}},
		{name: "empty", ids: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.links.Reorder(ctx, env.owner, tt.ids)
			var ve *store.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "ids", ve.Field)
			assert.Equal(t, []string{"a", "b", "c"}, env.order(t, env.owner))
		})
	}
	assert.Equal(t, []string{"x"}, env.order(t, other))
}

func TestLinkStore_ReorderIdempotent(t *testing.T) {
	env := newLinkEnv(t)
	ctx := context.Background()
	links := env.create(t, env.owner, "a", "b", "c")
	want := []string{links[1].ID, links[0].ID, links[2].ID}

	require.NoError(t, env.links.Reorder(ctx, env.owner, want))
	once, err := env.links.List(ctx, env.owner)
	require.NoError(t, err)

	require.NoError(t, env.links.Reorder(ctx, env.owner, want))
	twice, err := env.links.List(ctx, env.owner)
	require.NoError(t, err)

	require.Len(t, twice, 3)
	for i := range once {
		assert.Equal(t, once[i].ID, twice[i].ID)
		assert.Equal(t, once[i].Position, twice[i].Position)
		assert.Equal(t, once[i].Version, twice[i].Version, "second reorder must not touch rows")
	}
	// c never moved in either call.
	assert.Equal(t, int64(1), twice[2].Version)
}

func TestLinkStore_ReorderStamped(t *testing.T) {
	env := newLinkEnv(t)
	ctx := context.Background()
	env.create(t, env.owner, "a", "b", "c")

	read, err := env.links.List(ctx, env.owner)
	require.NoError(t, err)
	stamps := []store.LinkStamp{
		{ID: read[2].ID, Version: read[2].Version},
		{ID: read[1].ID, Version: read[1].Version},
		{ID: read[0].ID, Version: read[0].Version},
	}

	require.NoError(t, env.links.ReorderStamped(ctx, env.owner, stamps))
	assert.Equal(t, []string{"c", "b", "a"}, env.order(t, env.owner))

	// The stamps are now stale for the rows that moved.
	err = env.links.ReorderStamped(ctx, env.owner, stamps)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestLinkStore_ReorderStampedConflictChangesNothing(t *testing.T) {
	env := newLinkEnv(t)
	ctx := context.Background()
	env.create(t, env.owner, "a", "b", "c")

	read, err := env.links.List(ctx, env.owner)
	require.NoError(t, err)

	// Another session edits b after our read.
	_, err = env.links.ToggleActive(ctx, env.owner, read[1].ID)
	require.NoError(t, err)

	err = env.links.ReorderStamped(ctx, env.owner, []store.LinkStamp{
		{ID: read[2].ID, Version: read[2].Version},
		{ID: read[0].ID, Version: read[0].Version},
		{ID: read[1].ID, Version: read[1].Version},
	})
	require.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, []string{"a", "b", "c"}, env.order(t, env.owner))
}

func TestLinkStore_DeleteCompacts(t *testing.T) {
	env := newLinkEnv(t)
	ctx := context.Background()
	links := env.create(t, env.owner, "a", "b", "c")

	require.NoError(t, env.links.Delete(ctx, env.owner, links[1].ID))
	assert.Equal(t, []string{"a", "c"}, env.order(t, env.owner))

	_, err := env.links.Get(ctx, env.owner, links[1].ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLinkStore_CreateDeleteSequencesStayContiguous(t *testing.T) {
	env := newLinkEnv(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	var live []string

	for step := 0; step < 40; step++ {
		if len(live) == 0 || rng.Intn(3) > 0 {
			l := env.create(t, env.owner, fmt.Sprintf("l%d", step))[0]
			live = append(live, l.ID)
		} else {
			i := rng.Intn(len(live))
			require.NoError(t, env.links.Delete(ctx, env.owner, live[i]))
			live = append(live[:i], live[i+1:]...)
		}

		got, err := env.links.List(ctx, env.owner)
		require.NoError(t, err)
		require.Len(t, got, len(live))
		for i, l := range got {
			require.Equal(t, i, l.Position, "step %d", step)
		}
		assert.Equal(t, live, ids(got), "step %d", step)
	}
}

func TestLinkStore_NonOwnerSeesNotFound(t *testing.T) {
	env := newLinkEnv(t)
	ctx := context.Background()
	link := env.create(t, env.owner, "mine")[0]
	intruder := env.seedUser(t, "intruder")
	title := "stolen"

	_, err := env.links.Get(ctx, intruder, link.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = env.links.Update(ctx, intruder, link.ID, store.LinkPatch{Title: &title})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = env.links.ToggleActive(ctx, intruder, link.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, env.links.Delete(ctx, intruder, link.ID), store.ErrNotFound)

	got, err := env.links.Get(ctx, env.owner, link.ID)
	require.NoError(t, err)
	assert.Equal(t, "mine", got.Title)
	assert.True(t, got.IsActive)
}

func TestLinkStore_Update(t *testing.T) {
	env := newLinkEnv(t)
	ctx := context.Background()
	icon := "star"
	l, err := env.links.Create(ctx, env.owner, store.LinkInput{
		Title: "Old", URL: "https://old.example", Icon: &icon,
		Metadata: json.RawMessage(`{"k":"v"}`),
	})
	require.NoError(t, err)

	title, u, clear := "New", "https://new.example/path", ""
	got, err := env.links.Update(ctx, env.owner, l.ID, store.LinkPatch{Title: &title, URL: &u, Icon: &clear})
	require.NoError(t, err)

	assert.Equal(t, "New", got.Title)
	assert.Equal(t, "https://new.example/path", got.URL)
	assert.False(t, got.Icon.Valid)
	assert.JSONEq(t, `{"k":"v"}`, got.Metadata.String(), "metadata untouched when patch omits it")
	assert.Equal(t, l.Version+1, got.Version)
	assert.False(t, got.UpdatedAt.Before(l.UpdatedAt))

	got, err = env.links.Update(ctx, env.owner, l.ID, store.LinkPatch{Metadata: json.RawMessage(`null`)})
	require.NoError(t, err)
	assert.Contains(t, []string{"", "{}"}, got.Metadata.String())

	bad := "ftp"
	_, err = env.links.Update(ctx, env.owner, l.ID, store.LinkPatch{URL: &bad})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestLinkStore_UpdatePositionMoves(t *testing.T) {
	env := newLinkEnv(t)
	ctx := context.Background()
	links := env.create(t, env.owner, "a", "b", "c", "d")

	to := 0
	_, err := env.links.Update(ctx, env.owner, links[2].ID, store.LinkPatch{Position: &to})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b", "d"}, env.order(t, env.owner))

	to = 99
	moved, err := env.links.Update(ctx, env.owner, links[0].ID, store.LinkPatch{Position: &to})
	require.NoError(t, err)
	assert.Equal(t, 3, moved.Position)
	assert.Equal(t, []string{"c", "b", "d", "a"}, env.order(t, env.owner))

	to = -5
	_, err = env.links.Update(ctx, env.owner, links[3].ID, store.LinkPatch{Position: &to})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "b", "a"}, env.order(t, env.owner))
}

func TestLinkStore_ToggleActive(t *testing.T) {
	env := newLinkEnv(t)
	ctx := context.Background()
	l := env.create(t, env.owner, "a")[0]

	off, err := env.links.ToggleActive(ctx, env.owner, l.ID)
	require.NoError(t, err)
	assert.False(t, off.IsActive)
	assert.Equal(t, l.Version+1, off.Version)

	on, err := env.links.ToggleActive(ctx, env.owner, l.ID)
	require.NoError(t, err)
	assert.True(t, on.IsActive)
	assert.Equal(t, 0, on.Position)
}

func TestLinkStore_ListPublic(t *testing.T) {
	env := newLinkEnv(t)
	ctx := context.Background()
	bio := "hello"
	_, err := env.profiles.Upsert(ctx, env.owner, store.ProfileInput{
		Username: "Alice", DisplayName: "Alice A.", Bio: &bio,
	})
	require.NoError(t, err)

	links := env.create(t, env.owner, "A", "B", "C")
	_, err = env.links.ToggleActive(ctx, env.owner, links[1].ID)
	require.NoError(t, err)

	page, err := env.links.ListPublic(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice A.", page.Profile.DisplayName)
	assert.Equal(t, "hello", page.Profile.Bio.String)

	titles := make([]string, len(page.Links))
	for i, l := range page.Links {
		titles[i] = l.Title
	}
	assert.Equal(t, []string{"A", "C"}, titles)
	assert.Equal(t, 0, page.Links[0].Position)
	assert.Equal(t, 2, page.Links[1].Position)
}

func TestLinkStore_ListPublicUnknownUser(t *testing.T) {
	env := newLinkEnv(t)
	ctx := context.Background()

	_, err := env.links.ListPublic(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = env.links.ListPublic(ctx, "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLinkStore_OwnersAreIndependent(t *testing.T) {
	env := newLinkEnv(t)
	other := env.seedUser(t, "other")

	env.create(t, env.owner, "a", "b")
	env.create(t, other, "x", "y", "z")

	assert.Equal(t, []string{"a", "b"}, env.order(t, env.owner))
	assert.Equal(t, []string{"x", "y", "z"}, env.order(t, other))
}
