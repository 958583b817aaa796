package auth_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joestump/bio-links/internal/auth"
	"github.com/joestump/bio-links/internal/store"
	"github.com/joestump/bio-links/internal/testutil"
)

type tokenEnv struct {
	tokens *auth.SQLTokenStore
	users  *store.UserStore
	owner  string
}

func newTokenEnv(t *testing.T) *tokenEnv {
	t.Helper()
	db := testutil.NewTestDB(t)
	env := &tokenEnv{tokens: auth.NewSQLTokenStore(db), users: store.NewUserStore(db)}
	env.owner = env.seedUser(t, "owner")
	return env
}

func (e *tokenEnv) seedUser(t *testing.T, subject string) string {
	t.Helper()
	u, err := e.users.Upsert(context.Background(), "test", subject, subject+"@example.com", subject)
	require.NoError(t, err)
	return u.ID
}

func (e *tokenEnv) issue(t *testing.T, name string, scope auth.Scope) *auth.IssuedToken {
	t.Helper()
	tok, err := e.tokens.Issue(context.Background(), e.owner, auth.TokenSpec{Name: name, Scope: scope})
	require.NoError(t, err)
	return tok
}

func TestScope(t *testing.T) {
	s, err := auth.ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, auth.ScopeRead, s)
	s, err = auth.ParseScope(" Write ")
	require.NoError(t, err)
	assert.Equal(t, auth.ScopeWrite, s)
	_, err = auth.ParseScope("admin")
	assert.ErrorIs(t, err, store.ErrValidation)

	assert.True(t, auth.ScopeRead.Allows(http.MethodGet))
	assert.False(t, auth.ScopeRead.Allows(http.MethodPatch))
	assert.False(t, auth.ScopeRead.Allows(http.MethodPut))
	assert.True(t, auth.ScopeWrite.Allows(http.MethodDelete))
	assert.False(t, auth.Scope("").Allows(http.MethodGet))
}

func TestTokenStore_IssueAndLookup(t *testing.T) {
	env := newTokenEnv(t)
	ctx := context.Background()

	issued := env.issue(t, "  <b>CI</b> deploy ", auth.ScopeWrite)
	assert.True(t, strings.HasPrefix(issued.Plaintext, auth.TokenPrefix))
	assert.Equal(t, "CI deploy", issued.Name)
	assert.Equal(t, auth.HashToken(issued.Plaintext), issued.Hash)
	assert.WithinDuration(t, time.Now().Add(auth.DefaultTokenTTL), issued.ExpiresAt, time.Minute)

	got, err := env.tokens.Lookup(ctx, issued.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, got.ID)
	assert.Equal(t, auth.ScopeWrite, got.Scope)
	assert.True(t, got.Usable(time.Now()))

	_, err = env.tokens.Lookup(ctx, auth.TokenPrefix+"nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = env.tokens.Lookup(ctx, "ghp_somebody_elses")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTokenStore_IssueValidation(t *testing.T) {
	env := newTokenEnv(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		spec  auth.TokenSpec
		field string
	}{
		{"blank name", auth.TokenSpec{Name: " "}, "name"},
		{"long name", auth.TokenSpec{Name: strings.Repeat("n", 51)}, "name"},
		{"bad scope", auth.TokenSpec{Name: "x", Scope: "root"}, "scope"},
		{"too short", auth.TokenSpec{Name: "x", TTL: time.Minute}, "expires_in"},
		{"too long", auth.TokenSpec{Name: "x", TTL: 2 * auth.MaxTokenTTL}, "expires_in"},
		{"negative", auth.TokenSpec{Name: "x", TTL: -time.Hour}, "expires_in"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.tokens.Issue(ctx, env.owner, tc.spec)
			var ve *store.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}

	_, err := env.tokens.Issue(ctx, "", auth.TokenSpec{Name: "x"})
	assert.ErrorIs(t, err, store.ErrUnauthenticated)
}

func TestTokenStore_ActiveLimit(t *testing.T) {
	env := newTokenEnv(t)
	ctx := context.Background()

	var first *auth.IssuedToken
	for i := 0; i < auth.MaxActiveTokens; i++ {
		tok := env.issue(t, "t", auth.ScopeRead)
		if first == nil {
			first = tok
		}
	}
	_, err := env.tokens.Issue(ctx, env.owner, auth.TokenSpec{Name: "one more"})
	assert.ErrorIs(t, err, store.ErrValidation)

	// Another user is unaffected, and revoking frees a slot.
	other := env.seedUser(t, "other")
	_, err = env.tokens.Issue(ctx, other, auth.TokenSpec{Name: "theirs"})
	require.NoError(t, err)

	require.NoError(t, env.tokens.Revoke(ctx, env.owner, first.ID))
	_, err = env.tokens.Issue(ctx, env.owner, auth.TokenSpec{Name: "one more"})
	assert.NoError(t, err)
}

func TestTokenStore_Rotate(t *testing.T) {
	env := newTokenEnv(t)
	ctx := context.Background()

	old, err := env.tokens.Issue(ctx, env.owner, auth.TokenSpec{Name: "deploy", Scope: auth.ScopeWrite, TTL: 30 * 24 * time.Hour})
	require.NoError(t, err)

	next, err := env.tokens.Rotate(ctx, env.owner, old.ID)
	require.NoError(t, err)
	assert.NotEqual(t, old.Plaintext, next.Plaintext)
	assert.Equal(t, "deploy", next.Name)
	assert.Equal(t, auth.ScopeWrite, next.Scope)
	assert.Equal(t, old.ID, next.RotatedFrom.String)
	assert.Equal(t, old.Lifetime(), next.Lifetime())

	prev, err := env.tokens.Lookup(ctx, old.Plaintext)
	require.NoError(t, err)
	assert.False(t, prev.Usable(time.Now()), "rotated token must stop working")

	active, err := env.tokens.ListActive(ctx, env.owner)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, next.ID, active[0].ID)

	// The old id is spent, and other users cannot rotate the new one.
	_, err = env.tokens.Rotate(ctx, env.owner, old.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	other := env.seedUser(t, "other")
	_, err = env.tokens.Rotate(ctx, other, next.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTokenStore_Revoke(t *testing.T) {
	env := newTokenEnv(t)
	ctx := context.Background()
	tok := env.issue(t, "revoke me", auth.ScopeRead)
	other := env.seedUser(t, "other")

	assert.ErrorIs(t, env.tokens.Revoke(ctx, other, tok.ID), store.ErrNotFound)
	require.NoError(t, env.tokens.Revoke(ctx, env.owner, tok.ID))
	assert.ErrorIs(t, env.tokens.Revoke(ctx, env.owner, tok.ID), store.ErrNotFound)
	assert.ErrorIs(t, env.tokens.Revoke(ctx, env.owner, "missing"), store.ErrNotFound)

	active, err := env.tokens.ListActive(ctx, env.owner)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestTokenStore_Touch(t *testing.T) {
	env := newTokenEnv(t)
	ctx := context.Background()
	tok := env.issue(t, "busy", auth.ScopeRead)

	first := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, env.tokens.Touch(ctx, tok.ID, first))
	got, err := env.tokens.Lookup(ctx, tok.Plaintext)
	require.NoError(t, err)
	require.True(t, got.LastUsedAt.Valid)
	assert.WithinDuration(t, first, got.LastUsedAt.Time, time.Second)

	// A use within the interval leaves the stored time alone.
	require.NoError(t, env.tokens.Touch(ctx, tok.ID, first.Add(10*time.Second)))
	got, err = env.tokens.Lookup(ctx, tok.Plaintext)
	require.NoError(t, err)
	assert.WithinDuration(t, first, got.LastUsedAt.Time, time.Second)

	later := first.Add(5 * time.Minute)
	require.NoError(t, env.tokens.Touch(ctx, tok.ID, later))
	got, err = env.tokens.Lookup(ctx, tok.Plaintext)
	require.NoError(t, err)
	assert.WithinDuration(t, later, got.LastUsedAt.Time, time.Second)
}
