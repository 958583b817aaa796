package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joestump/bio-links/internal/store"
)

func TestProfileStore_UpsertCreatesThenUpdates(t *testing.T) {
	env := newLinkEnv(t)
	ctx := context.Background()

	_, err := env.profiles.GetByUserID(ctx, env.owner)
	require.ErrorIs(t, err, store.ErrNotFound)

	bio := "first"
	p, err := env.profiles.Upsert(ctx, env.owner, store.ProfileInput{Username: "Ada", DisplayName: "Ada L", Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "ada", p.Username)
	assert.Equal(t, "first", p.Bio.String)
	assert.False(t, p.AvatarURL.Valid)

	avatar := "https://img.example/ada.png"
	p, err = env.profiles.Upsert(ctx, env.owner, store.ProfileInput{Username: "ada-l", DisplayName: "Ada", AvatarURL: &avatar})
	require.NoError(t, err)
	assert.Equal(t, "ada-l", p.Username)
	assert.False(t, p.Bio.Valid)
	assert.Equal(t, avatar, p.AvatarURL.String)

	_, err = env.profiles.GetByUsername(ctx, "ada")
	assert.ErrorIs(t, err, store.ErrNotFound)
	got, err := env.profiles.GetByUsername(ctx, "ADA-L")
	require.NoError(t, err)
	assert.Equal(t, env.owner, got.UserID)
}

func TestProfileStore_UsernameTaken(t *testing.T) {
	env := newLinkEnv(t)
	ctx := context.Background()
	other := env.seedUser(t, "other")

	_, err := env.profiles.Upsert(ctx, env.owner, store.ProfileInput{Username: "taken", DisplayName: "One"})
	require.NoError(t, err)

	_, err = env.profiles.Upsert(ctx, other, store.ProfileInput{Username: "Taken", DisplayName: "Two"})
	var ve *store.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "username", ve.Field)

	ok, err := env.profiles.UsernameAvailable(ctx, other, "taken")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = env.profiles.UsernameAvailable(ctx, env.owner, "taken")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = env.profiles.UsernameAvailable(ctx, other, "free-name")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProfileStore_Validation(t *testing.T) {
	env := newLinkEnv(t)
	ctx := context.Background()
	badAvatar := "not a url"

	tests := []struct {
		name  string
		in    store.ProfileInput
		field string
	}{
		{name: "short username", in: store.ProfileInput{Username: "ab", DisplayName: "X"}, field: "username"},
		{name: "reserved username", in: store.ProfileInput{Username: "api", DisplayName: "X"}, field: "username"},
		{name: "missing display name", in: store.ProfileInput{Username: "valid", DisplayName: " "}, field: "display_name"},
		{name: "bad avatar", in: store.ProfileInput{Username: "valid", DisplayName: "X", AvatarURL: &badAvatar}, field: "avatar_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.profiles.Upsert(ctx, env.owner, tt.in)
			var ve *store.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	_, err := env.profiles.Upsert(ctx, "", store.ProfileInput{Username: "valid", DisplayName: "X"})
	assert.ErrorIs(t, err, store.ErrUnauthenticated)
}

func TestUserStore_UpsertKeepsID(t *testing.T) {
	env := newLinkEnv(t)
	ctx := context.Background()

	first, err := env.users.Upsert(ctx, "issuer", "sub-9", "old@example.com", "Old Name")
	require.NoError(t, err)
	second, err := env.users.Upsert(ctx, "issuer", "sub-9", "new@example.com", "New Name")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "new@example.com", second.Email)
	assert.Equal(t, "New Name", second.DisplayName)

	byID, err := env.users.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "New Name", byID.DisplayName)

	_, err = env.users.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err := env.users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n) // owner + sub-9
}
