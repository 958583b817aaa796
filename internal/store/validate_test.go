package store

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTitle(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "My Site", want: "My Site"},
		{name: "trimmed", in: "  Blog \n", want: "Blog"},
		{name: "tags stripped", in: "<script>x</script>Shop", want: "Shop"},
		{name: "entities kept literal", in: "Tom & Jerry", want: "Tom & Jerry"},
		{name: "exactly max", in: strings.Repeat("é", MaxTitleLen), want: strings.Repeat("é", MaxTitleLen)},
		{name: "empty", in: "", wantErr: true},
		{name: "only whitespace", in: "   ", wantErr: true},
		{name: "only tags", in: "<b></b>", wantErr: true},
		{name: "too long", in: strings.Repeat("a", MaxTitleLen+1), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateTitle(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "https", in: "https://example.com"},
		{name: "with path and query", in: "https://example.com/a?b=c#d"},
		{name: "mailto", in: "mailto:me@example.com"},
		{name: "surrounding space", in: "  https://example.com  "},
		{name: "empty", in: "", wantErr: true},
		{name: "no scheme", in: "example.com", wantErr: true},
		{name: "relative", in: "/path", wantErr: true},
		{name: "javascript", in: "javascript:alert(1)", wantErr: true},
		{name: "javascript upper", in: "JavaScript:alert(1)", wantErr: true},
		{name: "data", in: "data:text/html,hi", wantErr: true},
		{name: "unparseable", in: "http://[::1", wantErr: true},
		{name: "too long", in: "https://example.com/" + strings.Repeat("a", MaxURLLen), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateURL("url", tt.in)
			if tt.wantErr {
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, "url", ve.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, strings.TrimSpace(tt.in), got)
		})
	}
}

func TestValidateIcon(t *testing.T) {
	s := func(v string) *string { return &v }

	got, err := ValidateIcon(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ValidateIcon(s("  "))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ValidateIcon(s("brand-github_2"))
	require.NoError(t, err)
	assert.Equal(t, "brand-github_2", *got)

	_, err = ValidateIcon(s("<svg>"))
	assert.ErrorIs(t, err, ErrValidation)
	_, err = ValidateIcon(s(strings.Repeat("a", MaxIconLen+1)))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "alice", want: "alice"},
		{in: "Alice_99", want: "alice_99"},
		{in: "a-b", want: "a-b"},
		{in: strings.Repeat("a", MaxUsernameLen), want: strings.Repeat("a", MaxUsernameLen)},
		{in: "ab", wantErr: true},
		{in: strings.Repeat("a", MaxUsernameLen+1), wantErr: true},
		{in: "has space", wantErr: true},
		{in: "dot.ted", wantErr: true},
		{in: "dashboard", wantErr: true},
		{in: "API", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ValidateUsername(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateProfileText(t *testing.T) {
	_, err := ValidateDisplayName("")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = ValidateDisplayName(strings.Repeat("n", MaxDisplayNameLen+1))
	assert.ErrorIs(t, err, ErrValidation)
	name, err := ValidateDisplayName(" <i>Ada</i> ")
	require.NoError(t, err)
	assert.Equal(t, "Ada", name)

	bio := strings.Repeat("b", MaxBioLen+1)
	_, err = ValidateBio(&bio)
	assert.ErrorIs(t, err, ErrValidation)
	empty := " "
	got, err := ValidateBio(&empty)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestWrapErr(t *testing.T) {
	assert.NoError(t, wrapErr("op", nil))
	assert.ErrorIs(t, wrapErr("op", ErrConflict), ErrConflict)

	ve := invalid("title", "bad")
	assert.Same(t, ve, wrapErr("op", ve))

	raw := errors.New("disk on fire")
	err := wrapErr("save", raw)
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "save", se.Op)
	assert.ErrorIs(t, err, raw)
	assert.Equal(t, "store: save: disk on fire", err.Error())
}
