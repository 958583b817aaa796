package store

import (
	"html"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	MaxTitleLen       = 100
	MaxIconLen        = 64
	MaxURLLen         = 2048
	MinUsernameLen    = 3
	MaxUsernameLen    = 30
	MaxDisplayNameLen = 50
	MaxBioLen         = 200
)

var (
	textPolicy = bluemonday.StripTagsPolicy()

	iconRe     = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// Schemes that would execute in the browser when rendered as an href.
	blockedSchemes = map[string]bool{
		"javascript": true,
		"data":       true,
		"vbscript":   true,
	}

	reservedUsernames = map[string]bool{
		"auth":      true,
		"static":    true,
		"dashboard": true,
		"api":       true,
		"metrics":   true,
		"healthz":   true,
	}
)

// SanitizeText strips HTML tags and surrounding whitespace from user input.
// Entities are decoded again so templates escape exactly once.
func SanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

// ValidateTitle sanitises and checks a link title: non-empty, at most 100 characters.
func ValidateTitle(title string) (string, error) {
	t := SanitizeText(title)
	if t == "" {
		return "", invalid("title", "title is required")
	}
	if utf8.RuneCountInString(t) > MaxTitleLen {
		return "", invalid("title", "title must be at most %d characters", MaxTitleLen)
	}
	return t, nil
}

// ValidateURL checks that raw is a syntactically valid absolute URL.
func ValidateURL(field, raw string) (string, error) {
	u := strings.TrimSpace(raw)
	if u == "" {
		return "", invalid(field, "url is required")
	}
	if len(u) > MaxURLLen {
		return "", invalid(field, "url must be at most %d bytes", MaxURLLen)
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return "", invalid(field, "url is not valid")
	}
	if parsed.Scheme == "" || (parsed.Host == "" && parsed.Opaque == "") {
		return "", invalid(field, "url must be absolute, e.g. https://example.com")
	}
	if blockedSchemes[strings.ToLower(parsed.Scheme)] {
		return "", invalid(field, "url scheme %q is not allowed", parsed.Scheme)
	}
	return u, nil
}

// ValidateIcon checks an optional icon identifier. nil and "" both mean no icon.
func ValidateIcon(icon *string) (*string, error) {
	if icon == nil {
		return nil, nil
	}
	i := strings.TrimSpace(*icon)
	if i == "" {
		return nil, nil
	}
	if len(i) > MaxIconLen || !iconRe.MatchString(i) {
		return nil, invalid("icon", "icon must be 1-%d letters, digits, '_' or '-'", MaxIconLen)
	}
	return &i, nil
}

// ValidateUsername checks and normalises a profile username.
func ValidateUsername(username string) (string, error) {
	u := strings.ToLower(strings.TrimSpace(username))
	n := len(u)
	if n < MinUsernameLen || n > MaxUsernameLen {
		return "", invalid("username", "username must be %d-%d characters", MinUsernameLen, MaxUsernameLen)
	}
	if !usernameRe.MatchString(u) {
		return "", invalid("username", "username can only contain letters, numbers, underscores, and hyphens")
	}
	if reservedUsernames[u] {
		return "", invalid("username", "username %q is reserved", u)
	}
	return u, nil
}

// ValidateDisplayName sanitises and checks a profile display name.
func ValidateDisplayName(name string) (string, error) {
	n := SanitizeText(name)
	if n == "" {
		return "", invalid("display_name", "display name is required")
	}
	if utf8.RuneCountInString(n) > MaxDisplayNameLen {
		return "", invalid("display_name", "display name must be at most %d characters", MaxDisplayNameLen)
	}
	return n, nil
}

// ValidateBio sanitises and checks an optional bio.
func ValidateBio(bio *string) (*string, error) {
	if bio == nil {
		return nil, nil
	}
	b := SanitizeText(*bio)
	if b == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(b) > MaxBioLen {
		return nil, invalid("bio", "bio must be at most %d characters", MaxBioLen)
	}
	return &b, nil
}
