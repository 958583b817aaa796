package api

import (
	"encoding/json"
	"time"

	"github.com/joestump/bio-links/internal/auth"
	"github.com/joestump/bio-links/internal/store"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// --- Link types ---

// CreateLinkRequest is the request body for POST /api/v1/links.
type CreateLinkRequest struct {
	Title    string          `json:"title"`
	URL      string          `json:"url"`
	Icon     *string         `json:"icon,omitempty"`
	IsActive *bool           `json:"is_active,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty" swaggertype:"object"`
}

// UpdateLinkRequest is the request body for PATCH /api/v1/links/{id}.
// Omitted fields are unchanged; "icon": "" and "metadata": null clear them.
type UpdateLinkRequest struct {
	Title    *string         `json:"title,omitempty"`
	URL      *string         `json:"url,omitempty"`
	Icon     *string         `json:"icon,omitempty"`
	IsActive *bool           `json:"is_active,omitempty"`
	Position *int            `json:"position,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty" swaggertype:"object"`
}

// ReorderRequest is the request body for PUT /api/v1/links/order. When
// versions is present every id must carry the version the client last read.
type ReorderRequest struct {
	IDs      []string         `json:"ids"`
	Versions map[string]int64 `json:"versions,omitempty"`
}

// LinkResponse is the JSON representation of a single link.
type LinkResponse struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	URL       string          `json:"url"`
	Icon      *string         `json:"icon"`
	Position  int             `json:"position"`
	IsActive  bool            `json:"is_active"`
	Metadata  json.RawMessage `json:"metadata" swaggertype:"object"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LinkListResponse lists an owner's links in position order.
type LinkListResponse struct {
	Links []*LinkResponse `json:"links"`
}

func toLinkResponse(l *store.Link) *LinkResponse {
	resp := &LinkResponse{
		ID:        l.ID,
		Title:     l.Title,
		URL:       l.URL,
		Position:  l.Position,
		IsActive:  l.IsActive,
		Version:   l.Version,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
	if l.Icon.Valid {
		icon := l.Icon.String
		resp.Icon = &icon
	}
	if len(l.Metadata) > 0 {
		resp.Metadata = json.RawMessage(l.Metadata)
	}
	return resp
}

func toLinkList(links []*store.Link) *LinkListResponse {
	resp := &LinkListResponse{Links: make([]*LinkResponse, 0, len(links))}
	for _, l := range links {
		resp.Links = append(resp.Links, toLinkResponse(l))
	}
	return resp
}

// --- Profile types ---

// ProfileRequest is the request body for PUT /api/v1/profile.
type ProfileRequest struct {
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	Bio         *string `json:"bio,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

// ProfileResponse is the caller's own profile.
type ProfileResponse struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Bio         *string   `json:"bio"`
	AvatarURL   *string   `json:"avatar_url"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toProfileResponse(p *store.Profile) *ProfileResponse {
	resp := &ProfileResponse{
		Username:    p.Username,
		DisplayName: p.DisplayName,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.Bio.Valid {
		resp.Bio = &p.Bio.String
	}
	if p.AvatarURL.Valid {
		resp.AvatarURL = &p.AvatarURL.String
	}
	return resp
}

// --- Public page types ---

// PublicLinkResponse is a link as visitors see it.
type PublicLinkResponse struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Icon     *string `json:"icon"`
	Position int     `json:"position"`
}

// PublicPageResponse is the body of GET /api/v1/public/{username}.
type PublicPageResponse struct {
	Username    string                `json:"username"`
	DisplayName string                `json:"display_name"`
	Bio         *string               `json:"bio"`
	AvatarURL   *string               `json:"avatar_url"`
	Links       []*PublicLinkResponse `json:"links"`
}

func toPublicPage(page *store.PublicPage) *PublicPageResponse {
	p := toProfileResponse(page.Profile)
	resp := &PublicPageResponse{
		Username:    p.Username,
		DisplayName: p.DisplayName,
		Bio:         p.Bio,
		AvatarURL:   p.AvatarURL,
		Links:       make([]*PublicLinkResponse, 0, len(page.Links)),
	}
	for _, l := range page.Links {
		lr := toLinkResponse(l)
		resp.Links = append(resp.Links, &PublicLinkResponse{
			ID: lr.ID, Title: lr.Title, URL: lr.URL, Icon: lr.Icon, Position: lr.Position,
		})
	}
	return resp
}

// --- Token types ---

// CreateTokenRequest is the request body for POST /api/v1/tokens.
type CreateTokenRequest struct {
	Name      string `json:"name" example:"deploy script"`
	Scope     string `json:"scope,omitempty" enums:"read,write" example:"read"`
	ExpiresIn string `json:"expires_in,omitempty" example:"720h"` // Go duration, 1h..8760h; default 2160h
}

// TokenResponse is the JSON representation of an API token. The secret is
// only present in the responses to create and rotate.
type TokenResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Scope       string     `json:"scope"`
	Token       string     `json:"token,omitempty"`
	RotatedFrom string     `json:"rotated_from,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TokenListResponse lists the caller's usable tokens, newest first.
type TokenListResponse struct {
	Tokens []*TokenResponse `json:"tokens"`
}

func toTokenResponse(tok *auth.Token) *TokenResponse {
	item := &TokenResponse{
		ID:          tok.ID,
		Name:        tok.Name,
		Scope:       string(tok.Scope),
		RotatedFrom: tok.RotatedFrom.String,
		ExpiresAt:   tok.ExpiresAt,
		CreatedAt:   tok.CreatedAt,
	}
	if tok.LastUsedAt.Valid {
		t := tok.LastUsedAt.Time
		item.LastUsedAt = &t
	}
	return item
}

func toIssuedResponse(issued *auth.IssuedToken) *TokenResponse {
	item := toTokenResponse(issued.Token)
	item.Token = issued.Plaintext
	return item
}
