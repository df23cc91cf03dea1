// Package oauth runs the Google authorization-code flow that gives the
// browser an access token for the user's own spreadsheets.
package oauth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/sheets/v4"
)

// ErrNotConfigured is returned when no client id or secret is set.
var ErrNotConfigured = errors.New("google oauth client is not configured")

// Scopes requested from the user.
var Scopes = []string{sheets.SpreadsheetsScope, drive.DriveReadonlyScope}

// CallbackPath is where the frontend receives the authorization code.
const CallbackPath = "/auth/google/callback"

// Tokens is the result of a code exchange.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// Google builds auth URLs and exchanges codes for one OAuth client.
type Google struct {
	clientID     string
	clientSecret string
	redirectURI  string
	endpoint     oauth2.Endpoint
}

// NewGoogle returns a flow for the given client. redirectURI may be empty, in
// which case callers pass a URI derived from the request.
func NewGoogle(clientID, clientSecret, redirectURI string) *Google {
	return &Google{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		endpoint:     google.Endpoint,
	}
}

// WithEndpoint returns a copy of g that talks to the given provider
// endpoints.
func (g *Google) WithEndpoint(e oauth2.Endpoint) *Google {
	c := *g
	c.endpoint = e
	return &c
}

// Configured reports whether client credentials are present.
func (g *Google) Configured() bool {
	return g.clientID != "" && g.clientSecret != ""
}

// RedirectURI returns the configured redirect URI, or fallback when none is
// configured.
func (g *Google) RedirectURI(fallback string) string {
	if g.redirectURI != "" {
		return g.redirectURI
	}
	return fallback
}

func (g *Google) config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.clientID,
		ClientSecret: g.clientSecret,
		RedirectURL:  g.RedirectURI(redirectURI),
		Scopes:       Scopes,
		Endpoint:     g.endpoint,
	}
}

// AuthURL returns the consent page URL requesting offline access.
func (g *Google) AuthURL(redirectURI, state string) (string, error) {
	if !g.Configured() {
		return "", ErrNotConfigured
	}
	return g.config(redirectURI).AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// Exchange trades an authorization code for tokens. redirectURI must match
// the one used for AuthURL.
func (g *Google) Exchange(ctx context.Context, code, redirectURI string) (Tokens, error) {
	if !g.Configured() {
		return Tokens{}, ErrNotConfigured
	}
	tok, err := g.config(redirectURI).Exchange(ctx, code)
	if err != nil {
		return Tokens{}, fmt.Errorf("exchange code: %w", err)
	}
	return Tokens{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}, nil
}
