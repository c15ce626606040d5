package discord

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

const (
	DefaultAuthURL  = "https://discord.com/api/oauth2/authorize"
	DefaultTokenURL = "https://discord.com/api/oauth2/token"
)

// OAuthConfig describes the Discord application used for login.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
}

// OAuth performs the authorization code flow for the identify and guilds scopes.
type OAuth struct {
	cfg *oauth2.Config
}

// NewOAuth builds an OAuth helper, falling back to Discord's public endpoints.
func NewOAuth(c OAuthConfig) *OAuth {
	authURL, tokenURL := c.AuthURL, c.TokenURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &OAuth{cfg: &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       []string{"identify", "guilds"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}}
}

// Configured reports whether a client id and secret are present.
func (o *OAuth) Configured() bool {
	return o.cfg.ClientID != "" && o.cfg.ClientSecret != ""
}

// AuthCodeURL returns the consent URL carrying state.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for an access token.
func (o *OAuth) Exchange(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", errors.New("missing authorization code")
	}
	tok, err := o.cfg.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return "", fmt.Errorf("%w: token exchange returned %d", ErrInvalidAuth, re.Response.StatusCode)
		}
		return "", fmt.Errorf("%w: token exchange: %v", ErrUnavailable, err)
	}
	return tok.AccessToken, nil
}
