package oauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/Ramsey-B/clover/pkg/models"
)

const (
	GoogleAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	GoogleTokenURL = "https://oauth2.googleapis.com/token"
	MetaAuthURL    = "https://www.facebook.com/v19.0/dialog/oauth"
	MetaTokenURL   = "https://graph.facebook.com/v19.0/oauth/access_token"
)

// DefaultExpirySkew refreshes tokens slightly before they expire
const DefaultExpirySkew = time.Minute

var defaultScopes = map[models.Platform][]string{
	models.PlatformGA4:           {"https://www.googleapis.com/auth/analytics.readonly"},
	models.PlatformGoogleAds:     {"https://www.googleapis.com/auth/adwords"},
	models.PlatformSearchConsole: {"https://www.googleapis.com/auth/webmasters.readonly"},
	models.PlatformMeta:          {"ads_read", "business_management"},
}

// ClientCredentials is one provider application's client id and secret
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// ProvidersConfig configures the OAuth applications. Endpoint URLs default to the real
// providers and are overridable for tests.
type ProvidersConfig struct {
	Google         ClientCredentials
	GoogleAds      ClientCredentials
	Meta           ClientCredentials
	GoogleAuthURL  string
	GoogleTokenURL string
	MetaAuthURL    string
	MetaTokenURL   string
}

// Providers holds one oauth2.Config per platform
type Providers struct {
	configs    map[models.Platform]*oauth2.Config
	httpClient *http.Client
	skew       time.Duration
	now        func() time.Time
}

// NewProviders builds the per-platform oauth2 configs. httpClient is used for token endpoint
// calls and may be nil.
func NewProviders(cfg ProvidersConfig, httpClient *http.Client) *Providers {
	google := oauth2.Endpoint{
		AuthURL:   orDefault(cfg.GoogleAuthURL, GoogleAuthURL),
		TokenURL:  orDefault(cfg.GoogleTokenURL, GoogleTokenURL),
		AuthStyle: oauth2.AuthStyleInParams,
	}
	meta := oauth2.Endpoint{
		AuthURL:   orDefault(cfg.MetaAuthURL, MetaAuthURL),
		TokenURL:  orDefault(cfg.MetaTokenURL, MetaTokenURL),
		AuthStyle: oauth2.AuthStyleInParams,
	}

	adsCreds := cfg.GoogleAds
	if adsCreds.ClientID == "" {
		adsCreds = cfg.Google
	}

	configs := map[models.Platform]*oauth2.Config{
		models.PlatformGA4:           newConfig(cfg.Google, google, models.PlatformGA4),
		models.PlatformSearchConsole: newConfig(cfg.Google, google, models.PlatformSearchConsole),
		models.PlatformGoogleAds:     newConfig(adsCreds, google, models.PlatformGoogleAds),
		models.PlatformMeta:          newConfig(cfg.Meta, meta, models.PlatformMeta),
	}

	return &Providers{
		configs:    configs,
		httpClient: httpClient,
		skew:       DefaultExpirySkew,
		now:        time.Now,
	}
}

func newConfig(creds ClientCredentials, endpoint oauth2.Endpoint, platform models.Platform) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       defaultScopes[platform],
	}
}

// WithClock overrides the clock used for expiry checks, for tests
func (p *Providers) WithClock(now func() time.Time) *Providers {
	p.now = now
	return p
}

func (p *Providers) config(platform models.Platform, redirectURI string) (*oauth2.Config, error) {
	base, ok := p.configs[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedPlatform, platform)
	}
	cfg := *base
	cfg.RedirectURL = redirectURI
	return &cfg, nil
}

func (p *Providers) context(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// AuthCodeURL returns the consent screen URL for the platform
func (p *Providers) AuthCodeURL(platform models.Platform, state, redirectURI string) (string, error) {
	cfg, err := p.config(platform, redirectURI)
	if err != nil {
		return "", err
	}

	opts := []oauth2.AuthCodeOption{}
	if platform.IsGoogle() {
		// offline access is required to receive a refresh token
		opts = append(opts, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	}
	return cfg.AuthCodeURL(state, opts...), nil
}

// Exchange trades an authorization code for a token. Any transport or provider error is
// ErrTokenExchangeFailed.
func (p *Providers) Exchange(ctx context.Context, platform models.Platform, code, redirectURI string) (*oauth2.Token, error) {
	cfg, err := p.config(platform, redirectURI)
	if err != nil {
		return nil, err
	}

	token, err := cfg.Exchange(p.context(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrTokenExchangeFailed, platform, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: %s: empty access token", models.ErrTokenExchangeFailed, platform)
	}
	return token, nil
}

// Refresh returns creds unchanged while the access token is valid. An expired token is
// refreshed with the refresh token; without one, or when the provider refuses, the result is
// ErrTokenExpired. The bool reports whether a refresh happened.
func (p *Providers) Refresh(ctx context.Context, platform models.Platform, creds models.Credentials) (models.Credentials, bool, error) {
	if !creds.IsExpired(p.now(), p.skew) {
		return creds, false, nil
	}
	if creds.RefreshToken == "" {
		return creds, false, fmt.Errorf("%w: %s token expired and no refresh token is stored", models.ErrTokenExpired, platform)
	}

	cfg, err := p.config(platform, "")
	if err != nil {
		return creds, false, err
	}

	// the stored token is known to be expired, so hand the source an already-expired token
	source := cfg.TokenSource(p.context(ctx), &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})
	token, err := source.Token()
	if err != nil {
		return creds, false, fmt.Errorf("%w: %s refresh failed: %v", models.ErrTokenExpired, platform, err)
	}

	return MergeToken(creds, token), true, nil
}

// MergeToken copies the token fields onto creds, keeping the stored refresh token when the
// provider does not rotate it
func MergeToken(creds models.Credentials, token *oauth2.Token) models.Credentials {
	creds.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		creds.RefreshToken = token.RefreshToken
	}
	creds.TokenType = token.TokenType
	if token.Expiry.IsZero() {
		creds.ExpiresAt = nil
	} else {
		expiry := token.Expiry.UTC()
		creds.ExpiresAt = &expiry
	}
	if scope, ok := token.Extra("scope").(string); ok {
		creds.Scope = scope
	}
	return creds
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
