package models

import "time"

// Credentials is the OAuth bundle persisted as JSON on an integration
type Credentials struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Scope        string     `json:"scope,omitempty"`

	// GA4
	PropertyID string `json:"property_id,omitempty"`
	// Google Ads
	CustomerID string `json:"customer_id,omitempty"`
	// Search Console
	SiteURL string `json:"site_url,omitempty"`
	// Meta
	AdAccountID string `json:"ad_account_id,omitempty"`
}

// IsExpired reports whether the access token expires within skew of now. Tokens without an
// expiry never expire.
func (c *Credentials) IsExpired(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt == nil || c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(*c.ExpiresAt)
}
