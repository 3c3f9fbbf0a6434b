package platforms

import "strings"

// Endpoints are the provider API base URLs. The zero value is filled with the production
// hosts by WithDefaults.
type Endpoints struct {
	GA4AdminURL              string
	GA4DataURL               string
	GoogleAdsURL             string
	GoogleAdsVersion         string
	GoogleAdsDeveloperToken  string
	GoogleAdsLoginCustomerID string
	SearchConsoleURL         string
	MetaGraphURL             string
	MetaVersion              string
}

// WithDefaults fills unset fields with the production values
func (e Endpoints) WithDefaults() Endpoints {
	set := func(v *string, fallback string) {
		if *v == "" {
			*v = fallback
		}
		*v = strings.TrimRight(*v, "/")
	}
	set(&e.GA4AdminURL, "https://analyticsadmin.googleapis.com")
	set(&e.GA4DataURL, "https://analyticsdata.googleapis.com")
	set(&e.GoogleAdsURL, "https://googleads.googleapis.com")
	set(&e.GoogleAdsVersion, "v17")
	set(&e.SearchConsoleURL, "https://www.googleapis.com")
	set(&e.MetaGraphURL, "https://graph.facebook.com")
	set(&e.MetaVersion, "v19.0")
	return e
}
