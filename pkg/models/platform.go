package models

import "fmt"

// Platform identifies a connected advertising or analytics provider
type Platform string

const (
	PlatformGA4           Platform = "ga4"
	PlatformGoogleAds     Platform = "google_ads"
	PlatformSearchConsole Platform = "search_console"
	PlatformMeta          Platform = "meta"
)

// Platforms lists every supported platform
var Platforms = []Platform{PlatformGA4, PlatformGoogleAds, PlatformSearchConsole, PlatformMeta}

// ParsePlatform validates a platform identifier from a path or payload
func ParsePlatform(value string) (Platform, error) {
	for _, p := range Platforms {
		if string(p) == value {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, value)
}

func (p Platform) String() string {
	return string(p)
}

// IsGoogle reports whether the platform authenticates against Google's OAuth server
func (p Platform) IsGoogle() bool {
	return p == PlatformGA4 || p == PlatformGoogleAds || p == PlatformSearchConsole
}
