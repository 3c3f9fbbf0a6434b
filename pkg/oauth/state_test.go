package oauth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/oauth"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func mustSigner(t *testing.T, secret string, ttl time.Duration) *oauth.StateSigner {
	t.Helper()
	signer, err := oauth.NewStateSigner(secret, ttl)
	require.NoError(t, err)
	return signer
}

func flipLast(s string) string {
	replacement := "0"
	if s[len(s)-1] == '0' {
		replacement = "1"
	}
	return s[:len(s)-1] + replacement
}

func TestStateSigner_RoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	signer := mustSigner(t, "secret", oauth.DefaultStateTTL).WithClock(fixedClock(now))

	state := signer.Generate("tenant-1", models.PlatformGA4)

	assert.NoError(t, signer.Verify(state, "tenant-1", models.PlatformGA4))
}

func TestStateSigner_Tampered(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	signer := mustSigner(t, "secret", oauth.DefaultStateTTL).WithClock(fixedClock(now))
	state := signer.Generate("tenant-1", models.PlatformGA4)

	tests := []struct {
		name     string
		state    string
		tenant   string
		platform models.Platform
	}{
		{name: "other tenant", state: state, tenant: "tenant-2", platform: models.PlatformGA4},
		{name: "other platform", state: state, tenant: "tenant-1", platform: models.PlatformMeta},
		{name: "flipped byte", state: flipLast(state), tenant: "tenant-1", platform: models.PlatformGA4},
		{name: "no separator", state: "abc", tenant: "tenant-1", platform: models.PlatformGA4},
		{name: "bad timestamp", state: "x." + state, tenant: "tenant-1", platform: models.PlatformGA4},
		{name: "empty", state: "", tenant: "tenant-1", platform: models.PlatformGA4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := signer.Verify(tt.state, tt.tenant, tt.platform)
			assert.ErrorIs(t, err, models.ErrInvalidState)
		})
	}
}

func TestStateSigner_OtherSecret(t *testing.T) {
	state := mustSigner(t, "one", 0).Generate("tenant-1", models.PlatformMeta)

	err := mustSigner(t, "two", 0).Verify(state, "tenant-1", models.PlatformMeta)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestStateSigner_Expired(t *testing.T) {
	issued := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	signer := mustSigner(t, "secret", 15*time.Minute).WithClock(fixedClock(issued))
	state := signer.Generate("tenant-1", models.PlatformGoogleAds)

	signer.WithClock(fixedClock(issued.Add(16 * time.Minute)))

	assert.ErrorIs(t, signer.Verify(state, "tenant-1", models.PlatformGoogleAds), models.ErrInvalidState)
}

func TestStateSigner_RequiresSecret(t *testing.T) {
	signer, err := oauth.NewStateSigner("", oauth.DefaultStateTTL)

	assert.ErrorIs(t, err, oauth.ErrEmptyStateSecret)
	assert.Nil(t, signer)
}
