package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestResolveDateRange_Defaults(t *testing.T) {
	now := time.Date(2024, 3, 31, 15, 4, 5, 0, time.UTC)

	r, err := models.ResolveDateRange(nil, nil, now)
	require.NoError(t, err)

	assert.Equal(t, "2024-03-01", r.StartString())
	assert.Equal(t, "2024-03-31", r.EndString())
	assert.Len(t, r.Days(), 31)
}

func TestResolveDateRange_StartOnly(t *testing.T) {
	now := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	start := time.Date(2024, 3, 25, 0, 0, 0, 0, time.UTC)

	r, err := models.ResolveDateRange(&start, nil, now)
	require.NoError(t, err)

	assert.Equal(t, "2024-03-25", r.StartString())
	assert.Equal(t, "2024-03-31", r.EndString())
	assert.Len(t, r.Days(), 7)
}

func TestResolveDateRange_Inverted(t *testing.T) {
	now := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	start := time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)

	_, err := models.ResolveDateRange(&start, nil, now)
	assert.ErrorIs(t, err, models.ErrInvalidDateRange)
}

func TestParseDate(t *testing.T) {
	compact, err := models.ParseDate("20240105")
	require.NoError(t, err)
	dashed, err := models.ParseDate("2024-01-05")
	require.NoError(t, err)

	assert.True(t, compact.Equal(dashed))
}

func TestParsePlatform(t *testing.T) {
	p, err := models.ParsePlatform("google_ads")
	require.NoError(t, err)
	assert.Equal(t, models.PlatformGoogleAds, p)
	assert.False(t, models.PlatformMeta.IsGoogle())

	_, err = models.ParsePlatform("tiktok")
	assert.ErrorIs(t, err, models.ErrUnsupportedPlatform)
}

func TestCredentials_IsExpired(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	assert.True(t, (&models.Credentials{ExpiresAt: &past}).IsExpired(now, 0))
	assert.False(t, (&models.Credentials{ExpiresAt: &future}).IsExpired(now, time.Minute))
	assert.False(t, (&models.Credentials{}).IsExpired(now, 0))
}
