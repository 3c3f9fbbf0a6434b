package models

import "errors"

var (
	// ErrInvalidState is returned when the OAuth state does not match the server recomputation
	ErrInvalidState = errors.New("invalid oauth state")

	// ErrTokenExchangeFailed is returned when the provider rejects the authorization code
	ErrTokenExchangeFailed = errors.New("token exchange failed")

	// ErrTokenExpired is returned when a stored access token is expired and cannot be refreshed
	ErrTokenExpired = errors.New("access token expired")

	// ErrIntegrationNotFound is returned when no active integration exists for the account
	ErrIntegrationNotFound = errors.New("integration not found")

	// ErrInvalidCredentials is returned when the stored credential bundle is missing required fields
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrRemoteAPIFailure is returned when the provider API keeps failing after retries
	ErrRemoteAPIFailure = errors.New("remote api failure")

	// ErrStorageWriteFailure is returned when a primary write fails
	ErrStorageWriteFailure = errors.New("storage write failure")

	// ErrInvalidSignature is returned when a webhook signature does not verify
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrCampaignNotFound is returned when a webhook references an unknown campaign
	ErrCampaignNotFound = errors.New("campaign not found")

	// ErrInvalidPayload is returned when a webhook event body cannot be decoded
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrAlertNotFound is returned when an alert trigger references an unknown alert
	ErrAlertNotFound = errors.New("alert not found")

	// ErrInvalidDateRange is returned when a sync window starts after it ends
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrUnsupportedPlatform is returned for an unknown platform identifier
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)
