// Package platforms adapts each advertising and analytics provider to one sync interface.
// The sync service dispatches on models.Platform and never branches on provider details.
package platforms

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Account is a remote account discovered with a freshly exchanged token
type Account struct {
	ID          string
	Name        string
	Credentials models.Credentials
}

// Batch is the platform-specific metric rows fetched for one sync window
type Batch interface {
	Len() int
}

// Rows is a Batch of one metric row type
type Rows[T any] []T

func (r Rows[T]) Len() int {
	return len(r)
}

// Adapter is the capability set every platform implements
type Adapter interface {
	Platform() models.Platform
	// DiscoverAccounts lists the remote accounts reachable with a new token. The returned
	// credentials carry the platform-specific account field.
	DiscoverAccounts(ctx context.Context, creds models.Credentials) ([]Account, error)
	// FetchCredential validates the stored bundle and returns usable credentials
	FetchCredential(ctx context.Context, integration *models.Integration) (models.Credentials, error)
	// FetchRemoteMetrics calls the reporting API for the window
	FetchRemoteMetrics(ctx context.Context, creds models.Credentials, window models.DateRange) (Batch, error)
	// UpsertMetrics stores the batch and returns the number of rows written
	UpsertMetrics(ctx context.Context, batch Batch) (int, error)
}

// ErrNoAccounts is returned when a token grants access to no usable account
var ErrNoAccounts = errors.New("no accessible accounts")

// ErrPagingLimit is returned when a paged API still has more pages after the page cap
var ErrPagingLimit = errors.New("paging limit reached")

// IsPermanent reports whether retrying err cannot help: bad stored credentials, an expired
// token, an open circuit or a 4xx other than 408/429.
func IsPermanent(err error) bool {
	if errors.Is(err, models.ErrInvalidCredentials) || errors.Is(err, models.ErrTokenExpired) ||
		errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrPagingLimit) {
		return true
	}
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusUnauthorized {
			return true
		}
		return statusErr.StatusCode < 500 && !statusErr.Retryable()
	}
	return false
}

func invalidCredentials(platform models.Platform, field string) error {
	return fmt.Errorf("%w: %s credentials missing %s", models.ErrInvalidCredentials, platform, field)
}

func unexpectedBatch(platform models.Platform, batch Batch) error {
	return fmt.Errorf("%s adapter cannot store batch of type %T", platform, batch)
}
