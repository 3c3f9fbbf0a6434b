package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
)

// NotFound returns a 404 HTTP error
func NotFound(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf(format, args...))
}

// Repository is embedded by every repository. Tenant-owned rows are always filtered by the
// tenant on the request context.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

func (r *Repository) DB() database.DB {
	return r.db
}

// exec runs a write that must touch a row. Zero affected rows is reported as notFound.
func (r *Repository) exec(ctx context.Context, notFound error, what, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Errorf("failed to %s", what)
		return fmt.Errorf("%w: %s: %v", models.ErrStorageWriteFailure, what, err)
	}
	return requireRow(result, notFound, what)
}

func requireRow(result sql.Result, notFound error, what string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", models.ErrStorageWriteFailure, what, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", notFound, what)
	}
	return nil
}

// GetTenantID reads the tenant from the context. A missing or malformed tenant is a 401.
func GetTenantID(ctx context.Context) (uuid.UUID, error) {
	raw := appctx.GetTenantID(ctx)
	if raw == "" {
		return uuid.Nil, httperror.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	tenantID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, httperror.NewHTTPError(http.StatusUnauthorized, "invalid authentication token")
	}
	return tenantID, nil
}
