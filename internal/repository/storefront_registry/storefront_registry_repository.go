package storefront_registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"letknow-gateway/internal/models"
	"letknow-gateway/pkg/errors"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Schema creates the storefront registry table. Safe to run on every start.
const Schema = `CREATE SCHEMA IF NOT EXISTS letknow;

CREATE TABLE IF NOT EXISTS letknow.storefronts (
	storefront_id TEXT PRIMARY KEY,
	api_key_hash  TEXT NOT NULL,
	allowed_ips   TEXT[] NOT NULL DEFAULT '{}',
	status        TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// DBClient interface for database operations
type DBClient interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repository handles storefront registry storage
type Repository struct {
	db     DBClient
	logger *zap.Logger
}

func NewRepository(db DBClient, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return errors.WrapDomainError(err, errors.CodeDependencyUnavailable, "schema migration failed", "database error")
	}
	return nil
}

// UpsertStorefront inserts or replaces a storefront
func (r *Repository) UpsertStorefront(ctx context.Context, sf *models.Storefront) error {
	if sf.ID == "" || sf.APIKeyHash == "" {
		return errors.NewDomainError(errors.CodeInvalidRequest, "invalid storefront", "storefront_id and api_key_hash are required")
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := sf.Status
	if status == "" {
		status = models.StorefrontStatusActive
	}
	allowedIPs := sf.AllowedIPs
	if allowedIPs == nil {
		allowedIPs = []string{}
	}

	query := `INSERT INTO letknow.storefronts (
		storefront_id, api_key_hash, allowed_ips, status
	) VALUES ($1, $2, $3, $4)
	ON CONFLICT (storefront_id) DO UPDATE SET
		api_key_hash = EXCLUDED.api_key_hash,
		allowed_ips = EXCLUDED.allowed_ips,
		status = EXCLUDED.status,
		updated_at = CURRENT_TIMESTAMP`

	_, err := r.db.ExecContext(ctx, query, sf.ID, sf.APIKeyHash, pq.Array(allowedIPs), status)
	if err != nil {
		r.logger.Error("failed to upsert storefront", zap.Error(err), zap.String("storefront_id", sf.ID))
		return errors.WrapDomainError(err, errors.CodeDependencyUnavailable, "storefront registry storage failed", "database error")
	}

	r.logger.Debug("storefront upserted",
		zap.String("storefront_id", sf.ID),
		zap.String("status", status),
	)

	return nil
}

func (r *Repository) GetByStorefrontID(ctx context.Context, storefrontID string) (*models.Storefront, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	query := `SELECT storefront_id, api_key_hash, allowed_ips, status
	FROM letknow.storefronts
	WHERE storefront_id = $1`

	var (
		sf         models.Storefront
		allowedIPs pq.StringArray
	)
	err := r.db.QueryRowContext(ctx, query, storefrontID).Scan(
		&sf.ID,
		&sf.APIKeyHash,
		&allowedIPs,
		&sf.Status,
	)

	if err == sql.ErrNoRows {
		return nil, errors.NewDomainError(errors.CodeNotFound, "storefront not found", fmt.Sprintf("storefront_id %s not found", storefrontID))
	}

	if err != nil {
		r.logger.Error("failed to get storefront", zap.Error(err), zap.String("storefront_id", storefrontID))
		return nil, errors.WrapDomainError(err, errors.CodeDependencyUnavailable, "storefront registry unavailable", "database error")
	}

	if len(allowedIPs) > 0 {
		sf.AllowedIPs = []string(allowedIPs)
	}

	return &sf, nil
}

// UpdateStatus updates storefront status
func (r *Repository) UpdateStatus(ctx context.Context, storefrontID, status string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	query := `UPDATE letknow.storefronts
	SET status = $1, updated_at = CURRENT_TIMESTAMP
	WHERE storefront_id = $2`

	result, err := r.db.ExecContext(ctx, query, status, storefrontID)
	if err != nil {
		r.logger.Error("failed to update storefront status", zap.Error(err), zap.String("storefront_id", storefrontID))
		return errors.WrapDomainError(err, errors.CodeDependencyUnavailable, "storefront status update failed", "database error")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.WrapDomainError(err, errors.CodeDependencyUnavailable, "storefront status update failed", "failed to get rows affected")
	}

	if rowsAffected == 0 {
		return errors.NewDomainError(errors.CodeNotFound, "storefront not found", fmt.Sprintf("storefront_id %s not found", storefrontID))
	}

	r.logger.Debug("storefront status updated",
		zap.String("storefront_id", storefrontID),
		zap.String("status", status),
	)

	return nil
}
