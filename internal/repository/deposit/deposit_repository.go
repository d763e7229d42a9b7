package deposit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"letknow-gateway/internal/models"
	"letknow-gateway/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Schema creates the tables used by the repository. Safe to run on every start.
const Schema = `CREATE SCHEMA IF NOT EXISTS letknow;

CREATE TABLE IF NOT EXISTS letknow.deposits (
	storefront_id TEXT NOT NULL,
	reference_id  TEXT NOT NULL,
	address       TEXT NOT NULL,
	qr_code       TEXT NOT NULL,
	currency      TEXT NOT NULL,
	status        TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (storefront_id, reference_id)
);

CREATE TABLE IF NOT EXISTS letknow.payment_attempts (
	attempt_id      UUID PRIMARY KEY,
	storefront_id   TEXT NOT NULL,
	reference_id    TEXT NOT NULL,
	result          TEXT NOT NULL,
	error_code      INTEGER,
	upstream_status INTEGER,
	message         TEXT,
	duration_ms     BIGINT NOT NULL,
	trace_id        TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS payment_attempts_reference_id_idx
	ON letknow.payment_attempts (storefront_id, reference_id);`

// DBClient interface for database operations
type DBClient interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repository stores issued deposit addresses and the provider attempts behind them.
type Repository struct {
	db      DBClient
	timeout time.Duration
	logger  *zap.Logger
}

// NewRepository creates a new deposit repository
func NewRepository(db DBClient, logger *zap.Logger) *Repository {
	return &Repository{
		db:      db,
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

// EnsureSchema applies Schema.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return errors.WrapDomainError(err, errors.CodeDependencyUnavailable, "schema migration failed", "database error")
	}
	return nil
}

// StoreDeposit upserts the deposit record for its storefront and reference id.
// A resubmitted checkout that was issued a new address overwrites the old one.
func (r *Repository) StoreDeposit(ctx context.Context, record *models.DepositRecord) error {
	if record.StorefrontID == "" || record.ReferenceID == "" {
		return errors.NewDomainError(errors.CodeInvalidRequest, "invalid deposit record", "storefront_id and reference_id are required")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `INSERT INTO letknow.deposits (
		storefront_id, reference_id, address, qr_code, currency, status
	) VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (storefront_id, reference_id) DO UPDATE SET
		address = EXCLUDED.address,
		qr_code = EXCLUDED.qr_code,
		currency = EXCLUDED.currency,
		status = EXCLUDED.status,
		updated_at = CURRENT_TIMESTAMP`

	_, err := r.db.ExecContext(ctx, query,
		record.StorefrontID,
		record.ReferenceID,
		record.Address,
		record.QRCode,
		record.Currency,
		record.Status,
	)
	if err != nil {
		r.logger.Error("failed to store deposit",
			zap.Error(err),
			zap.String("storefront_id", record.StorefrontID),
			zap.String("reference_id", record.ReferenceID),
		)
		return errors.WrapDomainError(err, errors.CodeDependencyUnavailable, "deposit storage failed", "database error")
	}

	r.logger.Debug("deposit stored",
		zap.String("storefront_id", record.StorefrontID),
		zap.String("reference_id", record.ReferenceID),
		zap.String("status", record.Status),
	)

	return nil
}

// GetDepositByReferenceID retrieves the deposit record storefrontID holds for referenceID.
// Another storefront's record with the same reference id is reported as not found.
func (r *Repository) GetDepositByReferenceID(ctx context.Context, storefrontID, referenceID string) (*models.DepositRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT reference_id, storefront_id, address, qr_code, currency, status, created_at, updated_at
	FROM letknow.deposits
	WHERE storefront_id = $1 AND reference_id = $2`

	var record models.DepositRecord
	err := r.db.QueryRowContext(ctx, query, storefrontID, referenceID).Scan(
		&record.ReferenceID,
		&record.StorefrontID,
		&record.Address,
		&record.QRCode,
		&record.Currency,
		&record.Status,
		&record.CreatedAt,
		&record.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, errors.NewDomainError(errors.CodeNotFound, "deposit not found", fmt.Sprintf("reference_id %s not found", referenceID))
	}

	if err != nil {
		r.logger.Error("failed to get deposit",
			zap.Error(err),
			zap.String("storefront_id", storefrontID),
			zap.String("reference_id", referenceID),
		)
		return nil, errors.WrapDomainError(err, errors.CodeDependencyUnavailable, "deposit store unavailable", "database error")
	}

	return &record, nil
}

// StoreAttempt records one provider exchange.
// Note: created_at is set by the database (DEFAULT now())
func (r *Repository) StoreAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	if attempt.AttemptID == "" {
		attempt.AttemptID = uuid.New().String()
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `INSERT INTO letknow.payment_attempts (
		attempt_id, storefront_id, reference_id, result, error_code,
		upstream_status, message, duration_ms, trace_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		attempt.AttemptID,
		attempt.StorefrontID,
		attempt.ReferenceID,
		attempt.Result,
		sqlNullInt(attempt.ErrorCode),
		sqlNullInt(attempt.UpstreamStatus),
		sqlNullString(attempt.Message),
		attempt.Duration.Milliseconds(),
		sqlNullString(attempt.TraceID),
	)
	if err != nil {
		r.logger.Error("failed to store payment attempt", zap.Error(err), zap.String("reference_id", attempt.ReferenceID))
		return errors.WrapDomainError(err, errors.CodeDependencyUnavailable, "attempt storage failed", "database error")
	}

	r.logger.Debug("payment attempt stored",
		zap.String("attempt_id", attempt.AttemptID),
		zap.String("reference_id", attempt.ReferenceID),
		zap.String("result", attempt.Result),
		zap.Int("error_code", attempt.ErrorCode),
	)

	return nil
}

func sqlNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func sqlNullInt(v int) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: int64(v), Valid: true}
}
