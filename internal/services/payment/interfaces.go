package payment

import (
	"context"
	"time"

	"letknow-gateway/internal/models"
)

// ProviderClient requests deposit addresses from LetKnow
type ProviderClient interface {
	RequestDepositAddress(ctx context.Context, order models.OrderInfo, creds models.Credentials) (*models.PaymentResponse, error)
}

// Breaker guards the provider call
type Breaker interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

// DepositStore persists deposit records and provider attempts
type DepositStore interface {
	StoreDeposit(ctx context.Context, record *models.DepositRecord) error
	GetDepositByReferenceID(ctx context.Context, storefrontID, referenceID string) (*models.DepositRecord, error)
	StoreAttempt(ctx context.Context, attempt *models.PaymentAttempt) error
}

// EventPublisher publishes events to Redis streams
type EventPublisher interface {
	PublishEvent(ctx context.Context, stream, eventType string, event interface{}) error
}

// OutcomeCache replays successful outcomes for a storefront's reference id
type OutcomeCache interface {
	LookupOutcome(ctx context.Context, storefrontID, referenceID string) (*models.PaymentOutcome, bool, error)
	StoreOutcome(ctx context.Context, storefrontID string, outcome *models.PaymentOutcome) error
}

// Metrics records gateway metrics
type Metrics interface {
	RecordProviderCall(result string, errorCode int, duration time.Duration)
	RecordDepositIssued()
	RecordOutcomeReplay()
	RecordDependencyError(dependency, operation string)
}
