package payment

import (
	"context"
	"net/http"
	"time"

	"letknow-gateway/internal/models"
	"letknow-gateway/internal/services/circuitbreaker"
	"letknow-gateway/internal/services/tracing"
	"letknow-gateway/pkg/errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const shopperErrorMessage = "Payment error"

type storefrontKey struct{}

// WithStorefrontID attributes the checkouts submitted with ctx to storefrontID.
func WithStorefrontID(ctx context.Context, storefrontID string) context.Context {
	return context.WithValue(ctx, storefrontKey{}, storefrontID)
}

func StorefrontIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(storefrontKey{}).(string)
	return id, ok && id != ""
}

func (g *Gateway) storefrontID(ctx context.Context) string {
	if id, ok := StorefrontIDFromContext(ctx); ok {
		return id
	}
	return g.config.StorefrontID
}

// Config carries what a Gateway needs besides its collaborators.
type Config struct {
	Credentials  models.Credentials
	StorefrontID string
	EventStream  string
}

// Gateway turns a storefront checkout into a LetKnow deposit address.
type Gateway struct {
	provider  ProviderClient
	breaker   Breaker
	deposits  DepositStore
	publisher EventPublisher
	outcomes  OutcomeCache
	metrics   Metrics
	tracing   *tracing.Service
	config    Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewGateway creates a new payment gateway
func NewGateway(
	provider ProviderClient,
	breaker Breaker,
	deposits DepositStore,
	publisher EventPublisher,
	outcomes OutcomeCache,
	metrics Metrics,
	tracingService *tracing.Service,
	cfg Config,
	logger *zap.Logger,
) *Gateway {
	return &Gateway{
		provider:  provider,
		breaker:   breaker,
		deposits:  deposits,
		publisher: publisher,
		outcomes:  outcomes,
		metrics:   metrics,
		tracing:   tracingService,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit requests a deposit address for order. The returned outcome is never nil;
// failures are reported through Result, Code and a shopper-facing Message.
func (g *Gateway) Submit(ctx context.Context, order models.OrderInfo) *models.PaymentOutcome {
	ctx, span := g.tracing.StartSpan(ctx, "payment.submit",
		trace.WithAttributes(
			tracing.AttrReferenceID.String(order.ReferenceID),
			tracing.AttrStorefrontID.String(g.storefrontID(ctx)),
		),
	)
	defer span.End()

	if err := g.config.Credentials.Validate(); err != nil {
		domainErr := errors.WrapDomainError(err, errors.CodeInvalidConfiguration, "merchant credentials not configured", err.Error())
		g.logger.Error("payment gateway misconfigured", zap.Error(domainErr))
		return g.failureOutcome(span, order.ReferenceID, domainErr)
	}
	if err := order.Validate(); err != nil {
		return g.failureOutcome(span, order.ReferenceID, errors.WrapDomainError(err, errors.CodeInvalidRequest, "invalid checkout", err.Error()))
	}

	storefrontID := g.storefrontID(ctx)
	if cached := g.replay(ctx, storefrontID, order.ReferenceID); cached != nil {
		span.SetAttributes(tracing.AttrReplayed.Bool(true), tracing.AttrResult.String(cached.Result))
		return cached
	}

	resp, err := g.exchange(ctx, order)
	if err != nil {
		g.publishFailure(ctx, order.ReferenceID, err)
		return g.failureOutcome(span, order.ReferenceID, err)
	}

	outcome := &models.PaymentOutcome{
		Result:      models.ResultSuccess,
		ReferenceID: order.ReferenceID,
		QRCode:      resp.QRCode,
		Address:     resp.Address,
	}
	g.metrics.RecordDepositIssued()
	g.recordDeposit(ctx, outcome)
	g.publishIssued(ctx, outcome)
	if err := g.outcomes.StoreOutcome(ctx, storefrontID, outcome); err != nil {
		g.dependencyError(ctx, "redis", "store_outcome", order.ReferenceID, err)
	}

	span.SetAttributes(tracing.AttrResult.String(outcome.Result))
	g.logger.Info("deposit address issued",
		zap.String("reference_id", order.ReferenceID),
		zap.String("trace_id", tracing.ExtractTraceID(ctx)),
	)

	return outcome
}

// GetDeposit returns the deposit record the calling storefront was issued for referenceID.
func (g *Gateway) GetDeposit(ctx context.Context, referenceID string) (*models.DepositRecord, error) {
	if referenceID == "" {
		return nil, errors.NewDomainError(errors.CodeInvalidRequest, "invalid request", "reference_id is required")
	}
	return g.deposits.GetDepositByReferenceID(ctx, g.storefrontID(ctx), referenceID)
}

func (g *Gateway) replay(ctx context.Context, storefrontID, referenceID string) *models.PaymentOutcome {
	cached, found, err := g.outcomes.LookupOutcome(ctx, storefrontID, referenceID)
	if err != nil {
		g.dependencyError(ctx, "redis", "lookup_outcome", referenceID, err)
		return nil
	}
	if !found || !cached.IsSuccess() {
		return nil
	}

	cached.Replayed = true
	g.metrics.RecordOutcomeReplay()
	g.logger.Info("replaying issued deposit address",
		zap.String("storefront_id", storefrontID),
		zap.String("reference_id", referenceID),
		zap.String("trace_id", tracing.ExtractTraceID(ctx)),
	)
	return cached
}

// exchange performs one provider call through the breaker and records it as an attempt.
// A 200 reply with a non-success result is returned as a provider error.
func (g *Gateway) exchange(ctx context.Context, order models.OrderInfo) (*models.PaymentResponse, error) {
	var resp *models.PaymentResponse
	start := g.now()

	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		ctx, span := g.tracing.StartProviderSpan(ctx, order.ReferenceID)
		defer span.End()

		r, err := g.provider.RequestDepositAddress(ctx, order, g.config.Credentials)
		if err != nil {
			tracing.RecordError(span, err)
			return err
		}
		resp = r
		return nil
	})
	if circuitbreaker.IsRejected(err) {
		return nil, errors.WrapDomainError(err, errors.CodeCircuitOpen, "payment provider temporarily unavailable", err.Error()).WithRetryable(true)
	}

	elapsed := g.now().Sub(start)
	if err == nil && !resp.IsSuccess() {
		err = errors.NewProviderError(http.StatusOK, resp.Message)
	}

	g.recordAttempt(ctx, order.ReferenceID, err, elapsed)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *Gateway) recordAttempt(ctx context.Context, referenceID string, err error, elapsed time.Duration) {
	attempt := &models.PaymentAttempt{
		AttemptID:    uuid.New().String(),
		StorefrontID: g.storefrontID(ctx),
		ReferenceID:  referenceID,
		Result:       models.ResultSuccess,
		Duration:     elapsed,
		TraceID:      tracing.ExtractTraceID(ctx),
		CreatedAt:    g.now(),
	}
	if err != nil {
		attempt.Result = models.ResultFailure
		if domainErr, ok := errors.AsDomainError(err); ok {
			attempt.ErrorCode = domainErr.Code
			attempt.UpstreamStatus = domainErr.UpstreamStatus
			attempt.Message = domainErr.Details
		} else {
			attempt.ErrorCode = errors.CodeInternal
			attempt.Message = err.Error()
		}
	}

	g.metrics.RecordProviderCall(attempt.Result, attempt.ErrorCode, elapsed)
	if storeErr := g.deposits.StoreAttempt(ctx, attempt); storeErr != nil {
		g.dependencyError(ctx, "postgres", "store_attempt", referenceID, storeErr)
	}
}

func (g *Gateway) recordDeposit(ctx context.Context, outcome *models.PaymentOutcome) {
	record := &models.DepositRecord{
		ReferenceID:  outcome.ReferenceID,
		StorefrontID: g.storefrontID(ctx),
		Address:      outcome.Address,
		QRCode:       outcome.QRCode,
		Currency:     models.CurrencyBTC,
		Status:       models.DepositStatusOnHold,
	}
	if err := g.deposits.StoreDeposit(ctx, record); err != nil {
		g.dependencyError(ctx, "postgres", "store_deposit", outcome.ReferenceID, err)
	}
}

func (g *Gateway) publishIssued(ctx context.Context, outcome *models.PaymentOutcome) {
	event := &models.DepositAddressIssuedEvent{
		BaseEvent:    g.baseEvent(ctx, models.EventDepositAddressIssued),
		ReferenceID:  outcome.ReferenceID,
		StorefrontID: g.storefrontID(ctx),
		Address:      outcome.Address,
		QRCode:       outcome.QRCode,
		OrderStatus:  models.DepositStatusOnHold,
	}
	if err := event.Validate(); err != nil {
		g.logger.Warn("deposit address event not published", zap.String("reference_id", outcome.ReferenceID), zap.Error(err))
		return
	}
	if err := g.publisher.PublishEvent(ctx, g.config.EventStream, event.EventType, event); err != nil {
		g.dependencyError(ctx, "redis", "publish", outcome.ReferenceID, err)
	}
}

func (g *Gateway) publishFailure(ctx context.Context, referenceID string, cause error) {
	event := &models.PaymentFailedEvent{
		BaseEvent:    g.baseEvent(ctx, models.EventPaymentFailed),
		ReferenceID:  referenceID,
		StorefrontID: g.storefrontID(ctx),
		ErrorCode:    errorCode(cause),
		Message:      errors.ProviderMessage(cause),
	}
	if err := g.publisher.PublishEvent(ctx, g.config.EventStream, event.EventType, event); err != nil {
		g.dependencyError(ctx, "redis", "publish", referenceID, err)
	}
}

func (g *Gateway) baseEvent(ctx context.Context, eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventType: eventType,
		EventID:   uuid.New().String(),
		TraceID:   tracing.ExtractTraceID(ctx),
		Timestamp: g.now().UTC(),
	}
}

func (g *Gateway) failureOutcome(span trace.Span, referenceID string, err error) *models.PaymentOutcome {
	tracing.RecordError(span, err)
	code := errorCode(err)
	span.SetAttributes(
		tracing.AttrResult.String(models.ResultFailure),
		tracing.AttrErrorCode.Int(code),
	)

	fields := []zap.Field{
		zap.String("reference_id", referenceID),
		zap.Int("error_code", code),
		zap.Error(err),
	}
	if domainErr, ok := errors.AsDomainError(err); ok && domainErr.UpstreamStatus != 0 {
		fields = append(fields, zap.Int("upstream_status", domainErr.UpstreamStatus))
	}
	g.logger.Warn("payment request failed", fields...)

	return &models.PaymentOutcome{
		Result:      models.ResultFailure,
		ReferenceID: referenceID,
		Message:     ShopperMessage(err),
		Code:        code,
	}
}

func (g *Gateway) dependencyError(ctx context.Context, dependency, operation, referenceID string, err error) {
	g.metrics.RecordDependencyError(dependency, operation)
	g.logger.Error("payment side effect failed",
		zap.String("dependency", dependency),
		zap.String("operation", operation),
		zap.String("reference_id", referenceID),
		zap.String("trace_id", tracing.ExtractTraceID(ctx)),
		zap.Error(err),
	)
}

// ShopperMessage renders the notice shown at checkout for a failed payment.
// Only provider-supplied text is surfaced; transport and internal details stay in the logs.
func ShopperMessage(err error) string {
	if msg := errors.ProviderMessage(err); msg != "" {
		return shopperErrorMessage + ": " + msg
	}
	return shopperErrorMessage
}

// IsProviderOutage reports whether err should count against the provider circuit breaker:
// transport failures other than caller cancellation, and 5xx replies.
func IsProviderOutage(err error) bool {
	domainErr, ok := errors.AsDomainError(err)
	if !ok {
		return err != nil
	}
	switch domainErr.Code {
	case errors.CodeTransport:
		return !errors.IsCanceled(err)
	case errors.CodeProvider:
		return domainErr.UpstreamStatus >= http.StatusInternalServerError
	default:
		return false
	}
}

func errorCode(err error) int {
	if domainErr, ok := errors.AsDomainError(err); ok {
		return domainErr.Code
	}
	return errors.CodeInternal
}
