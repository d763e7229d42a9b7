package payment

import (
	"context"
	"net/http"
	"net/url"

	"letknow-gateway/internal/middleware"
	"letknow-gateway/internal/models"
	paymentservice "letknow-gateway/internal/services/payment"
	"letknow-gateway/internal/services/tracing"
	"letknow-gateway/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Gateway issues deposit addresses for checkouts
type Gateway interface {
	Submit(ctx context.Context, order models.OrderInfo) *models.PaymentOutcome
	GetDeposit(ctx context.Context, referenceID string) (*models.DepositRecord, error)
}

// CheckoutRequest is posted by the storefront when the shopper places an order.
type CheckoutRequest struct {
	OrderID     string         `json:"order_id"`
	ReferenceID string         `json:"reference_id,omitempty"`
	Billing     BillingDetails `json:"billing"`
	ReturnURL   string         `json:"return_url,omitempty"`
}

type BillingDetails struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Address1  string `json:"address_1"`
}

// CheckoutResponse is the outcome plus where to send the shopper once the QR code is acknowledged.
type CheckoutResponse struct {
	*models.PaymentOutcome
	Redirect string `json:"redirect,omitempty"`
}

// Handler serves the checkout API
type Handler struct {
	gateway Gateway
	logger  *zap.Logger
}

// NewHandler creates a new checkout handler
func NewHandler(gateway Gateway, logger *zap.Logger) *Handler {
	return &Handler{
		gateway: gateway,
		logger:  logger,
	}
}

// RegisterRoutes mounts the checkout endpoints on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/payments", h.HandleCreatePayment)
	rg.GET("/payments/:reference_id", h.HandleGetPayment)
}

// HandleCreatePayment handles POST /payments
func (h *Handler) HandleCreatePayment(c *gin.Context) {
	ctx := c.Request.Context()
	traceID := tracing.ExtractTraceID(ctx)

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid checkout request", zap.Error(err), zap.String("trace_id", traceID))
		h.respondError(c, "", errors.NewDomainError(errors.CodeInvalidRequest, "invalid request", err.Error()))
		return
	}

	order, err := req.toOrderInfo()
	if err != nil {
		h.logger.Warn("invalid checkout request", zap.Error(err), zap.String("trace_id", traceID))
		h.respondError(c, req.ReferenceID, err)
		return
	}

	if sf := middleware.GetStorefrontFromContext(c); sf != nil {
		ctx = paymentservice.WithStorefrontID(ctx, sf.ID)
	}

	outcome := h.gateway.Submit(ctx, order)
	if !outcome.IsSuccess() {
		c.JSON(errors.HTTPStatusForCode(outcome.Code), CheckoutResponse{PaymentOutcome: outcome})
		return
	}

	c.JSON(http.StatusOK, CheckoutResponse{
		PaymentOutcome: outcome,
		Redirect:       req.ReturnURL,
	})
}

// HandleGetPayment handles GET /payments/:reference_id
func (h *Handler) HandleGetPayment(c *gin.Context) {
	referenceID := c.Param("reference_id")

	ctx := c.Request.Context()
	if sf := middleware.GetStorefrontFromContext(c); sf != nil {
		ctx = paymentservice.WithStorefrontID(ctx, sf.ID)
	}

	record, err := h.gateway.GetDeposit(ctx, referenceID)
	if err != nil {
		h.respondError(c, referenceID, err)
		return
	}

	// Storefronts only see their own deposits.
	if sf := middleware.GetStorefrontFromContext(c); sf != nil && record.StorefrontID != sf.ID {
		h.respondError(c, referenceID, errors.NewDomainError(errors.CodeNotFound, "deposit not found", "storefront mismatch"))
		return
	}

	c.JSON(http.StatusOK, record)
}

func (r CheckoutRequest) toOrderInfo() (models.OrderInfo, error) {
	referenceID := r.ReferenceID
	if referenceID == "" {
		if r.OrderID == "" {
			return models.OrderInfo{}, errors.NewDomainError(errors.CodeInvalidRequest, "invalid request", "order_id or reference_id is required")
		}
		referenceID = models.ReferenceIDForOrder(r.OrderID)
	}

	if r.ReturnURL != "" {
		u, err := url.Parse(r.ReturnURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return models.OrderInfo{}, errors.NewDomainError(errors.CodeInvalidRequest, "invalid request", "return_url must be an absolute http(s) URL")
		}
	}

	return models.OrderInfo{
		ReferenceID: referenceID,
		FirstName:   r.Billing.FirstName,
		LastName:    r.Billing.LastName,
		Email:       r.Billing.Email,
		Address:     r.Billing.Address1,
	}, nil
}

func (h *Handler) respondError(c *gin.Context, referenceID string, err error) {
	code := errors.CodeInternal
	message := "internal error"
	if domainErr, ok := errors.AsDomainError(err); ok {
		code = domainErr.Code
		message = domainErr.Message
		if domainErr.Details != "" && code == errors.CodeInvalidRequest {
			message = domainErr.Details
		}
	}

	c.JSON(errors.HTTPStatusForCode(code), &models.PaymentOutcome{
		Result:      models.ResultFailure,
		ReferenceID: referenceID,
		Message:     message,
		Code:        code,
	})
}
