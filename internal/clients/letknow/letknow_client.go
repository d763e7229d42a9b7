package letknow

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"letknow-gateway/internal/config"
	"letknow-gateway/internal/models"
	"letknow-gateway/pkg/errors"

	"go.uber.org/zap"
)

// maxResponseBytes caps how much of a provider reply is read.
const maxResponseBytes = 1 << 20

// Client requests deposit addresses from the LetKnow API.
// It performs exactly one HTTP call per RequestDepositAddress and never retries.
type Client struct {
	httpClient *http.Client
	endpoint   string
	signer     *Signer
	logger     *zap.Logger
}

// NewClient creates a LetKnow client with certificate verification enabled.
func NewClient(cfg config.LetKnowConfig, signer *Signer, logger *zap.Logger) *Client {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:    20,
		IdleConnTimeout: 90 * time.Second,
	}

	return NewClientWithHTTPClient(cfg.Endpoint, &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}, signer, logger)
}

// NewClientWithHTTPClient creates a client around a caller-supplied http.Client.
func NewClientWithHTTPClient(endpoint string, httpClient *http.Client, signer *Signer, logger *zap.Logger) *Client {
	if signer == nil {
		signer = NewSigner()
	}
	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		signer:     signer,
		logger:     logger,
	}
}

// RequestDepositAddress asks LetKnow for a BTC deposit address for order.
//
// On HTTP 200 the decoded body is returned as-is, including replies whose result
// is "failure"; checking Result is the caller's job. Every other outcome is a
// *errors.DomainError: CodeTransport when no response arrived, CodeProvider for a
// non-200 status and CodeResponseParse for an undecodable 200 body.
func (c *Client) RequestDepositAddress(ctx context.Context, order models.OrderInfo, creds models.Credentials) (*models.PaymentResponse, error) {
	if err := creds.Validate(); err != nil {
		return nil, errors.WrapDomainError(err, errors.CodeInvalidConfiguration, "invalid credentials", err.Error())
	}
	if err := order.Validate(); err != nil {
		return nil, errors.WrapDomainError(err, errors.CodeInvalidRequest, "invalid order", err.Error())
	}

	body, err := json.Marshal(models.NewPaymentRequest(order))
	if err != nil {
		return nil, errors.WrapDomainError(err, errors.CodeInternal, "request serialization failed", "failed to marshal payment request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.WrapDomainError(err, errors.CodeInternal, "request creation failed", "failed to create request")
	}

	signed := c.signer.Sign(creds)
	req.Header.Set(HeaderNonce, signed.Nonce)
	req.Header.Set(HeaderSignature, signed.Signature)
	req.Header.Set(HeaderShopID, signed.ShopID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("letknow request failed",
			zap.String("reference_id", order.ReferenceID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, errors.NewTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.NewTransportError(fmt.Errorf("reading response body: %w", err))
	}

	c.logger.Debug("letknow response received",
		zap.String("reference_id", order.ReferenceID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewProviderError(resp.StatusCode, providerMessage(respBody))
	}

	var result models.PaymentResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		c.logger.Warn("letknow response is not valid json",
			zap.String("reference_id", order.ReferenceID),
			zap.Error(err),
		)
		return nil, errors.NewResponseParseError(resp.StatusCode, err)
	}
	result.Raw = json.RawMessage(respBody)

	return &result, nil
}

// providerMessage pulls "message" (or "error") out of an error body when it is JSON.
func providerMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if envelope.Message != "" {
		return envelope.Message
	}
	return envelope.Error
}
