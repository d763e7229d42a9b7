package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CheckoutE2E drives a running gateway: checkout, lookup, replay and the stream event behind them.
// LetKnow must be reachable from the gateway with real merchant credentials.
type CheckoutE2E struct {
	baseURL      string
	storefrontID string
	apiKey       string
	stream       string
	redisClient  *redis.Client
	logger       *zap.Logger
	httpClient   *http.Client
}

func NewCheckoutE2E(baseURL, storefrontID, apiKey, stream, redisAddr, redisPassword string, redisDB int) (*CheckoutE2E, error) {
	logger, _ := zap.NewDevelopment()

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &CheckoutE2E{
		baseURL:      baseURL,
		storefrontID: storefrontID,
		apiKey:       apiKey,
		stream:       stream,
		redisClient:  rdb,
		logger:       logger,
		httpClient: &http.Client{
			Timeout: 130 * time.Second,
		},
	}, nil
}

type checkoutResult struct {
	Result      string `json:"result"`
	ReferenceID string `json:"reference_id"`
	QRCode      string `json:"qr_code"`
	Address     string `json:"address"`
	Message     string `json:"message"`
	Code        int    `json:"code"`
	Replayed    bool   `json:"replayed"`
	Redirect    string `json:"redirect"`
}

func (e *CheckoutE2E) do(ctx context.Context, method, path string, payload interface{}) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(e.storefrontID, e.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// lastStreamID returns the newest entry id so later reads see only new events.
func (e *CheckoutE2E) lastStreamID(ctx context.Context) (string, error) {
	entries, err := e.redisClient.XRevRangeN(ctx, e.stream, "+", "-", 1).Result()
	if err != nil {
		return "", fmt.Errorf("failed to read stream %s: %w", e.stream, err)
	}
	if len(entries) == 0 {
		return "0-0", nil
	}
	return entries[0].ID, nil
}

// WaitForEvent reads the stream after afterID until an event for referenceID arrives.
func (e *CheckoutE2E) WaitForEvent(ctx context.Context, afterID, referenceID string, timeout time.Duration) (string, map[string]interface{}, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		streams, err := e.redisClient.XRead(ctx, &redis.XReadArgs{
			Streams: []string{e.stream, afterID},
			Count:   50,
			Block:   time.Until(deadline),
		}).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("failed to read from stream %s: %w", e.stream, err)
		}

		for _, msg := range streams[0].Messages {
			afterID = msg.ID
			data, ok := msg.Values["data"].(string)
			if !ok {
				continue
			}
			var event map[string]interface{}
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				e.logger.Warn("skipping unparseable event", zap.String("entry_id", msg.ID), zap.Error(err))
				continue
			}
			if event["reference_id"] == referenceID {
				eventType, _ := msg.Values["event_type"].(string)
				return eventType, event, nil
			}
		}
	}
	return "", nil, fmt.Errorf("no event for reference %s within %s", referenceID, timeout)
}

// TestCheckoutFlow submits one checkout and checks the stream event and stored deposit that follow.
func (e *CheckoutE2E) TestCheckoutFlow(ctx context.Context) (*checkoutResult, error) {
	e.logger.Info("=== Testing checkout flow ===")

	afterID, err := e.lastStreamID(ctx)
	if err != nil {
		return nil, err
	}

	orderID := uuid.New().String()[:8]
	status, body, err := e.do(ctx, http.MethodPost, "/api/v1/payments", map[string]interface{}{
		"order_id": orderID,
		"billing": map[string]string{
			"first_name": "Ada",
			"last_name":  "Lovelace",
			"email":      "ada@example.com",
			"address_1":  "12 Analytical Row",
		},
		"return_url": "https://shop.example.com/checkout/order-received/" + orderID,
	})
	if err != nil {
		return nil, err
	}

	var result checkoutResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse checkout response (status %d): %w", status, err)
	}
	e.logger.Info("Received checkout response",
		zap.Int("status", status),
		zap.String("result", result.Result),
		zap.String("reference_id", result.ReferenceID),
		zap.Int("code", result.Code),
	)

	if result.ReferenceID != "refid_"+orderID {
		return nil, fmt.Errorf("unexpected reference id %q", result.ReferenceID)
	}

	eventType, event, err := e.WaitForEvent(ctx, afterID, result.ReferenceID, 10*time.Second)
	if err != nil {
		return nil, err
	}
	e.logger.Info("Received payment event", zap.String("event_type", eventType), zap.Any("event_id", event["event_id"]))

	if result.Result != "success" {
		if status == http.StatusOK || eventType != "PAYMENT_FAILED" {
			return nil, fmt.Errorf("failed checkout answered %d with event %s", status, eventType)
		}
		e.logger.Warn("LetKnow declined the checkout", zap.String("message", result.Message))
		return &result, nil
	}

	if status != http.StatusOK || eventType != "DEPOSIT_ADDRESS_ISSUED" {
		return nil, fmt.Errorf("successful checkout answered %d with event %s", status, eventType)
	}
	if result.Redirect == "" {
		return nil, fmt.Errorf("successful checkout carried no redirect")
	}

	status, body, err = e.do(ctx, http.MethodGet, "/api/v1/payments/"+result.ReferenceID, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("deposit lookup returned %d: %s", status, string(body))
	}
	var record map[string]interface{}
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("failed to parse deposit record: %w", err)
	}
	if record["address"] != result.Address {
		return nil, fmt.Errorf("stored address %v does not match issued address %s", record["address"], result.Address)
	}

	e.logger.Info("✓ checkout flow test completed successfully")
	return &result, nil
}

// TestReplay resubmits a successful checkout and expects the cached outcome.
func (e *CheckoutE2E) TestReplay(ctx context.Context, first *checkoutResult) error {
	e.logger.Info("=== Testing replay ===")

	status, body, err := e.do(ctx, http.MethodPost, "/api/v1/payments", map[string]interface{}{
		"reference_id": first.ReferenceID,
	})
	if err != nil {
		return err
	}

	var result checkoutResult
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse replay response (status %d): %w", status, err)
	}
	if !result.Replayed || result.Address != first.Address {
		return fmt.Errorf("expected replayed outcome for %s, got %+v", first.ReferenceID, result)
	}

	e.logger.Info("✓ replay test completed successfully")
	return nil
}

// TestValidations checks the rejections that never reach LetKnow.
func (e *CheckoutE2E) TestValidations(ctx context.Context) error {
	e.logger.Info("=== Testing validations ===")

	status, _, err := e.do(ctx, http.MethodPost, "/api/v1/payments", map[string]interface{}{})
	if err != nil {
		return err
	}
	if status != http.StatusBadRequest {
		return fmt.Errorf("empty checkout returned %d, want 400", status)
	}

	status, _, err = e.do(ctx, http.MethodGet, "/api/v1/payments/refid_missing_"+uuid.New().String()[:8], nil)
	if err != nil {
		return err
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("unknown reference returned %d, want 404", status)
	}

	wrongKey := *e
	wrongKey.apiKey = "wrong-" + e.apiKey
	status, _, err = wrongKey.do(ctx, http.MethodGet, "/api/v1/payments/refid_any", nil)
	if err != nil {
		return err
	}
	if status != http.StatusUnauthorized {
		return fmt.Errorf("wrong api key returned %d, want 401", status)
	}

	e.logger.Info("✓ validation tests completed successfully")
	return nil
}

func (e *CheckoutE2E) RunAllTests(ctx context.Context) error {
	e.logger.Info("========================================")
	e.logger.Info("LetKnow Gateway E2E Checkout Tests")
	e.logger.Info("========================================")

	if err := e.TestValidations(ctx); err != nil {
		return fmt.Errorf("validation tests failed: %w", err)
	}

	result, err := e.TestCheckoutFlow(ctx)
	if err != nil {
		return fmt.Errorf("checkout flow test failed: %w", err)
	}

	if result.Result == "success" {
		if err := e.TestReplay(ctx, result); err != nil {
			return fmt.Errorf("replay test failed: %w", err)
		}
	}

	e.logger.Info("========================================")
	e.logger.Info("✓ All e2e checkout tests passed!")
	e.logger.Info("========================================")

	return nil
}

func main() {
	baseURL := getEnv("GATEWAY_BASE_URL", "http://localhost:8080")
	storefrontID := getEnv("STOREFRONT_ID", "default")
	apiKey := os.Getenv("STOREFRONT_API_KEY")
	stream := getEnv("STREAM_PAYMENT_EVENTS", "stream.letknow.payment_events")
	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	redisPassword := getEnv("REDIS_PASSWORD", "")
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "STOREFRONT_API_KEY is required")
		os.Exit(1)
	}

	e2e, err := NewCheckoutE2E(baseURL, storefrontID, apiKey, stream, redisAddr, redisPassword, redisDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize e2e test: %v\n", err)
		os.Exit(1)
	}
	defer e2e.redisClient.Close()
	defer e2e.logger.Sync()

	if err := e2e.RunAllTests(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "E2E test failed: %v\n", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
