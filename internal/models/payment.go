package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"

	CurrencyBTC = "BTC"

	// DepositStatusOnHold mirrors the order status the storefront applies while awaiting the crypto deposit.
	DepositStatusOnHold = "on-hold"

	referenceIDPrefix = "refid_"
	clientIDPrefix    = "client_"
)

// Credentials are the merchant secrets issued by LetKnow.
type Credentials struct {
	ShopID  string
	ShopKey string
}

func (c Credentials) Validate() error {
	if c.ShopID == "" {
		return fmt.Errorf("shop id is required")
	}
	if c.ShopKey == "" {
		return fmt.Errorf("shop key is required")
	}
	return nil
}

// OrderInfo is the billing data supplied by the storefront for one checkout.
// Fields other than ReferenceID are forwarded verbatim, empty or not.
type OrderInfo struct {
	ReferenceID string
	FirstName   string
	LastName    string
	Email       string
	Address     string
}

func (o OrderInfo) Validate() error {
	if o.ReferenceID == "" {
		return fmt.Errorf("reference_id is required")
	}
	return nil
}

// ReferenceIDForOrder derives the provider reference id from a storefront order id.
func ReferenceIDForOrder(orderID string) string {
	return referenceIDPrefix + orderID
}

// PaymentRequest is the JSON body of a get_deposit_address call.
type PaymentRequest struct {
	Currency        string        `json:"currency"`
	CurrencyReceive string        `json:"currency_receive"`
	ReferenceID     string        `json:"reference_id"`
	Client          PaymentClient `json:"client"`
}

type PaymentClient struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Address   string `json:"address"`
}

// NewPaymentRequest builds the BTC/BTC deposit request for an order.
func NewPaymentRequest(order OrderInfo) PaymentRequest {
	return PaymentRequest{
		Currency:        CurrencyBTC,
		CurrencyReceive: CurrencyBTC,
		ReferenceID:     order.ReferenceID,
		Client: PaymentClient{
			ID:        clientIDPrefix + order.Email,
			FirstName: order.FirstName,
			LastName:  order.LastName,
			Email:     order.Email,
			Address:   order.Address,
		},
	}
}

// SignedHeaders authenticate exactly one outbound request.
type SignedHeaders struct {
	Nonce     string
	Signature string
	ShopID    string
}

// PaymentResponse is the provider reply. Raw keeps the body exactly as received.
type PaymentResponse struct {
	Result  string          `json:"result"`
	QRCode  string          `json:"qr_code,omitempty"`
	Address string          `json:"address,omitempty"`
	Message string          `json:"message,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

func (r *PaymentResponse) IsSuccess() bool {
	return r != nil && r.Result == ResultSuccess
}

// PaymentOutcome is what the gateway hands back to the storefront for a checkout submission.
type PaymentOutcome struct {
	Result      string `json:"result"`
	ReferenceID string `json:"reference_id"`
	QRCode      string `json:"qr_code,omitempty"`
	Address     string `json:"address,omitempty"`
	Message     string `json:"message,omitempty"`
	Code        int    `json:"code,omitempty"`
	Replayed    bool   `json:"replayed,omitempty"`
}

func (o *PaymentOutcome) IsSuccess() bool {
	return o != nil && o.Result == ResultSuccess
}

// DepositRecord is the order metadata persisted after an address is issued.
type DepositRecord struct {
	ReferenceID  string    `json:"reference_id"`
	StorefrontID string    `json:"storefront_id"`
	Address      string    `json:"address"`
	QRCode       string    `json:"qr_code"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PaymentAttempt records one exchange with the provider.
type PaymentAttempt struct {
	AttemptID      string
	StorefrontID   string
	ReferenceID    string
	Result         string
	ErrorCode      int
	UpstreamStatus int
	Message        string
	Duration       time.Duration
	TraceID        string
	CreatedAt      time.Time
}
