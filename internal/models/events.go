package models

import (
	"fmt"
	"time"
)

const (
	EventDepositAddressIssued = "DEPOSIT_ADDRESS_ISSUED"
	EventPaymentFailed        = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all payment events
type BaseEvent struct {
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id"`
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *BaseEvent) ValidateBaseEvent() error {
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// DepositAddressIssuedEvent tells the storefront's order subsystem to put the order on hold,
// reduce stock and clear the cart.
type DepositAddressIssuedEvent struct {
	BaseEvent
	ReferenceID  string `json:"reference_id"`
	StorefrontID string `json:"storefront_id"`
	Address      string `json:"address"`
	QRCode       string `json:"qr_code"`
	OrderStatus  string `json:"order_status"`
}

func (e *DepositAddressIssuedEvent) Validate() error {
	if err := e.ValidateBaseEvent(); err != nil {
		return err
	}
	if e.ReferenceID == "" {
		return fmt.Errorf("reference_id is required")
	}
	if e.Address == "" && e.QRCode == "" {
		return fmt.Errorf("address or qr_code is required")
	}
	return nil
}

// PaymentFailedEvent records a checkout that did not obtain a deposit address.
type PaymentFailedEvent struct {
	BaseEvent
	ReferenceID  string `json:"reference_id"`
	StorefrontID string `json:"storefront_id"`
	ErrorCode    int    `json:"error_code"`
	Message      string `json:"message,omitempty"`
}

func (e *PaymentFailedEvent) Validate() error {
	if err := e.ValidateBaseEvent(); err != nil {
		return err
	}
	if e.ReferenceID == "" {
		return fmt.Errorf("reference_id is required")
	}
	return nil
}
