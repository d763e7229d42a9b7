package letknow

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync/atomic"
	"time"

	"letknow-gateway/internal/models"
)

const (
	HeaderNonce     = "C-Request-Nonce"
	HeaderSignature = "C-Request-Signature"
	HeaderShopID    = "C-Shop-Id"
)

// Signer produces the per-request nonce and HMAC signature LetKnow expects.
//
// The nonce is the wall-clock time in seconds with four fractional digits and the
// decimal point removed. Within one process nonces are strictly increasing, so two
// requests never carry the same nonce/signature pair even when the clock stalls or
// steps backwards. A Signer is safe for concurrent use.
type Signer struct {
	now  func() time.Time
	last atomic.Int64
}

// NewSigner returns a Signer backed by the system clock.
func NewSigner() *Signer {
	return NewSignerWithClock(time.Now)
}

// NewSignerWithClock returns a Signer that reads time from now.
func NewSignerWithClock(now func() time.Time) *Signer {
	return &Signer{now: now}
}

// NextNonce returns a fresh nonce.
func (s *Signer) NextNonce() string {
	candidate := nonceAt(s.now())
	for {
		prev := s.last.Load()
		next := candidate
		if next <= prev {
			next = prev + 1
		}
		if s.last.CompareAndSwap(prev, next) {
			return strconv.FormatInt(next, 10)
		}
	}
}

// Sign builds the headers for a single outbound request.
func (s *Signer) Sign(creds models.Credentials) models.SignedHeaders {
	nonce := s.NextNonce()
	return models.SignedHeaders{
		Nonce:     nonce,
		Signature: Signature(nonce, creds.ShopID, creds.ShopKey),
		ShopID:    creds.ShopID,
	}
}

// Signature is hex(HMAC-SHA256(shopKey, nonce|shopID|shopKey)).
// The key appearing inside the message is part of the provider protocol.
func Signature(nonce, shopID, shopKey string) string {
	mac := hmac.New(sha256.New, []byte(shopKey))
	mac.Write([]byte(nonce + "|" + shopID + "|" + shopKey))
	return hex.EncodeToString(mac.Sum(nil))
}

// nonceAt renders t as seconds*10^4 plus the first four fractional digits.
func nonceAt(t time.Time) int64 {
	return t.UnixMicro() / 100
}
