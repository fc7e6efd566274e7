package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/officialconcilio-rgb/E-Commerce-sub000/internal/orders/domain"
)

// HMACVerifier checks a hex HMAC-SHA256 signature over a message. The
// client callback uses the API key secret over "<order id>|<payment id>";
// webhooks use the webhook secret over the raw body.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) (*HMACVerifier, error) {
	if secret == "" {
		return nil, errors.New("signature secret must not be empty")
	}
	return &HMACVerifier{secret: []byte(secret)}, nil
}

// Verify compares in constant time and reports every mismatch as domain.ErrSignature.
func (v *HMACVerifier) Verify(message []byte, signature string) error {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) != sha256.Size {
		return domain.ErrSignature
	}
	if !hmac.Equal(got, v.sum(message)) {
		return domain.ErrSignature
	}
	return nil
}

// Sign produces the signature Verify accepts.
func (v *HMACVerifier) Sign(message []byte) string {
	return hex.EncodeToString(v.sum(message))
}

func (v *HMACVerifier) sum(message []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(message)
	return mac.Sum(nil)
}
