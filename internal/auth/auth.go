// Package auth provides BitMEX realtime API authentication using HMAC-SHA256 signatures.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// SignaturePath is the verb and path prefixed to the nonce before signing.
const SignaturePath = "GET/realtime"

// Signer computes a hex digest of message keyed by secret.
type Signer interface {
	Sign(secret, message string) (string, error)
}

// HMACSigner signs with HMAC-SHA256 and renders lowercase hex.
type HMACSigner struct{}

// Sign implements Signer.
func (HMACSigner) Sign(secret, message string) (string, error) {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Credentials holds the API key and secret for the authKey handshake.
type Credentials struct {
	Key    string // API key ID from the BitMEX dashboard
	Secret string // API secret
}

// NewCredentials returns credentials only when both key and secret are set.
// A half-configured pair reports false so the caller can run unauthenticated.
func NewCredentials(key, secret string) (*Credentials, bool) {
	if key == "" || secret == "" {
		return nil, false
	}
	return &Credentials{Key: key, Secret: secret}, true
}

// LoadSecret reads an API secret from a file, trimming surrounding whitespace.
func LoadSecret(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("secret path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read secret file: %w", err)
	}

	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}
	return secret, nil
}

// SignatureMessage returns the string that is signed for a nonce.
// Message format: "GET/realtime" + nonce
func SignatureMessage(nonce int64) string {
	return SignaturePath + strconv.FormatInt(nonce, 10)
}

// Signature signs the message for nonce. A nil signer means HMACSigner.
func (c *Credentials) Signature(signer Signer, nonce int64) (string, error) {
	if signer == nil {
		signer = HMACSigner{}
	}

	sig, err := signer.Sign(c.Secret, SignatureMessage(nonce))
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	return sig, nil
}

// AuthArgs builds the args of an authKey command: [key, nonce, signature].
func (c *Credentials) AuthArgs(signer Signer, nonce int64) ([]any, error) {
	sig, err := c.Signature(signer, nonce)
	if err != nil {
		return nil, err
	}
	return []any{c.Key, nonce, sig}, nil
}

// String keeps the secret out of logs.
func (c *Credentials) String() string {
	return fmt.Sprintf("Credentials{Key: %s, Secret: [redacted]}", c.Key)
}
