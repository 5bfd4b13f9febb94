// Package auth provides exchange API authentication using HMAC-SHA256 signatures.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Credentials holds the API key and signing secret.
type Credentials struct {
	APIKey string
	Secret []byte
}

// NewCredentials creates credentials from an API key and secret string.
func NewCredentials(apiKey, secret string) (*Credentials, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if secret == "" {
		return nil, fmt.Errorf("API secret is required")
	}
	return &Credentials{
		APIKey: apiKey,
		Secret: []byte(secret),
	}, nil
}

// SignRequest generates authentication headers for a REST request.
// The signed message is timestamp_ms + method + path + body.
func (c *Credentials) SignRequest(method, path string, body []byte) map[string]string {
	timestampMs := time.Now().UnixMilli()
	return c.signAt(timestampMs, method, path, body)
}

// signAt is the deterministic core of SignRequest, split out for testing.
func (c *Credentials) signAt(timestampMs int64, method, path string, body []byte) map[string]string {
	signature := c.signature(timestampMs, method, path, body)

	return map[string]string{
		"X-ACCESS-KEY":       c.APIKey,
		"X-ACCESS-TIMESTAMP": fmt.Sprintf("%d", timestampMs),
		"X-ACCESS-SIGNATURE": signature,
	}
}

// signature computes hex(HMAC-SHA256(secret, timestamp + method + path + body)).
func (c *Credentials) signature(timestampMs int64, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, c.Secret)
	fmt.Fprintf(mac, "%d%s%s", timestampMs, method, path)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// WebSocketPath is the path used for user stream signature generation.
const WebSocketPath = "/ws/user"

// SignWebSocket generates authentication headers for the user stream
// WebSocket handshake.
func (c *Credentials) SignWebSocket() map[string]string {
	return c.SignRequest("GET", WebSocketPath, nil)
}

// Verify recomputes a signature and compares it in constant time. Used by
// tests and by replay fixtures to validate recorded requests.
func (c *Credentials) Verify(timestampMs int64, method, path string, body []byte, signature string) bool {
	want := c.signature(timestampMs, method, path, body)
	return hmac.Equal([]byte(want), []byte(signature))
}
