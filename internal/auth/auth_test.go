package auth

import (
	"strconv"
	"testing"
)

func TestNewCredentials_Validation(t *testing.T) {
	if _, err := NewCredentials("", "secret"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := NewCredentials("key", ""); err == nil {
		t.Error("expected error for empty secret")
	}
	if _, err := NewCredentials("key", "secret"); err != nil {
		t.Errorf("NewCredentials failed: %v", err)
	}
}

func TestSignRequest_Headers(t *testing.T) {
	creds, err := NewCredentials("test-key", "test-secret")
	if err != nil {
		t.Fatalf("NewCredentials failed: %v", err)
	}

	headers := creds.SignRequest("GET", "/v1/instruments", nil)

	if headers["X-ACCESS-KEY"] != "test-key" {
		t.Errorf("X-ACCESS-KEY = %q, want test-key", headers["X-ACCESS-KEY"])
	}
	if headers["X-ACCESS-TIMESTAMP"] == "" {
		t.Error("X-ACCESS-TIMESTAMP missing")
	}
	if len(headers["X-ACCESS-SIGNATURE"]) != 64 {
		t.Errorf("signature length = %d, want 64 hex chars", len(headers["X-ACCESS-SIGNATURE"]))
	}
}

func TestSignature_Deterministic(t *testing.T) {
	creds, _ := NewCredentials("test-key", "test-secret")

	a := creds.signAt(1705320000000, "POST", "/v1/orders", []byte(`{"x":1}`))
	b := creds.signAt(1705320000000, "POST", "/v1/orders", []byte(`{"x":1}`))

	if a["X-ACCESS-SIGNATURE"] != b["X-ACCESS-SIGNATURE"] {
		t.Error("same inputs produced different signatures")
	}

	c := creds.signAt(1705320000001, "POST", "/v1/orders", []byte(`{"x":1}`))
	if a["X-ACCESS-SIGNATURE"] == c["X-ACCESS-SIGNATURE"] {
		t.Error("different timestamps produced identical signatures")
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	creds, _ := NewCredentials("test-key", "test-secret")

	headers := creds.signAt(1705320000000, "GET", WebSocketPath, nil)
	ts, err := strconv.ParseInt(headers["X-ACCESS-TIMESTAMP"], 10, 64)
	if err != nil {
		t.Fatalf("parse timestamp: %v", err)
	}

	if !creds.Verify(ts, "GET", WebSocketPath, nil, headers["X-ACCESS-SIGNATURE"]) {
		t.Error("Verify rejected a valid signature")
	}
	if creds.Verify(ts, "GET", "/other", nil, headers["X-ACCESS-SIGNATURE"]) {
		t.Error("Verify accepted signature for wrong path")
	}
}

func TestSignWebSocket_UsesUserStreamPath(t *testing.T) {
	creds, _ := NewCredentials("test-key", "test-secret")

	headers := creds.SignWebSocket()
	ts, _ := strconv.ParseInt(headers["X-ACCESS-TIMESTAMP"], 10, 64)

	if !creds.Verify(ts, "GET", WebSocketPath, nil, headers["X-ACCESS-SIGNATURE"]) {
		t.Error("SignWebSocket did not sign the user stream path")
	}
}
