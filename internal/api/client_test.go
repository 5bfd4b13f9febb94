package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tradeweave/marketdata/internal/auth"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, nil,
		WithRetries(2, 10*time.Millisecond),
		WithRateLimit(1000, 1000),
	)
	return c, srv
}

func TestClient_GetServerTime(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/time" {
			t.Errorf("path = %q, want /time", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ServerTimeResponse{ServerTime: 1705320000000})
	}))

	ts, err := c.GetServerTime(context.Background())
	if err != nil {
		t.Fatalf("GetServerTime failed: %v", err)
	}
	if ts != 1705320000000 {
		t.Errorf("ServerTime = %d, want 1705320000000", ts)
	}
}

func TestClient_RetriesOn500(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(ExchangeStatusResponse{ExchangeActive: true})
	}))

	status, err := c.GetExchangeStatus(context.Background())
	if err != nil {
		t.Fatalf("GetExchangeStatus failed: %v", err)
	}
	if !status.ExchangeActive {
		t.Error("ExchangeActive = false, want true")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestClient_NoRetryOn404(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.GetInstrument(context.Background(), "NOPE")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", got)
	}
}

func TestClient_Pagination(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("cursor")
		switch cursor {
		case "":
			json.NewEncoder(w).Encode(InstrumentsResponse{
				Instruments: []APIInstrument{{Symbol: "BTC_USDT"}, {Symbol: "ETH_USDT"}},
				Cursor:      "page2",
			})
		case "page2":
			json.NewEncoder(w).Encode(InstrumentsResponse{
				Instruments: []APIInstrument{{Symbol: "SOL_USDT"}},
			})
		default:
			t.Errorf("unexpected cursor %q", cursor)
		}
	}))

	instruments, err := c.GetAllInstruments(context.Background())
	if err != nil {
		t.Fatalf("GetAllInstruments failed: %v", err)
	}
	if len(instruments) != 3 {
		t.Errorf("len = %d, want 3", len(instruments))
	}
	if instruments[2].Symbol != "SOL_USDT" {
		t.Errorf("last symbol = %q, want SOL_USDT", instruments[2].Symbol)
	}
}

func TestClient_SignedRequestHeaders(t *testing.T) {
	creds, err := auth.NewCredentials("test-key", "test-secret")
	if err != nil {
		t.Fatalf("NewCredentials failed: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-ACCESS-KEY") != "test-key" {
			t.Errorf("X-ACCESS-KEY = %q, want test-key", r.Header.Get("X-ACCESS-KEY"))
		}
		if r.Header.Get("X-ACCESS-SIGNATURE") == "" {
			t.Error("X-ACCESS-SIGNATURE missing")
		}
		json.NewEncoder(w).Encode(ListenKeyResponse{ListenKey: "lk-123", ExpiresAt: 1705320000000})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, creds, WithRateLimit(1000, 1000))

	resp, err := c.CreateListenKey(context.Background())
	if err != nil {
		t.Fatalf("CreateListenKey failed: %v", err)
	}
	if resp.ListenKey != "lk-123" {
		t.Errorf("ListenKey = %q, want lk-123", resp.ListenKey)
	}
}

func TestClient_ListenKeyLifecycle(t *testing.T) {
	var keepalives, deletes atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/userDataStream":
			json.NewEncoder(w).Encode(ListenKeyResponse{ListenKey: "lk-1"})
		case r.Method == http.MethodPost && r.URL.Path == "/userDataStream/keepalive":
			var payload map[string]string
			json.NewDecoder(r.Body).Decode(&payload)
			if payload["listen_key"] != "lk-1" {
				t.Errorf("listen_key = %q, want lk-1", payload["listen_key"])
			}
			keepalives.Add(1)
			fmt.Fprint(w, `{}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/userDataStream":
			deletes.Add(1)
			fmt.Fprint(w, `{}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))

	ctx := context.Background()
	resp, err := c.CreateListenKey(ctx)
	if err != nil {
		t.Fatalf("CreateListenKey failed: %v", err)
	}
	if err := c.KeepAliveListenKey(ctx, resp.ListenKey); err != nil {
		t.Fatalf("KeepAliveListenKey failed: %v", err)
	}
	if err := c.DeleteListenKey(ctx, resp.ListenKey); err != nil {
		t.Fatalf("DeleteListenKey failed: %v", err)
	}
	if keepalives.Load() != 1 || deletes.Load() != 1 {
		t.Errorf("keepalives = %d, deletes = %d; want 1, 1", keepalives.Load(), deletes.Load())
	}
}

func TestAPIError_IsRetryable(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{500, true},
		{503, true},
		{429, true},
		{400, false},
		{404, false},
		{418, false},
	}
	for _, tc := range cases {
		e := &APIError{StatusCode: tc.code}
		if got := e.IsRetryable(); got != tc.want {
			t.Errorf("IsRetryable(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}
