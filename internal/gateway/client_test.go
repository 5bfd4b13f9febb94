package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tradeweave/marketdata/internal/config"
)

// newTestClient points a Client at an httptest server.
func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	port, _ := strconv.Atoi(u.Port())

	c, err := NewClient(config.GatewayConfig{
		Host:    u.Hostname(),
		Port:    port,
		Timeout: 2 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestClient_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(PingResponse{Status: "ok"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	resp, err := c.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %s, want ok", resp.Status)
	}
}

func TestClient_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/network/status") {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("chain"); got != "ethereum" {
			t.Errorf("chain = %s, want ethereum", got)
		}
		json.NewEncoder(w).Encode(StatusResponse{
			Chain:       "ethereum",
			Network:     "mainnet",
			BlockNumber: 19000000,
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	resp, err := c.Status(context.Background(), "ethereum", "mainnet")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if resp.BlockNumber != 19000000 {
		t.Errorf("BlockNumber = %d, want 19000000", resp.BlockNumber)
	}
}

func TestClient_Price(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/amm/price" {
			http.NotFound(w, r)
			return
		}
		var req PriceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Side != "BUY" {
			t.Errorf("Side = %s, want BUY", req.Side)
		}
		json.NewEncoder(w).Encode(PriceResponse{
			Base:   req.Base,
			Quote:  req.Quote,
			Price:  "1850.25",
			Amount: req.Amount,
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	resp, err := c.Price(context.Background(), PriceRequest{
		Chain:     "ethereum",
		Network:   "mainnet",
		Connector: "uniswap",
		Base:      "WETH",
		Quote:     "USDC",
		Amount:    "1.0",
		Side:      "BUY",
	})
	if err != nil {
		t.Fatalf("Price() error = %v", err)
	}
	if resp.Price != "1850.25" {
		t.Errorf("Price = %s, want 1850.25", resp.Price)
	}
}

func TestClient_PollTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["txHash"] != "0xabc" {
			t.Errorf("txHash = %s, want 0xabc", body["txHash"])
		}
		json.NewEncoder(w).Encode(TransactionStatus{
			TxHash:   "0xabc",
			TxStatus: 1,
			TxBlock:  19000001,
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	resp, err := c.PollTransaction(context.Background(), "ethereum", "mainnet", "0xabc")
	if err != nil {
		t.Fatalf("PollTransaction() error = %v", err)
	}
	if resp.TxStatus != 1 {
		t.Errorf("TxStatus = %d, want 1", resp.TxStatus)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(PingResponse{Status: "ok"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	resp, err := c.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %s, want ok", resp.Status)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestClient_ClientErrorsDoNotRetry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	_, err := c.Ping(context.Background())
	if err == nil {
		t.Fatal("Ping() error = nil, want error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
