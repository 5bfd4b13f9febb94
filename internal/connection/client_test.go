package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoServer upgrades and echoes every message back.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClient_ConnectSendReceive(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	cfg := DefaultClientConfig(wsURL(srv))
	cfg.BufferSize = 10

	c := NewClient(cfg, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Close()

	if !c.IsConnected() {
		t.Error("expected IsConnected true after Connect")
	}

	if err := c.Send([]byte(`{"hello":"world"}`)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case msg := <-c.Messages():
		if string(msg.Data) != `{"hello":"world"}` {
			t.Errorf("unexpected echo: %s", msg.Data)
		}
		if msg.ReceivedAt.IsZero() {
			t.Error("expected ReceivedAt to be set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

func TestClient_SendBeforeConnect(t *testing.T) {
	c := NewClient(DefaultClientConfig("ws://unused"), nil)

	if err := c.Send([]byte("x")); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestClient_HandshakeHeaders(t *testing.T) {
	headerCh := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headerCh <- r.Header.Get("X-ACCESS-KEY")
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	cfg := DefaultClientConfig(wsURL(srv))
	cfg.Headers = http.Header{"X-Access-Key": []string{"test-key"}}

	c := NewClient(cfg, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Close()

	select {
	case got := <-headerCh:
		if got != "test-key" {
			t.Errorf("expected handshake header test-key, got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for handshake")
	}
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	c := NewClient(DefaultClientConfig(wsURL(srv)), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if c.IsConnected() {
		t.Error("expected IsConnected false after Close")
	}

	if err := c.Connect(context.Background()); err != ErrAlreadyClosed {
		t.Errorf("expected ErrAlreadyClosed, got %v", err)
	}
}

func TestClient_ErrorOnServerClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Drop the connection immediately without a close frame.
		conn.UnderlyingConn().Close()
	}))
	defer srv.Close()

	c := NewClient(DefaultClientConfig(wsURL(srv)), nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Close()

	select {
	case err := <-c.Errors():
		if err == nil {
			t.Error("expected non-nil connection error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection error")
	}
}
