package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/tradeweave/marketdata/internal/config"
)

// ErrGatewayUnavailable indicates the gateway service could not be reached
// or answered with a server error after retries.
var ErrGatewayUnavailable = errors.New("gateway unavailable")

const defaultRetries = 3

// Client talks to the companion gateway service over HTTP(S).
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	maxRetries int
}

// NewClient builds a gateway client from configuration. When cfg.CAPath is
// set, the gateway's self-signed CA is added to the trust pool.
func NewClient(cfg config.GatewayConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	scheme := "http"
	transport := http.DefaultTransport

	if cfg.UseSSL {
		scheme = "https"
		if cfg.CAPath != "" {
			pem, err := os.ReadFile(cfg.CAPath)
			if err != nil {
				return nil, fmt.Errorf("read gateway CA: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("gateway CA %s: no certificates found", cfg.CAPath)
			}
			transport = &http.Transport{
				TLSClientConfig: &tls.Config{RootCAs: pool},
			}
		}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger:     logger.With("component", "gateway"),
		maxRetries: defaultRetries,
	}, nil
}

// PingResponse is the gateway liveness reply.
type PingResponse struct {
	Status string `json:"status"`
}

// StatusResponse describes the gateway's view of one chain/network.
type StatusResponse struct {
	Chain       string `json:"chain"`
	Network     string `json:"network"`
	RPCURL      string `json:"rpcUrl"`
	BlockNumber int64  `json:"currentBlockNumber"`
}

// PriceRequest asks for a swap quote on a connector.
type PriceRequest struct {
	Chain     string `json:"chain"`
	Network   string `json:"network"`
	Connector string `json:"connector"`
	Base      string `json:"base"`
	Quote     string `json:"quote"`
	Amount    string `json:"amount"`
	Side      string `json:"side"` // "BUY" or "SELL"
}

// PriceResponse is a swap quote.
type PriceResponse struct {
	Base     string `json:"base"`
	Quote    string `json:"quote"`
	Amount   string `json:"amount"`
	Price    string `json:"price"`
	GasPrice string `json:"gasPrice"`
	GasLimit int64  `json:"gasLimit"`
}

// TransactionStatus is the poll result for an on-chain transaction.
type TransactionStatus struct {
	TxHash    string          `json:"txHash"`
	TxStatus  int             `json:"txStatus"` // 1 = confirmed, -1 = failed, 0 = pending
	TxBlock   int64           `json:"txBlock"`
	TxReceipt json.RawMessage `json:"txReceipt"`
}

// Ping checks gateway liveness.
func (c *Client) Ping(ctx context.Context) (*PingResponse, error) {
	var out PingResponse
	if err := c.do(ctx, http.MethodGet, "/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status returns chain/network status.
func (c *Client) Status(ctx context.Context, chain, network string) (*StatusResponse, error) {
	path := fmt.Sprintf("/network/status?chain=%s&network=%s", chain, network)
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Price fetches a swap quote.
func (c *Client) Price(ctx context.Context, req PriceRequest) (*PriceResponse, error) {
	var out PriceResponse
	if err := c.do(ctx, http.MethodPost, "/amm/price", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PollTransaction fetches the status of a submitted transaction.
func (c *Client) PollTransaction(ctx context.Context, chain, network, txHash string) (*TransactionStatus, error) {
	body := map[string]string{
		"chain":   chain,
		"network": network,
		"txHash":  txHash,
	}
	var out TransactionStatus
	if err := c.do(ctx, http.MethodPost, "/network/poll", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do issues a JSON request with retries on 5xx and connection errors.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		var reader io.Reader
		if reqBody != nil {
			reader = bytes.NewReader(reqBody)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn("gateway request failed", "path", path, "attempt", attempt, "error", err)
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("gateway status %d: %s", resp.StatusCode, data)
			c.logger.Warn("gateway server error", "path", path, "status", resp.StatusCode, "attempt", attempt)
			continue
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("gateway status %d: %s", resp.StatusCode, data)
		}

		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decode gateway response: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("%w: %v", ErrGatewayUnavailable, lastErr)
}
