package api

import (
	"context"
	"fmt"
	"net/url"
)

// CreateListenKey requests a new user data stream listen key. Requires
// credentials.
func (c *Client) CreateListenKey(ctx context.Context) (*ListenKeyResponse, error) {
	var resp ListenKeyResponse
	if err := c.post(ctx, "/userDataStream", nil, &resp); err != nil {
		return nil, fmt.Errorf("create listen key: %w", err)
	}
	if resp.ListenKey == "" {
		return nil, fmt.Errorf("create listen key: empty key in response")
	}
	return &resp, nil
}

// KeepAliveListenKey extends the validity of an existing listen key.
func (c *Client) KeepAliveListenKey(ctx context.Context, listenKey string) error {
	payload := map[string]string{"listen_key": listenKey}
	if err := c.post(ctx, "/userDataStream/keepalive", payload, nil); err != nil {
		return fmt.Errorf("keepalive listen key: %w", err)
	}
	return nil
}

// DeleteListenKey closes a user data stream.
func (c *Client) DeleteListenKey(ctx context.Context, listenKey string) error {
	query := url.Values{}
	query.Set("listen_key", listenKey)
	if err := c.del(ctx, "/userDataStream", query); err != nil {
		return fmt.Errorf("delete listen key: %w", err)
	}
	return nil
}
