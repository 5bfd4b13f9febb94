package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// GetServerTime fetches the exchange server time.
func (c *Client) GetServerTime(ctx context.Context) (int64, error) {
	var resp ServerTimeResponse
	if err := c.get(ctx, "/time", nil, &resp); err != nil {
		return 0, fmt.Errorf("get server time: %w", err)
	}
	return resp.ServerTime, nil
}

// GetExchangeStatus fetches the exchange operational status.
func (c *Client) GetExchangeStatus(ctx context.Context) (*ExchangeStatusResponse, error) {
	var resp ExchangeStatusResponse
	if err := c.get(ctx, "/status", nil, &resp); err != nil {
		return nil, fmt.Errorf("get exchange status: %w", err)
	}
	return &resp, nil
}

// GetInstruments fetches a page of instruments.
func (c *Client) GetInstruments(ctx context.Context, opts GetInstrumentsOptions) (*InstrumentsResponse, error) {
	query := url.Values{}

	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}
	if opts.Status != "" {
		query.Set("status", opts.Status)
	}
	if len(opts.Symbols) > 0 {
		query.Set("symbols", strings.Join(opts.Symbols, ","))
	}

	var resp InstrumentsResponse
	if err := c.get(ctx, "/instruments", query, &resp); err != nil {
		return nil, fmt.Errorf("get instruments: %w", err)
	}

	return &resp, nil
}

// GetAllInstruments fetches all instruments by paginating through results.
func (c *Client) GetAllInstruments(ctx context.Context) ([]APIInstrument, error) {
	return c.GetAllInstrumentsWithOptions(ctx, GetInstrumentsOptions{})
}

// GetAllInstrumentsWithOptions fetches all instruments matching the given options.
func (c *Client) GetAllInstrumentsWithOptions(ctx context.Context, opts GetInstrumentsOptions) ([]APIInstrument, error) {
	var all []APIInstrument
	if opts.Limit == 0 {
		opts.Limit = 1000 // Max page size
	}

	for {
		resp, err := c.GetInstruments(ctx, opts)
		if err != nil {
			return nil, err
		}

		all = append(all, resp.Instruments...)

		if resp.Cursor == "" {
			break
		}
		opts.Cursor = resp.Cursor
	}

	return all, nil
}

// GetInstrument fetches a single instrument by symbol.
func (c *Client) GetInstrument(ctx context.Context, symbol string) (*APIInstrument, error) {
	var resp SingleInstrumentResponse
	if err := c.get(ctx, "/instruments/"+symbol, nil, &resp); err != nil {
		return nil, fmt.Errorf("get instrument %s: %w", symbol, err)
	}
	return &resp.Instrument, nil
}

// GetBook fetches the order book for an instrument. depth 0 requests all
// levels.
func (c *Client) GetBook(ctx context.Context, symbol string, depth int) (*BookResponse, error) {
	query := url.Values{}
	if depth > 0 {
		query.Set("depth", strconv.Itoa(depth))
	}

	var resp BookResponse
	if err := c.get(ctx, "/instruments/"+symbol+"/book", query, &resp); err != nil {
		return nil, fmt.Errorf("get book %s: %w", symbol, err)
	}
	if resp.Symbol == "" {
		resp.Symbol = symbol
	}

	return &resp, nil
}

// GetTickers fetches rolling statistics for the given symbols (all symbols
// when empty).
func (c *Client) GetTickers(ctx context.Context, symbolList []string) ([]APITicker, error) {
	query := url.Values{}
	if len(symbolList) > 0 {
		query.Set("symbols", strings.Join(symbolList, ","))
	}

	var resp TickersResponse
	if err := c.get(ctx, "/tickers", query, &resp); err != nil {
		return nil, fmt.Errorf("get tickers: %w", err)
	}
	return resp.Tickers, nil
}

// GetLastTradedPrices returns the last traded price per symbol.
func (c *Client) GetLastTradedPrices(ctx context.Context, symbolList []string) (map[string]string, error) {
	tickers, err := c.GetTickers(ctx, symbolList)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]string, len(tickers))
	for _, t := range tickers {
		prices[t.Symbol] = t.LastPrice
	}
	return prices, nil
}
