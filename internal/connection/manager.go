package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tradeweave/marketdata/internal/market"
	"github.com/tradeweave/marketdata/internal/metrics"
)

// Manager owns the WebSocket connection pool and all channel subscriptions.
// One connection carries trades, one carries tickers, and the remaining
// BookCount connections share the per-symbol book channel.
type Manager struct {
	cfg      ManagerConfig
	registry market.Registry
	logger   *slog.Logger
	prom     *metrics.Registry

	conns []*managedConn

	// Aggregated output of all data messages across the pool.
	output chan RawMessage

	// Monotonic command ID shared across connections.
	nextCmdID atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// managedConn wraps a Client with subscription and sequence state.
type managedConn struct {
	id   int
	role ConnectionRole

	mu     sync.Mutex
	client Client

	// Active subscriptions by sub ID, plus a symbol index for the
	// book role so unsubscribes can find the owning subscription.
	subs    map[int64]*Subscription
	symbols map[string]int64

	// Pending command responses keyed by command ID.
	pending map[int64]chan Response

	// Last sequence number per subscription.
	lastSeq map[int64]int64
}

// NewManager creates a connection manager. The registry drives which
// symbols get book subscriptions and reports listings and delistings.
func NewManager(cfg ManagerConfig, registry market.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		cfg:      cfg,
		registry: registry,
		logger:   logger,
		prom:     cfg.Metrics,
		output:   make(chan RawMessage, cfg.MessageBufferSize),
	}
}

// Messages returns the aggregated stream of data messages from all connections.
func (m *Manager) Messages() <-chan RawMessage {
	return m.output
}

// Start connects the pool, subscribes the initial symbol set, and begins
// watching the registry for changes. It returns once the pool is live.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("manager already started")
	}
	m.started = true
	m.mu.Unlock()

	m.ctx, m.cancel = context.WithCancel(ctx)

	if err := m.initConnections(); err != nil {
		return fmt.Errorf("init connections: %w", err)
	}

	for _, mc := range m.conns {
		m.startConnLoops(mc)
	}

	if err := m.subscribeInitial(); err != nil {
		return fmt.Errorf("initial subscriptions: %w", err)
	}

	for i := 0; i < m.cfg.WorkerCount; i++ {
		m.wg.Add(1)
		go m.handleMarketChanges()
	}

	m.logger.Info("connection manager started",
		"connections", len(m.conns),
		"book_connections", m.cfg.BookCount,
	)

	return nil
}

// Stop closes all connections and waits for loops to exit.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}

	for _, mc := range m.conns {
		mc.mu.Lock()
		if mc.client != nil {
			mc.client.Close()
		}
		mc.mu.Unlock()

		if m.prom != nil {
			m.prom.ConnState.WithLabelValues(strconv.Itoa(mc.id)).Set(0)
		}
	}

	m.wg.Wait()
	close(m.output)
}

// ConnectionStates reports per-connection health for the health endpoint.
func (m *Manager) ConnectionStates() map[int]bool {
	states := make(map[int]bool, len(m.conns))
	for _, mc := range m.conns {
		mc.mu.Lock()
		states[mc.id] = mc.client != nil && mc.client.IsConnected()
		mc.mu.Unlock()
	}
	return states
}

func (m *Manager) initConnections() error {
	roles := []ConnectionRole{RoleTrade, RoleTicker}
	for i := 0; i < m.cfg.BookCount; i++ {
		roles = append(roles, RoleBook)
	}

	m.conns = make([]*managedConn, len(roles))
	for i, role := range roles {
		mc := &managedConn{
			id:      i,
			role:    role,
			subs:    make(map[int64]*Subscription),
			symbols: make(map[string]int64),
			pending: make(map[int64]chan Response),
			lastSeq: make(map[int64]int64),
		}

		if err := m.connect(mc); err != nil {
			return fmt.Errorf("connection %d (%s): %w", i, role, err)
		}

		m.conns[i] = mc
	}

	return nil
}

func (m *Manager) connect(mc *managedConn) error {
	cfg := DefaultClientConfig(m.cfg.WSURL)
	cfg.PingInterval = m.cfg.PingInterval
	cfg.BufferSize = m.cfg.MessageBufferSize
	cfg.Headers = m.cfg.Headers

	client := NewClient(cfg, m.logger.With("conn_id", mc.id, "role", string(mc.role)))
	if err := client.Connect(m.ctx); err != nil {
		return err
	}

	mc.mu.Lock()
	mc.client = client
	mc.mu.Unlock()

	if m.prom != nil {
		m.prom.ConnState.WithLabelValues(strconv.Itoa(mc.id)).Set(1)
	}

	return nil
}

// startConnLoops launches the read and error loops for a connection.
func (m *Manager) startConnLoops(mc *managedConn) {
	m.wg.Add(2)
	go m.readLoop(mc)
	go m.errorLoop(mc)
}

// subscribeInitial subscribes the trade and ticker connections to every
// active symbol, and spreads book subscriptions over the book pool.
func (m *Manager) subscribeInitial() error {
	symbols := m.registry.ActiveSymbols()

	for _, sym := range symbols {
		if err := m.subscribeSymbol(sym); err != nil {
			return err
		}
	}

	m.logger.Info("initial subscriptions complete", "symbols", len(symbols))
	return nil
}

// subscribeSymbol subscribes a symbol on the trade, ticker, and book
// channels, skipping any channel already carrying it. The registry buffers
// listing events during its initial sync, so a symbol can arrive both via
// ActiveSymbols and as a buffered ChangeListed event.
func (m *Manager) subscribeSymbol(symbol string) error {
	if !m.hasSub(ChannelTrades, symbol) {
		if _, err := m.subscribe(m.conns[0], ChannelTrades, symbol); err != nil {
			return fmt.Errorf("subscribe trades %s: %w", symbol, err)
		}
	}
	if !m.hasSub(ChannelTicker, symbol) {
		if _, err := m.subscribe(m.conns[1], ChannelTicker, symbol); err != nil {
			return fmt.Errorf("subscribe ticker %s: %w", symbol, err)
		}
	}
	if !m.hasSub(ChannelBook, symbol) {
		if err := m.subscribeBook(symbol); err != nil {
			return fmt.Errorf("subscribe book %s: %w", symbol, err)
		}
	}
	return nil
}

// hasSub reports whether any connection already carries a subscription
// for the channel/symbol pair.
func (m *Manager) hasSub(channel, symbol string) bool {
	for _, mc := range m.conns {
		mc.mu.Lock()
		for _, sub := range mc.subs {
			if sub.Channel == channel && sub.Symbol == symbol {
				mc.mu.Unlock()
				return true
			}
		}
		mc.mu.Unlock()
	}
	return false
}

// subscribeBook picks the least loaded book connection for a symbol.
func (m *Manager) subscribeBook(symbol string) error {
	mc := m.selectBookConn()
	if mc == nil {
		return fmt.Errorf("no book connection with capacity for %s", symbol)
	}

	_, err := m.subscribe(mc, ChannelBook, symbol)
	return err
}

// selectBookConn returns the book connection carrying the fewest
// subscriptions, or nil if every connection is at capacity.
func (m *Manager) selectBookConn() *managedConn {
	var best *managedConn
	bestLoad := m.cfg.PairsPerConnection

	for _, mc := range m.conns[2:] {
		mc.mu.Lock()
		load := len(mc.subs)
		mc.mu.Unlock()

		if load < bestLoad {
			best = mc
			bestLoad = load
		}
	}

	return best
}

// subscribe sends a subscribe command and waits for the server to confirm.
func (m *Manager) subscribe(mc *managedConn, channel, symbol string) (int64, error) {
	cmdID := m.nextCmdID.Add(1)

	cmd := Command{
		ID: cmdID,
		Op: "subscribe",
		Args: SubscribeArgs{
			Channel: channel,
			Symbol:  symbol,
		},
	}

	resp, err := m.sendCommand(mc, cmdID, cmd)
	if err != nil {
		return 0, err
	}

	if resp.Type == "error" {
		var errResult ErrorResult
		if uerr := json.Unmarshal(resp.Result, &errResult); uerr == nil {
			return 0, fmt.Errorf("subscribe rejected: %s (code %s)", errResult.Message, errResult.Code)
		}
		return 0, fmt.Errorf("subscribe rejected")
	}

	var result SubscribedResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return 0, fmt.Errorf("parse subscribe result: %w", err)
	}

	mc.mu.Lock()
	mc.subs[result.SubID] = &Subscription{
		SubID:   result.SubID,
		Channel: channel,
		ConnID:  mc.id,
		Symbol:  symbol,
	}
	if channel == ChannelBook {
		mc.symbols[symbol] = result.SubID
	}
	mc.lastSeq[result.SubID] = 0
	mc.mu.Unlock()

	m.logger.Debug("subscribed",
		"conn_id", mc.id,
		"channel", channel,
		"symbol", symbol,
		"sub_id", result.SubID,
	)

	return result.SubID, nil
}

// sendCommand writes a command and blocks for its correlated response.
func (m *Manager) sendCommand(mc *managedConn, cmdID int64, cmd Command) (Response, error) {
	respCh := make(chan Response, 1)

	mc.mu.Lock()
	client := mc.client
	mc.pending[cmdID] = respCh
	mc.mu.Unlock()

	defer func() {
		mc.mu.Lock()
		delete(mc.pending, cmdID)
		mc.mu.Unlock()
	}()

	if client == nil {
		return Response{}, ErrNotConnected
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return Response{}, fmt.Errorf("marshal command: %w", err)
	}

	if err := client.Send(data); err != nil {
		return Response{}, err
	}

	select {
	case resp := <-respCh:
		return resp, nil
	case <-time.After(m.cfg.SubscribeTimeout):
		return Response{}, ErrTimeout
	case <-m.ctx.Done():
		return Response{}, m.ctx.Err()
	}
}

// readLoop demultiplexes a connection's messages: command responses go to
// the pending waiter, data frames go to the aggregated output.
func (m *Manager) readLoop(mc *managedConn) {
	defer m.wg.Done()

	mc.mu.Lock()
	client := mc.client
	mc.mu.Unlock()

	for {
		select {
		case <-m.ctx.Done():
			return
		case msg, ok := <-client.Messages():
			if !ok {
				return
			}
			m.dispatch(mc, msg)
		}
	}
}

// framePeek distinguishes command responses from data frames.
type framePeek struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	SubID int64  `json:"sub_id"`
	Seq   int64  `json:"seq"`
}

func (m *Manager) dispatch(mc *managedConn, msg TimestampedMessage) {
	var p framePeek
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		m.logger.Warn("unparseable message", "conn_id", mc.id, "error", err)
		if m.prom != nil {
			m.prom.WSParseErrors.WithLabelValues(string(mc.role)).Inc()
		}
		return
	}

	if m.prom != nil {
		m.prom.WSMessages.WithLabelValues(string(mc.role)).Inc()
	}

	switch p.Type {
	case "subscribed", "unsubscribed", "error", "ok":
		var resp Response
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			m.logger.Warn("unparseable response", "conn_id", mc.id, "error", err)
			return
		}

		mc.mu.Lock()
		ch, ok := mc.pending[resp.ID]
		mc.mu.Unlock()

		if ok {
			ch <- resp
		} else {
			m.logger.Debug("response for unknown command", "conn_id", mc.id, "cmd_id", resp.ID)
		}

	default:
		gap, gapSize := m.checkSequence(mc, p.SubID, p.Seq)

		raw := RawMessage{
			Data:       msg.Data,
			ConnID:     mc.id,
			ReceivedAt: msg.ReceivedAt,
			SeqGap:     gap,
			GapSize:    gapSize,
		}

		select {
		case m.output <- raw:
		default:
			m.logger.Warn("output buffer full, dropping message", "conn_id", mc.id)
		}
	}
}

// checkSequence detects gaps in per-subscription sequence numbers. The
// first message on a subscription establishes the baseline.
func (m *Manager) checkSequence(mc *managedConn, subID, seq int64) (bool, int) {
	if subID == 0 || seq == 0 {
		return false, 0
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	last, ok := mc.lastSeq[subID]
	mc.lastSeq[subID] = seq

	if !ok || last == 0 {
		return false, 0
	}

	if seq != last+1 {
		gapSize := int(seq - last - 1)
		m.logger.Warn("sequence gap detected",
			"conn_id", mc.id,
			"sub_id", subID,
			"expected", last+1,
			"got", seq,
			"gap_size", gapSize,
		)
		return true, gapSize
	}

	return false, 0
}

// errorLoop watches a connection's error channel and reconnects on failure.
func (m *Manager) errorLoop(mc *managedConn) {
	defer m.wg.Done()

	mc.mu.Lock()
	client := mc.client
	mc.mu.Unlock()

	select {
	case <-m.ctx.Done():
		return
	case err, ok := <-client.Errors():
		if !ok {
			return
		}
		m.logger.Warn("connection error", "conn_id", mc.id, "error", err)
		m.reconnect(mc)
	}
}

// reconnect replaces a dead connection and replays its subscriptions.
// Backoff doubles from ReconnectBase up to ReconnectMaxWait.
func (m *Manager) reconnect(mc *managedConn) {
	if m.prom != nil {
		m.prom.ConnState.WithLabelValues(strconv.Itoa(mc.id)).Set(0)
		m.prom.WSReconnects.WithLabelValues(strconv.Itoa(mc.id)).Inc()
	}

	mc.mu.Lock()
	if mc.client != nil {
		mc.client.Close()
	}
	mc.client = nil

	// Capture previous subscriptions; sub IDs and sequences reset on the
	// new connection.
	prev := make([]*Subscription, 0, len(mc.subs))
	for _, sub := range mc.subs {
		prev = append(prev, sub)
	}
	mc.subs = make(map[int64]*Subscription)
	mc.symbols = make(map[string]int64)
	mc.lastSeq = make(map[int64]int64)
	mc.mu.Unlock()

	backoff := m.cfg.ReconnectBaseWait

	for attempt := 1; ; attempt++ {
		select {
		case <-m.ctx.Done():
			return
		case <-time.After(backoff):
		}

		err := m.connect(mc)
		if err == nil {
			break
		}

		m.logger.Warn("reconnect failed",
			"conn_id", mc.id,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		backoff *= 2
		if backoff > m.cfg.ReconnectMaxWait {
			backoff = m.cfg.ReconnectMaxWait
		}
	}

	m.startConnLoops(mc)

	for _, sub := range prev {
		if _, err := m.subscribe(mc, sub.Channel, sub.Symbol); err != nil {
			m.logger.Error("resubscribe failed",
				"conn_id", mc.id,
				"channel", sub.Channel,
				"symbol", sub.Symbol,
				"error", err,
			)
		}
	}

	m.logger.Info("reconnected", "conn_id", mc.id, "resubscribed", len(prev))
}

// handleMarketChanges consumes registry change events and adjusts
// subscriptions. Multiple workers share the change channel.
func (m *Manager) handleMarketChanges() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case ev, ok := <-m.registry.Changes():
			if !ok {
				return
			}
			m.applyMarketChange(ev)
		}
	}
}

func (m *Manager) applyMarketChange(ev market.ChangeEvent) {
	switch ev.Type {
	case market.ChangeListed:
		if err := m.subscribeSymbol(ev.Symbol); err != nil {
			m.logger.Error("subscribe new listing failed", "symbol", ev.Symbol, "error", err)
		}

	case market.ChangeDelisted:
		for _, mc := range m.conns {
			if err := m.unsubscribeSymbol(mc, ev.Symbol); err != nil {
				m.logger.Error("unsubscribe for delisting failed",
					"conn_id", mc.id,
					"symbol", ev.Symbol,
					"error", err,
				)
			}
		}

	case market.ChangeStatusChanged:
		// Halted instruments keep their subscriptions; the feed simply
		// goes quiet until trading resumes.
		m.logger.Info("instrument status changed",
			"symbol", ev.Symbol,
			"status", ev.Instrument.Status,
		)
	}
}

// unsubscribeSymbol removes every subscription for a symbol on a connection.
func (m *Manager) unsubscribeSymbol(mc *managedConn, symbol string) error {
	mc.mu.Lock()
	var subIDs []int64
	for id, sub := range mc.subs {
		if sub.Symbol == symbol {
			subIDs = append(subIDs, id)
		}
	}
	mc.mu.Unlock()

	if len(subIDs) == 0 {
		return nil
	}

	cmdID := m.nextCmdID.Add(1)
	cmd := Command{
		ID:   cmdID,
		Op:   "unsubscribe",
		Args: UnsubscribeArgs{SubIDs: subIDs},
	}

	if _, err := m.sendCommand(mc, cmdID, cmd); err != nil {
		return err
	}

	mc.mu.Lock()
	for _, id := range subIDs {
		if sub, ok := mc.subs[id]; ok {
			if sub.Channel == ChannelBook {
				delete(mc.symbols, sub.Symbol)
			}
			delete(mc.subs, id)
		}
		delete(mc.lastSeq, id)
	}
	mc.mu.Unlock()

	return nil
}
