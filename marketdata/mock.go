// Package marketdata provides the MarketDataSource capability and its
// two implementations: a synthetic producer-thread generator for tests
// and demos, and a thin websocket-backed feed for a real endpoint.
package marketdata

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hpts-sim"
)

// MarketDataSource is the capability both implementations in this
// package satisfy: subscribe/unsubscribe, start/stop, and a single
// registered tick callback.
type MarketDataSource interface {
	SetMarketDataCallback(cb hpts.MarketDataCallback)
	Subscribe(instrumentID string)
	Unsubscribe(instrumentID string)
	Start()
	Stop()
}

var defaultSeeds = map[string]float64{
	"AAPL": 150.0,
	"SPY":  100.0,
}

const defaultSeed = 50.0

func seedMid(instrumentID string) float64 {
	if v, ok := defaultSeeds[instrumentID]; ok {
		return v
	}
	return defaultSeed
}

type instrumentState struct {
	bid       float64
	ask       float64
	lastTrade float64
}

// MockMarketDataSource generates plausible-looking per-instrument ticks
// on a dedicated producer thread at a configured per-instrument rate.
// Subscribe/Unsubscribe are called from arbitrary goroutines (a
// strategy's Start/Stop typically runs on the caller's thread), so the
// subscription set and per-instrument price state are guarded by a
// mutex even though the tick-generation loop itself only ever runs on
// the single producer goroutine.
type MockMarketDataSource struct {
	interval time.Duration

	mu     sync.Mutex
	subs   map[string]struct{}
	states map[string]*instrumentState

	callbackMu sync.Mutex
	callback   hpts.MarketDataCallback

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	logger *zap.Logger
}

// NewMockMarketDataSource builds a source that emits at tickRateHzPerInstrument
// per subscribed instrument. A rate <= 0 is coerced to 1 Hz. A nil logger
// is replaced with a no-op one.
func NewMockMarketDataSource(tickRateHzPerInstrument float64, logger *zap.Logger) *MockMarketDataSource {
	if tickRateHzPerInstrument <= 0 {
		tickRateHzPerInstrument = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MockMarketDataSource{
		interval: time.Duration(float64(time.Second) / tickRateHzPerInstrument),
		subs:     make(map[string]struct{}),
		states:   make(map[string]*instrumentState),
		logger:   logger,
	}
}

// SetMarketDataCallback installs the single tick callback. Calls occur
// on the producer thread once Start has been called.
func (m *MockMarketDataSource) SetMarketDataCallback(cb hpts.MarketDataCallback) {
	m.callbackMu.Lock()
	m.callback = cb
	m.callbackMu.Unlock()
}

// Subscribe is idempotent. On first subscribe the instrument's price
// state is seeded with an implementation-defined default mid.
func (m *MockMarketDataSource) Subscribe(instrumentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[instrumentID] = struct{}{}
	if _, ok := m.states[instrumentID]; !ok {
		mid := seedMid(instrumentID)
		m.states[instrumentID] = &instrumentState{
			bid:       mid,
			ask:       mid + 0.05,
			lastTrade: mid + 0.02,
		}
	}
}

// Unsubscribe is idempotent; it only removes the instrument from the
// scheduler's walk, the seeded price state is retained so a later
// re-subscribe picks up where it left off.
func (m *MockMarketDataSource) Unsubscribe(instrumentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, instrumentID)
}

// SnapshotPrice satisfies oms.PriceSource: it reports the stored last
// trade price for instrumentID, which Subscribe seeds before any trade
// occurs. ok is false for an instrument that was never subscribed.
func (m *MockMarketDataSource) SnapshotPrice(instrumentID string) (decimal.Decimal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[instrumentID]
	if !ok || s.lastTrade <= 0 {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromFloat(s.lastTrade), true
}

// Start spawns the producer thread if it is not already running.
func (m *MockMarketDataSource) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	go m.run(rng)
}

// Stop requests shutdown and joins the producer thread. Safe to call
// more than once or on a source that was never started.
func (m *MockMarketDataSource) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stopCh := m.stopCh
	doneCh := m.doneCh
	m.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (m *MockMarketDataSource) run(rng *rand.Rand) {
	defer close(m.doneCh)
	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		ids := m.subscribedInstruments()
		if len(ids) == 0 {
			select {
			case <-m.stopCh:
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		for _, id := range ids {
			select {
			case <-m.stopCh:
				return
			default:
			}
			tick := m.generateTick(rng, id)
			m.dispatch(tick)
			select {
			case <-m.stopCh:
				return
			case <-time.After(m.interval):
			}
		}
	}
}

func (m *MockMarketDataSource) subscribedInstruments() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// generateTick implements the tick generation rule: estimate a mid from
// current state, jitter it into a new mid and spread, draw an event type
// from the {BID:10%, ASK:10%, TRADE:80%} distribution, and update the
// stored per-instrument state to match.
func (m *MockMarketDataSource) generateTick(rng *rand.Rand, instrumentID string) hpts.Tick {
	m.mu.Lock()
	state := m.states[instrumentID]
	if state == nil {
		mid := seedMid(instrumentID)
		state = &instrumentState{bid: mid, ask: mid + 0.05, lastTrade: mid + 0.02}
		m.states[instrumentID] = state
	}

	mid := state.lastTrade
	if mid <= 0 {
		mid = (state.bid + state.ask) / 2
	}
	if mid <= 0 {
		mid = seedMid(instrumentID)
	}

	newMid := mid * uniform(rng, 0.98, 1.02)
	spread := newMid * uniform(rng, 0.001, 0.005)
	if spread < 0.01 {
		spread = 0.01
	}

	bid := newMid - spread/2
	ask := newMid + spread/2
	if ask <= bid {
		ask += 0.01
	}

	now := time.Now()
	tick := hpts.Tick{
		InstrumentID: instrumentID,
		Timestamp:    now,
	}

	roll := rng.Intn(10)
	switch {
	case roll == 0:
		state.bid = bid
		state.ask = ask
		qty := int64(10 * (1 + rng.Intn(10)))
		tick.Type = hpts.TickBidUpdate
		tick.Price = decimal.NewFromFloat(bid)
		tick.Quantity = qty
		tick.Volume = qty
	case roll == 1:
		state.bid = bid
		state.ask = ask
		qty := int64(10 * (1 + rng.Intn(10)))
		tick.Type = hpts.TickAskUpdate
		tick.Price = decimal.NewFromFloat(ask)
		tick.Quantity = qty
		tick.Volume = qty
	default:
		state.bid = bid
		state.ask = ask

		var tradePrice float64
		sel := rng.Float64()
		switch {
		case sel < 0.25:
			tradePrice = bid
		case sel < 0.50:
			tradePrice = ask
		default:
			tradePrice = newMid * (1 + uniform(rng, -0.0005, 0.0005))
		}

		qty := int64(1 + rng.Intn(10))
		state.lastTrade = tradePrice

		tighten := uniform(rng, 0.001, 0.005) / 1.5
		state.bid = tradePrice * (1 - tighten)
		state.ask = tradePrice * (1 + tighten)
		if state.ask <= state.bid {
			state.ask = state.bid + 0.01
		}

		tick.Type = hpts.TickTrade
		tick.Price = decimal.NewFromFloat(tradePrice)
		tick.Quantity = qty
		tick.Volume = qty
	}

	tick.BidPrice = decimal.NewFromFloat(state.bid)
	tick.AskPrice = decimal.NewFromFloat(state.ask)
	tick.LastPrice = decimal.NewFromFloat(state.lastTrade)
	m.mu.Unlock()

	return tick
}

func (m *MockMarketDataSource) dispatch(tick hpts.Tick) {
	m.callbackMu.Lock()
	cb := m.callback
	m.callbackMu.Unlock()
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("market data callback panicked",
				zap.String("instrument_id", tick.InstrumentID),
				zap.Any("panic", r))
		}
	}()
	cb(tick)
}
