package marketdata

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hpts-sim"
)

// wireTick is the JSON object this source expects in each websocket
// message from the endpoint for a tick event.
type wireTick struct {
	InstrumentID string  `json:"instrument_id"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	Last         float64 `json:"last"`
	Type         string  `json:"type"`
	Price        float64 `json:"price"`
	Quantity     int64   `json:"quantity"`
}

type controlFrame struct {
	Op           string `json:"op"`
	InstrumentID string `json:"instrument_id"`
}

func tickTypeFromWire(s string) hpts.TickType {
	switch s {
	case "BID_UPDATE":
		return hpts.TickBidUpdate
	case "ASK_UPDATE":
		return hpts.TickAskUpdate
	default:
		return hpts.TickTrade
	}
}

// LiveMarketDataSource implements MarketDataSource against a reachable,
// unauthenticated websocket endpoint that emits one JSON tick object per
// message. It does not attempt authentication, exchange-specific
// subscription handshakes, or reconnect/backoff; those are explicitly
// out of scope here, same as the authenticated live-exchange transport
// this design excludes in general.
type LiveMarketDataSource struct {
	url string

	mu   sync.Mutex
	conn *websocket.Conn
	subs map[string]struct{}

	callbackMu sync.Mutex
	callback   hpts.MarketDataCallback

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	logger *zap.Logger
}

// NewLiveMarketDataSource constructs a source that will dial url when
// Start is called. A nil logger is replaced with a no-op one.
func NewLiveMarketDataSource(url string, logger *zap.Logger) *LiveMarketDataSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveMarketDataSource{
		url:    url,
		subs:   make(map[string]struct{}),
		logger: logger,
	}
}

func (l *LiveMarketDataSource) SetMarketDataCallback(cb hpts.MarketDataCallback) {
	l.callbackMu.Lock()
	l.callback = cb
	l.callbackMu.Unlock()
}

// Subscribe sends a control frame if connected; it always records the
// instrument so a later Start/reconnect can resubscribe.
func (l *LiveMarketDataSource) Subscribe(instrumentID string) {
	l.mu.Lock()
	l.subs[instrumentID] = struct{}{}
	conn := l.conn
	l.mu.Unlock()
	if conn != nil {
		l.sendControl(conn, "subscribe", instrumentID)
	}
}

func (l *LiveMarketDataSource) Unsubscribe(instrumentID string) {
	l.mu.Lock()
	delete(l.subs, instrumentID)
	conn := l.conn
	l.mu.Unlock()
	if conn != nil {
		l.sendControl(conn, "unsubscribe", instrumentID)
	}
}

func (l *LiveMarketDataSource) sendControl(conn *websocket.Conn, op, instrumentID string) {
	frame := controlFrame{Op: op, InstrumentID: instrumentID}
	payload, err := json.Marshal(frame)
	if err != nil {
		l.logger.Error("failed to marshal control frame", zap.Error(err))
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		l.logger.Error("failed to send control frame", zap.Error(err))
	}
}

// Start dials the endpoint, resubscribes to every previously requested
// instrument, and begins reading frames on a dedicated goroutine. A
// dial failure is logged and leaves the source stopped; this type does
// not retry.
func (l *LiveMarketDataSource) Start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	conn, _, err := websocket.DefaultDialer.Dial(l.url, nil)
	if err != nil {
		l.logger.Error("failed to connect to live market data endpoint", zap.String("url", l.url), zap.Error(err))
		l.mu.Unlock()
		return
	}
	l.conn = conn
	l.running = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	ids := make([]string, 0, len(l.subs))
	for id := range l.subs {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	for _, id := range ids {
		l.sendControl(conn, "subscribe", id)
	}

	go l.readLoop(conn)
}

func (l *LiveMarketDataSource) readLoop(conn *websocket.Conn) {
	defer close(l.doneCh)
	defer conn.Close()
	for {
		select {
		case <-l.stopCh:
			return
		default:
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			l.logger.Warn("live market data connection closed", zap.Error(err))
			return
		}
		var wt wireTick
		if err := json.Unmarshal(payload, &wt); err != nil {
			l.logger.Warn("failed to unmarshal tick frame", zap.Error(err))
			continue
		}
		tick := hpts.Tick{
			InstrumentID: wt.InstrumentID,
			Timestamp:    time.Now(),
			BidPrice:     decimal.NewFromFloat(wt.Bid),
			AskPrice:     decimal.NewFromFloat(wt.Ask),
			LastPrice:    decimal.NewFromFloat(wt.Last),
			Type:         tickTypeFromWire(wt.Type),
			Price:        decimal.NewFromFloat(wt.Price),
			Quantity:     wt.Quantity,
			Volume:       wt.Quantity,
		}
		l.dispatch(tick)
	}
}

func (l *LiveMarketDataSource) dispatch(tick hpts.Tick) {
	l.callbackMu.Lock()
	cb := l.callback
	l.callbackMu.Unlock()
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("market data callback panicked",
				zap.String("instrument_id", tick.InstrumentID),
				zap.Any("panic", r))
		}
	}()
	cb(tick)
}

// Stop closes the connection and joins the read goroutine.
func (l *LiveMarketDataSource) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	conn := l.conn
	doneCh := l.doneCh
	stopCh := l.stopCh
	l.conn = nil
	l.mu.Unlock()

	close(stopCh)
	if conn != nil {
		conn.Close()
	}
	<-doneCh
}
