package strategy

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"hpts-sim"
	"hpts-sim/indicators"
	"hpts-sim/oms"
)

// MomentumStrategy trades a single instrument on dual-SMA crossovers: a
// short window crossing above a long window opens a long position when
// flat or closes an open short, and the reverse crossover opens a short
// when flat or closes an open long. Closing leaves the strategy flat.
type MomentumStrategy struct {
	name         string
	instrumentID string
	shortWindow  *indicators.RollingWindow
	longWindow   *indicators.RollingWindow
	orderQty     int64
	valid        bool
	logger       *zap.Logger

	orders OrderSender
	data   MarketDataSubscriber

	mu                  sync.Mutex
	active              bool
	prevShortSMA        float64
	prevLongSMA         float64
	evaluations         int
	activeClientOrderID string
	pendingIsOpen       bool
	pendingSide         hpts.OrderSide
	hasOpenPosition     bool
	currentSide         hpts.OrderSide
	orderSeq            uint64
}

var _ Strategy = (*MomentumStrategy)(nil)

// NewMomentumStrategy constructs a dual-SMA crossover pattern. It
// returns an error if shortPeriod >= longPeriod; construction must
// reject that configuration rather than silently warn, since the
// crossover comparison is meaningless otherwise.
func NewMomentumStrategy(name, instrumentID string, shortPeriod, longPeriod int, orderQty int64, logger *zap.Logger) (*MomentumStrategy, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if shortPeriod >= longPeriod {
		return nil, fmt.Errorf("strategy: short window (%d) must be < long window (%d)", shortPeriod, longPeriod)
	}
	return &MomentumStrategy{
		name:         name,
		instrumentID: instrumentID,
		shortWindow:  indicators.NewRollingWindow(shortPeriod),
		longWindow:   indicators.NewRollingWindow(longPeriod),
		orderQty:     orderQty,
		valid:        true,
		logger:       logger,
	}, nil
}

func (s *MomentumStrategy) Name() string { return s.name }

func (s *MomentumStrategy) Init(orders OrderSender, data MarketDataSubscriber) {
	s.orders = orders
	s.data = data
}

// Start refuses to begin running if the strategy was somehow constructed
// in an invalid state; no orders are ever emitted in that case.
func (s *MomentumStrategy) Start() {
	if !s.valid {
		logger := s.logger
		if logger == nil {
			logger = zap.NewNop()
		}
		logger.Error("refusing to start momentum strategy with invalid window configuration", zap.String("strategy", s.name))
		return
	}
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
	s.data.Subscribe(s.instrumentID)
}

func (s *MomentumStrategy) Stop() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
	s.data.Unsubscribe(s.instrumentID)
}

func (s *MomentumStrategy) nextClientOrderID() string {
	n := atomic.AddUint64(&s.orderSeq, 1)
	return fmt.Sprintf("%s-%d", s.name, n)
}

func (s *MomentumStrategy) OnMarketData(tick hpts.Tick) {
	if !s.valid || tick.InstrumentID != s.instrumentID || tick.Type != hpts.TickTrade {
		return
	}
	if tick.Price.Sign() <= 0 {
		return
	}
	price := tick.Price.InexactFloat64()
	s.shortWindow.Add(price)
	s.longWindow.Add(price)
	if !s.shortWindow.IsFull() || !s.longWindow.IsFull() {
		return
	}

	curShort := s.shortWindow.Average()
	curLong := s.longWindow.Average()

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}

	prevShort, prevLong := s.prevShortSMA, s.prevLongSMA
	s.prevShortSMA, s.prevLongSMA = curShort, curLong
	s.evaluations++

	if s.activeClientOrderID != "" {
		s.mu.Unlock()
		return
	}
	// The very first two evaluations never trade; on the first, prev_* are
	// still zero.
	if s.evaluations <= 2 || prevShort <= 0.0001 || prevLong <= 0.0001 {
		s.mu.Unlock()
		return
	}

	bullish := prevShort <= prevLong && curShort > curLong
	bearish := prevShort >= prevLong && curShort < curLong

	var side hpts.OrderSide
	var isOpen bool
	switch {
	case !s.hasOpenPosition && bullish:
		side, isOpen = hpts.Buy, true
	case !s.hasOpenPosition && bearish:
		side, isOpen = hpts.Sell, true
	case s.hasOpenPosition && s.currentSide == hpts.Buy && bearish:
		side, isOpen = hpts.Sell, false
	case s.hasOpenPosition && s.currentSide == hpts.Sell && bullish:
		side, isOpen = hpts.Buy, false
	default:
		s.mu.Unlock()
		return
	}

	clientID := s.nextClientOrderID()
	s.activeClientOrderID = clientID
	s.pendingIsOpen = isOpen
	s.pendingSide = side
	s.mu.Unlock()

	order := &oms.Order{
		ClientOrderID: clientID,
		InstrumentID:  s.instrumentID,
		Side:          side,
		Type:          hpts.Market,
		Quantity:      s.orderQty,
	}
	s.logger.Info("momentum crossover signal",
		zap.String("strategy", s.name),
		zap.String("side", side.String()),
		zap.Bool("opening", isOpen),
		zap.Float64("short_sma", curShort),
		zap.Float64("long_sma", curLong),
	)
	s.orders.SendOrder(order)
}

func (s *MomentumStrategy) OnExecutionReport(report hpts.ExecutionReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if report.ClientOrderID != s.activeClientOrderID {
		return
	}

	switch report.Status {
	case hpts.Filled, hpts.PartiallyFilled:
		if s.pendingIsOpen {
			s.hasOpenPosition = true
			s.currentSide = s.pendingSide
		} else {
			s.hasOpenPosition = false
		}
		s.activeClientOrderID = ""
	case hpts.Rejected, hpts.Cancelled:
		s.activeClientOrderID = ""
	}
}
