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

// MeanReversionStrategy trades a single instrument against a bounded
// window of recent trade prices: it opens a position when price strays
// more than numStdDevs population standard deviations from the window's
// mean and closes it once price reverts back to the mean.
type MeanReversionStrategy struct {
	name         string
	instrumentID string
	window       *indicators.RollingWindow
	numStdDevs   float64
	orderQty     int64
	logger       *zap.Logger

	orders OrderSender
	data   MarketDataSubscriber

	mu                  sync.Mutex
	active              bool
	activeClientOrderID string
	pendingIsOpen       bool
	pendingSide         hpts.OrderSide
	hasOpenPosition     bool
	currentSide         hpts.OrderSide
	orderSeq            uint64
}

var _ Strategy = (*MeanReversionStrategy)(nil)

// NewMeanReversionStrategy constructs a mean-reversion pattern over the
// last window trade prices for instrumentID. A nil logger is replaced
// with a no-op one.
func NewMeanReversionStrategy(name, instrumentID string, window int, numStdDevs float64, orderQty int64, logger *zap.Logger) *MeanReversionStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MeanReversionStrategy{
		name:         name,
		instrumentID: instrumentID,
		window:       indicators.NewRollingWindow(window),
		numStdDevs:   numStdDevs,
		orderQty:     orderQty,
		logger:       logger,
	}
}

func (s *MeanReversionStrategy) Name() string { return s.name }

func (s *MeanReversionStrategy) Init(orders OrderSender, data MarketDataSubscriber) {
	s.orders = orders
	s.data = data
}

func (s *MeanReversionStrategy) Start() {
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
	s.data.Subscribe(s.instrumentID)
}

func (s *MeanReversionStrategy) Stop() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
	s.data.Unsubscribe(s.instrumentID)
}

func (s *MeanReversionStrategy) nextClientOrderID() string {
	n := atomic.AddUint64(&s.orderSeq, 1)
	return fmt.Sprintf("%s-%d", s.name, n)
}

func (s *MeanReversionStrategy) OnMarketData(tick hpts.Tick) {
	if tick.InstrumentID != s.instrumentID || tick.Type != hpts.TickTrade {
		return
	}
	if tick.Price.Sign() <= 0 {
		return
	}
	price := tick.Price.InexactFloat64()
	s.window.Add(price)
	if !s.window.IsFull() {
		return
	}

	s.mu.Lock()
	if !s.active || s.activeClientOrderID != "" {
		s.mu.Unlock()
		return
	}

	sma := s.window.Average()
	sigma := s.window.StdDev()
	upper := sma + s.numStdDevs*sigma
	lower := sma - s.numStdDevs*sigma

	var side hpts.OrderSide
	var isOpen bool
	switch {
	case !s.hasOpenPosition && price > upper:
		side, isOpen = hpts.Sell, true
	case !s.hasOpenPosition && price < lower:
		side, isOpen = hpts.Buy, true
	case s.hasOpenPosition && s.currentSide == hpts.Sell && price <= sma:
		side, isOpen = hpts.Buy, false
	case s.hasOpenPosition && s.currentSide == hpts.Buy && price >= sma:
		side, isOpen = hpts.Sell, false
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
	s.logger.Info("mean-reversion signal",
		zap.String("strategy", s.name),
		zap.String("side", side.String()),
		zap.Bool("opening", isOpen),
		zap.Float64("price", price),
		zap.Float64("sma", sma),
		zap.Float64("sigma", sigma),
	)
	s.orders.SendOrder(order)
}

func (s *MeanReversionStrategy) OnExecutionReport(report hpts.ExecutionReport) {
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
