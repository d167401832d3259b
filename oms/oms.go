// Package oms implements the order manager: the book of record for
// orders and positions, the mediator between strategies and the risk
// engine, and the simulator's fill engine.
package oms

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hpts-sim"
	"hpts-sim/riskengine"
)

// marketOrderSlippage approximates the bid/ask crossing a market order
// pays relative to the last traded price when a live price is available.
var marketOrderSlippage = decimal.NewFromFloat(0.00067)

// nominalFillPrice is the fallback table used when no PriceSource is
// wired or the PriceSource reports no price for the instrument.
func nominalFillPrice(instrumentID string, side hpts.OrderSide) decimal.Decimal {
	var buy, sell decimal.Decimal
	switch instrumentID {
	case "AAPL":
		buy, sell = decimal.NewFromFloat(150.10), decimal.NewFromFloat(149.90)
	case "SPY":
		buy, sell = decimal.NewFromFloat(500.10), decimal.NewFromFloat(499.90)
	default:
		buy, sell = decimal.NewFromFloat(101.00), decimal.NewFromFloat(99.00)
	}
	if side == hpts.Buy {
		return buy
	}
	return sell
}

// PriceSource is an optional collaborator an OrderManager can consult to
// simulate market fills against a live last-traded price instead of the
// hardcoded nominal table. marketdata.MockMarketDataSource satisfies this
// structurally; marketdata.LiveMarketDataSource has no SnapshotPrice and
// does not.
type PriceSource interface {
	SnapshotPrice(instrumentID string) (last decimal.Decimal, ok bool)
}

// riskChecker is the subset of riskengine.RiskEngine that the order
// manager needs; declared locally so tests can supply a fake.
type riskChecker interface {
	CheckOrderPreSend(intent hpts.OrderIntent, currentPosition hpts.Position) riskengine.RiskCheckResult
	UpdateOnFill(report hpts.ExecutionReport, side hpts.OrderSide)
}

// Order is mutable only within OrderManager; every other package sees it
// solely through ExecutionReport or Position snapshots, or constructs one
// fresh to hand to SendOrder.
type Order struct {
	OrderID            uint64
	ClientOrderID      string
	InstrumentID       string
	Side               hpts.OrderSide
	Type               hpts.OrderType
	Quantity           int64
	Price              decimal.Decimal
	Status             hpts.OrderStatus
	FilledQuantity     int64
	AverageFilledPrice decimal.Decimal
	Timestamp          time.Time

	cumulativeNotional decimal.Decimal
}

// OrderManager owns the orders and positions maps behind two separate
// mutexes so that position updates can run after the orders lock has
// already been released, per the lock-ordering discipline: orders_mutex
// may be acquired before positions_mutex, never the reverse.
type OrderManager struct {
	instanceID string

	ordersMu    sync.Mutex
	orders      map[uint64]*Order
	nextOrderID uint64

	positionsMu sync.Mutex
	positions   map[string]*hpts.Position

	callbackMu sync.Mutex
	callback   hpts.ExecutionReportCallback

	risk   riskChecker
	prices PriceSource
	logger *zap.Logger
}

// NewOrderManager wires a required risk engine and an optional price
// source. A nil risk engine is a programmer error and panics immediately.
// prices may be nil.
func NewOrderManager(risk *riskengine.RiskEngine, prices PriceSource, logger *zap.Logger) *OrderManager {
	if risk == nil {
		panic("oms: NewOrderManager requires a non-nil risk engine")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &OrderManager{
		instanceID: id,
		orders:     make(map[uint64]*Order),
		positions:  make(map[string]*hpts.Position),
		risk:       risk,
		prices:     prices,
		logger:     logger.With(zap.String("oms_instance", id)),
	}
}

// SetExecutionReportCallback installs the single execution-report
// callback. A later call replaces the prior one. The callback is always
// invoked with no locks held.
func (om *OrderManager) SetExecutionReportCallback(cb hpts.ExecutionReportCallback) {
	om.callbackMu.Lock()
	om.callback = cb
	om.callbackMu.Unlock()
}

func (om *OrderManager) emit(report hpts.ExecutionReport) {
	om.callbackMu.Lock()
	cb := om.callback
	om.callbackMu.Unlock()
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			om.logger.Error("execution report callback panicked", zap.Any("panic", r))
		}
	}()
	cb(report)
}

// SendOrder validates, assigns an order id, runs the pre-trade risk
// check, simulates a fill, and publishes one or more ExecutionReports.
// It returns false on any rejection (validation or risk) and true on any
// acceptance, including partial fills and pure acknowledgement.
func (om *OrderManager) SendOrder(order *Order) bool {
	if order.InstrumentID == "" || order.Quantity <= 0 {
		om.emit(hpts.ExecutionReport{
			ClientOrderID: order.ClientOrderID,
			InstrumentID:  order.InstrumentID,
			Status:        hpts.Rejected,
			Timestamp:     time.Now(),
			RejectReason:  "Invalid parameters",
		})
		return false
	}
	if order.Type == hpts.Limit && order.Price.Sign() <= 0 {
		om.emit(hpts.ExecutionReport{
			ClientOrderID: order.ClientOrderID,
			InstrumentID:  order.InstrumentID,
			Status:        hpts.Rejected,
			Timestamp:     time.Now(),
			RejectReason:  "Invalid parameters",
		})
		return false
	}

	om.ordersMu.Lock()
	om.nextOrderID++
	order.OrderID = om.nextOrderID
	order.Status = hpts.New
	order.Timestamp = time.Now()
	om.orders[order.OrderID] = order
	om.ordersMu.Unlock()

	currentPosition := om.positionSnapshot(order.InstrumentID)
	intent := hpts.OrderIntent{InstrumentID: order.InstrumentID, Side: order.Side, Quantity: order.Quantity}
	result := om.risk.CheckOrderPreSend(intent, currentPosition)
	if !result.IsApproved() {
		om.ordersMu.Lock()
		order.Status = hpts.Rejected
		order.Timestamp = time.Now()
		om.ordersMu.Unlock()
		om.emit(hpts.ExecutionReport{
			OrderID:       order.OrderID,
			ClientOrderID: order.ClientOrderID,
			InstrumentID:  order.InstrumentID,
			Status:        hpts.Rejected,
			Timestamp:     time.Now(),
			RejectReason:  result.String(),
		})
		return false
	}

	report := om.simulateFill(order)
	om.emit(report)
	om.risk.UpdateOnFill(report, order.Side)
	om.updatePosition(report, order.Side)
	return true
}

// simulateFill fills order fully (the only policy this mock implements)
// and returns the ExecutionReport for the fill, mutating order under the
// orders lock.
func (om *OrderManager) simulateFill(order *Order) hpts.ExecutionReport {
	fillPrice := om.fillPrice(order)

	om.ordersMu.Lock()
	defer om.ordersMu.Unlock()

	order.FilledQuantity = order.Quantity
	order.cumulativeNotional = order.cumulativeNotional.Add(fillPrice.Mul(decimal.NewFromInt(order.Quantity)))
	order.AverageFilledPrice = order.cumulativeNotional.Div(decimal.NewFromInt(order.FilledQuantity))
	order.Status = hpts.Filled
	order.Timestamp = time.Now()

	return hpts.ExecutionReport{
		OrderID:                  order.OrderID,
		ClientOrderID:            order.ClientOrderID,
		InstrumentID:             order.InstrumentID,
		Status:                   order.Status,
		FilledQuantity:           order.Quantity,
		FilledPrice:              fillPrice,
		CumulativeFilledQuantity: order.FilledQuantity,
		AverageFilledPrice:       order.AverageFilledPrice,
		Timestamp:                order.Timestamp,
	}
}

func (om *OrderManager) fillPrice(order *Order) decimal.Decimal {
	if order.Type == hpts.Limit {
		return order.Price
	}
	if om.prices != nil {
		if last, ok := om.prices.SnapshotPrice(order.InstrumentID); ok && last.Sign() > 0 {
			if order.Side == hpts.Buy {
				return last.Mul(decimal.NewFromInt(1).Add(marketOrderSlippage))
			}
			return last.Mul(decimal.NewFromInt(1).Sub(marketOrderSlippage))
		}
	}
	return nominalFillPrice(order.InstrumentID, order.Side)
}

// CancelOrder looks the order up by order id first (if orderIDStr parses
// as an unsigned 64-bit integer), falling back to a scan by client order
// id. It succeeds only if the order is in a cancelable state.
func (om *OrderManager) CancelOrder(orderIDStr, clientOrderID string) bool {
	om.ordersMu.Lock()
	var target *Order
	if id, err := strconv.ParseUint(orderIDStr, 10, 64); err == nil {
		target = om.orders[id]
	}
	if target == nil && clientOrderID != "" {
		for _, o := range om.orders {
			if o.ClientOrderID == clientOrderID {
				target = o
				break
			}
		}
	}
	if target == nil {
		om.ordersMu.Unlock()
		return false
	}
	switch target.Status {
	case hpts.New, hpts.Acknowledged, hpts.PartiallyFilled:
	default:
		om.ordersMu.Unlock()
		return false
	}
	target.Status = hpts.Cancelled
	target.Timestamp = time.Now()
	report := hpts.ExecutionReport{
		OrderID:                  target.OrderID,
		ClientOrderID:            target.ClientOrderID,
		InstrumentID:             target.InstrumentID,
		Status:                   hpts.Cancelled,
		CumulativeFilledQuantity: target.FilledQuantity,
		AverageFilledPrice:       target.AverageFilledPrice,
		Timestamp:                target.Timestamp,
	}
	om.ordersMu.Unlock()

	om.emit(report)
	return true
}

// GetOrder returns a copy of the order with the given id, for tests and
// diagnostics.
func (om *OrderManager) GetOrder(orderID uint64) (Order, bool) {
	om.ordersMu.Lock()
	defer om.ordersMu.Unlock()
	o, ok := om.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

func (om *OrderManager) positionSnapshot(instrumentID string) hpts.Position {
	om.positionsMu.Lock()
	defer om.positionsMu.Unlock()
	if p, ok := om.positions[instrumentID]; ok {
		return *p
	}
	return hpts.Position{InstrumentID: instrumentID}
}

// Position returns a copy of the current position for instrumentID.
func (om *OrderManager) Position(instrumentID string) hpts.Position {
	return om.positionSnapshot(instrumentID)
}

// updatePosition applies one fill to the instrument's position under
// positions_mutex, realizing PnL on any reduction of an opposite-signed
// position before updating the weighted average entry price.
func (om *OrderManager) updatePosition(report hpts.ExecutionReport, side hpts.OrderSide) {
	if report.FilledQuantity <= 0 {
		return
	}

	om.positionsMu.Lock()
	defer om.positionsMu.Unlock()

	pos, ok := om.positions[report.InstrumentID]
	if !ok {
		pos = &hpts.Position{InstrumentID: report.InstrumentID}
		om.positions[report.InstrumentID] = pos
	}

	oldQty := pos.Quantity
	oldAvg := pos.AverageEntryPrice
	filled := decimal.NewFromInt(report.FilledQuantity)

	if side == hpts.Buy {
		if oldQty < 0 {
			closed := min64(report.FilledQuantity, -oldQty)
			pos.RealizedPnL = pos.RealizedPnL.Add(oldAvg.Sub(report.FilledPrice).Mul(decimal.NewFromInt(closed)))
		}
		newQty := oldQty + report.FilledQuantity
		if newQty != 0 {
			pos.AverageEntryPrice = oldAvg.Mul(decimal.NewFromInt(oldQty)).
				Add(report.FilledPrice.Mul(filled)).
				Div(decimal.NewFromInt(newQty))
		} else {
			pos.AverageEntryPrice = decimal.Zero
		}
		pos.Quantity = newQty
	} else {
		if oldQty > 0 {
			closed := min64(report.FilledQuantity, oldQty)
			pos.RealizedPnL = pos.RealizedPnL.Add(report.FilledPrice.Sub(oldAvg).Mul(decimal.NewFromInt(closed)))
		}
		newQty := oldQty - report.FilledQuantity
		if newQty != 0 {
			pos.AverageEntryPrice = oldAvg.Mul(decimal.NewFromInt(oldQty)).
				Sub(report.FilledPrice.Mul(filled)).
				Div(decimal.NewFromInt(newQty))
		} else {
			pos.AverageEntryPrice = decimal.Zero
		}
		pos.Quantity = newQty
	}

	if pos.Quantity == 0 {
		pos.AverageEntryPrice = decimal.Zero
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
