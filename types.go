// Package hpts holds the event and enumeration types shared by every
// component of the simulator: market data, risk, order management, and
// strategies all exchange values of these types without depending on
// each other's packages.
package hpts

import (
	"time"

	"github.com/shopspring/decimal"
)

// TickType identifies the kind of market event a Tick carries.
type TickType int

const (
	TickBidUpdate TickType = iota
	TickAskUpdate
	TickTrade
)

func (t TickType) String() string {
	switch t {
	case TickBidUpdate:
		return "BID_UPDATE"
	case TickAskUpdate:
		return "ASK_UPDATE"
	case TickTrade:
		return "TRADE"
	default:
		return "UNKNOWN"
	}
}

// Tick is an immutable market data event for one instrument.
type Tick struct {
	InstrumentID string
	Timestamp    time.Time
	BidPrice     decimal.Decimal
	AskPrice     decimal.Decimal
	LastPrice    decimal.Decimal
	Type         TickType
	Price        decimal.Decimal
	Quantity     int64
	Volume       int64
}

// MarketDataCallback receives ticks as they are produced. Implementations
// must tolerate being invoked concurrently with their own unsynchronized
// state and must not block the producer for long.
type MarketDataCallback func(Tick)

// OrderSide is the direction of an order or fill.
type OrderSide int

const (
	Buy OrderSide = iota
	Sell
)

func (s OrderSide) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// OrderType distinguishes market orders from limit orders.
type OrderType int

const (
	Market OrderType = iota
	Limit
)

func (t OrderType) String() string {
	if t == Market {
		return "MARKET"
	}
	return "LIMIT"
}

// OrderStatus is a state in the order lifecycle state machine.
type OrderStatus int

const (
	New OrderStatus = iota
	Acknowledged
	PartiallyFilled
	Filled
	Rejected
	Cancelled
)

func (s OrderStatus) String() string {
	switch s {
	case New:
		return "NEW"
	case Acknowledged:
		return "ACKNOWLEDGED"
	case PartiallyFilled:
		return "PARTIALLY_FILLED"
	case Filled:
		return "FILLED"
	case Rejected:
		return "REJECTED"
	case Cancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	return s == Filled || s == Rejected || s == Cancelled
}

// OrderIntent carries the fields of a prospective order that the risk
// engine needs to evaluate, decoupled from the order manager's own Order
// type so that package riskengine never has to import package oms.
type OrderIntent struct {
	InstrumentID string
	Side         OrderSide
	Quantity     int64
}

// ExecutionReport is emitted by the order manager for every order state
// transition, including fills, rejections, and cancellations.
type ExecutionReport struct {
	OrderID                  uint64
	ClientOrderID            string
	InstrumentID             string
	Status                   OrderStatus
	FilledQuantity           int64
	FilledPrice              decimal.Decimal
	CumulativeFilledQuantity int64
	AverageFilledPrice       decimal.Decimal
	Timestamp                time.Time
	RejectReason             string
}

// ExecutionReportCallback receives one ExecutionReport per order state
// transition, in order, for a given order.
type ExecutionReportCallback func(ExecutionReport)

// Position is the net signed holding of one instrument plus cost basis
// and realized PnL, as tracked by the order manager.
type Position struct {
	InstrumentID      string
	Quantity          int64
	AverageEntryPrice decimal.Decimal
	RealizedPnL       decimal.Decimal
}
