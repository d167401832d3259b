// Package strategy defines the Strategy hosting contract and two
// concrete indicator-driven implementations: mean-reversion and a
// dual-SMA momentum crossover.
package strategy

import (
	"hpts-sim"
	"hpts-sim/oms"
)

// OrderSender is the subset of oms.OrderManager a strategy needs.
// *oms.OrderManager satisfies it.
type OrderSender interface {
	SendOrder(order *oms.Order) bool
	CancelOrder(orderIDStr, clientOrderID string) bool
}

// MarketDataSubscriber is the subset of marketdata.MarketDataSource a
// strategy needs to manage its own subscription. Both implementations
// in package marketdata satisfy it.
type MarketDataSubscriber interface {
	Subscribe(instrumentID string)
	Unsubscribe(instrumentID string)
}

// Strategy is the capability every trading pattern implements: consume
// ticks and execution reports, emit orders through OrderSender.
type Strategy interface {
	Name() string
	Init(orders OrderSender, data MarketDataSubscriber)
	OnMarketData(tick hpts.Tick)
	OnExecutionReport(report hpts.ExecutionReport)
	Start()
	Stop()
}
