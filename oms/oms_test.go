package oms

import (
	"strconv"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"hpts-sim"
	"hpts-sim/riskengine"
)

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func itoa(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func newTestOrderManager(t *testing.T, cfg riskengine.RiskConfig) *OrderManager {
	t.Helper()
	risk := riskengine.NewRiskEngine(nil)
	risk.LoadConfiguration(cfg)
	return NewOrderManager(risk, nil, nil)
}

func collectReports(om *OrderManager) *reportRecorder {
	rec := &reportRecorder{}
	om.SetExecutionReportCallback(func(r hpts.ExecutionReport) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.reports = append(rec.reports, r)
	})
	return rec
}

type reportRecorder struct {
	mu      sync.Mutex
	reports []hpts.ExecutionReport
}

func (r *reportRecorder) last() hpts.ExecutionReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reports[len(r.reports)-1]
}

// rejection by max order size.
func TestSendOrder_RejectsOnMaxOrderSize(t *testing.T) {
	om := newTestOrderManager(t, riskengine.RiskConfig{MaxOrderSize: 1000, MaxOpenContractsPerInstrument: 10000, MaxTotalContractsAcrossAllInstruments: 10000, MaxDailyVolumePerInstrument: 100000})
	rec := collectReports(om)

	ok := om.SendOrder(&Order{ClientOrderID: "c1", InstrumentID: "AAPL", Side: hpts.Buy, Type: hpts.Market, Quantity: 1500})
	require.False(t, ok)

	report := rec.last()
	require.Equal(t, hpts.Rejected, report.Status)
	require.Equal(t, "REJECTED_MAX_ORDER_SIZE", report.RejectReason)
}

// disallowed instrument.
func TestSendOrder_RejectsDisallowedInstrument(t *testing.T) {
	om := newTestOrderManager(t, riskengine.RiskConfig{
		MaxOrderSize:                          1000,
		MaxOpenContractsPerInstrument:         10000,
		MaxTotalContractsAcrossAllInstruments: 10000,
		MaxDailyVolumePerInstrument:           100000,
		AllowedInstruments:                    map[string]struct{}{"AAPL": {}, "SPY": {}, "MSFT": {}},
	})
	rec := collectReports(om)

	ok := om.SendOrder(&Order{ClientOrderID: "c1", InstrumentID: "GOOG", Side: hpts.Buy, Type: hpts.Market, Quantity: 10})
	require.False(t, ok)
	require.Equal(t, "REJECTED_INSTRUMENT_NOT_ALLOWED", rec.last().RejectReason)
}

// per-instrument position cap.
func TestSendOrder_RejectsOnPerInstrumentCapAfterFill(t *testing.T) {
	om := newTestOrderManager(t, riskengine.RiskConfig{MaxOrderSize: 1000, MaxOpenContractsPerInstrument: 500, MaxTotalContractsAcrossAllInstruments: 10000, MaxDailyVolumePerInstrument: 100000})
	rec := collectReports(om)

	require.True(t, om.SendOrder(&Order{ClientOrderID: "c1", InstrumentID: "MSFT", Side: hpts.Buy, Type: hpts.Market, Quantity: 300}))
	require.Equal(t, hpts.Filled, rec.last().Status)
	require.Equal(t, int64(300), om.Position("MSFT").Quantity)

	require.False(t, om.SendOrder(&Order{ClientOrderID: "c2", InstrumentID: "MSFT", Side: hpts.Buy, Type: hpts.Market, Quantity: 300}))
	require.Equal(t, "REJECTED_MAX_OPEN_CONTRACTS_INSTRUMENT", rec.last().RejectReason)
	require.Equal(t, int64(300), om.Position("MSFT").Quantity)
}

// realized PnL on close, against the hardcoded nominal fill table.
func TestSendOrder_RealizedPnLOnClose(t *testing.T) {
	om := newTestOrderManager(t, riskengine.RiskConfig{MaxOrderSize: 1000, MaxOpenContractsPerInstrument: 10000, MaxTotalContractsAcrossAllInstruments: 10000, MaxDailyVolumePerInstrument: 100000})
	rec := collectReports(om)

	require.True(t, om.SendOrder(&Order{ClientOrderID: "c1", InstrumentID: "AAPL", Side: hpts.Buy, Type: hpts.Market, Quantity: 100}))
	require.True(t, rec.last().FilledPrice.Equal(mustDecimal("150.10")))

	require.True(t, om.SendOrder(&Order{ClientOrderID: "c2", InstrumentID: "AAPL", Side: hpts.Sell, Type: hpts.Market, Quantity: 100}))
	require.True(t, rec.last().FilledPrice.Equal(mustDecimal("149.90")))

	pos := om.Position("AAPL")
	require.Equal(t, int64(0), pos.Quantity)
	require.True(t, pos.AverageEntryPrice.IsZero())
	require.True(t, pos.RealizedPnL.Equal(mustDecimal("-20.00")), "got %s", pos.RealizedPnL.String())
}

// cancellation state machine.
func TestCancelOrder_SucceedsOnceThenFails(t *testing.T) {
	om := newTestOrderManager(t, riskengine.RiskConfig{MaxOrderSize: 1000, MaxOpenContractsPerInstrument: 10000, MaxTotalContractsAcrossAllInstruments: 10000, MaxDailyVolumePerInstrument: 100000})

	// Force the order into a cancelable state by bypassing SendOrder's
	// immediate-fill policy: insert directly as ACKNOWLEDGED, mirroring
	// what a fill policy configured to "ack without fill" would leave
	// behind.
	om.ordersMu.Lock()
	om.nextOrderID++
	order := &Order{OrderID: om.nextOrderID, ClientOrderID: "ack-1", InstrumentID: "AAPL", Side: hpts.Buy, Type: hpts.Limit, Quantity: 10, Price: mustDecimal("100.00"), Status: hpts.Acknowledged}
	om.orders[order.OrderID] = order
	om.ordersMu.Unlock()

	require.True(t, om.CancelOrder("", "ack-1"))
	o, ok := om.GetOrder(order.OrderID)
	require.True(t, ok)
	require.Equal(t, hpts.Cancelled, o.Status)

	require.False(t, om.CancelOrder("", "ack-1"))
}

func TestCancelOrder_LooksUpByNumericIDBeforeClientID(t *testing.T) {
	om := newTestOrderManager(t, riskengine.RiskConfig{MaxOrderSize: 1000, MaxOpenContractsPerInstrument: 10000, MaxTotalContractsAcrossAllInstruments: 10000, MaxDailyVolumePerInstrument: 100000})

	om.ordersMu.Lock()
	om.nextOrderID++
	order := &Order{OrderID: om.nextOrderID, ClientOrderID: "not-numeric", InstrumentID: "AAPL", Side: hpts.Buy, Type: hpts.Limit, Quantity: 10, Price: mustDecimal("100.00"), Status: hpts.New}
	om.orders[order.OrderID] = order
	om.nextOrderID++
	other := &Order{OrderID: om.nextOrderID, ClientOrderID: "other", InstrumentID: "AAPL", Side: hpts.Buy, Type: hpts.Limit, Quantity: 10, Price: mustDecimal("100.00"), Status: hpts.New}
	om.orders[other.OrderID] = other
	om.ordersMu.Unlock()

	require.True(t, om.CancelOrder(itoa(order.OrderID), "other"))
	o, ok := om.GetOrder(order.OrderID)
	require.True(t, ok)
	require.Equal(t, hpts.Cancelled, o.Status)
	o, ok = om.GetOrder(other.OrderID)
	require.True(t, ok)
	require.Equal(t, hpts.New, o.Status)
}

func TestCancelOrder_UnknownOrderReturnsFalseWithoutReport(t *testing.T) {
	om := newTestOrderManager(t, riskengine.RiskConfig{MaxOrderSize: 1000, MaxOpenContractsPerInstrument: 10000, MaxTotalContractsAcrossAllInstruments: 10000, MaxDailyVolumePerInstrument: 100000})
	var called bool
	om.SetExecutionReportCallback(func(hpts.ExecutionReport) { called = true })

	require.False(t, om.CancelOrder("999", "nope"))
	require.False(t, called)
}

func TestSendOrder_RejectsInvalidParameters(t *testing.T) {
	om := newTestOrderManager(t, riskengine.RiskConfig{MaxOrderSize: 1000, MaxOpenContractsPerInstrument: 10000, MaxTotalContractsAcrossAllInstruments: 10000, MaxDailyVolumePerInstrument: 100000})
	rec := collectReports(om)

	require.False(t, om.SendOrder(&Order{ClientOrderID: "c1", InstrumentID: "", Side: hpts.Buy, Type: hpts.Market, Quantity: 10}))
	require.Equal(t, "Invalid parameters", rec.last().RejectReason)

	require.False(t, om.SendOrder(&Order{ClientOrderID: "c2", InstrumentID: "AAPL", Side: hpts.Buy, Type: hpts.Market, Quantity: 0}))
	require.Equal(t, "Invalid parameters", rec.last().RejectReason)

	require.False(t, om.SendOrder(&Order{ClientOrderID: "c3", InstrumentID: "AAPL", Side: hpts.Buy, Type: hpts.Limit, Quantity: 10, Price: mustDecimal("0")}))
	require.Equal(t, "Invalid parameters", rec.last().RejectReason)
}

func TestSendOrder_OrderIDsStrictlyIncreasing(t *testing.T) {
	om := newTestOrderManager(t, riskengine.RiskConfig{MaxOrderSize: 1000, MaxOpenContractsPerInstrument: 10000, MaxTotalContractsAcrossAllInstruments: 10000, MaxDailyVolumePerInstrument: 100000})
	var ids []uint64
	om.SetExecutionReportCallback(func(r hpts.ExecutionReport) { ids = append(ids, r.OrderID) })

	for i := 0; i < 5; i++ {
		om.SendOrder(&Order{ClientOrderID: itoa(uint64(i)), InstrumentID: "AAPL", Side: hpts.Buy, Type: hpts.Market, Quantity: 1})
	}
	for i := 1; i < len(ids); i++ {
		require.Greater(t, ids[i], ids[i-1])
	}
}

func TestSendOrder_LimitFillsAtLimitPrice(t *testing.T) {
	om := newTestOrderManager(t, riskengine.RiskConfig{MaxOrderSize: 1000, MaxOpenContractsPerInstrument: 10000, MaxTotalContractsAcrossAllInstruments: 10000, MaxDailyVolumePerInstrument: 100000})
	rec := collectReports(om)

	require.True(t, om.SendOrder(&Order{ClientOrderID: "c1", InstrumentID: "AAPL", Side: hpts.Buy, Type: hpts.Limit, Quantity: 10, Price: mustDecimal("142.50")}))
	require.True(t, rec.last().FilledPrice.Equal(mustDecimal("142.50")))
}
