// Command hpts-sim is the thin demo host: it wires a mock market data
// source, a risk engine, an order manager, and two indicator-driven
// strategies together, runs them for a configured duration, and tears
// everything down in reverse construction order.
package main

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hpts-sim/config"
	"hpts-sim/marketdata"
	"hpts-sim/oms"
	"hpts-sim/riskengine"
	"hpts-sim/strategy"

	hpts "hpts-sim"
)

func main() {
	runID := uuid.NewString()
	base, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer base.Sync()
	logger := base.With(zap.String("run_id", runID))

	cfg := config.Load()
	logger.Info("starting simulator",
		zap.Float64("tick_rate_hz_per_instrument", cfg.TickRateHzPerInstrument),
		zap.Int("run_seconds", cfg.RunSeconds),
	)

	// 1. Market data source.
	mds := marketdata.NewMockMarketDataSource(cfg.TickRateHzPerInstrument, logger.Named("mds"))
	mds.Subscribe("AAPL")
	mds.Subscribe("SPY")
	mds.Start()
	time.Sleep(100 * time.Millisecond)

	// 2. Risk engine.
	riskEngine := riskengine.NewRiskEngine(logger.Named("risk"))
	riskEngine.LoadConfiguration(riskengine.RiskConfig{
		MaxOrderSize:                          1000,
		MaxOpenContractsPerInstrument:         500,
		MaxTotalContractsAcrossAllInstruments: 20000,
		MaxDailyVolumePerInstrument:           2000,
		AllowedInstruments: map[string]struct{}{
			"AAPL": {},
			"SPY":  {},
			"MSFT": {},
		},
	})

	// 3. Order manager.
	orderManager := oms.NewOrderManager(riskEngine, mds, logger.Named("oms"))

	// 4. Strategies.
	meanRevAAPL := strategy.NewMeanReversionStrategy("MeanRevAAPL", "AAPL", 20, 2.0, 10, logger.Named("meanrev-aapl"))
	momentumSPY, err := strategy.NewMomentumStrategy("MomentumSPY", "SPY", 10, 30, 5, logger.Named("momentum-spy"))
	if err != nil {
		logger.Fatal("failed to construct momentum strategy", zap.Error(err))
	}

	strategies := []strategy.Strategy{meanRevAAPL, momentumSPY}
	for _, s := range strategies {
		s.Init(orderManager, mds)
	}

	mds.SetMarketDataCallback(func(tick hpts.Tick) {
		for _, s := range strategies {
			dispatchTick(logger, s, tick)
		}
	})
	orderManager.SetExecutionReportCallback(func(report hpts.ExecutionReport) {
		logger.Info("execution report",
			zap.Uint64("order_id", report.OrderID),
			zap.String("client_order_id", report.ClientOrderID),
			zap.String("instrument_id", report.InstrumentID),
			zap.String("status", report.Status.String()),
			zap.Int64("filled_quantity", report.FilledQuantity),
			zap.String("average_filled_price", report.AverageFilledPrice.String()),
			zap.String("reject_reason", report.RejectReason),
		)
		for _, s := range strategies {
			dispatchReport(logger, s, report)
		}
	})

	// 5. Start strategies; each subscribes itself to market data on start.
	for _, s := range strategies {
		s.Start()
	}
	logger.Info("strategies running", zap.Int("run_seconds", cfg.RunSeconds))

	time.Sleep(time.Duration(cfg.RunSeconds) * time.Second)

	// 6. Teardown in reverse construction order.
	for _, s := range strategies {
		s.Stop()
	}
	mds.Stop()
	logger.Info("simulator stopped")
}

// dispatchTick and dispatchReport isolate one strategy's callback from
// its siblings: a panic in one strategy's handler is logged and does not
// prevent the others in the fan-out from being notified.
func dispatchTick(logger *zap.Logger, s strategy.Strategy, tick hpts.Tick) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("strategy tick handler panicked", zap.String("strategy", s.Name()), zap.Any("panic", r))
		}
	}()
	s.OnMarketData(tick)
}

func dispatchReport(logger *zap.Logger, s strategy.Strategy, report hpts.ExecutionReport) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("strategy execution report handler panicked", zap.String("strategy", s.Name()), zap.Any("panic", r))
		}
	}()
	s.OnExecutionReport(report)
}
