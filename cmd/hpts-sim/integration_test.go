package main

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hpts-sim/marketdata"
	"hpts-sim/oms"
	"hpts-sim/riskengine"
	"hpts-sim/strategy"

	hpts "hpts-sim"
)

// TestCompleteSystem wires the same components main() does, at a fast
// tick rate and for a short duration, and checks that ticks reach the
// strategy fan-out and that the run shuts down without deadlocking.
// Execution reports are counted but not asserted on, since whether a
// strategy signals in so short a run depends on the random prices.
func TestCompleteSystem(t *testing.T) {
	mds := marketdata.NewMockMarketDataSource(200, nil)
	mds.Subscribe("AAPL")
	mds.Subscribe("SPY")
	mds.Start()
	time.Sleep(20 * time.Millisecond)

	risk := riskengine.NewRiskEngine(nil)
	risk.LoadConfiguration(riskengine.RiskConfig{
		MaxOrderSize:                          1000,
		MaxOpenContractsPerInstrument:         500,
		MaxTotalContractsAcrossAllInstruments: 20000,
		MaxDailyVolumePerInstrument:           2000,
		AllowedInstruments:                    map[string]struct{}{"AAPL": {}, "SPY": {}, "MSFT": {}},
	})
	orderManager := oms.NewOrderManager(risk, mds, nil)

	meanRevAAPL := strategy.NewMeanReversionStrategy("MeanRevAAPL", "AAPL", 5, 1.0, 10, nil)
	momentumSPY, err := strategy.NewMomentumStrategy("MomentumSPY", "SPY", 3, 8, 5, nil)
	require.NoError(t, err)
	strategies := []strategy.Strategy{meanRevAAPL, momentumSPY}
	for _, s := range strategies {
		s.Init(orderManager, mds)
	}

	var mu sync.Mutex
	var tickCount, reportCount int

	mds.SetMarketDataCallback(func(tick hpts.Tick) {
		mu.Lock()
		tickCount++
		mu.Unlock()
		for _, s := range strategies {
			s.OnMarketData(tick)
		}
	})
	orderManager.SetExecutionReportCallback(func(report hpts.ExecutionReport) {
		mu.Lock()
		reportCount++
		mu.Unlock()
		for _, s := range strategies {
			s.OnExecutionReport(report)
		}
	})

	for _, s := range strategies {
		s.Start()
	}

	time.Sleep(300 * time.Millisecond)

	for _, s := range strategies {
		s.Stop()
	}
	mds.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Greater(t, tickCount, 0, "expected at least one tick to flow through the pipeline")
}
