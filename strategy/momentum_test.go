package strategy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"hpts-sim"
)

func TestNewMomentumStrategy_RejectsShortGreaterOrEqualLong(t *testing.T) {
	_, err := NewMomentumStrategy("bad", "SPY", 10, 10, 5, nil)
	require.Error(t, err)

	_, err = NewMomentumStrategy("bad", "SPY", 30, 10, 5, nil)
	require.Error(t, err)

	_, err = NewMomentumStrategy("ok", "SPY", 10, 30, 5, nil)
	require.NoError(t, err)
}

func TestMomentumStrategy_FirstTwoEvaluationsNeverTrade(t *testing.T) {
	s, err := NewMomentumStrategy("MomentumSPY", "SPY", 2, 3, 5, nil)
	require.NoError(t, err)
	sender := &fakeOrderSender{strategy: s}
	sub := &fakeSubscriber{}
	s.Init(sender, sub)
	s.Start()

	// Long window fills on the 3rd tick: first evaluation (short 98.5,
	// long 99). The 4th tick is the second evaluation (short 104, long
	// 102.33), a bullish crossover against the first. Neither trades.
	for _, px := range []float64{100, 99, 98, 110} {
		s.OnMarketData(tradeTick("SPY", px))
	}
	require.Empty(t, sender.sent)
}

func TestMomentumStrategy_OpensOnBullishCrossover(t *testing.T) {
	s, err := NewMomentumStrategy("MomentumSPY", "SPY", 2, 3, 5, nil)
	require.NoError(t, err)
	sender := &fakeOrderSender{strategy: s}
	sub := &fakeSubscriber{}
	s.Init(sender, sub)
	s.Start()

	// A descending-then-ascending run drives the short SMA from below the
	// long SMA to above it.
	prices := []float64{100, 99, 98, 97, 105, 120}
	for _, px := range prices {
		s.OnMarketData(tradeTick("SPY", px))
	}
	require.NotEmpty(t, sender.sent)
	require.Equal(t, hpts.Buy, sender.sent[len(sender.sent)-1].Side)
}

func TestMomentumStrategy_StartRefusesWhenInvalid(t *testing.T) {
	s := &MomentumStrategy{name: "invalid", instrumentID: "SPY", valid: false}
	sender := &fakeOrderSender{strategy: s}
	sub := &fakeSubscriber{}
	s.Init(sender, sub)

	s.Start()
	require.Empty(t, sub.subscribed, "an invalid strategy must never subscribe or trade")
}

func TestMomentumStrategy_IgnoresOtherInstruments(t *testing.T) {
	s, err := NewMomentumStrategy("MomentumSPY", "SPY", 2, 3, 5, nil)
	require.NoError(t, err)
	sender := &fakeOrderSender{strategy: s}
	sub := &fakeSubscriber{}
	s.Init(sender, sub)
	s.Start()

	for _, px := range []float64{100, 99, 98, 97, 105, 120} {
		s.OnMarketData(tradeTick("AAPL", px))
	}
	require.Empty(t, sender.sent)
}
