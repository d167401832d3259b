package hpts

import "testing"

func TestOrderStatusIsTerminal(t *testing.T) {
	terminal := []OrderStatus{Filled, Rejected, Cancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	nonTerminal := []OrderStatus{New, Acknowledged, PartiallyFilled}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestOrderSideString(t *testing.T) {
	if Buy.String() != "BUY" {
		t.Errorf("got %s, want BUY", Buy.String())
	}
	if Sell.String() != "SELL" {
		t.Errorf("got %s, want SELL", Sell.String())
	}
}

func TestTickTypeString(t *testing.T) {
	cases := map[TickType]string{
		TickBidUpdate: "BID_UPDATE",
		TickAskUpdate: "ASK_UPDATE",
		TickTrade:     "TRADE",
	}
	for tt, want := range cases {
		if got := tt.String(); got != want {
			t.Errorf("got %s, want %s", got, want)
		}
	}
}
