// Package riskengine implements the centralized pre-trade risk checks and
// post-fill state tracking that every order passes through before and
// after it is simulated by the order manager.
package riskengine

import (
	"sync"

	"go.uber.org/zap"

	"hpts-sim"
)

// RiskCheckResult is the closed set of outcomes check_order_pre_send can
// produce. The zero value is Approved.
type RiskCheckResult int

const (
	Approved RiskCheckResult = iota
	RejectedMaxOrderSize
	RejectedInstrumentNotAllowed
	RejectedMaxDailyVolumeInstrument
	RejectedMaxOpenContractsInstrument
	RejectedMaxOpenContractsTotal
)

func (r RiskCheckResult) String() string {
	switch r {
	case Approved:
		return "APPROVED"
	case RejectedMaxOrderSize:
		return "REJECTED_MAX_ORDER_SIZE"
	case RejectedInstrumentNotAllowed:
		return "REJECTED_INSTRUMENT_NOT_ALLOWED"
	case RejectedMaxDailyVolumeInstrument:
		return "REJECTED_MAX_DAILY_VOLUME_INSTRUMENT"
	case RejectedMaxOpenContractsInstrument:
		return "REJECTED_MAX_OPEN_CONTRACTS_INSTRUMENT"
	case RejectedMaxOpenContractsTotal:
		return "REJECTED_MAX_OPEN_CONTRACTS_TOTAL"
	default:
		return "REJECTED_UNKNOWN"
	}
}

// IsApproved reports whether the result permits the order to proceed.
func (r RiskCheckResult) IsApproved() bool { return r == Approved }

// RiskConfig is the literal the host constructs and hands to
// LoadConfiguration. An empty AllowedInstruments set means "allow all".
type RiskConfig struct {
	MaxOrderSize                          int64
	MaxOpenContractsPerInstrument         int64
	MaxTotalContractsAcrossAllInstruments int64
	MaxDailyVolumePerInstrument           int64
	AllowedInstruments                    map[string]struct{}
}

func (c RiskConfig) isInstrumentAllowed(instrumentID string) bool {
	if len(c.AllowedInstruments) == 0 {
		return true
	}
	_, ok := c.AllowedInstruments[instrumentID]
	return ok
}

// InstrumentRiskState mirrors one instrument's contribution to the
// aggregate exposure and its daily turnover.
type InstrumentRiskState struct {
	NetPosition       int64
	DailyTradedVolume int64
}

// RiskEngine holds configuration and per-instrument state behind a single
// leaf mutex; it is never held while any other lock in this repo is held.
type RiskEngine struct {
	mu        sync.Mutex
	config    RiskConfig
	states    map[string]*InstrumentRiskState
	aggregate int64
	logger    *zap.Logger
}

// NewRiskEngine constructs an engine with a zero-value RiskConfig until
// LoadConfiguration is called; under that config every order with a
// positive quantity is rejected by the max-order-size check.
// A nil logger is replaced with a no-op one.
func NewRiskEngine(logger *zap.Logger) *RiskEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RiskEngine{
		states: make(map[string]*InstrumentRiskState),
		logger: logger,
	}
}

// LoadConfiguration replaces the active config atomically. Accumulated
// per-instrument state and the aggregate are preserved across reloads.
func (r *RiskEngine) LoadConfiguration(cfg RiskConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = cfg
	r.logger.Info("risk configuration loaded",
		zap.Int64("max_order_size", cfg.MaxOrderSize),
		zap.Int64("max_open_contracts_per_instrument", cfg.MaxOpenContractsPerInstrument),
		zap.Int64("max_total_contracts_across_all_instruments", cfg.MaxTotalContractsAcrossAllInstruments),
		zap.Int64("max_daily_volume_per_instrument", cfg.MaxDailyVolumePerInstrument),
	)
}

func (r *RiskEngine) stateLocked(instrumentID string) *InstrumentRiskState {
	s, ok := r.states[instrumentID]
	if !ok {
		s = &InstrumentRiskState{}
		r.states[instrumentID] = s
	}
	return s
}

func signedDelta(side hpts.OrderSide, quantity int64) int64 {
	if side == hpts.Sell {
		return -quantity
	}
	return quantity
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// CheckOrderPreSend runs the fixed-order pre-trade checks against intent
// and the order manager's authoritative view of the instrument's current
// position.
func (r *RiskEngine) CheckOrderPreSend(intent hpts.OrderIntent, currentPosition hpts.Position) RiskCheckResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if intent.Quantity > r.config.MaxOrderSize {
		return RejectedMaxOrderSize
	}
	if !r.config.isInstrumentAllowed(intent.InstrumentID) {
		return RejectedInstrumentNotAllowed
	}

	state := r.stateLocked(intent.InstrumentID)

	if state.DailyTradedVolume+intent.Quantity > r.config.MaxDailyVolumePerInstrument {
		return RejectedMaxDailyVolumeInstrument
	}

	potentialInstrNet := currentPosition.Quantity + signedDelta(intent.Side, intent.Quantity)
	if absInt64(potentialInstrNet) > r.config.MaxOpenContractsPerInstrument {
		return RejectedMaxOpenContractsInstrument
	}

	potentialNet := state.NetPosition + signedDelta(intent.Side, intent.Quantity)
	potentialTotal := r.aggregate - absInt64(state.NetPosition) + absInt64(potentialNet)
	if potentialTotal > r.config.MaxTotalContractsAcrossAllInstruments {
		return RejectedMaxOpenContractsTotal
	}

	return Approved
}

// UpdateOnFill folds a fill into the instrument's running state and
// maintains the cross-instrument aggregate incrementally. Reports that
// carry no fill (rejections, pure acknowledgements, cancellations) are
// no-ops.
func (r *RiskEngine) UpdateOnFill(report hpts.ExecutionReport, side hpts.OrderSide) {
	if report.Status != hpts.Filled && report.Status != hpts.PartiallyFilled {
		return
	}
	if report.FilledQuantity <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state := r.stateLocked(report.InstrumentID)
	oldAbs := absInt64(state.NetPosition)

	state.DailyTradedVolume += report.FilledQuantity
	state.NetPosition += signedDelta(side, report.FilledQuantity)

	newAbs := absInt64(state.NetPosition)
	r.aggregate += newAbs - oldAbs
}

// RecomputeAggregate sums |net_position| across every tracked instrument
// from scratch. It exists as a consistency check against the incremental
// aggregate maintained by UpdateOnFill and does not mutate state.
func (r *RiskEngine) RecomputeAggregate() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total int64
	for _, s := range r.states {
		total += absInt64(s.NetPosition)
	}
	return total
}

// InstrumentState returns a copy of the tracked state for instrumentID,
// or the zero value if nothing has traded on it yet.
func (r *RiskEngine) InstrumentState(instrumentID string) InstrumentRiskState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[instrumentID]; ok {
		return *s
	}
	return InstrumentRiskState{}
}
