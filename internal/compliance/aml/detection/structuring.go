package detection

import (
	"fmt"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
)

// StructuringDetector flags many sub-threshold trades that add up to a
// reportable amount.
type StructuringDetector struct {
	cfg aml.StructuringConfig
}

func NewStructuringDetector(cfg aml.StructuringConfig) *StructuringDetector {
	return &StructuringDetector{cfg: cfg}
}

func (d *StructuringDetector) Reason() aml.ActivityReason { return aml.ReasonStructuring }

func (d *StructuringDetector) Detect(w *Window) []aml.DetectedPattern {
	var small []aml.Trade
	for _, t := range w.TradesSince(w.Now.Add(-d.cfg.Window)) {
		if t.TotalValueUSD.IsPositive() && t.TotalValueUSD.LessThanOrEqual(d.cfg.SingleTradeCeiling) {
			small = append(small, t)
		}
	}
	if len(small) < d.cfg.MinTrades {
		return nil
	}

	total := sumValue(small)
	if total.LessThan(d.cfg.AggregateThreshold) {
		return nil
	}

	return []aml.DetectedPattern{{
		Reason:    aml.ReasonStructuring,
		RiskScore: d.cfg.RiskScore,
		Description: fmt.Sprintf("%d trades at or below %s USD totalling %s USD within %s",
			len(small), d.cfg.SingleTradeCeiling.StringFixed(2), total.StringFixed(2), d.cfg.Window),
		Evidence: aml.Evidence{
			"trade_count":             len(small),
			"total_usd":               total.StringFixed(2),
			"single_trade_ceiling":    d.cfg.SingleTradeCeiling.StringFixed(2),
			"aggregate_threshold_usd": d.cfg.AggregateThreshold.StringFixed(2),
			"window":                  d.cfg.Window.String(),
		},
		RelatedTradeIDs: tradeIDs(small),
		TotalValueUSD:   total,
	}}
}
