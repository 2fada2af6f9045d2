package detection

import (
	"fmt"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
)

// VelocityDetector flags bursts of trades inside a short window
type VelocityDetector struct {
	cfg aml.VelocityConfig
}

func NewVelocityDetector(cfg aml.VelocityConfig) *VelocityDetector {
	return &VelocityDetector{cfg: cfg}
}

func (d *VelocityDetector) Reason() aml.ActivityReason { return aml.ReasonHighVelocity }

func (d *VelocityDetector) Detect(w *Window) []aml.DetectedPattern {
	recent := w.TradesSince(w.Now.Add(-d.cfg.Window))
	if len(recent) < d.cfg.MinTrades {
		return nil
	}

	first, last := recent[0], recent[len(recent)-1]
	return []aml.DetectedPattern{{
		Reason:    aml.ReasonHighVelocity,
		RiskScore: d.cfg.RiskScore,
		Description: fmt.Sprintf("%d settled trades within %s (threshold %d)",
			len(recent), d.cfg.Window, d.cfg.MinTrades),
		Evidence: aml.Evidence{
			"trade_count":    len(recent),
			"window":         d.cfg.Window.String(),
			"threshold":      d.cfg.MinTrades,
			"first_trade_at": formatTime(first.CreatedAt),
			"last_trade_at":  formatTime(last.CreatedAt),
		},
		RelatedTradeIDs: tradeIDs(recent),
		TotalValueUSD:   sumValue(recent),
	}}
}
