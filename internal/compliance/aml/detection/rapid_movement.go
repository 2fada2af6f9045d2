package detection

import (
	"fmt"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
	"github.com/shopspring/decimal"
)

// RapidMovementDetector flags funds that move in and straight back out
type RapidMovementDetector struct {
	cfg aml.RapidMovementConfig
}

func NewRapidMovementDetector(cfg aml.RapidMovementConfig) *RapidMovementDetector {
	return &RapidMovementDetector{cfg: cfg}
}

func (d *RapidMovementDetector) Reason() aml.ActivityReason { return aml.ReasonRapidFundMovement }

func (d *RapidMovementDetector) Detect(w *Window) []aml.DetectedPattern {
	recent := w.TradesSince(w.Now.Add(-d.cfg.Window))

	buys, sells := decimal.Zero, decimal.Zero
	var buyCount, sellCount int
	for _, t := range recent {
		switch t.Side {
		case aml.SideBuy:
			buys = buys.Add(t.TotalValueUSD)
			buyCount++
		case aml.SideSell:
			sells = sells.Add(t.TotalValueUSD)
			sellCount++
		}
	}
	if !buys.GreaterThan(d.cfg.MinSideValue) || !sells.GreaterThan(d.cfg.MinSideValue) {
		return nil
	}

	// the round-tripped amount is bounded by the smaller side
	moved := decimal.Min(buys, sells)
	return []aml.DetectedPattern{{
		Reason:    aml.ReasonRapidFundMovement,
		RiskScore: d.cfg.RiskScore,
		Description: fmt.Sprintf("bought %s USD and sold %s USD within %s",
			buys.StringFixed(2), sells.StringFixed(2), d.cfg.Window),
		Evidence: aml.Evidence{
			"buy_total_usd":  buys.StringFixed(2),
			"sell_total_usd": sells.StringFixed(2),
			"buy_count":      buyCount,
			"sell_count":     sellCount,
			"window":         d.cfg.Window.String(),
		},
		RelatedTradeIDs: tradeIDs(recent),
		TotalValueUSD:   moved,
	}}
}
