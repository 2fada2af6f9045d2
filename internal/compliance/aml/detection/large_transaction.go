package detection

import (
	"fmt"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
)

// LargeTransactionDetector emits one candidate per trade at or above the reporting threshold
type LargeTransactionDetector struct {
	cfg aml.LargeTransactionConfig
}

func NewLargeTransactionDetector(cfg aml.LargeTransactionConfig) *LargeTransactionDetector {
	return &LargeTransactionDetector{cfg: cfg}
}

func (d *LargeTransactionDetector) Reason() aml.ActivityReason { return aml.ReasonLargeTransaction }

func (d *LargeTransactionDetector) Detect(w *Window) []aml.DetectedPattern {
	var out []aml.DetectedPattern
	for _, t := range w.Trades {
		if t.TotalValueUSD.LessThan(d.cfg.Threshold) {
			continue
		}
		out = append(out, aml.DetectedPattern{
			Reason:    aml.ReasonLargeTransaction,
			RiskScore: d.cfg.RiskScore,
			Description: fmt.Sprintf("single %s trade of %s USD meets the %s USD reporting threshold",
				t.Side, t.TotalValueUSD.StringFixed(2), d.cfg.Threshold.StringFixed(2)),
			Evidence: aml.Evidence{
				"trade_id":      t.ID,
				"side":          string(t.Side),
				"amount_usd":    t.TotalValueUSD.StringFixed(2),
				"threshold_usd": d.cfg.Threshold.StringFixed(2),
				"executed_at":   formatTime(t.CreatedAt),
			},
			RelatedTradeIDs: []string{t.ID},
			TotalValueUSD:   t.TotalValueUSD,
		})
	}
	return out
}
