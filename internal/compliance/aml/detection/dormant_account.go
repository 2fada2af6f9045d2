package detection

import (
	"fmt"
	"math"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
)

// DormantAccountDetector flags a sudden high-value burst after a long silence.
// Accounts with no trading history before the window are never flagged.
type DormantAccountDetector struct {
	cfg aml.DormantAccountConfig
}

func NewDormantAccountDetector(cfg aml.DormantAccountConfig) *DormantAccountDetector {
	return &DormantAccountDetector{cfg: cfg}
}

func (d *DormantAccountDetector) Reason() aml.ActivityReason { return aml.ReasonDormantAccountSpike }

func (d *DormantAccountDetector) NeedsPriorTrade() bool { return true }

func (d *DormantAccountDetector) Detect(w *Window) []aml.DetectedPattern {
	if w.PriorTrade == nil || len(w.Trades) == 0 {
		return nil
	}

	gap := w.Trades[0].CreatedAt.Sub(w.PriorTrade.CreatedAt)
	if gap <= d.cfg.DormancyPeriod {
		return nil
	}
	total := sumValue(w.Trades)
	if !total.GreaterThan(d.cfg.MinWindowValue) {
		return nil
	}

	days := int(math.Floor(gap.Hours() / 24))
	return []aml.DetectedPattern{{
		Reason:    aml.ReasonDormantAccountSpike,
		RiskScore: d.cfg.RiskScore,
		Description: fmt.Sprintf("%s USD traded after %d days of inactivity",
			total.StringFixed(2), days),
		Evidence: aml.Evidence{
			"dormant_days":     days,
			"last_activity_at": formatTime(w.PriorTrade.CreatedAt),
			"resumed_at":       formatTime(w.Trades[0].CreatedAt),
			"window_value_usd": total.StringFixed(2),
			"trade_count":      len(w.Trades),
		},
		RelatedTradeIDs: tradeIDs(w.Trades),
		TotalValueUSD:   total,
	}}
}
