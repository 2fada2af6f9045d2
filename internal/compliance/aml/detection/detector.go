package detection

import (
	"sort"
	"time"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
	"github.com/shopspring/decimal"
)

// Detector inspects a user's trade window for one typology. Implementations
// are pure: same window in, same patterns out.
type Detector interface {
	Reason() aml.ActivityReason
	Detect(w *Window) []aml.DetectedPattern
}

// PriorTradeDetector is implemented by detectors that need the last settled
// trade before the window. The engine only loads it when one is registered.
type PriorTradeDetector interface {
	Detector
	NeedsPriorTrade() bool
}

// Window is the shared detector input for one user and one scan
type Window struct {
	UserID string
	Now    time.Time
	Since  time.Time
	// Trades holds settled trades created at or after Since, ascending.
	Trades []aml.Trade
	// PriorTrade is the most recent settled trade before Since, nil for new accounts.
	PriorTrade *aml.Trade
}

// TradesSince returns the suffix of Trades created at or after t
func (w *Window) TradesSince(t time.Time) []aml.Trade {
	i := sort.Search(len(w.Trades), func(i int) bool {
		return !w.Trades[i].CreatedAt.Before(t)
	})
	return w.Trades[i:]
}

func tradeIDs(trades []aml.Trade) []string {
	ids := make([]string, len(trades))
	for i, t := range trades {
		ids[i] = t.ID
	}
	return ids
}

func sumValue(trades []aml.Trade) decimal.Decimal {
	total := decimal.Zero
	for _, t := range trades {
		total = total.Add(t.TotalValueUSD)
	}
	return total
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// DefaultDetectors returns the reference detector set
func DefaultDetectors(cfg aml.DetectionConfig) []Detector {
	return []Detector{
		NewVelocityDetector(cfg.Velocity),
		NewLargeTransactionDetector(cfg.LargeTransaction),
		NewStructuringDetector(cfg.Structuring),
		NewRapidMovementDetector(cfg.RapidMovement),
		NewDormantAccountDetector(cfg.DormantAccount),
	}
}
