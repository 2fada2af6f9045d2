package aml

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ActivityReason is the money-laundering typology that raised a flag
type ActivityReason string

const (
	ReasonHighVelocity        ActivityReason = "HIGH_VELOCITY"
	ReasonLargeTransaction    ActivityReason = "LARGE_TRANSACTION"
	ReasonStructuring         ActivityReason = "STRUCTURING"
	ReasonRapidFundMovement   ActivityReason = "RAPID_FUND_MOVEMENT"
	ReasonDormantAccountSpike ActivityReason = "DORMANT_ACCOUNT_SPIKE"

	// Reserved for future detectors.
	ReasonRoundTrip    ActivityReason = "ROUND_TRIP"
	ReasonLayering     ActivityReason = "LAYERING"
	ReasonSmurfing     ActivityReason = "SMURFING"
	ReasonUnusualHours ActivityReason = "UNUSUAL_HOURS"
	ReasonGeoAnomaly   ActivityReason = "GEO_ANOMALY"
)

var knownReasons = map[ActivityReason]struct{}{
	ReasonHighVelocity:        {},
	ReasonLargeTransaction:    {},
	ReasonStructuring:         {},
	ReasonRapidFundMovement:   {},
	ReasonDormantAccountSpike: {},
	ReasonRoundTrip:           {},
	ReasonLayering:            {},
	ReasonSmurfing:            {},
	ReasonUnusualHours:        {},
	ReasonGeoAnomaly:          {},
}

// Valid reports whether r belongs to the closed reason enumeration
func (r ActivityReason) Valid() bool {
	_, ok := knownReasons[r]
	return ok
}

// ParseActivityReason parses a reason name, case-insensitively
func ParseActivityReason(s string) (ActivityReason, error) {
	r := ActivityReason(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown reason %q", ErrInvalidArgument, s)
	}
	return r, nil
}

// ActivityStatus is the review lifecycle state of a SuspiciousActivity
type ActivityStatus string

const (
	StatusOpen        ActivityStatus = "OPEN"
	StatusUnderReview ActivityStatus = "UNDER_REVIEW"
	StatusSarFiled    ActivityStatus = "SAR_FILED"
	StatusDismissed   ActivityStatus = "DISMISSED"
	StatusEscalated   ActivityStatus = "ESCALATED"
)

// manualTransitions lists the moves a reviewer may make through UpdateStatus.
// SAR_FILED is only reachable through SAR generation so a reference is always issued.
var manualTransitions = map[ActivityStatus][]ActivityStatus{
	StatusOpen:        {StatusUnderReview, StatusEscalated},
	StatusUnderReview: {StatusDismissed, StatusEscalated},
}

// Valid reports whether s is a recognised status
func (s ActivityStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusUnderReview, StatusSarFiled, StatusDismissed, StatusEscalated:
		return true
	}
	return false
}

// IsActive reports whether the record still counts as an open case for deduplication
func (s ActivityStatus) IsActive() bool {
	return s == StatusOpen || s == StatusUnderReview
}

// IsTerminal reports whether no further transition is possible inside this engine
func (s ActivityStatus) IsTerminal() bool {
	return s == StatusSarFiled || s == StatusDismissed || s == StatusEscalated
}

// CanTransitionTo reports whether a reviewer may move a record from s to next
func (s ActivityStatus) CanTransitionTo(next ActivityStatus) bool {
	for _, allowed := range manualTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseActivityStatus parses a status name. Unknown names are an invalid state request.
func ParseActivityStatus(s string) (ActivityStatus, error) {
	st := ActivityStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unrecognized status %q", ErrInvalidState, s)
	}
	return st, nil
}

// TradeSide is the direction of a settled trade
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// TradeStatusSettled is the only trade status visible to detectors
const TradeStatusSettled = "SETTLED"

// Trade is the read-only view of a settled trade supplied by the trade history reader
type Trade struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Side          TradeSide       `json:"side"`
	TotalValueUSD decimal.Decimal `json:"total_value_usd"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Evidence is the detector-specific payload explaining why a flag fired
type Evidence map[string]interface{}

// UnmarshalJSON keeps numbers as json.Number so integer evidence such as
// trade counts reads back without turning into float64.
func (e *Evidence) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return err
	}
	*e = m
	return nil
}

// DetectedPattern is a candidate flag produced by one detector invocation. It is
// never persisted as such; it becomes a SuspiciousActivity if it survives deduplication.
type DetectedPattern struct {
	Reason          ActivityReason  `json:"reason"`
	RiskScore       int             `json:"risk_score"`
	Description     string          `json:"description"`
	Evidence        Evidence        `json:"evidence"`
	RelatedTradeIDs []string        `json:"related_trade_ids"`
	TotalValueUSD   decimal.Decimal `json:"total_value_usd"`
}

// SuspiciousActivity is the persisted compliance record. Records are never deleted.
type SuspiciousActivity struct {
	ID              string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID          string          `json:"user_id" gorm:"type:varchar(64);not null;index;index:idx_aml_activity_dedup,priority:1"`
	Reason          ActivityReason  `json:"reason" gorm:"type:varchar(32);not null;index:idx_aml_activity_dedup,priority:2"`
	Status          ActivityStatus  `json:"status" gorm:"type:varchar(20);not null;index;index:idx_aml_activity_dedup,priority:3"`
	RiskScore       int             `json:"risk_score" gorm:"not null"`
	Description     string          `json:"description" gorm:"type:text"`
	Evidence        Evidence        `json:"evidence" gorm:"type:text;serializer:json"`
	RelatedTradeIDs []string        `json:"related_trade_ids" gorm:"type:text;serializer:json"`
	TotalValueUSD   decimal.Decimal `json:"total_value_usd" gorm:"column:total_value_usd;type:decimal(18,2);not null"`
	SarReference    *string         `json:"sar_reference,omitempty" gorm:"type:varchar(32);uniqueIndex"`
	ReviewNotes     *string         `json:"review_notes,omitempty" gorm:"type:text"`
	ReviewedBy      *string         `json:"reviewed_by,omitempty" gorm:"type:varchar(64)"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at" gorm:"<-:create;not null;index;index:idx_aml_activity_dedup,priority:4"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"not null"`
}

// TableName pins the table name used by the activity store
func (SuspiciousActivity) TableName() string { return "aml_suspicious_activities" }

// ActivityUpdate is the set of mutable fields written by a lifecycle transition.
// Nil pointers leave the stored value untouched.
type ActivityUpdate struct {
	Status       ActivityStatus
	SarReference *string
	ReviewedBy   *string
	ReviewedAt   *time.Time
	ReviewNotes  *string
	UpdatedAt    time.Time
}

// ActivityFilter selects activities in ActivityStore.Find. Zero values mean "any".
type ActivityFilter struct {
	Status       ActivityStatus
	UserID       string
	Reason       ActivityReason
	From         time.Time
	To           time.Time
	MinRiskScore int
	Limit        int
}

// SarReport is the immutable snapshot returned when an activity is filed
type SarReport struct {
	ActivityID      string          `json:"activity_id"`
	SarReference    string          `json:"sar_reference"`
	UserID          string          `json:"user_id"`
	Reason          ActivityReason  `json:"reason"`
	RiskScore       int             `json:"risk_score"`
	Description     string          `json:"description"`
	TotalValueUSD   decimal.Decimal `json:"total_value_usd"`
	RelatedTradeIDs []string        `json:"related_trade_ids"`
	Evidence        Evidence        `json:"evidence"`
	DetectedAt      time.Time       `json:"detected_at"`
	FiledAt         time.Time       `json:"filed_at"`
}

// NewSarReport snapshots a filed activity. Slices and maps are copied so later
// changes to the activity cannot leak into the report.
func NewSarReport(a *SuspiciousActivity, reference string, filedAt time.Time) *SarReport {
	ids := make([]string, len(a.RelatedTradeIDs))
	copy(ids, a.RelatedTradeIDs)
	ev := make(Evidence, len(a.Evidence))
	for k, v := range a.Evidence {
		ev[k] = v
	}
	return &SarReport{
		ActivityID:      a.ID,
		SarReference:    reference,
		UserID:          a.UserID,
		Reason:          a.Reason,
		RiskScore:       a.RiskScore,
		Description:     a.Description,
		TotalValueUSD:   a.TotalValueUSD,
		RelatedTradeIDs: ids,
		Evidence:        ev,
		DetectedAt:      a.CreatedAt,
		FiledAt:         filedAt,
	}
}

// ScanSummary is the result of scanning one user
type ScanSummary struct {
	UserID            string `json:"user_id"`
	PatternsDetected  int    `json:"patterns_detected"`
	ActivitiesCreated int    `json:"activities_created"`
	HighestRiskScore  int    `json:"highest_risk_score"`
}
