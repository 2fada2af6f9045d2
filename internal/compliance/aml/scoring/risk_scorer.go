package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
)

// ActivityFinder is the slice of the activity store the scorer reads
type ActivityFinder interface {
	Find(ctx context.Context, filter aml.ActivityFilter) ([]*aml.SuspiciousActivity, error)
}

// RiskScorer derives a 0-100 user risk score from open activities, weighting
// recent flags more heavily than old ones.
type RiskScorer struct {
	store ActivityFinder
	cfg   aml.ScoringConfig
	now   func() time.Time
}

func NewRiskScorer(store ActivityFinder, cfg aml.ScoringConfig, now func() time.Time) *RiskScorer {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &RiskScorer{store: store, cfg: cfg, now: now}
}

// UserRiskScore returns the decayed mean risk score of the user's OPEN activities.
// Activities under review or closed do not contribute.
func (s *RiskScorer) UserRiskScore(ctx context.Context, userID string) (int, error) {
	open, err := s.store.Find(ctx, aml.ActivityFilter{UserID: userID, Status: aml.StatusOpen})
	if err != nil {
		return 0, fmt.Errorf("load open activities for %s: %w", userID, err)
	}
	return Score(open, s.now(), s.cfg), nil
}

// Score is the pure scoring function behind UserRiskScore
func Score(activities []*aml.SuspiciousActivity, now time.Time, cfg aml.ScoringConfig) int {
	if len(activities) == 0 {
		return 0
	}
	var total float64
	for _, a := range activities {
		total += float64(a.RiskScore) * DecayWeight(now.Sub(a.CreatedAt), cfg)
	}
	score := int(math.Round(total / float64(len(activities))))
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

// DecayWeight falls linearly from 1 at age zero to the floor at the decay
// horizon and stays there.
func DecayWeight(age time.Duration, cfg aml.ScoringConfig) float64 {
	if age <= 0 {
		return 1
	}
	w := 1 - age.Hours()/cfg.DecayHorizon.Hours()
	return math.Max(cfg.DecayFloor, w)
}
