package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
	"github.com/Aidin1998/amlwatch/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFinder struct {
	activities []*aml.SuspiciousActivity
	filter     aml.ActivityFilter
	err        error
}

func (f *stubFinder) Find(_ context.Context, filter aml.ActivityFilter) ([]*aml.SuspiciousActivity, error) {
	f.filter = filter
	return f.activities, f.err
}

func activity(score int, age time.Duration) *aml.SuspiciousActivity {
	return &aml.SuspiciousActivity{RiskScore: score, Status: aml.StatusOpen, CreatedAt: testutil.Now.Add(-age)}
}

func TestDecayWeight(t *testing.T) {
	cfg := aml.DefaultConfig().Scoring
	assert.Equal(t, 1.0, DecayWeight(0, cfg))
	assert.InDelta(t, 0.5, DecayWeight(84*time.Hour, cfg), 1e-9)
	assert.InDelta(t, 0.1, DecayWeight(160*time.Hour, cfg), 1e-9)
	assert.Equal(t, 0.1, DecayWeight(30*24*time.Hour, cfg))
	// clock skew never inflates a score
	assert.Equal(t, 1.0, DecayWeight(-time.Hour, cfg))
}

func TestScore(t *testing.T) {
	cfg := aml.DefaultConfig().Scoring

	assert.Equal(t, 0, Score(nil, testutil.Now, cfg))

	// fresh 80 and half-decayed 60 → (80 + 30) / 2
	got := Score([]*aml.SuspiciousActivity{activity(80, 0), activity(60, 84*time.Hour)}, testutil.Now, cfg)
	assert.Equal(t, 55, got)

	// long-dead flag floors at 10% of its score
	got = Score([]*aml.SuspiciousActivity{activity(85, 60*24*time.Hour)}, testutil.Now, cfg)
	assert.Equal(t, 9, got)
}

func TestUserRiskScoreOnlyReadsOpenActivities(t *testing.T) {
	finder := &stubFinder{activities: []*aml.SuspiciousActivity{activity(90, 0)}}
	s := NewRiskScorer(finder, aml.DefaultConfig().Scoring, testutil.Clock(testutil.Now))

	score, err := s.UserRiskScore(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 90, score)
	assert.Equal(t, aml.StatusOpen, finder.filter.Status)
	assert.Equal(t, "u1", finder.filter.UserID)
}

func TestUserRiskScoreNoActivities(t *testing.T) {
	s := NewRiskScorer(&stubFinder{}, aml.DefaultConfig().Scoring, testutil.Clock(testutil.Now))
	score, err := s.UserRiskScore(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestUserRiskScoreStoreFailure(t *testing.T) {
	s := NewRiskScorer(&stubFinder{err: errors.New("db down")}, aml.DefaultConfig().Scoring, testutil.Clock(testutil.Now))
	_, err := s.UserRiskScore(context.Background(), "u1")
	assert.Error(t, err)
}
