package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
	"github.com/Aidin1998/amlwatch/internal/compliance/aml/reporting"
	"github.com/Aidin1998/amlwatch/pkg/metrics"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("amlwatch/service")

// maxReviewNotes bounds the stored reviewer free text
const maxReviewNotes = 4000

// PatternDetector produces candidate patterns for one user
type PatternDetector interface {
	DetectForUser(ctx context.Context, userID string) ([]aml.DetectedPattern, error)
}

// UserScorer computes a user's current risk score
type UserScorer interface {
	UserRiskScore(ctx context.Context, userID string) (int, error)
}

// SarFiler files SARs
type SarFiler interface {
	GenerateSar(ctx context.Context, activityID string) (*aml.SarReport, error)
	AutoFile(ctx context.Context, threshold int) (*reporting.AutoFileResult, error)
}

// Service is the AML operations facade used by the scheduler and the HTTP API
type Service struct {
	detector    PatternDetector
	store       aml.ActivityStore
	scorer      UserScorer
	sars        SarFiler
	publisher   aml.EventPublisher
	sanitizer   *bluemonday.Policy
	dedupWindow time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// Deps groups the collaborators of a Service
type Deps struct {
	Detector    PatternDetector
	Store       aml.ActivityStore
	Scorer      UserScorer
	Sars        SarFiler
	Publisher   aml.EventPublisher
	DedupWindow time.Duration
	Now         func() time.Time
	Logger      *zap.Logger
}

func New(d Deps) *Service {
	s := &Service{
		detector:    d.Detector,
		store:       d.Store,
		scorer:      d.Scorer,
		sars:        d.Sars,
		publisher:   d.Publisher,
		sanitizer:   bluemonday.StrictPolicy(),
		dedupWindow: d.DedupWindow,
		now:         d.Now,
		logger:      d.Logger,
	}
	if s.publisher == nil {
		s.publisher = aml.NopPublisher{}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.dedupWindow <= 0 {
		s.dedupWindow = 24 * time.Hour
	}
	s.logger = s.logger.Named("aml")
	return s
}

// ScanUser runs detection for one user and persists the candidates that
// survive deduplication. HighestRiskScore covers every candidate, including
// suppressed duplicates.
func (s *Service) ScanUser(ctx context.Context, userID string) (*aml.ScanSummary, error) {
	ctx, span := tracer.Start(ctx, "service.ScanUser")
	defer span.End()
	span.SetAttributes(attribute.String("aml.user_id", userID))

	patterns, err := s.detector.DetectForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &aml.ScanSummary{UserID: userID, PatternsDetected: len(patterns)}
	for _, p := range patterns {
		if p.RiskScore > summary.HighestRiskScore {
			summary.HighestRiskScore = p.RiskScore
		}
	}

	created, err := s.persist(ctx, userID, patterns)
	summary.ActivitiesCreated = created
	if err != nil {
		return summary, err
	}

	if created > 0 {
		s.logger.Info("suspicious activity flagged",
			zap.String("user_id", userID),
			zap.Int("patterns", summary.PatternsDetected),
			zap.Int("created", created),
			zap.Int("highest_risk_score", summary.HighestRiskScore))
	}
	return summary, nil
}

// persist creates one OPEN activity per candidate unless an active case with
// the same user and reason was raised inside the dedup window.
func (s *Service) persist(ctx context.Context, userID string, patterns []aml.DetectedPattern) (int, error) {
	created := 0
	for _, p := range patterns {
		now := s.now()
		existing, err := s.store.FindActiveSince(ctx, userID, p.Reason, now.Add(-s.dedupWindow))
		if err != nil {
			return created, fmt.Errorf("dedup lookup for %s/%s: %w", userID, p.Reason, err)
		}
		if existing != nil {
			metrics.DuplicatesSuppressed.WithLabelValues(string(p.Reason)).Inc()
			s.logger.Debug("duplicate pattern suppressed",
				zap.String("user_id", userID),
				zap.String("reason", string(p.Reason)),
				zap.String("existing_id", existing.ID))
			continue
		}

		a := &aml.SuspiciousActivity{
			ID:              uuid.NewString(),
			UserID:          userID,
			Reason:          p.Reason,
			Status:          aml.StatusOpen,
			RiskScore:       p.RiskScore,
			Description:     p.Description,
			Evidence:        p.Evidence,
			RelatedTradeIDs: p.RelatedTradeIDs,
			TotalValueUSD:   p.TotalValueUSD,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.store.Create(ctx, a); err != nil {
			return created, err
		}
		created++
		metrics.ActivitiesCreated.WithLabelValues(string(p.Reason)).Inc()
		aml.PublishBestEffort(ctx, s.publisher, aml.NewActivityEvent(aml.EventActivityFlagged, a, now), s.logger)
	}
	return created, nil
}

// UpdateStatus records a reviewer decision. SAR_FILED is not reachable here;
// use GenerateSar so that a reference is issued.
func (s *Service) UpdateStatus(ctx context.Context, activityID, status, reviewerID string, notes *string) (*aml.SuspiciousActivity, error) {
	next, err := aml.ParseActivityStatus(status)
	if err != nil {
		return nil, err
	}
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		return nil, fmt.Errorf("%w: reviewer id is required", aml.ErrInvalidArgument)
	}

	current, err := s.store.Get(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if next == aml.StatusSarFiled {
		return nil, fmt.Errorf("%w: SAR_FILED is set by SAR generation only", aml.ErrInvalidTransition)
	}
	if !current.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: cannot move activity %s from %s to %s",
			aml.ErrInvalidTransition, activityID, current.Status, next)
	}

	now := s.now()
	update := aml.ActivityUpdate{
		Status:     next,
		ReviewedBy: &reviewerID,
		ReviewedAt: &now,
		UpdatedAt:  now,
	}
	if notes != nil {
		clean := s.sanitizeNotes(*notes)
		update.ReviewNotes = &clean
	}

	updated, err := s.store.UpdateIfStatus(ctx, activityID, current.Status, update)
	if err != nil {
		return nil, err
	}

	metrics.StatusTransitions.WithLabelValues(string(current.Status), string(next)).Inc()
	s.logger.Info("activity status changed",
		zap.String("activity_id", activityID),
		zap.String("from", string(current.Status)),
		zap.String("to", string(next)),
		zap.String("reviewer_id", reviewerID))

	ev := aml.NewActivityEvent(aml.EventActivityStatusChanged, updated, now)
	ev.PreviousStatus = current.Status
	aml.PublishBestEffort(ctx, s.publisher, ev, s.logger)
	return updated, nil
}

func (s *Service) sanitizeNotes(notes string) string {
	// strip markup but store the text itself unescaped
	clean := strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(notes)))
	if r := []rune(clean); len(r) > maxReviewNotes {
		clean = string(r[:maxReviewNotes])
	}
	return clean
}

// FindAll lists activities matching the filter, newest first
func (s *Service) FindAll(ctx context.Context, filter aml.ActivityFilter) ([]*aml.SuspiciousActivity, error) {
	return s.store.Find(ctx, filter)
}

// GetActivity returns a single activity
func (s *Service) GetActivity(ctx context.Context, id string) (*aml.SuspiciousActivity, error) {
	return s.store.Get(ctx, id)
}

// GetUserRiskScore returns the user's decayed risk score
func (s *Service) GetUserRiskScore(ctx context.Context, userID string) (int, error) {
	return s.scorer.UserRiskScore(ctx, userID)
}

// GenerateSar files a SAR for one activity
func (s *Service) GenerateSar(ctx context.Context, activityID string) (*aml.SarReport, error) {
	return s.sars.GenerateSar(ctx, activityID)
}

// AutoFile files SARs for every OPEN activity at or above threshold
func (s *Service) AutoFile(ctx context.Context, threshold int) (*reporting.AutoFileResult, error) {
	return s.sars.AutoFile(ctx, threshold)
}
