package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
	"gorm.io/gorm"
)

// ActivityStore is the gorm implementation of aml.ActivityStore
type ActivityStore struct {
	db *gorm.DB
}

func NewActivityStore(db *gorm.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, aml.ErrTransientIO, err)
}

func (s *ActivityStore) Create(ctx context.Context, a *aml.SuspiciousActivity) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return transient("create activity", err)
	}
	return nil
}

func (s *ActivityStore) Get(ctx context.Context, id string) (*aml.SuspiciousActivity, error) {
	var a aml.SuspiciousActivity
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", aml.ErrNotFound, id)
	}
	if err != nil {
		return nil, transient("get activity", err)
	}
	return &a, nil
}

func (s *ActivityStore) Find(ctx context.Context, f aml.ActivityFilter) ([]*aml.SuspiciousActivity, error) {
	q := s.db.WithContext(ctx).Model(&aml.SuspiciousActivity{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Reason != "" {
		q = q.Where("reason = ?", f.Reason)
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("created_at < ?", f.To)
	}
	if f.MinRiskScore > 0 {
		q = q.Where("risk_score >= ?", f.MinRiskScore)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var out []*aml.SuspiciousActivity
	if err := q.Order("created_at DESC").Order("id").Find(&out).Error; err != nil {
		return nil, transient("find activities", err)
	}
	return out, nil
}

func (s *ActivityStore) FindActiveSince(ctx context.Context, userID string, reason aml.ActivityReason, since time.Time) (*aml.SuspiciousActivity, error) {
	var found []aml.SuspiciousActivity
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND reason = ? AND status IN ? AND created_at >= ?",
			userID, reason, []aml.ActivityStatus{aml.StatusOpen, aml.StatusUnderReview}, since).
		Order("created_at DESC").
		Limit(1).
		Find(&found).Error
	if err != nil {
		return nil, transient("find active activity", err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

// UpdateIfStatus performs a compare-and-set on the status column. Zero rows
// affected means the record is missing or another writer moved it first.
func (s *ActivityStore) UpdateIfStatus(ctx context.Context, id string, expected aml.ActivityStatus, u aml.ActivityUpdate) (*aml.SuspiciousActivity, error) {
	changes := map[string]interface{}{
		"status":     u.Status,
		"updated_at": u.UpdatedAt,
	}
	if u.SarReference != nil {
		changes["sar_reference"] = *u.SarReference
	}
	if u.ReviewedBy != nil {
		changes["reviewed_by"] = *u.ReviewedBy
	}
	if u.ReviewedAt != nil {
		changes["reviewed_at"] = *u.ReviewedAt
	}
	if u.ReviewNotes != nil {
		changes["review_notes"] = *u.ReviewNotes
	}

	res := s.db.WithContext(ctx).
		Model(&aml.SuspiciousActivity{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(changes)
	if res.Error != nil {
		return nil, transient("update activity", res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: activity %s is %s, expected %s",
			aml.ErrInvalidState, id, current.Status, expected)
	}
	return s.Get(ctx, id)
}
