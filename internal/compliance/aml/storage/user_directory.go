package storage

import (
	"context"

	"gorm.io/gorm"
)

// UserDirectory pages through active users by ascending id
type UserDirectory struct {
	db *gorm.DB
}

func NewUserDirectory(db *gorm.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

// ListActiveUserIDs uses keyset pagination so users created mid-scan never
// shift an already visited page.
func (d *UserDirectory) ListActiveUserIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	var ids []string
	err := d.db.WithContext(ctx).
		Model(&UserRecord{}).
		Where("status = ? AND id > ?", UserStatusActive, afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, transient("list active users", err)
	}
	return ids, nil
}
