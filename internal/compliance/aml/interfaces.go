package aml

import (
	"context"
	"time"
)

// TradeReader is the read-only view of the settlement ledger
type TradeReader interface {
	// FindSettledTrades returns the user's settled trades created at or after
	// since, ascending by creation time.
	FindSettledTrades(ctx context.Context, userID string, since time.Time) ([]Trade, error)
	// FindLastSettledTradeBefore returns the most recent settled trade strictly
	// before the given instant, or nil when the user has none.
	FindLastSettledTradeBefore(ctx context.Context, userID string, before time.Time) (*Trade, error)
}

// ActivityStore persists SuspiciousActivity records
type ActivityStore interface {
	Create(ctx context.Context, activity *SuspiciousActivity) error
	// Get returns ErrNotFound when the id is unknown.
	Get(ctx context.Context, id string) (*SuspiciousActivity, error)
	// Find returns matches ordered by creation time, newest first.
	Find(ctx context.Context, filter ActivityFilter) ([]*SuspiciousActivity, error)
	// FindActiveSince returns the newest OPEN or UNDER_REVIEW record for the
	// user and reason created at or after since, or nil.
	FindActiveSince(ctx context.Context, userID string, reason ActivityReason, since time.Time) (*SuspiciousActivity, error)
	// UpdateIfStatus applies the update only while the stored status still
	// equals expected. A lost race yields ErrInvalidState.
	UpdateIfStatus(ctx context.Context, id string, expected ActivityStatus, update ActivityUpdate) (*SuspiciousActivity, error)
}

// UserDirectory enumerates active users for population scans
type UserDirectory interface {
	// ListActiveUserIDs returns up to limit ids ordered ascending and strictly
	// greater than afterID. An empty afterID starts from the beginning.
	ListActiveUserIDs(ctx context.Context, afterID string, limit int) ([]string, error)
}

// EventPublisher emits lifecycle events to downstream case management
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// ScanLocker grants short-lived per-user leases so that two scheduler
// instances do not scan the same user at the same time.
type ScanLocker interface {
	// TryLock returns ok=false without error when another holder owns the lease.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}
