package storage

import (
	"time"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
	"github.com/shopspring/decimal"
)

// TradeRecord maps the settlement ledger table. This service only reads it.
type TradeRecord struct {
	ID            string          `gorm:"primaryKey;type:varchar(36)"`
	UserID        string          `gorm:"type:varchar(64);not null;index:idx_trades_user_created,priority:1"`
	Side          string          `gorm:"type:varchar(4);not null"`
	TotalValueUSD decimal.Decimal `gorm:"column:total_value_usd;type:decimal(18,2);not null"`
	Status        string          `gorm:"type:varchar(16);not null;index"`
	CreatedAt     time.Time       `gorm:"not null;index:idx_trades_user_created,priority:2"`
}

func (TradeRecord) TableName() string { return "trades" }

func (r TradeRecord) toDomain() aml.Trade {
	return aml.Trade{
		ID:            r.ID,
		UserID:        r.UserID,
		Side:          aml.TradeSide(r.Side),
		TotalValueUSD: r.TotalValueUSD,
		Status:        r.Status,
		CreatedAt:     r.CreatedAt,
	}
}

// UserStatusActive marks users included in population scans
const UserStatusActive = "active"

// UserRecord maps the identity service's users table. Read only.
type UserRecord struct {
	ID        string `gorm:"primaryKey;type:varchar(64)"`
	Status    string `gorm:"type:varchar(16);not null;index"`
	CreatedAt time.Time
}

func (UserRecord) TableName() string { return "users" }
