package storage

import (
	"context"
	"time"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
	"gorm.io/gorm"
)

// TradeReader reads settled trades from the ledger's trades table
type TradeReader struct {
	db *gorm.DB
}

func NewTradeReader(db *gorm.DB) *TradeReader {
	return &TradeReader{db: db}
}

func (r *TradeReader) FindSettledTrades(ctx context.Context, userID string, since time.Time) ([]aml.Trade, error) {
	var recs []TradeRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND created_at >= ?", userID, aml.TradeStatusSettled, since).
		Order("created_at ASC").
		Order("id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, transient("find settled trades", err)
	}

	trades := make([]aml.Trade, len(recs))
	for i, rec := range recs {
		trades[i] = rec.toDomain()
	}
	return trades, nil
}

func (r *TradeReader) FindLastSettledTradeBefore(ctx context.Context, userID string, before time.Time) (*aml.Trade, error) {
	var recs []TradeRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND created_at < ?", userID, aml.TradeStatusSettled, before).
		Order("created_at DESC").
		Limit(1).
		Find(&recs).Error
	if err != nil {
		return nil, transient("find prior trade", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	t := recs[0].toDomain()
	return &t, nil
}
