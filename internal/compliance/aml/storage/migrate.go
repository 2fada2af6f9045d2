package storage

import (
	"fmt"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
	"gorm.io/gorm"
)

// AutoMigrate creates the tables owned by this service. The trades and users
// tables belong to other services and are only migrated by test fixtures.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&aml.SuspiciousActivity{}); err != nil {
		return fmt.Errorf("failed to migrate suspicious activity table: %w", err)
	}
	return nil
}
