package models

import "gorm.io/gorm"

// AutoMigrate creates or updates every table the engine touches.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Order{},
		&Deposit{},
		&MatchRecord{},
		&MatchAuditLog{},
	)
}
