package models

import "gorm.io/gorm"

// AutoMigrate creates or updates every engine table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Member{},
		&StructureNode{},
		&StructureEdge{},
		&PlacementCursor{},
		&EngineSetting{},
		&Account{},
		&LedgerEntry{},
		&Withdrawal{},
	)
}
