package data

import (
	"errors"

	"gorm.io/gorm"
)

// Settlement is a player's primary claimed location on a world tile.
type Settlement struct {
	ID    uint64 `gorm:"primaryKey"`
	Tile  string `gorm:"uniqueIndex;not null"`
	Owner string `gorm:"index;not null"`
}

// FindSettlementByTile returns the settlement claiming the tile, or nil if
// the tile is unclaimed by any settlement.
func FindSettlementByTile(db *gorm.DB, tile string) (*Settlement, error) {
	var settlement Settlement
	err := db.Where("tile = ?", tile).First(&settlement).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &settlement, nil
}

// ListSettlements returns every persisted settlement.
func ListSettlements(db *gorm.DB) ([]Settlement, error) {
	var settlements []Settlement
	if err := db.Find(&settlements).Error; err != nil {
		return nil, err
	}
	return settlements, nil
}

// ListSettlementsByOwner returns every settlement owned by the username.
func ListSettlementsByOwner(db *gorm.DB, owner string) ([]Settlement, error) {
	var settlements []Settlement
	if err := db.Where("owner = ?", owner).Find(&settlements).Error; err != nil {
		return nil, err
	}
	return settlements, nil
}

// CreateSettlement persists the Settlement record to the database.
func CreateSettlement(db *gorm.DB, settlement *Settlement) error {
	return db.Create(settlement).Error
}

// DeleteSettlement permanently deletes a Settlement record.
func DeleteSettlement(db *gorm.DB, settlement *Settlement) error {
	return db.Delete(settlement).Error
}

// DeleteSettlementsByOwner removes every settlement owned by the username.
func DeleteSettlementsByOwner(db *gorm.DB, owner string) error {
	return db.Where("owner = ?", owner).Delete(&Settlement{}).Error
}
