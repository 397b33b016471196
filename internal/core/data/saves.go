package data

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// MapRecord holds the serialized map payload for a settlement tile, read by
// the offline visit, spy and raid flows while the owner is away. The payload
// is stored zstd-compressed.
type MapRecord struct {
	ID    uint64 `gorm:"primaryKey"`
	Tile  string `gorm:"uniqueIndex;not null"`
	Owner string `gorm:"index;not null"`
	Data  []byte
}

// SaveRecord holds a player's full game save, stored zstd-compressed.
type SaveRecord struct {
	ID       uint64 `gorm:"primaryKey"`
	Username string `gorm:"uniqueIndex;not null"`
	Data     []byte
	SavedAt  time.Time
}

// FindMapByTile returns the stored map for the tile, or nil if none exists.
func FindMapByTile(db *gorm.DB, tile string) (*MapRecord, error) {
	var record MapRecord
	err := db.Where("tile = ?", tile).First(&record).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &record, nil
}

// UpsertMap creates or replaces the map payload for a tile.
func UpsertMap(db *gorm.DB, record *MapRecord) error {
	existing, err := FindMapByTile(db, record.Tile)
	if err != nil {
		return err
	}
	if existing != nil {
		record.ID = existing.ID
		return db.Save(record).Error
	}
	return db.Create(record).Error
}

// ListMapsByOwner returns every stored map owned by the username.
func ListMapsByOwner(db *gorm.DB, owner string) ([]MapRecord, error) {
	var records []MapRecord
	if err := db.Where("owner = ?", owner).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteMapsByOwner removes every stored map owned by the username.
func DeleteMapsByOwner(db *gorm.DB, owner string) error {
	return db.Where("owner = ?", owner).Delete(&MapRecord{}).Error
}

// FindSaveByUsername returns the player's save, or nil if they have none.
func FindSaveByUsername(db *gorm.DB, username string) (*SaveRecord, error) {
	var record SaveRecord
	err := db.Where("username = ?", username).First(&record).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &record, nil
}

// UpsertSave creates or replaces the player's save payload.
func UpsertSave(db *gorm.DB, record *SaveRecord) error {
	existing, err := FindSaveByUsername(db, record.Username)
	if err != nil {
		return err
	}
	record.SavedAt = time.Now()
	if existing != nil {
		record.ID = existing.ID
		return db.Save(record).Error
	}
	return db.Create(record).Error
}

// DeleteSaveByUsername removes the player's save, if any.
func DeleteSaveByUsername(db *gorm.DB, username string) error {
	return db.Where("username = ?", username).Delete(&SaveRecord{}).Error
}
