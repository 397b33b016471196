package data

import (
	"errors"

	"gorm.io/gorm"
)

// WorldRecord holds the generation parameters of the shared world. There is
// at most one row; the first client to join an empty server provides it.
type WorldRecord struct {
	ID             uint64 `gorm:"primaryKey"`
	Seed           string
	PlanetCoverage string
	Rainfall       string
	Temperature    string
	Population     string
	Pollution      string
	Factions       []string `gorm:"serializer:json"`
}

// DifficultyRecord holds the operator-defined custom difficulty values,
// serialized as an opaque payload. At most one row.
type DifficultyRecord struct {
	ID     uint64 `gorm:"primaryKey"`
	Values string
}

// FindWorld returns the world record, or nil if the world has not been
// generated yet.
func FindWorld(db *gorm.DB) (*WorldRecord, error) {
	var record WorldRecord
	err := db.First(&record).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &record, nil
}

// SaveWorld creates or replaces the world record.
func SaveWorld(db *gorm.DB, record *WorldRecord) error {
	existing, err := FindWorld(db)
	if err != nil {
		return err
	}
	if existing != nil {
		record.ID = existing.ID
		return db.Save(record).Error
	}
	return db.Create(record).Error
}

// FindDifficulty returns the custom difficulty record, or nil if the server
// uses stock difficulty.
func FindDifficulty(db *gorm.DB) (*DifficultyRecord, error) {
	var record DifficultyRecord
	err := db.First(&record).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &record, nil
}

// SaveDifficulty creates or replaces the custom difficulty record.
func SaveDifficulty(db *gorm.DB, record *DifficultyRecord) error {
	existing, err := FindDifficulty(db)
	if err != nil {
		return err
	}
	if existing != nil {
		record.ID = existing.ID
		return db.Save(record).Error
	}
	return db.Create(record).Error
}
