package data

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Site is a secondary, typed structure on a tile. A site is either personal
// (owned by a single player) or faction-owned; the two modes are mutually
// exclusive.
type Site struct {
	ID    uint64 `gorm:"primaryKey"`
	Tile  string `gorm:"uniqueIndex;not null"`
	Owner string `gorm:"index;not null"`
	Type  string

	FactionOwned bool   `gorm:"default:false"`
	FactionName  string `gorm:"index"`

	// Opaque worker-assignment payload managed by the owning client.
	WorkerData string
}

// RewardEligible reports whether the site produces a reward on the next
// reward tick. Faction sites always do; personal sites only while a worker
// is assigned.
func (s *Site) RewardEligible() bool {
	if s.FactionOwned {
		return true
	}
	return strings.TrimSpace(s.WorkerData) != ""
}

// FindSiteByTile returns the site claiming the tile, or nil if the tile has
// no site on it.
func FindSiteByTile(db *gorm.DB, tile string) (*Site, error) {
	var site Site
	err := db.Where("tile = ?", tile).First(&site).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &site, nil
}

// ListSites returns every persisted site.
func ListSites(db *gorm.DB) ([]Site, error) {
	var sites []Site
	if err := db.Find(&sites).Error; err != nil {
		return nil, err
	}
	return sites, nil
}

// ListSitesByOwner returns every personal site owned by the username.
func ListSitesByOwner(db *gorm.DB, owner string) ([]Site, error) {
	var sites []Site
	if err := db.Where("owner = ? AND faction_owned = ?", owner, false).Find(&sites).Error; err != nil {
		return nil, err
	}
	return sites, nil
}

// ListSitesByFaction returns every faction-owned site of the named faction.
func ListSitesByFaction(db *gorm.DB, factionName string) ([]Site, error) {
	var sites []Site
	if err := db.Where("faction_name = ? AND faction_owned = ?", factionName, true).Find(&sites).Error; err != nil {
		return nil, err
	}
	return sites, nil
}

// CreateSite persists the Site record to the database.
func CreateSite(db *gorm.DB, site *Site) error {
	return db.Create(site).Error
}

// SaveSite writes the full Site record back to the database.
func SaveSite(db *gorm.DB, site *Site) error {
	return db.Save(site).Error
}

// DeleteSite permanently deletes a Site record.
func DeleteSite(db *gorm.DB, site *Site) error {
	return db.Delete(site).Error
}

// DeleteSitesByOwner removes every personal site owned by the username.
func DeleteSitesByOwner(db *gorm.DB, owner string) error {
	return db.Where("owner = ? AND faction_owned = ?", owner, false).Delete(&Site{}).Error
}

// DeleteSitesByFaction removes every faction-owned site of the named faction.
func DeleteSitesByFaction(db *gorm.DB, factionName string) error {
	return db.Where("faction_name = ? AND faction_owned = ?", factionName, true).Delete(&Site{}).Error
}
