package data

import (
	"errors"

	"gorm.io/gorm"
)

// FactionRank is the three-level faction hierarchy. Moderators can manage
// regular members; admins can manage everyone and delete the faction.
type FactionRank int

const (
	RankMember FactionRank = iota
	RankModerator
	RankAdmin
)

func (r FactionRank) String() string {
	switch r {
	case RankModerator:
		return "moderator"
	case RankAdmin:
		return "admin"
	default:
		return "member"
	}
}

// Faction is a named group of players.
type Faction struct {
	ID   uint64 `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;not null"`
}

// FactionMember maps one username to its rank within a faction. Iteration
// order (by ID) preserves join order.
type FactionMember struct {
	ID        uint64 `gorm:"primaryKey"`
	FactionID uint64 `gorm:"index:idx_faction_member,unique;not null"`
	Username  string `gorm:"index:idx_faction_member,unique;not null"`
	Rank      FactionRank
}

// FindFactionByName returns the named faction, or nil if it does not exist.
func FindFactionByName(db *gorm.DB, name string) (*Faction, error) {
	var faction Faction
	err := db.Where("name = ?", name).First(&faction).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &faction, nil
}

// CreateFaction persists a new faction with its creator as sole admin.
func CreateFaction(db *gorm.DB, name, creator string) (*Faction, error) {
	faction := &Faction{Name: name}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(faction).Error; err != nil {
			return err
		}
		member := &FactionMember{FactionID: faction.ID, Username: creator, Rank: RankAdmin}
		return tx.Create(member).Error
	})
	if err != nil {
		return nil, err
	}
	return faction, nil
}

// DeleteFaction removes the faction and all of its membership rows.
func DeleteFaction(db *gorm.DB, faction *Faction) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("faction_id = ?", faction.ID).Delete(&FactionMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(faction).Error
	})
}

// ListFactionMembers returns the faction's membership in join order.
func ListFactionMembers(db *gorm.DB, factionID uint64) ([]FactionMember, error) {
	var members []FactionMember
	err := db.Where("faction_id = ?", factionID).Order("id").Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

// FindFactionMember returns the membership row for the username, or nil if
// the username is not a member.
func FindFactionMember(db *gorm.DB, factionID uint64, username string) (*FactionMember, error) {
	var member FactionMember
	err := db.Where("faction_id = ? AND username = ?", factionID, username).First(&member).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &member, nil
}

// AddFactionMember appends a new member at the given rank.
func AddFactionMember(db *gorm.DB, factionID uint64, username string, rank FactionRank) error {
	return db.Create(&FactionMember{FactionID: factionID, Username: username, Rank: rank}).Error
}

// RemoveFactionMember deletes the membership row for the username.
func RemoveFactionMember(db *gorm.DB, factionID uint64, username string) error {
	return db.Where("faction_id = ? AND username = ?", factionID, username).Delete(&FactionMember{}).Error
}

// SetFactionMemberRank rewrites the member's rank in place.
func SetFactionMemberRank(db *gorm.DB, factionID uint64, username string, rank FactionRank) error {
	return db.Model(&FactionMember{}).
		Where("faction_id = ? AND username = ?", factionID, username).
		Update("rank", rank).Error
}
