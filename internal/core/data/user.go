package data

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// User contains the persisted state of each registered player.
type User struct {
	ID       uint64 `gorm:"primaryKey"`
	UID      string `gorm:"uniqueIndex;not null"`
	Username string `gorm:"uniqueIndex;not null"`
	Password string `gorm:"not null"`

	Admin  bool `gorm:"default:false"`
	Banned bool `gorm:"default:false"`

	FactionName string
	LastIP      string

	AllyPlayers  []string `gorm:"serializer:json"`
	EnemyPlayers []string `gorm:"serializer:json"`

	RegistrationDate time.Time
}

// FindUserByUsername searches for a user with the specified username,
// returning the *User instance if found or nil if there is no match.
func FindUserByUsername(db *gorm.DB, username string) (*User, error) {
	var user User
	err := db.Where("username = ?", username).First(&user).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &user, nil
}

// FindUserByUsernameFold performs a case-insensitive username lookup, used to
// keep registration uniqueness checks from being dodged by capitalization.
func FindUserByUsernameFold(db *gorm.DB, username string) (*User, error) {
	var user User
	err := db.Where("LOWER(username) = LOWER(?)", username).First(&user).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &user, nil
}

// ListUsers returns every persisted user record.
func ListUsers(db *gorm.DB) ([]User, error) {
	var users []User
	if err := db.Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// ListUsersInFaction returns every user affiliated with the named faction.
func ListUsersInFaction(db *gorm.DB, factionName string) ([]User, error) {
	var users []User
	if err := db.Where("faction_name = ?", factionName).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser persists the User record to the database.
func CreateUser(db *gorm.DB, user *User) error {
	return db.Create(user).Error
}

// SaveUser writes the full User record back to the database.
func SaveUser(db *gorm.DB, user *User) error {
	return db.Save(user).Error
}

// The targeted updates below write only the named columns. Concurrent
// writers touching different parts of the same row must not go through
// SaveUser, whose full-row UPDATE would clobber each other's changes.

// UpdateUserFaction sets only the faction affiliation column.
func UpdateUserFaction(db *gorm.DB, username, factionName string) error {
	return db.Model(&User{}).Where("username = ?", username).
		Select("FactionName").Updates(&User{FactionName: factionName}).Error
}

// UpdateUserBanned sets only the banned flag.
func UpdateUserBanned(db *gorm.DB, username string, banned bool) error {
	return db.Model(&User{}).Where("username = ?", username).
		Select("Banned").Updates(&User{Banned: banned}).Error
}

// UpdateUserAdmin sets only the admin flag.
func UpdateUserAdmin(db *gorm.DB, username string, admin bool) error {
	return db.Model(&User{}).Where("username = ?", username).
		Select("Admin").Updates(&User{Admin: admin}).Error
}

// UpdateUserRelations replaces only the ally and enemy lists.
func UpdateUserRelations(db *gorm.DB, username string, allies, enemies []string) error {
	return db.Model(&User{}).Where("username = ?", username).
		Select("AllyPlayers", "EnemyPlayers").
		Updates(&User{AllyPlayers: allies, EnemyPlayers: enemies}).Error
}

// UpdateUserLastIP records the address a session last logged in from.
func UpdateUserLastIP(db *gorm.DB, username, lastIP string) error {
	return db.Model(&User{}).Where("username = ?", username).
		Select("LastIP").Updates(&User{LastIP: lastIP}).Error
}

// DeleteUser permanently deletes a User record from the database.
func DeleteUser(db *gorm.DB, user *User) error {
	return db.Delete(user).Error
}
