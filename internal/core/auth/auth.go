package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
	"unicode"

	"gorm.io/gorm"
	"lukechampine.com/blake3"

	"github.com/cairnway/cairnway/internal/core/data"
)

var (
	ErrUnknown            = errors.New("an unexpected error occurred, please contact your server administrator")
	ErrInvalidCredentials = errors.New("username/password combination not found")
	ErrUsernameTaken      = errors.New("this username is already registered")
	ErrMalformedLogin     = errors.New("malformed username or password")
)

// The client mod truncates usernames well before this, but the server does
// not trust the client.
const maxUsernameLength = 32

// ValidateCredentialShape rejects credentials before any store lookup:
// both fields non-empty, no whitespace inside the username, bounded length.
func ValidateCredentialShape(username, password string) error {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return ErrMalformedLogin
	}
	if strings.IndexFunc(username, unicode.IsSpace) >= 0 {
		return ErrMalformedLogin
	}
	if len([]rune(username)) > maxUsernameLength {
		return ErrMalformedLogin
	}
	return nil
}

// VerifyUser checks the users table for the specified credentials combination
// and returns the matching record. A banned account still verifies; the
// login flow decides what a ban means once the other checks have run.
func VerifyUser(db *gorm.DB, username, password string) (*data.User, error) {
	if err := ValidateCredentialShape(username, password); err != nil {
		return nil, err
	}

	user, err := data.FindUserByUsername(db, username)
	if err != nil {
		return nil, ErrUnknown
	}

	if user == nil || user.Password != HashPassword(password) {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// RegisterUser takes the specified credentials and creates a new record in
// the database, returning either the result or any errors encountered. The
// uniqueness check is case-insensitive so "Alice" cannot shadow "alice".
func RegisterUser(db *gorm.DB, username, password string) (*data.User, error) {
	if err := ValidateCredentialShape(username, password); err != nil {
		return nil, err
	}

	existing, err := data.FindUserByUsernameFold(db, username)
	if err != nil {
		return nil, ErrUnknown
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	user := &data.User{
		UID:              DeriveUID(username),
		Username:         username,
		Password:         HashPassword(password),
		RegistrationDate: time.Now(),
	}
	if err := data.CreateUser(db, user); err != nil {
		return nil, err
	}
	return user, nil
}

// HashPassword returns a version of password with the server's chosen
// hashing strategy.
func HashPassword(password string) string {
	hash := sha256.Sum256([]byte(password))
	return hex.EncodeToString(hash[:])
}

// DeriveUID produces the stable player id handed to clients. Usernames are
// unique, so a keyed hash of the lowercased username is stable across
// re-registrations of the record itself.
func DeriveUID(username string) string {
	sum := blake3.Sum256([]byte(strings.ToLower(username)))
	return hex.EncodeToString(sum[:16])
}
