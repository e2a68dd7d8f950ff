// Package account defines the core domain types for the MyCoach backend:
// users (coaches and clients), body measurements, and OAuth provider
// connections.
//
// The sensitive attributes on these types are plaintext in memory. The
// persistence layer (package mgorm) encrypts them on the way to the database
// and decrypts them on the way back; business logic never sees ciphertext.
package account

import (
	"database/sql/driver"
	"errors"
	"time"
)

// Role distinguishes the two account kinds.
type Role string

const (
	RoleCoach  Role = "coach"
	RoleClient Role = "client"
)

// JSON is a custom type for handling JSON data in various storages.
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = []byte(v)
	default:
		return errors.New("invalid type for JSON")
	}
	return nil
}

// User represents a platform account. FirstName, LastName, BirthDate, Notes
// and HealthAnswers are stored encrypted under the field key domain.
type User struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`

	PhoneVerified   bool       `json:"phone_verified"`
	PhoneVerifiedAt *time.Time `json:"phone_verified_at,omitempty"`

	FirstName     string  `json:"first_name"`
	LastName      string  `json:"last_name"`
	BirthDate     *string `json:"birth_date,omitempty"`
	Notes         *string `json:"-"`
	HealthAnswers JSON    `json:"-"`
}

// Measurement is one body-measurement entry for a client. Value is stored
// encrypted under the field key domain; health data never reaches the
// storage medium in clear.
type Measurement struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"` // weight, waist, body_fat, ...
	Value     string    `json:"value"`
	Unit      string    `json:"unit"`
	TakenAt   time.Time `json:"taken_at"`
	CreatedAt time.Time `json:"created_at"`
}

// OAuthConnection links a user to an external provider. AccessToken and
// RefreshToken are stored encrypted under the token key domain, never the
// field domain, so a PII key compromise does not expose live credentials.
type OAuthConnection struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"token_expiry"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
