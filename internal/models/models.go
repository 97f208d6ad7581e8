package models

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// User is a local account of the development API
type User struct {
	BaseModel
	Username     string     `json:"username" gorm:"unique;not null"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-" gorm:"not null"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Name         string     `json:"name"`
	AccountID    string     `json:"account_id" gorm:"type:varchar(26)"`
	AccountName  string     `json:"account_name"`
	Role         string     `json:"role" gorm:"not null;default:'user'"`
	PersonID     string     `json:"person_id" gorm:"type:varchar(26)"`
	IsActive     bool       `json:"is_active" gorm:"not null;default:true"`
	LastAccessAt *time.Time `json:"last_access_at"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate fills the ID and the account/person identifiers
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if err := u.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if u.AccountID == "" {
		u.AccountID = ulid.Make().String()
	}
	if u.PersonID == "" {
		u.PersonID = ulid.Make().String()
	}
	return nil
}

// RefreshToken is a long-lived session credential. Only its hash is stored.
type RefreshToken struct {
	BaseModel
	UserID    string     `json:"user_id" gorm:"not null;index"`
	TokenHash string     `json:"-" gorm:"type:varchar(64);not null;uniqueIndex"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null"`
	RevokedAt *time.Time `json:"revoked_at"`

	User User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// Usable reports whether the token can still be exchanged at now
func (r *RefreshToken) Usable(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&RefreshToken{},
	)
}

// FindByID safely finds a record by string ID
func FindByID[T any](db *gorm.DB, id string, model *T) error {
	return db.Where("id = ?", id).First(model).Error
}
