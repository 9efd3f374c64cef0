// Package model contains GORM model definitions shared across packages.
// All models are driver-agnostic: they work with both PostgreSQL and SQLite.
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User is the profile row for an authenticated identity. IsAdmin is the flag
// consulted by the admin gate; nothing in the request path writes it.
type User struct {
	ID            string `gorm:"type:text;primaryKey"`
	Email         string `gorm:"type:text;not null;uniqueIndex"`
	Name          string `gorm:"type:text;not null;default:''"`
	PasswordHash  string `gorm:"type:text;not null;default:''"`
	Lang          string `gorm:"type:text;not null;default:'fr'"`
	IsAdmin       bool   `gorm:"not null;default:false"`
	DeactivatedAt *time.Time
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// RefreshToken is the GORM model for the refresh_tokens table.
type RefreshToken struct {
	ID        string    `gorm:"type:text;primaryKey"`
	UserID    string    `gorm:"type:text;not null;index"`
	TokenHash string    `gorm:"type:text;not null;uniqueIndex"`
	ExpiresAt time.Time `gorm:"not null"`
	RevokedAt *time.Time
	CreatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (rt *RefreshToken) BeforeCreate(_ *gorm.DB) error {
	if rt.ID == "" {
		rt.ID = uuid.New().String()
	}
	return nil
}

// Dossier is a single client's tax-filing case.
type Dossier struct {
	ID       string  `gorm:"type:text;primaryKey"`
	OwnerID  *string `gorm:"type:text;index"` // nil for walk-in dossiers until assigned
	Email    *string `gorm:"type:text"`
	CaseType string  `gorm:"type:text;not null"`
	Lang     string  `gorm:"type:text;not null;default:'fr'"`
	Status   string  `gorm:"type:text;not null;index"`
	Answers  datatypes.JSON
	CaseCode *string `gorm:"type:text;uniqueIndex"`

	DepositPaidAt     *time.Time
	CheckoutSessionID *string `gorm:"type:text"`
	PaymentWaived     bool    `gorm:"not null;default:false"`

	StatusChangedAt *time.Time
	StatusChangedBy *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (d *Dossier) BeforeCreate(_ *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// Document upload states. Rows are written pending before the object exists
// and only become complete once the object write has succeeded.
const (
	DocumentPending  = "pending"
	DocumentComplete = "complete"
	DocumentDeleting = "deleting"
)

// Document is the metadata row for one uploaded file.
type Document struct {
	ID          string    `gorm:"type:text;primaryKey"`
	DossierID   string    `gorm:"type:text;not null;index"`
	OwnerID     string    `gorm:"type:text;not null"`
	Filename    string    `gorm:"type:text;not null"`
	StoragePath string    `gorm:"type:text;not null;uniqueIndex"`
	ContentType string    `gorm:"type:text;not null;default:''"`
	SizeBytes   int64     `gorm:"not null"`
	Status      string    `gorm:"type:text;not null;index"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (d *Document) BeforeCreate(_ *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// CaseCodeCounter hands out the per-year sequence used in case codes.
type CaseCodeCounter struct {
	Year int   `gorm:"primaryKey;autoIncrement:false"`
	Next int64 `gorm:"not null"`
}

// WebhookEvent records processed payment processor event ids so redeliveries
// are acknowledged without being applied twice.
type WebhookEvent struct {
	ID         string    `gorm:"type:text;primaryKey"`
	Type       string    `gorm:"type:text;not null"`
	ReceivedAt time.Time `gorm:"not null"`
}
