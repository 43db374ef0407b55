package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an identity created on its first successful authentication
// against a trusted identity provider. The (sub, issuer) pair is unique.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Sub          string    `gorm:"not null;uniqueIndex:uniq_sub_issuer" json:"sub"`
	Issuer       string    `gorm:"not null;uniqueIndex:uniq_sub_issuer" json:"issuer"`
	Name         string    `gorm:"not null" json:"name"`
	Username     string    `gorm:"index" json:"username"`
	Email        string    `gorm:"not null;index" json:"email"`
	SSHPublicKey string    `gorm:"type:text" json:"ssh_public_key,omitempty"`
	RefreshToken string    `gorm:"type:text" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
