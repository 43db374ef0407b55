package models

import (
	"time"

	"github.com/google/uuid"
)

// Template stores a TOSCA document. Content is immutable after creation and
// HashContent (sha256 of the content) is the uniqueness key preventing
// duplicate uploads. The metadata fields are derived from the document once
// at creation time and are the only patchable attributes.
type Template struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	HashContent string    `gorm:"uniqueIndex;not null" json:"hash_content"`

	Name                    *string `json:"name"`
	Version                 *string `json:"version"`
	TargetProviderType      *string `json:"target_provider_type"`
	ToscaDefinitionsVersion *string `json:"tosca_definitions_version"`

	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedByID uuid.UUID `gorm:"type:uuid;not null" json:"created_by"`
	UpdatedByID uuid.UUID `gorm:"type:uuid;not null" json:"updated_by"`
	CreatedBy   *User     `gorm:"foreignKey:CreatedByID" json:"-"`
	UpdatedBy   *User     `gorm:"foreignKey:UpdatedByID" json:"-"`
}
