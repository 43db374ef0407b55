package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DeploymentStatus enumerates the lifecycle states of a deployment.
type DeploymentStatus string

const (
	DeploymentCreationInProgress DeploymentStatus = "CREATION_IN_PROGRESS"
	DeploymentCreationComplete   DeploymentStatus = "CREATION_COMPLETE"
	DeploymentCreationFailed     DeploymentStatus = "CREATION_FAILED"
	DeploymentUpdateInProgress   DeploymentStatus = "UPDATE_IN_PROGRESS"
	DeploymentUpdateComplete     DeploymentStatus = "UPDATE_COMPLETE"
	DeploymentUpdateFailed       DeploymentStatus = "UPDATE_FAILED"
	DeploymentDeletionInProgress DeploymentStatus = "DELETION_IN_PROGRESS"
	DeploymentDeletionComplete   DeploymentStatus = "DELETION_COMPLETE"
	DeploymentDeletionFailed     DeploymentStatus = "DELETION_FAILED"
	DeploymentUnknown            DeploymentStatus = "UNKNOWN"
)

// TaskStage marks how far the downstream provisioning pipeline has advanced.
type TaskStage string

const (
	TaskNone                   TaskStage = "NONE"
	TaskTemplateValidation     TaskStage = "TEMPLATE_VALIDATION"
	TaskProviderFiltering      TaskStage = "PROVIDER_FILTERING"
	TaskRanking                TaskStage = "RANKING"
	TaskInfrastructureCreation TaskStage = "INFRASTRUCTURE_CREATION"
	TaskResourcesGenerated     TaskStage = "RESOURCES_GENERATED"
	TaskResourcesUpdating      TaskStage = "RESOURCES_UPDATING"
)

// Deployment is an instantiation of a Template. Status and Task are mutated
// by the downstream provisioning pipeline; the REST layer only seeds them.
type Deployment struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TemplateID uuid.UUID         `gorm:"type:uuid;index;not null" json:"template_id"`
	Template   *Template         `gorm:"foreignKey:TemplateID" json:"-"`
	Inputs     datatypes.JSONMap `gorm:"type:jsonb" json:"inputs"`

	UserGroup       string `gorm:"not null" json:"user_group"`
	UserGroupIssuer string `gorm:"not null" json:"user_group_issuer"`

	PerProviderMaxRetries int     `gorm:"not null;default:3" json:"per_provider_max_retries"`
	MaxProviders          *int    `json:"max_providers"`
	TotalTimeout          int     `gorm:"not null;default:14400" json:"total_timeout"`
	PerProviderTimeout    int     `gorm:"not null;default:1440" json:"per_provider_timeout"`
	KeepLastAttempt       bool    `gorm:"not null;default:false" json:"keep_last_attempt"`
	TargetProvider        *string `json:"target_provider"`
	TargetRegion          *string `json:"target_region"`

	Status       DeploymentStatus  `gorm:"type:varchar(32);index;not null;default:'CREATION_IN_PROGRESS'" json:"status"`
	StatusReason string            `gorm:"type:text" json:"status_reason"`
	Task         TaskStage         `gorm:"type:varchar(32);not null;default:'NONE'" json:"task"`
	Outputs      datatypes.JSONMap `gorm:"type:jsonb" json:"outputs"`

	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedByID uuid.UUID `gorm:"type:uuid;not null" json:"created_by"`
	UpdatedByID uuid.UUID `gorm:"type:uuid;not null" json:"updated_by"`
	CreatedBy   *User     `gorm:"foreignKey:CreatedByID" json:"-"`
	UpdatedBy   *User     `gorm:"foreignKey:UpdatedByID" json:"-"`
	// Join rows must go with the deployment; without the cascade the
	// owner rows block every force delete.
	Owners []User `gorm:"many2many:deployment_owners;constraint:OnDelete:CASCADE" json:"-"`
}
