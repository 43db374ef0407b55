package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ResourceStatus enumerates the states reported by the infrastructure
// manager for a single provisioned resource.
type ResourceStatus int

const (
	ResourceConfigured ResourceStatus = iota
	ResourceConfiguring
	ResourceCreated
	ResourceCreating
	ResourceDeleted
	ResourceDeleting
	ResourceError
	ResourceInitial
	ResourceStarted
	ResourceStarting
	ResourceStopped
	ResourceStopping
)

var resourceStatusNames = map[ResourceStatus]string{
	ResourceConfigured:  "CONFIGURED",
	ResourceConfiguring: "CONFIGURING",
	ResourceCreated:     "CREATED",
	ResourceCreating:    "CREATING",
	ResourceDeleted:     "DELETED",
	ResourceDeleting:    "DELETING",
	ResourceError:       "ERROR",
	ResourceInitial:     "INITIAL",
	ResourceStarted:     "STARTED",
	ResourceStarting:    "STARTING",
	ResourceStopped:     "STOPPED",
	ResourceStopping:    "STOPPING",
}

func (s ResourceStatus) String() string {
	if name, ok := resourceStatusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Resource is one node provisioned for a Deployment. Rows are written by the
// downstream provisioning pipeline and are read-only through the REST layer
// except for administrative force-delete.
type Resource struct {
	ID           uuid.UUID   `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	DeploymentID uuid.UUID   `gorm:"type:uuid;index;not null" json:"deployment_id"`
	Deployment   *Deployment `gorm:"foreignKey:DeploymentID" json:"-"`

	// Index into the infrastructure manager's VM list. Nil for node types
	// without a backing VM (networks, ports) or before assignment.
	IMVMIndex *int `gorm:"column:im_vm_index" json:"im_vm_idx"`

	Status        ResourceStatus                `gorm:"not null;default:7" json:"status"`
	ToscaNodeName string                        `gorm:"not null;index" json:"tosca_node_name"`
	ToscaNodeType string                        `gorm:"not null;index" json:"tosca_node_type"`
	Info          datatypes.JSONMap             `gorm:"type:jsonb" json:"info"`
	RequiredBy    datatypes.JSONSlice[uuid.UUID] `gorm:"type:jsonb" json:"required_by"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
