package model

import "time"

// AuditEvent is an append-only record of a lifecycle action taken on a
// resource. Event writes are fire-and-forget: a failed write never aborts
// the operation that produced it.
type AuditEvent struct {
	GUID         string         `yaml:"guid" json:"guid"`
	Type         string         `yaml:"type" json:"type"`
	ResourceGUID string         `yaml:"resourceGuid" json:"resourceGuid"`
	ResourceType string         `yaml:"resourceType" json:"resourceType"`
	ResourceName string         `yaml:"resourceName,omitempty" json:"resourceName,omitempty"`
	SpaceGUID    string         `yaml:"spaceGuid,omitempty" json:"spaceGuid,omitempty"`
	Metadata     map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt    time.Time      `yaml:"createdAt" json:"createdAt"`
}
