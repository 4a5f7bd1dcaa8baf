package model

import (
	"encoding/json"
	"time"

	"github.com/pivotal-cf/brokerapi/v12/domain"
)

// ServiceInstance is a provisioned service, either managed by a broker or
// user-provided. The offering-level flags that influence orchestration
// (context updates, retrievable bindings) are denormalized onto the instance
// so orchestrators do not need to traverse the catalog.
type ServiceInstance struct {
	GUID string `yaml:"guid" json:"guid"`
	Name string `yaml:"name" json:"name"`

	SpaceGUID        string `yaml:"spaceGuid" json:"spaceGuid"`
	OrganizationGUID string `yaml:"organizationGuid" json:"organizationGuid"`

	// UserProvided instances have no broker; their lifecycle is local-only.
	UserProvided bool `yaml:"userProvided,omitempty" json:"userProvided,omitempty"`

	// ServicePlanGUID references the plan record. Empty for user-provided
	// instances.
	ServicePlanGUID string `yaml:"servicePlanGuid,omitempty" json:"servicePlanGuid,omitempty"`

	Tags         []string        `yaml:"tags,omitempty" json:"tags,omitempty"`
	Credentials  json.RawMessage `yaml:"credentials,omitempty" json:"credentials,omitempty"`
	DashboardURL string          `yaml:"dashboardUrl,omitempty" json:"dashboardUrl,omitempty"`

	MaintenanceInfo *domain.MaintenanceInfo `yaml:"maintenanceInfo,omitempty" json:"maintenanceInfo,omitempty"`

	// AllowContextUpdates is the offering's allow_context_updates flag: a
	// name change must be propagated to the broker when set.
	AllowContextUpdates bool `yaml:"allowContextUpdates,omitempty" json:"allowContextUpdates,omitempty"`

	// BindingsRetrievable is the offering's bindings_retrievable flag. The
	// broker may only answer bind requests asynchronously when this is set,
	// because completing such a bind requires fetching the binding back.
	BindingsRetrievable bool `yaml:"bindingsRetrievable,omitempty" json:"bindingsRetrievable,omitempty"`

	LastOperation *LastOperation `yaml:"lastOperation,omitempty" json:"lastOperation,omitempty"`

	CreatedAt time.Time `yaml:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `yaml:"updatedAt" json:"updatedAt"`
}

// Managed reports whether the instance is backed by a broker.
func (si *ServiceInstance) Managed() bool {
	return !si.UserProvided
}

// OperationInProgress reports whether the instance has a non-terminal last
// operation. A non-terminal operation behaves as the mutual-exclusion marker
// for the instance.
func (si *ServiceInstance) OperationInProgress() bool {
	return si.LastOperation.InProgress()
}

// ServicePlan is the minimal plan record the orchestrators need: the
// broker-side identifiers for previous_values on updates and the plan's
// maintenance info for deferred attribute application.
type ServicePlan struct {
	GUID string `yaml:"guid" json:"guid"`
	Name string `yaml:"name" json:"name"`

	// BrokerProvidedID is the plan_id known to the broker.
	BrokerProvidedID string `yaml:"brokerProvidedId" json:"brokerProvidedId"`

	// ServiceBrokerProvidedID is the service (offering) id known to the broker.
	ServiceBrokerProvidedID string `yaml:"serviceBrokerProvidedId" json:"serviceBrokerProvidedId"`

	MaintenanceInfo *domain.MaintenanceInfo `yaml:"maintenanceInfo,omitempty" json:"maintenanceInfo,omitempty"`
}
