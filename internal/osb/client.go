// Package osb is the gateway to Open Service Broker API brokers. The
// orchestration core talks to brokers exclusively through the Client
// interface; results are discriminated as synchronous-complete or
// asynchronous-pending rather than signalled through errors.
package osb

import (
	"context"
	"encoding/json"

	"maestro/internal/model"

	"github.com/pivotal-cf/brokerapi/v12/domain"
)

// Client is the broker gateway. Implementations are stateless and safe for
// concurrent use across different resources; all locking discipline lives
// with the callers.
type Client interface {
	Provision(ctx context.Context, instance *model.ServiceInstance, plan *model.ServicePlan, parameters json.RawMessage, acceptsIncomplete bool) (ProvisionResult, error)
	Deprovision(ctx context.Context, instance *model.ServiceInstance, acceptsIncomplete bool) (DeprovisionResult, error)
	Update(ctx context.Context, req UpdateRequest) (UpdateResult, error)

	Bind(ctx context.Context, binding *model.Binding, parameters json.RawMessage, acceptsIncomplete bool) (BindResult, error)
	Unbind(ctx context.Context, binding *model.Binding, acceptsIncomplete bool) (UnbindResult, error)
	UnbindRoute(ctx context.Context, routeBinding *model.RouteBinding) error
	CreateServiceKey(ctx context.Context, key *model.Binding, parameters json.RawMessage, acceptsIncomplete bool) (BindResult, error)

	FetchInstanceLastOperation(ctx context.Context, instance *model.ServiceInstance) (LastOperationResult, error)
	FetchBindingLastOperation(ctx context.Context, binding *model.Binding) (LastOperationResult, error)
	FetchInstance(ctx context.Context, instance *model.ServiceInstance) (InstanceDetails, error)
	FetchBinding(ctx context.Context, binding *model.Binding) (BindingDetails, error)
}

// ProvisionResult is the broker's answer to a provision request.
type ProvisionResult struct {
	// Async is true when the broker accepted the request but has not
	// completed it; Operation then carries the continuation token.
	Async     bool
	Operation string

	DashboardURL string
}

// DeprovisionResult is the broker's answer to a deprovision request.
type DeprovisionResult struct {
	Async     bool
	Operation string
}

// UpdateRequest carries everything the broker needs for an instance update.
// PreviousValues echoes the pre-update identifiers as required by the
// broker API.
type UpdateRequest struct {
	Instance          *model.ServiceInstance
	Plan              *model.ServicePlan
	AcceptsIncomplete bool
	Parameters        json.RawMessage
	PreviousValues    domain.PreviousValues
	MaintenanceInfo   *domain.MaintenanceInfo
}

// UpdateResult is the broker's answer to an update request. When the broker
// rejects the update the result still carries the failed LastOperation for
// inspection; the record itself is rolled back, not updated.
type UpdateResult struct {
	LastOperation model.LastOperation
	DashboardURL  *string
}

// BindResult is the broker's answer to a bind or create-service-key request.
type BindResult struct {
	Async     bool
	Operation string
	Details   BindingDetails
}

// UnbindResult is the broker's answer to an unbind request.
type UnbindResult struct {
	Async     bool
	Operation string
}

// LastOperationResult is one poll of the broker's last-operation endpoint.
type LastOperationResult struct {
	// Gone is true when the broker no longer knows the resource (an empty
	// 410 response). For delete operations this counts as success.
	Gone bool

	State       model.OperationState
	Description string
}

// InstanceDetails is the broker-side view of a provisioned instance.
type InstanceDetails struct {
	DashboardURL string
	Parameters   json.RawMessage
}

// BindingDetails is the broker-side view of a binding or service key.
type BindingDetails struct {
	Credentials     json.RawMessage
	SyslogDrainURL  string
	VolumeMounts    []domain.VolumeMount
	RouteServiceURL string
}
