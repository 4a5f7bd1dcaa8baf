package model

import (
	"time"

	"github.com/pivotal-cf/brokerapi/v12/domain"
)

// OperationType identifies the lifecycle action recorded on a resource.
type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
)

// OperationState mirrors the broker-side last operation states. The broker
// API vocabulary is reused directly so no translation layer is needed when
// persisting poll results.
type OperationState = domain.LastOperationState

const (
	StateInProgress OperationState = domain.InProgress
	StateSucceeded  OperationState = domain.Succeeded
	StateFailed     OperationState = domain.Failed
)

// LastOperation records the most recent lifecycle action on a resource
// together with its current state and the broker-provided continuation
// token for asynchronous operations.
type LastOperation struct {
	Type        OperationType  `yaml:"type" json:"type"`
	State       OperationState `yaml:"state" json:"state"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`

	// BrokerProvidedOperation is the opaque token returned by the broker for
	// an asynchronous operation. It is echoed back on last-operation polls.
	BrokerProvidedOperation string `yaml:"brokerProvidedOperation,omitempty" json:"brokerProvidedOperation,omitempty"`

	CreatedAt time.Time `yaml:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `yaml:"updatedAt" json:"updatedAt"`
}

// Terminal reports whether the operation has reached a final state. A nil
// operation counts as terminal: a resource without a recorded operation is
// not locked.
func (op *LastOperation) Terminal() bool {
	if op == nil {
		return true
	}
	return op.State == StateSucceeded || op.State == StateFailed
}

// InProgress reports whether the operation is still pending.
func (op *LastOperation) InProgress() bool {
	return op != nil && op.State == StateInProgress
}
