package model

import (
	"encoding/json"
	"time"

	"github.com/pivotal-cf/brokerapi/v12/domain"
)

// BindingKind discriminates the two credential-shaped resources that share a
// lifecycle: a binding ties an instance to an application, a key is a
// standalone credential. The differing field sets and wording are carried as
// data on the kind so a single poller and delete path serve both.
type BindingKind string

const (
	KindAppBinding BindingKind = "app"
	KindServiceKey BindingKind = "key"
)

// ShortName is the human wording used in descriptions and log lines.
func (k BindingKind) ShortName() string {
	if k == KindServiceKey {
		return "service key"
	}
	return "binding"
}

// HasDrainAndMounts reports whether resources of this kind carry
// syslog_drain_url and volume_mounts in addition to credentials.
func (k BindingKind) HasDrainAndMounts() bool {
	return k == KindAppBinding
}

// Binding is a service binding or service key, discriminated by Kind.
type Binding struct {
	GUID string      `yaml:"guid" json:"guid"`
	Kind BindingKind `yaml:"kind" json:"kind"`
	Name string      `yaml:"name,omitempty" json:"name,omitempty"`

	ServiceInstanceGUID string `yaml:"serviceInstanceGuid" json:"serviceInstanceGuid"`

	// AppGUID is set for app bindings only.
	AppGUID string `yaml:"appGuid,omitempty" json:"appGuid,omitempty"`

	Credentials    json.RawMessage      `yaml:"credentials,omitempty" json:"credentials,omitempty"`
	SyslogDrainURL string               `yaml:"syslogDrainUrl,omitempty" json:"syslogDrainUrl,omitempty"`
	VolumeMounts   []domain.VolumeMount `yaml:"volumeMounts,omitempty" json:"volumeMounts,omitempty"`

	LastOperation *LastOperation `yaml:"lastOperation,omitempty" json:"lastOperation,omitempty"`

	CreatedAt time.Time `yaml:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `yaml:"updatedAt" json:"updatedAt"`
}

// OperationInProgress reports whether the binding has a non-terminal last
// operation.
func (b *Binding) OperationInProgress() bool {
	return b.LastOperation.InProgress()
}

// TerminalState reports whether the binding's last operation is terminal.
// A binding without a recorded operation is terminal.
func (b *Binding) TerminalState() bool {
	return b.LastOperation.Terminal()
}

// RouteBinding ties a service instance to a route. Route bindings are
// unbound synchronously and carry no last operation of their own.
type RouteBinding struct {
	GUID                string `yaml:"guid" json:"guid"`
	RouteGUID           string `yaml:"routeGuid" json:"routeGuid"`
	ServiceInstanceGUID string `yaml:"serviceInstanceGuid" json:"serviceInstanceGuid"`

	RouteServiceURL string `yaml:"routeServiceUrl,omitempty" json:"routeServiceUrl,omitempty"`

	CreatedAt time.Time `yaml:"createdAt" json:"createdAt"`
}
