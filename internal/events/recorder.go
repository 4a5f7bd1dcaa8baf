// Package events records audit events for lifecycle actions. Recording is
// fire-and-forget: orchestration never fails because an event could not be
// written.
package events

import (
	"maestro/internal/clock"
	"maestro/internal/model"
	"maestro/internal/store"
	"maestro/pkg/logging"

	"github.com/google/uuid"
)

// Recorder writes audit events to the store's event table.
type Recorder struct {
	store     *store.Store
	clock     clock.Clock
	templates *MessageTemplateEngine
}

// NewRecorder creates a Recorder backed by the given store.
func NewRecorder(st *store.Store, clk clock.Clock) *Recorder {
	return &Recorder{
		store:     st,
		clock:     clk,
		templates: NewMessageTemplateEngine(),
	}
}

// RecordInstanceEvent records a lifecycle event for a service instance.
// operation is the lifecycle action name, e.g. "create", "start_delete",
// "update".
func (r *Recorder) RecordInstanceEvent(operation string, instance *model.ServiceInstance, requestAttrs map[string]any) {
	eventType := "audit.service_instance." + operation
	if instance.UserProvided {
		eventType = "audit.user_provided_service_instance." + operation
	}
	r.record(model.AuditEvent{
		GUID:         uuid.NewString(),
		Type:         eventType,
		ResourceGUID: instance.GUID,
		ResourceType: "service_instance",
		ResourceName: instance.Name,
		SpaceGUID:    instance.SpaceGUID,
		Metadata:     requestAttrs,
	})
}

// RecordBindingEvent records a lifecycle event for a service binding or
// service key.
func (r *Recorder) RecordBindingEvent(operation string, binding *model.Binding, requestAttrs map[string]any) {
	resourceType := "service_binding"
	if binding.Kind == model.KindServiceKey {
		resourceType = "service_key"
	}
	r.record(model.AuditEvent{
		GUID:         uuid.NewString(),
		Type:         "audit." + resourceType + "." + operation,
		ResourceGUID: binding.GUID,
		ResourceType: resourceType,
		ResourceName: binding.Name,
		Metadata:     requestAttrs,
	})
}

func (r *Recorder) record(event model.AuditEvent) {
	event.CreatedAt = r.clock.Now()
	r.store.AppendEvent(event)
	logging.Info("Events", "%s", r.templates.Render(event))
}
