package events

import (
	"fmt"
	"strings"

	"maestro/internal/model"
)

// MessageTemplateEngine renders human-readable log lines for audit events.
type MessageTemplateEngine struct {
	templates map[string]string
}

// NewMessageTemplateEngine creates a template engine with the default
// templates.
func NewMessageTemplateEngine() *MessageTemplateEngine {
	engine := &MessageTemplateEngine{
		templates: make(map[string]string),
	}
	engine.loadDefaultTemplates()
	return engine
}

func (e *MessageTemplateEngine) loadDefaultTemplates() {
	// Service instance lifecycle
	e.templates["audit.service_instance.create"] = "Service instance {{.Name}} created"
	e.templates["audit.service_instance.start_create"] = "Service instance {{.Name}} creation started, awaiting broker"
	e.templates["audit.service_instance.update"] = "Service instance {{.Name}} updated"
	e.templates["audit.service_instance.start_update"] = "Service instance {{.Name}} update started, awaiting broker"
	e.templates["audit.service_instance.delete"] = "Service instance {{.Name}} deleted"
	e.templates["audit.service_instance.start_delete"] = "Service instance {{.Name}} deletion started, awaiting broker"
	e.templates["audit.user_provided_service_instance.create"] = "User-provided service instance {{.Name}} created"
	e.templates["audit.user_provided_service_instance.delete"] = "User-provided service instance {{.Name}} deleted"
	e.templates["audit.service_instance.unshare"] = "Service instance {{.Name}} unshared"

	// Binding and key lifecycle
	e.templates["audit.service_binding.create"] = "Service binding {{.Name}} created"
	e.templates["audit.service_binding.start_create"] = "Service binding {{.Name}} creation started, awaiting broker"
	e.templates["audit.service_binding.start_delete"] = "Service binding {{.Name}} deletion started, awaiting broker"
	e.templates["audit.service_binding.delete"] = "Service binding {{.Name}} deleted"
	e.templates["audit.service_key.create"] = "Service key {{.Name}} created"
	e.templates["audit.service_key.start_create"] = "Service key {{.Name}} creation started, awaiting broker"
	e.templates["audit.service_key.start_delete"] = "Service key {{.Name}} deletion started, awaiting broker"
	e.templates["audit.service_key.delete"] = "Service key {{.Name}} deleted"
}

// Render generates a log line for the given audit event.
func (e *MessageTemplateEngine) Render(event model.AuditEvent) string {
	template, exists := e.templates[event.Type]
	if !exists {
		return fmt.Sprintf("Event %s for %s %s", event.Type, event.ResourceType, event.ResourceGUID)
	}

	name := event.ResourceName
	if name == "" {
		name = event.ResourceGUID
	}
	replacer := strings.NewReplacer(
		"{{.Name}}", name,
		"{{.GUID}}", event.ResourceGUID,
	)
	return replacer.Replace(template)
}
