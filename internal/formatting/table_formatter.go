// Package formatting renders maestro records as tables for CLI output.
package formatting

import (
	"fmt"
	"io"
	"time"

	"maestro/internal/model"
	pkgstrings "maestro/pkg/strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TableFormatter provides rich table output formatting.
type TableFormatter struct {
	out io.Writer
}

// NewTableFormatter creates a table formatter writing to out.
func NewTableFormatter(out io.Writer) *TableFormatter {
	return &TableFormatter{out: out}
}

// FormatInstances renders service instances as a table.
func (f *TableFormatter) FormatInstances(instances []model.ServiceInstance) {
	if len(instances) == 0 {
		f.formatEmptyMessage("No service instances found")
		return
	}

	t := f.createTable()
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("GUID"),
		text.FgHiCyan.Sprint("NAME"),
		text.FgHiCyan.Sprint("SPACE"),
		text.FgHiCyan.Sprint("PLAN"),
		text.FgHiCyan.Sprint("LAST OPERATION"),
	})
	for _, instance := range instances {
		t.AppendRow(table.Row{
			instance.GUID,
			instance.Name,
			instance.SpaceGUID,
			instance.ServicePlanGUID,
			formatOperation(instance.LastOperation),
		})
	}
	t.Render()
}

// FormatBindings renders bindings and service keys as a table.
func (f *TableFormatter) FormatBindings(bindings []model.Binding) {
	if len(bindings) == 0 {
		f.formatEmptyMessage("No bindings found")
		return
	}

	t := f.createTable()
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("GUID"),
		text.FgHiCyan.Sprint("KIND"),
		text.FgHiCyan.Sprint("INSTANCE"),
		text.FgHiCyan.Sprint("APP"),
		text.FgHiCyan.Sprint("LAST OPERATION"),
	})
	for _, binding := range bindings {
		t.AppendRow(table.Row{
			binding.GUID,
			binding.Kind.ShortName(),
			binding.ServiceInstanceGUID,
			binding.AppGUID,
			formatOperation(binding.LastOperation),
		})
	}
	t.Render()
}

// FormatEvents renders audit events as a table, newest last.
func (f *TableFormatter) FormatEvents(events []model.AuditEvent) {
	if len(events) == 0 {
		f.formatEmptyMessage("No events recorded")
		return
	}

	t := f.createTable()
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("TIME"),
		text.FgHiCyan.Sprint("TYPE"),
		text.FgHiCyan.Sprint("RESOURCE"),
		text.FgHiCyan.Sprint("NAME"),
	})
	for _, event := range events {
		t.AppendRow(table.Row{
			event.CreatedAt.Format(time.RFC3339),
			event.Type,
			event.ResourceGUID,
			event.ResourceName,
		})
	}
	t.Render()
}

// createTable creates a new table with standard styling.
func (f *TableFormatter) createTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *TableFormatter) formatEmptyMessage(message string) {
	fmt.Fprintf(f.out, "%s\n", text.FgYellow.Sprint(message))
}

func formatOperation(op *model.LastOperation) string {
	if op == nil {
		return "-"
	}
	if op.Description == "" {
		return fmt.Sprintf("%s %s", op.Type, op.State)
	}
	desc := pkgstrings.TruncateDescription(op.Description, pkgstrings.DefaultDescriptionMaxLen)
	return fmt.Sprintf("%s %s: %s", op.Type, op.State, desc)
}
