package actions

import "fmt"

// Unshare withdraws a service instance from a space it was shared into.
type Unshare struct {
	deps Deps
}

// NewUnshare creates the unshare action.
func NewUnshare(deps Deps) *Unshare {
	return &Unshare{deps: deps}
}

// Unshare removes one instance-space share and records the unshare audit
// event. Bindings created in the target space must be deleted first;
// enforcement of that lives with the caller.
func (a *Unshare) Unshare(instanceGUID, spaceGUID string, requestAttrs map[string]any) error {
	instance, err := a.deps.Store.Instance(instanceGUID)
	if err != nil {
		return fmt.Errorf("unsharing service instance %s from space %s failed: %w", instanceGUID, spaceGUID, err)
	}
	if err := a.deps.Store.RemoveShare(instanceGUID, spaceGUID); err != nil {
		return fmt.Errorf("unsharing service instance %s from space %s failed: %w", instanceGUID, spaceGUID, err)
	}
	a.deps.Events.RecordInstanceEvent("unshare", instance, requestAttrs)
	return nil
}
