package actions

import (
	"context"
	"errors"
	"fmt"

	"maestro/internal/model"
	"maestro/internal/store"
)

// RouteBindingDelete unbinds a route from a service instance. Route unbinds
// are synchronous only.
type RouteBindingDelete struct {
	deps Deps
}

// NewRouteBindingDelete creates the route unbind orchestrator.
func NewRouteBindingDelete(deps Deps) *RouteBindingDelete {
	return &RouteBindingDelete{deps: deps}
}

// Delete asks the broker to unbind the route and removes the local record.
func (a *RouteBindingDelete) Delete(ctx context.Context, routeBinding *model.RouteBinding) error {
	if err := a.deps.Broker.UnbindRoute(ctx, routeBinding); err != nil {
		return fmt.Errorf("deletion of the route binding for route %s failed: %w", routeBinding.RouteGUID, err)
	}
	if err := a.deps.Store.DeleteRouteBinding(routeBinding.GUID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}
