package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"maestro/internal/jobs"
	"maestro/internal/model"
	"maestro/internal/osb"
	"maestro/pkg/logging"

	"github.com/pivotal-cf/brokerapi/v12/domain"
)

// UpdateAttrs is a partial update request. Nil pointer fields are "not
// supplied"; Parameters is opaque and forwarded to the broker untouched.
type UpdateAttrs struct {
	Name            *string
	Tags            *[]string
	SpaceGUID       *string
	Parameters      json.RawMessage
	ServicePlanGUID *string
	MaintenanceInfo *domain.MaintenanceInfo
}

// InstanceUpdate applies updates to a service instance, deciding per request
// whether a broker round-trip is needed or the change is purely local.
type InstanceUpdate struct {
	deps Deps
}

// NewInstanceUpdate creates the update orchestrator.
func NewInstanceUpdate(deps Deps) *InstanceUpdate {
	return &InstanceUpdate{deps: deps}
}

// Update drives one instance update. Name, tags and space are applied
// immediately and survive a later broker failure only if the broker was never
// involved; plan and maintenance info changes are deferred until the broker
// confirms the operation.
func (a *InstanceUpdate) Update(ctx context.Context, instanceGUID string, attrs UpdateAttrs, requestAttrs map[string]any, acceptsIncomplete bool) error {
	instance, err := a.deps.Store.Instance(instanceGUID)
	if err != nil {
		return err
	}

	guard, err := a.deps.Locker.LockInstance(instanceGUID, model.OperationUpdate)
	if err != nil {
		return err
	}
	if guard.Missing() {
		return fmt.Errorf("service instance %s not found", instanceGUID)
	}
	defer guard.AbortAndRestore()

	brokerNeeded := a.brokerUpdateRequired(instance, attrs)

	// Keep the pre-update values around so a broker rejection can undo the
	// eagerly applied attributes.
	priorName := instance.Name
	priorTags := instance.Tags
	priorSpace := instance.SpaceGUID

	if err := a.applyLocalAttrs(instanceGUID, attrs); err != nil {
		return err
	}

	if !brokerNeeded {
		if err := guard.Complete(); err != nil {
			return err
		}
		a.deps.Events.RecordInstanceEvent("update", instance, requestAttrs)
		return nil
	}

	plan, proposed, err := a.resolveProposed(instance, attrs)
	if err != nil {
		return err
	}

	currentPlan, err := a.deps.Store.Plan(instance.ServicePlanGUID)
	if err != nil {
		return fmt.Errorf("service plan %s: %w", instance.ServicePlanGUID, err)
	}

	result, err := a.deps.Broker.Update(ctx, osb.UpdateRequest{
		Instance:          instance,
		Plan:              plan,
		AcceptsIncomplete: acceptsIncomplete,
		Parameters:        attrs.Parameters,
		PreviousValues: domain.PreviousValues{
			PlanID:    currentPlan.BrokerProvidedID,
			ServiceID: currentPlan.ServiceBrokerProvidedID,
			OrgID:     instance.OrganizationGUID,
			SpaceID:   instance.SpaceGUID,
		},
		MaintenanceInfo: attrs.MaintenanceInfo,
	})
	if err != nil {
		a.rollbackLocalAttrs(instanceGUID, priorName, priorTags, priorSpace)
		return fmt.Errorf("update of service instance %s failed: %w", instance.Name, err)
	}

	if result.DashboardURL != nil {
		err = a.deps.Store.UpdateInstance(instanceGUID, func(si *model.ServiceInstance) error {
			si.DashboardURL = *result.DashboardURL
			return nil
		})
		if err != nil {
			return err
		}
	}

	if result.LastOperation.State == model.StateInProgress {
		a.deps.Events.RecordInstanceEvent("start_update", instance, requestAttrs)
		task := jobs.NewInstanceStateFetch(instanceGUID, requestAttrs, proposed, a.deps.pollerDeps())
		return guard.DeferToPoller(result.LastOperation.BrokerProvidedOperation, task, a.deps.firstPollAt())
	}

	if proposed != nil {
		err = a.deps.Store.UpdateInstance(instanceGUID, func(si *model.ServiceInstance) error {
			if proposed.ServicePlanGUID != "" {
				si.ServicePlanGUID = proposed.ServicePlanGUID
			}
			if proposed.MaintenanceInfo != nil {
				mi := *proposed.MaintenanceInfo
				si.MaintenanceInfo = &mi
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	if err := guard.Complete(); err != nil {
		return err
	}
	a.deps.Events.RecordInstanceEvent("update", instance, requestAttrs)
	return nil
}

// brokerUpdateRequired decides whether this update must round-trip to the
// broker. Purely local updates touch only tags, space, or a name change on a
// service that does not propagate context updates.
func (a *InstanceUpdate) brokerUpdateRequired(instance *model.ServiceInstance, attrs UpdateAttrs) bool {
	if len(attrs.Parameters) > 0 {
		return true
	}
	if attrs.Name != nil && *attrs.Name != instance.Name && instance.AllowContextUpdates {
		return true
	}
	if attrs.MaintenanceInfo != nil {
		return true
	}
	if attrs.ServicePlanGUID != nil && *attrs.ServicePlanGUID != instance.ServicePlanGUID {
		return true
	}
	return false
}

// resolveProposed resolves the requested plan and bundles the deferred
// attribute changes for the poller or the terminal-success path.
func (a *InstanceUpdate) resolveProposed(instance *model.ServiceInstance, attrs UpdateAttrs) (*model.ServicePlan, *jobs.ProposedChanges, error) {
	planGUID := instance.ServicePlanGUID
	proposed := &jobs.ProposedChanges{MaintenanceInfo: attrs.MaintenanceInfo}

	if attrs.ServicePlanGUID != nil && *attrs.ServicePlanGUID != instance.ServicePlanGUID {
		planGUID = *attrs.ServicePlanGUID
		proposed.ServicePlanGUID = planGUID
	}

	plan, err := a.deps.Store.Plan(planGUID)
	if err != nil {
		return nil, nil, fmt.Errorf("service plan %s: %w", planGUID, err)
	}

	if proposed.ServicePlanGUID == "" && proposed.MaintenanceInfo == nil {
		return plan, nil, nil
	}
	return plan, proposed, nil
}

func (a *InstanceUpdate) applyLocalAttrs(instanceGUID string, attrs UpdateAttrs) error {
	if attrs.Name == nil && attrs.Tags == nil && attrs.SpaceGUID == nil {
		return nil
	}
	return a.deps.Store.UpdateInstance(instanceGUID, func(si *model.ServiceInstance) error {
		if attrs.Name != nil {
			si.Name = *attrs.Name
		}
		if attrs.Tags != nil {
			si.Tags = append([]string(nil), (*attrs.Tags)...)
		}
		if attrs.SpaceGUID != nil {
			si.SpaceGUID = *attrs.SpaceGUID
		}
		return nil
	})
}

func (a *InstanceUpdate) rollbackLocalAttrs(instanceGUID, name string, tags []string, spaceGUID string) {
	err := a.deps.Store.UpdateInstance(instanceGUID, func(si *model.ServiceInstance) error {
		si.Name = name
		si.Tags = tags
		si.SpaceGUID = spaceGUID
		return nil
	})
	if err != nil {
		logging.Error("Actions", err, "Failed to roll back attributes for service instance %s", instanceGUID)
	}
}
