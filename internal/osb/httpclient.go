package osb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"maestro/internal/model"
	"maestro/pkg/logging"

	"github.com/pivotal-cf/brokerapi/v12/domain"
)

const brokerAPIVersion = "2.15"

// Directory resolves the catalog records an HTTP broker call needs: the
// broker wire format identifies instances by service_id/plan_id, which live
// on the plan record rather than on the resource being operated on.
type Directory interface {
	InstanceByGUID(guid string) (*model.ServiceInstance, error)
	PlanByGUID(guid string) (*model.ServicePlan, error)
}

// HTTPClient implements Client against a real OSB v2 broker endpoint.
type HTTPClient struct {
	base     *url.URL
	username string
	password string
	http     *http.Client
	dir      Directory
}

// NewHTTPClient builds a broker client for the given endpoint. The request
// timeout bounds every individual call; long-running operations are handled
// by asynchronous responses, never by long requests.
func NewHTTPClient(endpoint, username, password string, timeout time.Duration, dir Directory) (*HTTPClient, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid broker endpoint %q: %w", endpoint, err)
	}
	return &HTTPClient{
		base:     base,
		username: username,
		password: password,
		http:     &http.Client{Timeout: timeout},
		dir:      dir,
	}, nil
}

type provisionRequestBody struct {
	ServiceID        string          `json:"service_id"`
	PlanID           string          `json:"plan_id"`
	OrganizationGUID string          `json:"organization_guid"`
	SpaceGUID        string          `json:"space_guid"`
	Parameters       json.RawMessage `json:"parameters,omitempty"`
}

type updateRequestBody struct {
	ServiceID       string                  `json:"service_id"`
	PlanID          string                  `json:"plan_id,omitempty"`
	Parameters      json.RawMessage         `json:"parameters,omitempty"`
	PreviousValues  domain.PreviousValues   `json:"previous_values"`
	MaintenanceInfo *domain.MaintenanceInfo `json:"maintenance_info,omitempty"`
}

type bindRequestBody struct {
	ServiceID  string          `json:"service_id"`
	PlanID     string          `json:"plan_id"`
	AppGUID    string          `json:"app_guid,omitempty"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

type asyncResponseBody struct {
	Operation       string               `json:"operation"`
	DashboardURL    string               `json:"dashboard_url"`
	Credentials     json.RawMessage      `json:"credentials"`
	SyslogDrainURL  string               `json:"syslog_drain_url"`
	VolumeMounts    []domain.VolumeMount `json:"volume_mounts"`
	RouteServiceURL string               `json:"route_service_url"`
	State           string               `json:"state"`
	Description     string               `json:"description"`
	Parameters      json.RawMessage      `json:"parameters"`
}

// Provision implements Client.
func (c *HTTPClient) Provision(ctx context.Context, instance *model.ServiceInstance, plan *model.ServicePlan, parameters json.RawMessage, acceptsIncomplete bool) (ProvisionResult, error) {
	body := provisionRequestBody{
		ServiceID:        plan.ServiceBrokerProvidedID,
		PlanID:           plan.BrokerProvidedID,
		OrganizationGUID: instance.OrganizationGUID,
		SpaceGUID:        instance.SpaceGUID,
		Parameters:       parameters,
	}
	resp, parsed, err := c.do(ctx, http.MethodPut, c.instancePath(instance.GUID), incompleteQuery(acceptsIncomplete), body)
	if err != nil {
		return ProvisionResult{}, err
	}
	return ProvisionResult{
		Async:        resp.StatusCode == http.StatusAccepted,
		Operation:    parsed.Operation,
		DashboardURL: parsed.DashboardURL,
	}, nil
}

// Deprovision implements Client.
func (c *HTTPClient) Deprovision(ctx context.Context, instance *model.ServiceInstance, acceptsIncomplete bool) (DeprovisionResult, error) {
	query, err := c.brokerIDQuery(instance, acceptsIncomplete)
	if err != nil {
		return DeprovisionResult{}, err
	}
	resp, parsed, err := c.do(ctx, http.MethodDelete, c.instancePath(instance.GUID), query, nil)
	if err != nil {
		return DeprovisionResult{}, err
	}
	return DeprovisionResult{
		Async:     resp.StatusCode == http.StatusAccepted,
		Operation: parsed.Operation,
	}, nil
}

// Update implements Client. The returned UpdateResult carries a
// broker-shaped last operation even on rejection so callers can inspect it.
func (c *HTTPClient) Update(ctx context.Context, req UpdateRequest) (UpdateResult, error) {
	body := updateRequestBody{
		ServiceID:       req.Plan.ServiceBrokerProvidedID,
		PlanID:          req.Plan.BrokerProvidedID,
		Parameters:      req.Parameters,
		PreviousValues:  req.PreviousValues,
		MaintenanceInfo: req.MaintenanceInfo,
	}
	resp, parsed, err := c.do(ctx, http.MethodPatch, c.instancePath(req.Instance.GUID), incompleteQuery(req.AcceptsIncomplete), body)
	if err != nil {
		if IsRejected(err) {
			return UpdateResult{
				LastOperation: model.LastOperation{
					Type:        model.OperationUpdate,
					State:       model.StateFailed,
					Description: err.Error(),
				},
			}, err
		}
		return UpdateResult{}, err
	}

	result := UpdateResult{
		LastOperation: model.LastOperation{
			Type:                    model.OperationUpdate,
			State:                   model.StateSucceeded,
			BrokerProvidedOperation: parsed.Operation,
		},
	}
	if resp.StatusCode == http.StatusAccepted {
		result.LastOperation.State = model.StateInProgress
	}
	if parsed.DashboardURL != "" {
		result.DashboardURL = &parsed.DashboardURL
	}
	return result, nil
}

// Bind implements Client.
func (c *HTTPClient) Bind(ctx context.Context, binding *model.Binding, parameters json.RawMessage, acceptsIncomplete bool) (BindResult, error) {
	_, plan, err := c.resolve(binding.ServiceInstanceGUID)
	if err != nil {
		return BindResult{}, err
	}
	body := bindRequestBody{
		ServiceID:  plan.ServiceBrokerProvidedID,
		PlanID:     plan.BrokerProvidedID,
		AppGUID:    binding.AppGUID,
		Parameters: parameters,
	}
	resp, parsed, err := c.do(ctx, http.MethodPut, c.bindingPath(binding), incompleteQuery(acceptsIncomplete), body)
	if err != nil {
		return BindResult{}, err
	}
	return BindResult{
		Async:     resp.StatusCode == http.StatusAccepted,
		Operation: parsed.Operation,
		Details: BindingDetails{
			Credentials:    parsed.Credentials,
			SyslogDrainURL: parsed.SyslogDrainURL,
			VolumeMounts:   parsed.VolumeMounts,
		},
	}, nil
}

// CreateServiceKey implements Client. On the wire a service key is a binding
// without an app.
func (c *HTTPClient) CreateServiceKey(ctx context.Context, key *model.Binding, parameters json.RawMessage, acceptsIncomplete bool) (BindResult, error) {
	return c.Bind(ctx, key, parameters, acceptsIncomplete)
}

// Unbind implements Client.
func (c *HTTPClient) Unbind(ctx context.Context, binding *model.Binding, acceptsIncomplete bool) (UnbindResult, error) {
	instance, err := c.dir.InstanceByGUID(binding.ServiceInstanceGUID)
	if err != nil {
		return UnbindResult{}, &TransientError{Op: "unbind", Err: err}
	}
	query, err := c.brokerIDQuery(instance, acceptsIncomplete)
	if err != nil {
		return UnbindResult{}, err
	}
	resp, parsed, err := c.do(ctx, http.MethodDelete, c.bindingPath(binding), query, nil)
	if err != nil {
		return UnbindResult{}, err
	}
	return UnbindResult{
		Async:     resp.StatusCode == http.StatusAccepted,
		Operation: parsed.Operation,
	}, nil
}

// UnbindRoute implements Client. Route unbinds are always synchronous.
func (c *HTTPClient) UnbindRoute(ctx context.Context, routeBinding *model.RouteBinding) error {
	instance, err := c.dir.InstanceByGUID(routeBinding.ServiceInstanceGUID)
	if err != nil {
		return &TransientError{Op: "unbind route", Err: err}
	}
	query, err := c.brokerIDQuery(instance, false)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/v2/service_instances/%s/service_bindings/%s", instance.GUID, routeBinding.GUID)
	_, _, err = c.do(ctx, http.MethodDelete, path, query, nil)
	return err
}

// FetchInstanceLastOperation implements Client.
func (c *HTTPClient) FetchInstanceLastOperation(ctx context.Context, instance *model.ServiceInstance) (LastOperationResult, error) {
	return c.fetchLastOperation(ctx, c.instancePath(instance.GUID)+"/last_operation", instance.LastOperation)
}

// FetchBindingLastOperation implements Client.
func (c *HTTPClient) FetchBindingLastOperation(ctx context.Context, binding *model.Binding) (LastOperationResult, error) {
	return c.fetchLastOperation(ctx, c.bindingPath(binding)+"/last_operation", binding.LastOperation)
}

// FetchInstance implements Client.
func (c *HTTPClient) FetchInstance(ctx context.Context, instance *model.ServiceInstance) (InstanceDetails, error) {
	_, parsed, err := c.do(ctx, http.MethodGet, c.instancePath(instance.GUID), url.Values{}, nil)
	if err != nil {
		return InstanceDetails{}, err
	}
	return InstanceDetails{DashboardURL: parsed.DashboardURL, Parameters: parsed.Parameters}, nil
}

// FetchBinding implements Client.
func (c *HTTPClient) FetchBinding(ctx context.Context, binding *model.Binding) (BindingDetails, error) {
	_, parsed, err := c.do(ctx, http.MethodGet, c.bindingPath(binding), url.Values{}, nil)
	if err != nil {
		return BindingDetails{}, err
	}
	return BindingDetails{
		Credentials:     parsed.Credentials,
		SyslogDrainURL:  parsed.SyslogDrainURL,
		VolumeMounts:    parsed.VolumeMounts,
		RouteServiceURL: parsed.RouteServiceURL,
	}, nil
}

func (c *HTTPClient) fetchLastOperation(ctx context.Context, path string, op *model.LastOperation) (LastOperationResult, error) {
	query := url.Values{}
	if op != nil && op.BrokerProvidedOperation != "" {
		query.Set("operation", op.BrokerProvidedOperation)
	}
	resp, parsed, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return LastOperationResult{}, err
	}
	if resp.StatusCode == http.StatusGone {
		return LastOperationResult{Gone: true}, nil
	}
	return LastOperationResult{
		State:       model.OperationState(parsed.State),
		Description: parsed.Description,
	}, nil
}

func (c *HTTPClient) instancePath(guid string) string {
	return "/v2/service_instances/" + guid
}

func (c *HTTPClient) bindingPath(binding *model.Binding) string {
	return fmt.Sprintf("/v2/service_instances/%s/service_bindings/%s", binding.ServiceInstanceGUID, binding.GUID)
}

func (c *HTTPClient) resolve(instanceGUID string) (*model.ServiceInstance, *model.ServicePlan, error) {
	instance, err := c.dir.InstanceByGUID(instanceGUID)
	if err != nil {
		return nil, nil, &TransientError{Op: "resolve instance", Err: err}
	}
	plan, err := c.dir.PlanByGUID(instance.ServicePlanGUID)
	if err != nil {
		return nil, nil, &TransientError{Op: "resolve plan", Err: err}
	}
	return instance, plan, nil
}

func (c *HTTPClient) brokerIDQuery(instance *model.ServiceInstance, acceptsIncomplete bool) (url.Values, error) {
	plan, err := c.dir.PlanByGUID(instance.ServicePlanGUID)
	if err != nil {
		return nil, &TransientError{Op: "resolve plan", Err: err}
	}
	query := incompleteQuery(acceptsIncomplete)
	query.Set("service_id", plan.ServiceBrokerProvidedID)
	query.Set("plan_id", plan.BrokerProvidedID)
	return query, nil
}

func incompleteQuery(acceptsIncomplete bool) url.Values {
	query := url.Values{}
	if acceptsIncomplete {
		query.Set("accepts_incomplete", "true")
	}
	return query
}

// do performs one broker request and maps the response onto the error
// taxonomy: transport failures and 5xx answers are transient, other
// unexpected statuses are rejections.
func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, asyncResponseBody, error) {
	var parsed asyncResponseBody

	target := *c.base
	target.Path = target.Path + path
	target.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, parsed, fmt.Errorf("failed to encode broker request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, parsed, fmt.Errorf("failed to build broker request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("X-Broker-API-Version", brokerAPIVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, parsed, &TransientError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, parsed, &TransientError{Op: method + " " + path, Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, parsed, &TransientError{Op: method + " " + path, Err: fmt.Errorf("broker returned status %d", resp.StatusCode)}
	case resp.StatusCode >= 400 && resp.StatusCode != http.StatusGone:
		description := ""
		var errBody struct {
			Description string `json:"description"`
		}
		if json.Unmarshal(data, &errBody) == nil {
			description = errBody.Description
		}
		return nil, parsed, &RejectedError{Op: method + " " + path, StatusCode: resp.StatusCode, Description: description}
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &parsed); err != nil {
			logging.Debug("OSB", "Ignoring malformed broker response body for %s %s: %v", method, path, err)
		}
	}
	return resp, parsed, nil
}
