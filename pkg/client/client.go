package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/containerd/errdefs"

	"github.com/cuemby/rebalancer/pkg/api"
	"github.com/cuemby/rebalancer/pkg/events"
	"github.com/cuemby/rebalancer/pkg/strategy"
	"github.com/cuemby/rebalancer/pkg/types"
)

// DefaultTimeout bounds every request
const DefaultTimeout = 10 * time.Second

// Client wraps the rebalancer HTTP API for easy CLI usage
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// NewClient creates a client for the API at addr ("host:port" or a URL)
func NewClient(addr string) (*Client, error) {
	if addr == "" {
		return nil, errors.New("server address is required")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid server address %q: %w", addr, err)
	}

	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{},
		timeout: DefaultTimeout,
	}, nil
}

// CreateAudit creates a new audit
func (c *Client) CreateAudit(req api.CreateAuditRequest) (*types.Audit, error) {
	var a types.Audit
	if err := c.do(http.MethodPost, "/v1/audits", req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAudits lists all audits
func (c *Client) ListAudits() ([]*types.Audit, error) {
	var audits []*types.Audit
	if err := c.do(http.MethodGet, "/v1/audits", nil, &audits); err != nil {
		return nil, err
	}
	return audits, nil
}

// GetAudit gets an audit by ID
func (c *Client) GetAudit(id string) (*types.Audit, error) {
	var a types.Audit
	if err := c.do(http.MethodGet, "/v1/audits/"+url.PathEscape(id), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// DeleteAudit soft-deletes an audit
func (c *Client) DeleteAudit(id string) error {
	return c.do(http.MethodDelete, "/v1/audits/"+url.PathEscape(id), nil, nil)
}

// TriggerAudit queues an audit run. It returns once the run is queued.
func (c *Client) TriggerAudit(id string) (*types.Audit, error) {
	var a types.Audit
	if err := c.do(http.MethodPost, "/v1/audits/"+url.PathEscape(id)+"/trigger", nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// CancelAudit marks an audit cancelled
func (c *Client) CancelAudit(id string) (*types.Audit, error) {
	var a types.Audit
	if err := c.do(http.MethodPost, "/v1/audits/"+url.PathEscape(id)+"/cancel", nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetActionPlan gets the latest action plan of an audit
func (c *Client) GetActionPlan(auditID string) (*types.ActionPlan, error) {
	var plan types.ActionPlan
	if err := c.do(http.MethodGet, "/v1/audits/"+url.PathEscape(auditID)+"/actionplan", nil, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListGoals lists the goals in the catalog
func (c *Client) ListGoals() ([]*types.Goal, error) {
	var goals []*types.Goal
	if err := c.do(http.MethodGet, "/v1/goals", nil, &goals); err != nil {
		return nil, err
	}
	return goals, nil
}

// ListStrategies lists registered strategies, optionally for one goal
func (c *Client) ListStrategies(goal string) ([]strategy.Info, error) {
	path := "/v1/strategies"
	if goal != "" {
		path += "?goal=" + url.QueryEscape(goal)
	}
	var infos []strategy.Info
	if err := c.do(http.MethodGet, path, nil, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// PublishNotification posts a compute notification to the synchronizer
func (c *Client) PublishNotification(n *events.Notification) error {
	return c.do(http.MethodPost, "/v1/notifications", n, nil)
}

func (c *Client) do(method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError maps an API failure back to its error kind
func decodeError(resp *http.Response) error {
	var body api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		body.Error = resp.Status
	}

	var kind error
	switch resp.StatusCode {
	case http.StatusBadRequest:
		kind = errdefs.ErrInvalidArgument
	case http.StatusNotFound:
		kind = errdefs.ErrNotFound
	case http.StatusConflict:
		kind = errdefs.ErrConflict
	case http.StatusServiceUnavailable:
		kind = errdefs.ErrUnavailable
	default:
		kind = errdefs.ErrUnknown
	}
	return fmt.Errorf("%s: %w", body.Error, kind)
}
