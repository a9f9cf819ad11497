package apiclient

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

	httpAdapter "github.com/YelzhanWeb/orderflow/internal/adapter/http"
	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/YelzhanWeb/orderflow/internal/interfaces"
	"github.com/YelzhanWeb/orderflow/internal/syncclient"
)

// Client talks to the order service REST API on behalf of one staff identity.
type Client struct {
	baseURL string
	actor   domain.StaffIdentity
	http    *http.Client
}

var _ syncclient.Fetcher = (*Client)(nil)

func New(baseURL string, actor domain.StaffIdentity, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		actor:   actor,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) FetchOrders(ctx context.Context) (syncclient.Snapshot, error) {
	var snapshot interfaces.OrderSnapshot
	if err := c.do(ctx, http.MethodGet, "/orders", nil, &snapshot); err != nil {
		return syncclient.Snapshot{}, err
	}
	return syncclient.Snapshot{Orders: snapshot.Orders, AsOf: snapshot.AsOf}, nil
}

func (c *Client) UpdateStatus(ctx context.Context, orderID string, status domain.Status) (*domain.Order, error) {
	var order domain.Order
	body := httpAdapter.UpdateStatusRequest{Status: string(status)}
	if err := c.do(ctx, http.MethodPatch, "/orders/"+url.PathEscape(orderID)+"/status", body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) AllowedNext(ctx context.Context, orderID string) ([]domain.Status, error) {
	var resp httpAdapter.AllowedNextResponse
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID)+"/allowed", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Allowed, nil
}

// do sends one request. Network failures and 5xx responses come back as
// TRANSPORT_ERROR; other failures carry the code the server reported.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
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
	setIdentity(req.Header, c.actor)

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return transportError(fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode), nil)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var e httpAdapter.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Code == "" {
			return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, e.Error)
		}
		return domain.NewTransitionError(e.Code, e.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return transportError("failed to decode response", err)
	}
	return nil
}

func setIdentity(h http.Header, actor domain.StaffIdentity) {
	if actor.ID == "" {
		return
	}
	h.Set(httpAdapter.HeaderStaffID, actor.ID)
	h.Set(httpAdapter.HeaderStaffRole, string(actor.Role))
	if len(actor.Zones) > 0 {
		h.Set(httpAdapter.HeaderStaffZones, strings.Join(actor.Zones, ","))
	}
}

func transportError(message string, cause error) error {
	te := domain.NewTransitionError(domain.CodeTransport, message)
	te.Cause = cause
	return te
}

// IsRetryable reports whether err may go away by repeating the request.
func IsRetryable(err error) bool {
	var te *domain.TransitionError
	return errors.As(err, &te) && te.Retryable()
}
