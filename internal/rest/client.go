// Package rest is the request/response side of the engine: the idempotent
// order list fetch, the rider-initiated status mutation and the
// fire-and-forget location report. The push stream lives in internal/stream.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"riderSync/internal/auth"
	"riderSync/models"
)

// StatusError is a non-2xx HTTP response surfaced as an error.
// It implements StatusCode() so backoff.Classify can split 401/403 from
// the retryable rest.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// StatusCode returns the HTTP status code.
func (e *StatusError) StatusCode() int { return e.Code }

// Client talks to the order backend over plain JSON HTTP.
type Client struct {
	baseURL string
	session *auth.Session
	httpc   *http.Client
}

// NewClient builds a client for the given base URL and session.
// The 15 second timeout doubles as the per-request cancellation ceiling.
func NewClient(baseURL string, session *auth.Session) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
		httpc:   &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchOrders retrieves the complete snapshot of orders currently visible
// to this courier. Safe to call repeatedly; the endpoint is idempotent.
func (c *Client) FetchOrders(ctx context.Context) (models.Snapshot, error) {
	u := fmt.Sprintf("%s/orders?courier=%s", c.baseURL, url.QueryEscape(c.session.CourierID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch orders: %w", err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return snap, nil
}

// UpdateOrderStatus requests a status transition and returns the order as
// the server now sees it. Transition validity is checked by the caller;
// the server remains the authority.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.Order, error) {
	payload, err := json.Marshal(map[string]models.OrderStatus{"status": status})
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/order/%s/status", c.baseURL, url.PathEscape(orderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	var o models.Order
	if err := json.Unmarshal(body, &o); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &o, nil
}

// ReportLocation posts one position sample. Fire-and-forget from the
// engine's perspective: the caller logs failures and moves on.
func (c *Client) ReportLocation(ctx context.Context, s models.LocationSample) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s/courier/%s/location", c.baseURL, url.PathEscape(c.session.CourierID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if _, err := c.do(req); err != nil {
		return fmt.Errorf("report location: %w", err)
	}
	return nil
}

// do sends the request with auth headers and returns the body on 2xx,
// or a *StatusError otherwise.
func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", c.session.BearerHeader())
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
