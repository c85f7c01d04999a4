// Package apiclient is the HTTP client for the hosted fieldwork backend.
// The offline layer treats the backend as a black box: request in, response
// or connectivity failure out. Server-side rejections come back as *APIError
// so callers can tell them apart from transport failures.
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
	"time"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// DefaultTimeout bounds every request so a hanging connection degrades to
// cache/offline behavior instead of hanging the caller.
const DefaultTimeout = 4 * time.Second

// Client is an HTTP client for the fieldwork backend.
type Client struct {
	BaseURL  string
	APIKey   string
	DeviceID string
	HTTP     *http.Client
}

// New creates a new backend client with the default bounded timeout.
func New(baseURL, apiKey, deviceID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		DeviceID: deviceID,
		HTTP:     &http.Client{Timeout: DefaultTimeout},
	}
}

// APIError is a structured error body from the server. Its presence means
// the server was reachable and rejected the request; retrying would repeat
// the rejection, so these are never queued.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsServerRejection reports whether err came from a reachable server that
// refused the request (as opposed to a connectivity failure).
func IsServerRejection(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return true
	}
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrNotFound)
}

// Response is a raw backend response for the dispatcher and orchestrator.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// OK reports whether the response is a 2xx.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// --- Entity DTOs ---

// CreateResult is the minimal body every create endpoint returns.
type CreateResult struct {
	ID string `json:"id"`
}

// WalkResponse represents a river walk from the server.
type WalkResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	RiverName string  `json:"river_name,omitempty"`
	WalkDate  string  `json:"walk_date,omitempty"`
	Notes     string  `json:"notes,omitempty"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
	DeletedAt *string `json:"deleted_at,omitempty"`
}

// SiteResponse represents a measurement site from the server.
type SiteResponse struct {
	ID         string   `json:"id"`
	WalkID     string   `json:"walk_id"`
	SiteNumber int      `json:"site_number"`
	SiteName   string   `json:"site_name,omitempty"`
	RiverWidth float64  `json:"river_width"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	CreatedAt  string   `json:"created_at"`
	UpdatedAt  string   `json:"updated_at"`
}

// PointResponse represents a measurement point from the server.
type PointResponse struct {
	ID               string   `json:"id"`
	SiteID           string   `json:"site_id"`
	PointNumber      int      `json:"point_number"`
	DistanceFromBank float64  `json:"distance_from_bank"`
	Depth            float64  `json:"depth"`
	Velocity         *float64 `json:"velocity,omitempty"`
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// --- Path builders (shared with the dispatcher and the CLI) ---

// WalksPath is the collection endpoint for river walks.
func (c *Client) WalksPath() string { return c.BaseURL + "/v1/walks" }

// WalkPath is the item endpoint for one river walk.
func (c *Client) WalkPath(id string) string { return c.BaseURL + "/v1/walks/" + url.PathEscape(id) }

// SitesPath lists sites, optionally filtered by walk.
func (c *Client) SitesPath(walkID string) string {
	if walkID == "" {
		return c.BaseURL + "/v1/sites"
	}
	return c.BaseURL + "/v1/sites?walk=" + url.QueryEscape(walkID)
}

// SitePath is the item endpoint for one site.
func (c *Client) SitePath(id string) string { return c.BaseURL + "/v1/sites/" + url.PathEscape(id) }

// PointsPath is the measurement-point collection for a site.
func (c *Client) PointsPath(siteID string) string { return c.SitePath(siteID) + "/points" }

// PhotosPath is the photo collection for a site.
func (c *Client) PhotosPath(siteID string) string { return c.SitePath(siteID) + "/photos" }

// SedimentPath is the sediment-sample collection for a site.
func (c *Client) SedimentPath(siteID string) string { return c.SitePath(siteID) + "/sediment" }

// PointPath is the item endpoint for one measurement point.
func (c *Client) PointPath(id string) string { return c.BaseURL + "/v1/points/" + url.PathEscape(id) }

// PhotoPath is the item endpoint for one site photo.
func (c *Client) PhotoPath(id string) string { return c.BaseURL + "/v1/photos/" + url.PathEscape(id) }

// SamplePath is the item endpoint for one sediment sample.
func (c *Client) SamplePath(id string) string {
	return c.BaseURL + "/v1/sediment/" + url.PathEscape(id)
}

// --- Core request plumbing ---

// Do sends a raw request. Transport-level failures (timeout, refused
// connection, DNS) return a non-nil error; any response from the server,
// including 4xx/5xx, returns a *Response with err == nil. The idempotency
// key, when non-empty, is sent so the server can deduplicate replays.
func (c *Client) Do(ctx context.Context, method, rawURL string, body []byte, idempotencyKey string) (*Response, error) {
	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if c.DeviceID != "" {
		req.Header.Set("X-Device-ID", c.DeviceID)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        respBody,
	}, nil
}

// Health hits /healthz to verify server reachability. Used by the
// connectivity monitor as its probe.
func (c *Client) Health(ctx context.Context) error {
	var resp HealthResponse
	if err := c.doJSON(ctx, "GET", "/healthz", nil, &resp); err != nil {
		return err
	}
	return nil
}

// GetWalks fetches all river walks directly from the server.
func (c *Client) GetWalks(ctx context.Context) ([]WalkResponse, error) {
	var out []WalkResponse
	if err := c.doJSON(ctx, "GET", "/v1/walks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSites fetches the sites for a walk directly from the server.
func (c *Client) GetSites(ctx context.Context, walkID string) ([]SiteResponse, error) {
	var out []SiteResponse
	if err := c.doJSON(ctx, "GET", "/v1/sites?walk="+url.QueryEscape(walkID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// doJSON executes an authenticated JSON request against a backend path and
// folds error responses into sentinel or *APIError values.
func (c *Client) doJSON(ctx context.Context, method, path string, body, result any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = data
	}

	resp, err := c.Do(ctx, method, c.BaseURL+path, payload, "")
	if err != nil {
		return err
	}
	if err := ResponseError(resp); err != nil {
		return err
	}

	if result != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// ResponseError converts a non-2xx response into a typed error: sentinel
// errors for the common auth classes, *APIError otherwise. Returns nil for
// 2xx responses.
func ResponseError(resp *Response) error {
	if resp.OK() {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.Status}
	_ = json.Unmarshal(resp.Body, apiErr) // body may not be JSON; status alone suffices

	switch resp.Status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrForbidden, apiErr.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
	default:
		return apiErr
	}
}
