package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"shipment-tracker/internal/tracking"
)

// Client talks to a running shipment-tracker API server
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return NewClientWithTimeout(baseURL, 60*time.Second)
}

// NewClientWithTimeout creates a new API client with a custom request timeout.
// Tracking through the headless provider can take a while.
func NewClientWithTimeout(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetAPIKey sends key as a bearer token with every request
func (c *Client) SetAPIKey(key string) {
	c.apiKey = key
}

// APIError represents an error from the API
type APIError struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == 0 {
		return e.Message
	}
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// CarriersResponse lists what the server can track with
type CarriersResponse struct {
	Carriers  []string `json:"carriers"`
	Providers []string `json:"providers"`
}

// URLResponse is the answer of the tracking URL endpoint
type URLResponse struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
	TrackingURL    string `json:"tracking_url"`
}

type batchRequest struct {
	Requests []tracking.Request `json:"requests"`
}

type batchResponse struct {
	Results []tracking.Result `json:"results"`
}

// doRequest performs an HTTP request and turns error responses into APIError
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()

		var apiErr APIError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Message == "" {
			apiErr = APIError{
				Code:    resp.StatusCode,
				Message: resp.Status,
			}
		}
		apiErr.Code = resp.StatusCode
		return nil, &apiErr
	}

	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// HealthCheck checks if the API server is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Carriers returns the carriers and providers known to the server
func (c *Client) Carriers(ctx context.Context) (*CarriersResponse, error) {
	var out CarriersResponse
	if err := c.getJSON(ctx, "/api/carriers", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TrackingURL asks the server for the public tracking page of a shipment
func (c *Client) TrackingURL(ctx context.Context, carrier, trackingNumber, language string, params map[string]any) (string, error) {
	query := url.Values{}
	if language != "" {
		query.Set("lang", language)
	}
	encodeParams(query, "", params)

	var out URLResponse
	if err := c.getJSON(ctx, shipmentPath(carrier, trackingNumber, "url", query), &out); err != nil {
		return "", err
	}
	return out.TrackingURL, nil
}

// Track runs a single tracking call on the server
func (c *Client) Track(ctx context.Context, req tracking.Request) (*tracking.Result, error) {
	query := url.Values{}
	if req.Language != "" {
		query.Set("lang", req.Language)
	}
	if req.Provider != "" {
		query.Set("provider", req.Provider)
	}
	if req.Refresh {
		query.Set("refresh", strconv.FormatBool(true))
	}
	encodeParams(query, "", req.Params)

	var out tracking.Result
	if err := c.getJSON(ctx, shipmentPath(req.Carrier, req.TrackingNumber, "track", query), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TrackBatch runs several tracking calls in one request. Per-shipment
// failures are reported in Result.Err.
func (c *Client) TrackBatch(ctx context.Context, reqs []tracking.Request) ([]tracking.Result, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/track", batchRequest{Requests: reqs})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	for i := range out.Results {
		if out.Results[i].Error != "" {
			out.Results[i].Err = &APIError{Kind: out.Results[i].Kind, Message: out.Results[i].Error}
		}
	}
	return out.Results, nil
}

func shipmentPath(carrier, trackingNumber, action string, query url.Values) string {
	path := "/api/carriers/" + url.PathEscape(carrier) + "/" + action + "/" + url.PathEscape(trackingNumber)
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return path
}

// encodeParams flattens params into query keys. Nested maps become dotted
// keys, which is how the split tracking_url/endpoint_url form travels.
func encodeParams(query url.Values, prefix string, params map[string]any) {
	for key, value := range params {
		if prefix != "" {
			key = prefix + "." + key
		}
		switch v := value.(type) {
		case map[string]any:
			encodeParams(query, key, v)
		case map[string]string:
			for k, s := range v {
				query.Set(key+"."+k, s)
			}
		case []string:
			query[key] = append([]string(nil), v...)
		default:
			query.Set(key, fmt.Sprint(v))
		}
	}
}
