// ABOUTME: HTTP client for the upstream CRM API returning raw untyped JSON
// ABOUTME: Pass-through I/O boundary with bearer auth, NotFound signaling and field pagination
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/harperreed/dealsync/rawjson"
)

// ErrNotFound signals that the upstream explicitly reported the entity
// absent. Callers treat it as a deletion signal, not a failure.
var ErrNotFound = errors.New("upstream entity not found")

// StatusError is raised for any non-success, non-404 upstream status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream request failed: status=%d body=%s", e.Code, e.Body)
}

// ClientOptions configures the CRM client.
type ClientOptions struct {
	BaseURL    string
	APIToken   string
	HTTPClient *http.Client
	UserAgent  string
	PageLimit  int
}

// Client wraps the upstream CRM HTTP surface. It performs no shape
// normalization; everything it returns is decoded-but-untyped JSON.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	userAgent  string
	pageLimit  int
}

// NewClient creates a CRM client. The transport timeout is the only
// deadline this layer imposes; there are no retries, so transient and
// permanent upstream failures look the same to callers.
func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	pageLimit := opts.PageLimit
	if pageLimit <= 0 {
		pageLimit = 100
	}
	return &Client{
		baseURL:    baseURL,
		apiToken:   strings.TrimSpace(opts.APIToken),
		httpClient: httpClient,
		userAgent:  strings.TrimSpace(opts.UserAgent),
		pageLimit:  pageLimit,
	}
}

// envelope is the upstream transport framing. Unwrapping it is not
// normalization; the data member is returned untouched.
type envelope struct {
	Success        bool            `json:"success"`
	Data           json.RawMessage `json:"data"`
	AdditionalData json.RawMessage `json:"additional_data"`
}

// ListRecentDeals returns the most recently updated deals, newest first.
func (c *Client) ListRecentDeals(ctx context.Context, limit int) ([]any, error) {
	if limit <= 0 {
		limit = c.pageLimit
	}
	query := url.Values{}
	query.Set("sort", "update_time DESC")
	query.Set("limit", strconv.Itoa(limit))
	data, _, err := c.get(ctx, "/deals", query)
	if err != nil {
		return nil, err
	}
	return decodeArray(data)
}

// GetDeal fetches one raw deal. A 404 yields ErrNotFound, not an error
// wrapping a status.
func (c *Client) GetDeal(ctx context.Context, id int64) (map[string]any, error) {
	data, _, err := c.get(ctx, "/deals/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return nil, err
	}
	return decodeObject(data)
}

// GetDealProducts fetches the raw line items of a deal.
func (c *Client) GetDealProducts(ctx context.Context, id int64) ([]any, error) {
	data, _, err := c.get(ctx, "/deals/"+strconv.FormatInt(id, 10)+"/products", nil)
	if err != nil {
		return nil, err
	}
	return decodeArray(data)
}

// GetDealNotes fetches the raw notes of a deal.
func (c *Client) GetDealNotes(ctx context.Context, id int64) ([]any, error) {
	query := url.Values{}
	query.Set("deal_id", strconv.FormatInt(id, 10))
	data, _, err := c.get(ctx, "/notes", query)
	if err != nil {
		return nil, err
	}
	return decodeArray(data)
}

// GetDealFiles fetches the raw file entries of a deal.
func (c *Client) GetDealFiles(ctx context.Context, id int64) ([]any, error) {
	data, _, err := c.get(ctx, "/deals/"+strconv.FormatInt(id, 10)+"/files", nil)
	if err != nil {
		return nil, err
	}
	return decodeArray(data)
}

// ListDealFields fetches every custom-field definition, following
// pagination until exhausted. The next offset is chosen by priority:
// an explicit next-start hint, then offset+limit when a page-size hint
// is present, then offset+len(page); an empty page stops the walk.
func (c *Client) ListDealFields(ctx context.Context) ([]any, error) {
	var all []any
	offset := 0
	for {
		query := url.Values{}
		query.Set("start", strconv.Itoa(offset))
		query.Set("limit", strconv.Itoa(c.pageLimit))
		data, additional, err := c.get(ctx, "/dealFields", query)
		if err != nil {
			return nil, err
		}
		page, err := decodeArray(data)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return all, nil
		}
		all = append(all, page...)

		next, more := nextOffset(additional, offset, len(page))
		if !more {
			return all, nil
		}
		offset = next
	}
}

// nextOffset applies the pagination priority rules to the decoded
// additional_data member of a page response.
func nextOffset(additional map[string]any, offset, pageLen int) (int, bool) {
	pagination, _ := rawjson.AsObject(additional["pagination"])
	if pagination != nil {
		if more, ok := rawjson.AsBool(pagination["more_items_in_collection"]); ok && !more {
			return 0, false
		}
		if next, ok := rawjson.AsInt(pagination["next_start"]); ok {
			return int(next), true
		}
		if limit, ok := rawjson.AsInt(pagination["limit"]); ok && limit > 0 {
			return offset + int(limit), true
		}
	}
	return offset + pageLen, true
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, map[string]any, error) {
	if c.baseURL == "" {
		return nil, nil, fmt.Errorf("crm client has no base URL configured")
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading upstream response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &StatusError{Code: resp.StatusCode, Body: truncateBody(body)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, nil, fmt.Errorf("decoding upstream response: %w", err)
	}
	var additional map[string]any
	if len(env.AdditionalData) > 0 {
		_ = json.Unmarshal(env.AdditionalData, &additional)
	}
	return env.Data, additional, nil
}

func decodeObject(data json.RawMessage) (map[string]any, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, ErrNotFound
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("decoding upstream object: %w", err)
	}
	return obj, nil
}

func decodeArray(data json.RawMessage) ([]any, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var arr []any
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("decoding upstream list: %w", err)
	}
	return arr, nil
}

func truncateBody(body []byte) string {
	const max = 512
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max]
	}
	return s
}
