// Package massupload provides a Go client SDK for the site mass upload API
package massupload

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

	"site-mass-upload/internal/models"
	"site-mass-upload/internal/templates"
)

// Request and response types shared with the server
type (
	TableConfig        = models.TableConfig
	ParseResult        = models.ParseResult
	ParsedRow          = models.ParsedRow
	CallerContext      = models.CallerContext
	RevalidateRequest  = models.RevalidateRequest
	RevalidateResponse = models.RevalidateResponse
	ImportRequest      = models.ImportRequest
	ImportResponse     = models.ImportResponse
	ImportRun          = models.ImportRun
)

var xlsxContentType = templates.FormatXLSX.ContentType()

// Client represents the mass upload API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	version    string
}

// ClientOption represents a client configuration option
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithToken sets the bearer token identifying the caller
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithVersion sets the API version
func WithVersion(version string) ClientOption {
	return func(c *Client) {
		c.version = version
	}
}

// NewClient creates a new mass upload client
func NewClient(baseURL string, options ...ClientOption) *Client {
	client := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		version: "v1",
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// EntitySummary is one entry of the entity catalogue
type EntitySummary struct {
	Name            string                      `json:"name"`
	DisplayName     string                      `json:"display_name"`
	Description     string                      `json:"description,omitempty"`
	RequiredContext []models.ContextRequirement `json:"required_context,omitempty"`
	Upsert          bool                        `json:"upsert"`
	FieldCount      int                         `json:"field_count"`
}

// Error represents an API error response
type Error struct {
	Message string `json:"error"`
	Type    string `json:"type"`
	Details string `json:"details,omitempty"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// HTTPStatus returns the response status code
func (e *Error) HTTPStatus() int {
	return e.Status
}

// ListEntities retrieves the importable entities
func (c *Client) ListEntities(ctx context.Context) ([]EntitySummary, error) {
	var result struct {
		Entities []EntitySummary `json:"entities"`
	}
	err := c.makeRequest(ctx, "GET", "/entities", nil, &result)
	return result.Entities, err
}

// GetEntity retrieves the full configuration of one entity
func (c *Client) GetEntity(ctx context.Context, entity string) (*TableConfig, error) {
	var result TableConfig
	err := c.makeRequest(ctx, "GET", "/entities/"+url.PathEscape(entity), nil, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Template downloads the upload template of an entity as csv or xlsx
func (c *Client) Template(ctx context.Context, entity, format string) ([]byte, error) {
	path := fmt.Sprintf("/entities/%s/template", url.PathEscape(entity))
	if format != "" {
		path += "?format=" + url.QueryEscape(format)
	}
	return c.makeRawRequest(ctx, "GET", path, "", nil)
}

// ParseOptions controls server-side parsing of an upload
type ParseOptions struct {
	Workbook    bool
	SkipSamples bool
}

// Parse uploads a file for parsing and returns the validated rows
func (c *Client) Parse(ctx context.Context, entity string, data []byte, opts *ParseOptions) (*ParseResult, error) {
	contentType := "text/csv"
	params := url.Values{}
	if opts != nil {
		if opts.Workbook {
			contentType = xlsxContentType
		}
		if opts.SkipSamples {
			params.Set("skip_samples", "true")
		}
	}

	path := fmt.Sprintf("/entities/%s/parse", url.PathEscape(entity))
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	body, err := c.makeRawRequest(ctx, "POST", path, contentType, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var result ParseResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// Revalidate re-runs validation and reference resolution on the server
func (c *Client) Revalidate(ctx context.Context, req *RevalidateRequest) (*RevalidateResponse, error) {
	var result RevalidateResponse
	if err := c.makeRequest(ctx, "POST", "/revalidate", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Import submits one batch of materialized rows
func (c *Client) Import(ctx context.Context, req *ImportRequest) (*ImportResponse, error) {
	var result ImportResponse
	if err := c.makeRequest(ctx, "POST", "/import", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListImports retrieves recent import runs, optionally for one entity
func (c *Client) ListImports(ctx context.Context, entity string, limit int) ([]ImportRun, error) {
	params := url.Values{}
	if entity != "" {
		params.Set("entity", entity)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	path := "/imports"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var result struct {
		Runs []ImportRun `json:"runs"`
	}
	err := c.makeRequest(ctx, "GET", path, nil, &result)
	return result.Runs, err
}

// GetImport retrieves one import run
func (c *Client) GetImport(ctx context.Context, id string) (*ImportRun, error) {
	var result ImportRun
	if err := c.makeRequest(ctx, "GET", "/imports/"+url.PathEscape(id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RefreshReferences drops cached reference lookups for one table, or all
// tables when table is empty
func (c *Client) RefreshReferences(ctx context.Context, table string) error {
	path := "/references/refresh"
	if table != "" {
		path += "?table=" + url.QueryEscape(table)
	}
	return c.makeRequest(ctx, "POST", path, nil, nil)
}

// Private helper methods

func (c *Client) makeRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	contentType := ""
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
		contentType = "application/json"
	}

	respBody, err := c.makeRawRequest(ctx, method, path, contentType, reqBody)
	if err != nil {
		return err
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

func (c *Client) makeRawRequest(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	url := fmt.Sprintf("%s/api/%s/mass-upload%s", c.baseURL, c.version, path)

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := Error{Status: resp.StatusCode}
		if err := json.Unmarshal(respBody, &apiErr); err != nil || apiErr.Message == "" {
			apiErr = Error{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		}
		return nil, &apiErr
	}

	return respBody, nil
}
