// Package babel provides a client for the Babel Street document search API,
// used to enrich vetting research with curated open-source reporting.
package babel

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/scrimworks/vendorvet/internal/resilience"
)

const (
	defaultAuthURL   = "https://authentication.babelstreet.com/v1/identity/token"
	defaultSearchURL = "https://documents.babelstreet.com/v1/search"

	// Babel Curated Topics attribute.
	curatedTopicsAttributeID = 439

	maxPageSize = 100
)

// Credentials holds the static credentials for token acquisition.
type Credentials struct {
	APIKey   string
	Username string
	Password string
}

// SearchRequest describes a document search.
type SearchRequest struct {
	AnyTerms    []string
	AllTerms    []string
	RecordCount int
	StartIndex  int
	DateStart   string // RFC3339, optional
	DateEnd     string // RFC3339, optional
}

// SearchResponse is the result of a document search.
type SearchResponse struct {
	Documents          []Document `json:"Documents"`
	TotalDocumentCount int        `json:"TotalDocumentCount"`
}

// Document is a single search hit.
type Document struct {
	ID        string `json:"DocumentId"`
	Title     string `json:"Title"`
	Snippet   string `json:"Snippet"`
	SourceURL string `json:"SourceUrl"`
	Published string `json:"DocumentDate"`
}

// Client searches Babel Street documents with automatic token handling.
type Client struct {
	creds     Credentials
	authURL   string
	searchURL string
	http      *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// Option configures the client.
type Option func(*Client)

// WithAuthURL overrides the token endpoint.
func WithAuthURL(url string) Option {
	return func(c *Client) { c.authURL = url }
}

// WithSearchURL overrides the search endpoint.
func WithSearchURL(url string) Option {
	return func(c *Client) { c.searchURL = url }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a Babel Street client.
func NewClient(creds Credentials, opts ...Option) *Client {
	c := &Client{
		creds:     creds,
		authURL:   defaultAuthURL,
		searchURL: defaultSearchURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Message      string `json:"message"`
}

// authenticate acquires a token pair. When useRefresh is set and a refresh
// token is held, the refresh token is included in the request.
func (c *Client) authenticate(ctx context.Context, useRefresh bool) error {
	c.mu.Lock()
	payload := map[string]string{
		"username": c.creds.Username,
		"password": c.creds.Password,
	}
	if useRefresh && c.refreshToken != "" {
		payload["refresh_token"] = c.refreshToken
	}
	c.mu.Unlock()

	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "babel: marshal auth payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "babel: create auth request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.creds.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "babel: send auth request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "babel: read auth response")
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return resilience.NewTransientError(
			eris.Errorf("babel: auth status %d", resp.StatusCode), resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.Unmarshal(respBody, &tok); err != nil {
		return eris.Wrap(err, "babel: unmarshal auth response")
	}
	if resp.StatusCode != http.StatusOK || tok.AccessToken == "" {
		return eris.Errorf("babel: auth failed with status %d: %s", resp.StatusCode, tok.Message)
	}

	c.mu.Lock()
	c.accessToken = tok.AccessToken
	c.refreshToken = tok.RefreshToken
	c.mu.Unlock()
	return nil
}

func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// Search runs a single page of document search, refreshing the token and
// retrying once on 401.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if c.token() == "" {
		if err := c.authenticate(ctx, true); err != nil {
			return nil, err
		}
	}

	resp, status, err := c.doSearch(ctx, req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		if err := c.authenticate(ctx, true); err != nil {
			// Refresh path failed, fall back to fresh credentials.
			if err := c.authenticate(ctx, false); err != nil {
				return nil, err
			}
		}
		resp, status, err = c.doSearch(ctx, req)
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		err := eris.Errorf("babel: search status %d", status)
		if resilience.IsTransientHTTPStatus(status) {
			return nil, resilience.NewTransientError(err, status)
		}
		return nil, err
	}
	return resp, nil
}

// SearchAll pages through all matching documents.
func (c *Client) SearchAll(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	var all []Document
	req.RecordCount = maxPageSize
	req.StartIndex = 0

	for {
		page, err := c.Search(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(page.Documents) == 0 {
			break
		}
		all = append(all, page.Documents...)
		req.StartIndex += len(page.Documents)
		if req.StartIndex >= page.TotalDocumentCount || len(page.Documents) < maxPageSize {
			break
		}
	}

	return &SearchResponse{Documents: all, TotalDocumentCount: len(all)}, nil
}

func (c *Client) doSearch(ctx context.Context, req SearchRequest) (*SearchResponse, int, error) {
	recordCount := req.RecordCount
	if recordCount <= 0 {
		recordCount = 10
	}

	searchTerms := map[string][]string{}
	if len(req.AnyTerms) > 0 {
		searchTerms["Any"] = req.AnyTerms
	}
	if len(req.AllTerms) > 0 {
		searchTerms["All"] = req.AllTerms
	}

	params := map[string]any{
		"SearchTerms":      searchTerms,
		"AttributeTypeIds": []int{curatedTopicsAttributeID},
	}
	if req.DateStart != "" {
		params["DocumentDateRangeStart"] = req.DateStart
	}
	if req.DateEnd != "" {
		params["DocumentDateRangeEnd"] = req.DateEnd
	}

	body, err := json.Marshal(map[string]any{
		"StartIndex":           req.StartIndex,
		"RecordCount":          recordCount,
		"DocumentSearchParams": params,
	})
	if err != nil {
		return nil, 0, eris.Wrap(err, "babel: marshal search payload")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.searchURL, bytes.NewReader(body))
	if err != nil {
		return nil, 0, eris.Wrap(err, "babel: create search request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.creds.APIKey)
	httpReq.Header.Set("token", c.token())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, 0, eris.Wrap(err, "babel: send search request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, eris.Wrap(err, "babel: read search response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, 0, eris.Wrap(err, "babel: unmarshal search response")
	}
	return &result, resp.StatusCode, nil
}
