// Package grantsgov provides a client for the public Grants.gov search2
// API. The endpoint is unauthenticated.
package grantsgov

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.grants.gov"

// Client performs opportunity searches against Grants.gov.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
}

// SearchRequest is the request body for POST /v1/api/search2.
type SearchRequest struct {
	Keyword        string `json:"keyword"`
	OppStatuses    string `json:"oppStatuses,omitempty"` // e.g. "forecasted|posted"
	Rows           int    `json:"rows"`
	StartRecordNum int    `json:"startRecordNum"`
}

// searchResponse is the full API envelope.
type searchResponse struct {
	ErrorCode int          `json:"errorcode"`
	Msg       string       `json:"msg"`
	Data      SearchResult `json:"data"`
}

// SearchResult holds the matching opportunities.
type SearchResult struct {
	HitCount int      `json:"hitCount"`
	OppHits  []OppHit `json:"oppHits"`
}

// OppHit is a single opportunity listing.
type OppHit struct {
	ID           string `json:"id"`
	Number       string `json:"number"`
	Title        string `json:"title"`
	AgencyName   string `json:"agencyName"`
	OpenDate     string `json:"openDate"`
	CloseDate    string `json:"closeDate"`
	OppStatus    string `json:"oppStatus"`
	Synopsis     string `json:"synopsis"`
	AwardCeiling string `json:"awardCeiling"`
}

// DetailURL returns the human-facing listing page for the opportunity.
func (h OppHit) DetailURL() string {
	return "https://www.grants.gov/search-results-detail/" + h.ID
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("grantsgov: status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus implements the status interface the retry policy inspects.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = url }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Grants.gov client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "grantsgov: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/api/search2", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "grantsgov: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "grantsgov: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "grantsgov: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result searchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "grantsgov: unmarshal response")
	}
	if result.ErrorCode != 0 {
		return nil, eris.Errorf("grantsgov: api error %d: %s", result.ErrorCode, result.Msg)
	}

	return &result.Data, nil
}
