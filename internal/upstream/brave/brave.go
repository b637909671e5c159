// Package brave implements the typed client for provider P-B.
package brave

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/searchbridge/mcp-gateway/internal/upstream"
)

const defaultBaseURL = "https://api.search.brave.com/res/v1"

// Client calls the Brave-shaped web and local search API.
type Client struct {
	http *upstream.Client
	base string
}

// New builds a Client pointed at base, or defaultBaseURL if base is empty.
func New(base string, timeout time.Duration) *Client {
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{http: upstream.NewClient(base, timeout, "brave"), base: base}
}

// WebSearchParams mirrors the brave_web_search tool's arguments.
type WebSearchParams struct {
	Query   string
	Count   int
	Offset  int
}

type webResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

type webSearchResponse struct {
	Web struct {
		Results []webResult `json:"results"`
	} `json:"web"`
}

// WebSearch runs a web search, normalising hits into the shared
// SearchResult shape (Description falls back to the result's own
// description field — Brave already calls it that).
func (c *Client) WebSearch(ctx context.Context, apiKey string, params WebSearchParams) ([]upstream.SearchResult, error) {
	q := url.Values{}
	q.Set("q", params.Query)
	if params.Count > 0 {
		q.Set("count", strconv.Itoa(params.Count))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}

	req, err := upstream.NewJSONRequest(ctx, http.MethodGet, c.base+"/web/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Subscription-Token", apiKey)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Kind != upstream.KindOK {
		return nil, classifyBody(resp)
	}

	var parsed webSearchResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, &upstream.ClassifiedError{Kind: upstream.KindInvalidResponse, Status: resp.Status}
	}

	out := make([]upstream.SearchResult, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		out = append(out, upstream.SearchResult{Title: r.Title, URL: r.URL, Description: r.Description})
	}
	return out, nil
}

// LocalSearchParams mirrors the brave_local_search tool's arguments.
type LocalSearchParams struct {
	Query string
	Count int
}

type localResult struct {
	Name    string `json:"name"`
	Website string `json:"website"`
	Snippet string `json:"snippet"`
}

type localSearchResponse struct {
	Results []localResult `json:"results"`
}

// LocalSearch runs a local-business search, falling back to Snippet and
// then Name/Website when a normal description isn't present.
func (c *Client) LocalSearch(ctx context.Context, apiKey string, params LocalSearchParams) ([]upstream.SearchResult, error) {
	q := url.Values{}
	q.Set("q", params.Query)
	if params.Count > 0 {
		q.Set("count", strconv.Itoa(params.Count))
	}

	req, err := upstream.NewJSONRequest(ctx, http.MethodGet, c.base+"/local/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Subscription-Token", apiKey)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Kind != upstream.KindOK {
		return nil, classifyBody(resp)
	}

	var parsed localSearchResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, &upstream.ClassifiedError{Kind: upstream.KindInvalidResponse, Status: resp.Status}
	}

	out := make([]upstream.SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		desc := r.Snippet
		if desc == "" {
			desc = fmt.Sprintf("%s (%s)", r.Name, r.Website)
		}
		out = append(out, upstream.SearchResult{Title: r.Name, URL: r.Website, Description: desc})
	}
	return out, nil
}

func classifyBody(resp *upstream.Response) error {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := ""
	if json.Unmarshal(resp.Body, &body) == nil {
		msg = body.Error.Message
	}
	return &upstream.ClassifiedError{Kind: resp.Kind, Status: resp.Status, Message: msg}
}
