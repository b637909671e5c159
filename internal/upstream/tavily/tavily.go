// Package tavily implements the typed client for provider P-A.
package tavily

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/searchbridge/mcp-gateway/internal/upstream"
)

const defaultBaseURL = "https://api.tavily.com"

// Client calls the Tavily-shaped search/extract/crawl/map/research API.
type Client struct {
	http *upstream.Client
	base string
}

// New builds a Client with the shared upstream HTTP wrapper (breaker +
// correlation IDs) pointed at base, or defaultBaseURL if base is empty.
func New(base string, timeout time.Duration) *Client {
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{http: upstream.NewClient(base, timeout, "tavily"), base: base}
}

// SearchParams mirrors the tavily_search tool's arguments.
type SearchParams struct {
	Query      string `json:"query"`
	SearchDepth string `json:"search_depth,omitempty"`
	Topic      string `json:"topic,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
	IncludeAnswer bool `json:"include_answer,omitempty"`
}

type searchHit struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

type searchResponse struct {
	Results []searchHit `json:"results"`
	Answer  string      `json:"answer,omitempty"`
}

// Search runs a synchronous web search and normalises hits into the
// shared SearchResult shape, mapping content to Description.
func (c *Client) Search(ctx context.Context, secret string, params SearchParams) ([]upstream.SearchResult, error) {
	req, err := upstream.NewJSONRequest(ctx, http.MethodPost, c.base+"/search", params)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+secret)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Kind != upstream.KindOK {
		return nil, classifyBody(resp)
	}

	var parsed searchResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, &upstream.ClassifiedError{Kind: upstream.KindInvalidResponse, Status: resp.Status}
	}

	out := make([]upstream.SearchResult, 0, len(parsed.Results))
	for _, hit := range parsed.Results {
		out = append(out, upstream.SearchResult{Title: hit.Title, URL: hit.URL, Description: hit.Content})
	}
	return out, nil
}

// ExtractParams mirrors the tavily_extract tool's arguments.
type ExtractParams struct {
	URLs          []string `json:"urls"`
	ExtractDepth  string   `json:"extract_depth,omitempty"`
	IncludeImages bool     `json:"include_images,omitempty"`
}

// ExtractedPage is one page's extracted content.
type ExtractedPage struct {
	URL          string `json:"url"`
	RawContent   string `json:"raw_content"`
}

type extractResponse struct {
	Results      []ExtractedPage `json:"results"`
	FailedResults []string       `json:"failed_results,omitempty"`
}

// Extract fetches raw content for a set of URLs.
func (c *Client) Extract(ctx context.Context, secret string, params ExtractParams) (*extractResponse, error) {
	req, err := upstream.NewJSONRequest(ctx, http.MethodPost, c.base+"/extract", params)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+secret)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Kind != upstream.KindOK {
		return nil, classifyBody(resp)
	}

	var parsed extractResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, &upstream.ClassifiedError{Kind: upstream.KindInvalidResponse, Status: resp.Status}
	}
	return &parsed, nil
}

// CrawlParams mirrors the tavily_crawl tool's arguments.
type CrawlParams struct {
	URL      string `json:"url"`
	MaxDepth int    `json:"max_depth,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type crawlResponse struct {
	BaseURL string          `json:"base_url"`
	Results []ExtractedPage `json:"results"`
}

// Crawl walks a site starting at URL.
func (c *Client) Crawl(ctx context.Context, secret string, params CrawlParams) (*crawlResponse, error) {
	req, err := upstream.NewJSONRequest(ctx, http.MethodPost, c.base+"/crawl", params)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+secret)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Kind != upstream.KindOK {
		return nil, classifyBody(resp)
	}

	var parsed crawlResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, &upstream.ClassifiedError{Kind: upstream.KindInvalidResponse, Status: resp.Status}
	}
	return &parsed, nil
}

// MapParams mirrors the tavily_map tool's arguments.
type MapParams struct {
	URL      string `json:"url"`
	MaxDepth int    `json:"max_depth,omitempty"`
}

type mapResponse struct {
	BaseURL string   `json:"base_url"`
	Results []string `json:"results"`
}

// Map enumerates a site's reachable URLs.
func (c *Client) Map(ctx context.Context, secret string, params MapParams) (*mapResponse, error) {
	req, err := upstream.NewJSONRequest(ctx, http.MethodPost, c.base+"/map", params)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+secret)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Kind != upstream.KindOK {
		return nil, classifyBody(resp)
	}

	var parsed mapResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, &upstream.ClassifiedError{Kind: upstream.KindInvalidResponse, Status: resp.Status}
	}
	return &parsed, nil
}

// ResearchParams mirrors the tavily_research tool's arguments.
type ResearchParams struct {
	Query string `json:"query"`
	Model string `json:"model,omitempty"` // "mini" or "pro"
}

// ResearchResult is the completed report.
type ResearchResult struct {
	Report string `json:"report"`
}

type researchSubmitResponse struct {
	ID string `json:"id"`
}

type researchStatusResponse struct {
	Status string `json:"status"` // "pending", "completed", "failed"
	Report string `json:"report,omitempty"`
	Error  string `json:"error,omitempty"`
}

// researchCeiling returns the total time budget for a research model.
func researchCeiling(model string) time.Duration {
	if model == "pro" {
		return 15 * time.Minute
	}
	return 5 * time.Minute
}

// Research submits an asynchronous research job and polls it to
// completion with exponential backoff, bounded by a model-dependent
// total deadline.
func (c *Client) Research(ctx context.Context, secret string, params ResearchParams) (*ResearchResult, error) {
	req, err := upstream.NewJSONRequest(ctx, http.MethodPost, c.base+"/research", params)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+secret)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Kind != upstream.KindOK {
		return nil, classifyBody(resp)
	}

	var submitted researchSubmitResponse
	if err := json.Unmarshal(resp.Body, &submitted); err != nil {
		return nil, &upstream.ClassifiedError{Kind: upstream.KindInvalidResponse, Status: resp.Status}
	}

	ctx, cancel := context.WithTimeout(ctx, researchCeiling(params.Model))
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.Multiplier = 1.5
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0 // the context deadline governs the outer bound

	var result *ResearchResult
	err = backoff.Retry(func() error {
		pollReq, err := upstream.NewJSONRequest(ctx, http.MethodGet, c.base+"/research/"+submitted.ID, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		pollReq.Header.Set("Authorization", "Bearer "+secret)

		pollResp, err := c.http.Do(ctx, pollReq)
		if err != nil {
			return err
		}
		if pollResp.Kind != upstream.KindOK {
			return backoff.Permanent(classifyBody(pollResp))
		}

		var status researchStatusResponse
		if err := json.Unmarshal(pollResp.Body, &status); err != nil {
			return backoff.Permanent(&upstream.ClassifiedError{Kind: upstream.KindInvalidResponse, Status: pollResp.Status})
		}

		switch status.Status {
		case "completed":
			result = &ResearchResult{Report: status.Report}
			return nil
		case "failed":
			return backoff.Permanent(&upstream.ClassifiedError{Kind: upstream.KindProviderError, Message: status.Error})
		default:
			return fmt.Errorf("research job %s still %s", submitted.ID, status.Status)
		}
	}, backoff.WithContext(bo, ctx))

	if err != nil {
		if result != nil {
			return result, nil
		}
		return nil, err
	}
	return result, nil
}

// CreditSnapshot is the decoded credits payload for a single key.
type CreditSnapshot struct {
	KeyUsage               *int64 `json:"key_usage,omitempty"`
	KeyLimit               *int64 `json:"key_limit,omitempty"`
	KeyRemaining           *int64 `json:"key_remaining,omitempty"`
	AccountPlanUsage       *int64 `json:"account_plan_usage,omitempty"`
	AccountPlanLimit       *int64 `json:"account_plan_limit,omitempty"`
	AccountPayAsYouGoUsage *int64 `json:"account_pay_as_you_go_usage,omitempty"`
	AccountPayAsYouGoLimit *int64 `json:"account_pay_as_you_go_limit,omitempty"`
	AccountRemaining       *int64 `json:"account_remaining,omitempty"`
}

// GetCredits fetches the current credit usage for the key identified by
// secret.
func (c *Client) GetCredits(ctx context.Context, secret string) (*CreditSnapshot, error) {
	req, err := upstream.NewJSONRequest(ctx, http.MethodGet, c.base+"/usage", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+secret)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Kind != upstream.KindOK {
		return nil, classifyBody(resp)
	}

	var snapshot CreditSnapshot
	if err := json.Unmarshal(resp.Body, &snapshot); err != nil {
		return nil, &upstream.ClassifiedError{Kind: upstream.KindInvalidResponse, Status: resp.Status}
	}
	return &snapshot, nil
}

func classifyBody(resp *upstream.Response) error {
	var body struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	msg := ""
	if json.Unmarshal(resp.Body, &body) == nil {
		if body.Detail != "" {
			msg = body.Detail
		} else {
			msg = body.Message
		}
	}
	return &upstream.ClassifiedError{Kind: resp.Kind, Status: resp.Status, Message: msg}
}
