package provider

import (
	"context"

	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/config"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/domain"
	"github.com/go-resty/resty/v2"
)

// SearchResult is one organic web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// SearchClient queries a Serper-compatible web search API. Enrichment
// handlers fan company-level queries through it and feed the snippets to the
// extraction model.
type SearchClient struct {
	client  *resty.Client
	baseURL string
}

// NewSearchClient creates a SearchClient from configuration.
func NewSearchClient(cfg *config.SearchProviderConfig) *SearchClient {
	client := resty.New()
	client.SetHeader("X-API-KEY", cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(cfg.Timeout)

	return &SearchClient{
		client:  client,
		baseURL: cfg.BaseURL,
	}
}

type searchRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
}

type searchResponse struct {
	Organic []SearchResult `json:"organic"`
}

// Search runs one web search and returns up to num organic results.
// Failures carry the domain error taxonomy so callers can route retries.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - query: search query string.
//   - num: maximum results to request.
// Returns:
//   - []SearchResult: organic hits, possibly empty.
//   - error: transient, rate-limited, or permanent per the response.
func (c *SearchClient) Search(ctx context.Context, query string, num int) ([]SearchResult, error) {
	var result searchResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(searchRequest{Q: query, Num: num}).
		SetResult(&result).
		Post(c.baseURL + "/search")

	if err != nil {
		return nil, domain.Transient("search", err)
	}
	if err := classifyResponse("search", resp); err != nil {
		return nil, err
	}
	return result.Organic, nil
}
