package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marketmind/marketmind/pkg/model"
	"github.com/sony/gobreaker"
)

const defaultSearchBaseURL = "https://duckduckgo.com"

// MarketSearch is the interface to a live web/news search provider.
type MarketSearch interface {
	// Search returns up to limit ranked hits for the query. Transport or
	// payload failures are reported as model.ErrSourceUnavailable.
	Search(ctx context.Context, query string, limit int) ([]model.SearchHit, error)
}

// DuckDuckGo queries the DuckDuckGo news endpoint. A circuit breaker keeps a
// flapping provider from stalling every pipeline run; callers treat breaker
// rejections the same as any other source failure.
type DuckDuckGo struct {
	baseURL    string
	region     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

type DuckDuckGoOption func(*DuckDuckGo)

// WithRegion sets the search region code (e.g. "wt-wt", "us-en").
func WithRegion(region string) DuckDuckGoOption {
	return func(d *DuckDuckGo) {
		d.region = region
	}
}

// WithBaseURL overrides the provider endpoint. Used by tests.
func WithBaseURL(baseURL string) DuckDuckGoOption {
	return func(d *DuckDuckGo) {
		d.baseURL = baseURL
	}
}

func WithHTTPClient(client *http.Client) DuckDuckGoOption {
	return func(d *DuckDuckGo) {
		d.httpClient = client
	}
}

// NewDuckDuckGo creates a new DuckDuckGo news search client
func NewDuckDuckGo(opts ...DuckDuckGoOption) *DuckDuckGo {
	d := &DuckDuckGo{
		baseURL: defaultSearchBaseURL,
		region:  "wt-wt",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(d)
	}

	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "market-search",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
	})

	return d
}

type newsItem struct {
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
	Source  string `json:"source"`
	URL     string `json:"url"`
}

type newsPayload struct {
	Results []newsItem `json:"results"`
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]model.SearchHit, error) {
	result, err := d.breaker.Execute(func() (any, error) {
		return d.query(ctx, query)
	})
	if err != nil {
		return nil, goerr.Wrap(model.ErrSourceUnavailable, "news search failed",
			goerr.V("query", query), goerr.V("cause", err.Error()))
	}

	items := result.([]newsItem)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	hits := make([]model.SearchHit, 0, len(items))
	for _, item := range items {
		hits = append(hits, model.SearchHit{
			Title:   item.Title,
			Snippet: item.Excerpt,
			Source:  item.Source,
		})
	}
	return hits, nil
}

func (d *DuckDuckGo) query(ctx context.Context, query string) ([]newsItem, error) {
	endpoint := d.baseURL + "/news.js?" + url.Values{
		"q":  {query},
		"o":  {"json"},
		"kl": {d.region},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("unexpected status from news endpoint", goerr.V("status", resp.StatusCode))
	}

	var payload newsPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, goerr.Wrap(err, "failed to decode news payload")
	}

	return payload.Results, nil
}
