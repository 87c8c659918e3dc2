package retrieval

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/SolveWise/server/internal/solver/model"
	logx "github.com/SolveWise/server/pkg/logger"
	"github.com/SolveWise/server/pkg/metrics"
)

const defaultTimeout = 10 * time.Second

// SearchRequest is the knowledge backend request body.
type SearchRequest struct {
	Query string `json:"query"`
}

// SearchResponse is the knowledge backend response body.
type SearchResponse struct {
	Found   bool            `json:"found"`
	Results []model.Passage `json:"results"`
}

// Retriever looks up lecture material for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) model.RetrievalResult
}

// Client queries the remote knowledge backend.
type Client struct {
	endpoint   string
	httpClient *resty.Client
}

// NewClient returns a client posting to endpoint. An empty endpoint yields a
// client that always reports "not found".
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := resty.New().
		SetHeader("User-Agent", "SolveWise-Knowledge/1.0").
		SetTimeout(timeout)

	return &Client{
		endpoint:   strings.TrimSpace(endpoint),
		httpClient: httpClient,
	}
}

func (c *Client) IsEnabled() bool {
	return c != nil && c.endpoint != ""
}

// Retrieve never fails: HTTP errors, transport errors, timeouts and empty
// result sets all come back as a not-found result.
func (c *Client) Retrieve(ctx context.Context, query string) model.RetrievalResult {
	query = strings.TrimSpace(query)
	if query == "" || !c.IsEnabled() {
		metrics.RetrievalTotal.WithLabelValues(metrics.RetrievalSkipped).Inc()
		return model.NotFound()
	}

	logx.Debug().Str("query", query).Msg("knowledge search request")

	var resp SearchResponse
	httpResp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(SearchRequest{Query: query}).
		SetResult(&resp).
		Post(c.endpoint)
	if err != nil {
		logx.Warn().Err(err).Str("endpoint", c.endpoint).Msg("knowledge backend unreachable")
		metrics.RetrievalTotal.WithLabelValues(metrics.RetrievalError).Inc()
		return model.NotFound()
	}
	if httpResp.IsError() {
		logx.Warn().Int("status", httpResp.StatusCode()).Str("endpoint", c.endpoint).Msg("knowledge backend error")
		metrics.RetrievalTotal.WithLabelValues(metrics.RetrievalError).Inc()
		return model.NotFound()
	}

	if !resp.Found || len(resp.Results) == 0 {
		logx.Debug().Str("query", query).Msg("no knowledge found, switching to web search")
		metrics.RetrievalTotal.WithLabelValues(metrics.RetrievalNotFound).Inc()
		return model.NotFound()
	}

	result := model.RetrievalResult{Found: true, Passages: resp.Results}
	logx.Debug().Strs("sources", result.Sources()).Msg("knowledge found")
	metrics.RetrievalTotal.WithLabelValues(metrics.RetrievalFound).Inc()
	return result
}

var _ Retriever = (*Client)(nil)
