// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package openalex is the typed client for the OpenAlex works API. Every
// request, retries included, waits on the shared rate limiter first.
package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pdiddy/citation-crawler/internal/httputil"
	"github.com/pdiddy/citation-crawler/internal/metrics"
	"github.com/pdiddy/citation-crawler/internal/ratelimit"
	crawlerr "github.com/pdiddy/citation-crawler/pkg/errors"
	"github.com/pdiddy/citation-crawler/pkg/types"
)

// DefaultBaseURL is the OpenAlex API root.
const DefaultBaseURL = "https://api.openalex.org"

const (
	// MaxPerPage is the largest page the works endpoint serves.
	MaxPerPage = 200
	// MaxBatch is the largest pipe-delimited id list one filter accepts.
	MaxBatch = 50
	// maxPagedResults is the basic-paging ceiling (page * per_page).
	maxPagedResults = 10000

	defaultUserAgent = "citation-crawler/0.1"
	errBodyLimit     = 512
)

// Client talks to the works endpoint.
type Client struct {
	http       *http.Client
	base       string
	contact    string
	userAgent  string
	maxPerPage int
	limiter    *ratelimit.Limiter
	policy     httputil.RetryPolicy
	metrics    *metrics.Metrics
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithRetryPolicy replaces the policy derived from configuration.
func WithRetryPolicy(p httputil.RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// New builds a client from cfg. A nil limiter gets one sized for the tier
// cfg.ContactEmail selects.
func New(cfg types.GraphConfig, limiter *ratelimit.Limiter, opts ...Option) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	perPage := cfg.MaxPerPage
	if perPage <= 0 || perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if limiter == nil {
		limiter = ratelimit.New(cfg.Rate, cfg.ContactEmail)
	}

	c := &Client{
		http:       &http.Client{Timeout: timeout},
		base:       base,
		contact:    strings.TrimSpace(cfg.ContactEmail),
		userAgent:  ua,
		maxPerPage: perPage,
		limiter:    limiter,
		policy:     httputil.PolicyFrom(cfg.Retry),
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// get issues one GET against path and decodes the JSON body into out.
// endpoint labels metrics and errors.
func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	if c.contact != "" {
		params.Set("mailto", c.contact)
	}
	reqURL := c.base + path
	if enc := params.Encode(); enc != "" {
		reqURL += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return crawlerr.Wrap(err, crawlerr.CodeGraphRejected, "creating request", crawlerr.Field("endpoint", endpoint))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.policy, c.limiter.Acquire)
	if err != nil {
		c.metrics.GraphRequest(endpoint, "transient")
		return crawlerr.Wrap(err, crawlerr.CodeGraphTransient,
			fmt.Sprintf("OpenAlex %s request", endpoint), crawlerr.Field("endpoint", endpoint))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		c.metrics.GraphRequest(endpoint, "not_found")
		return crawlerr.New(crawlerr.CodeGraphNotFound,
			fmt.Sprintf("OpenAlex %s: not found", endpoint), crawlerr.Field("path", path))
	case httputil.Retryable(resp.StatusCode):
		c.metrics.GraphRequest(endpoint, "transient")
		return crawlerr.New(crawlerr.CodeGraphTransient,
			fmt.Sprintf("OpenAlex %s returned HTTP %d after %d attempts", endpoint, resp.StatusCode, c.policy.MaxAttempts),
			crawlerr.Field("status", resp.StatusCode))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		c.metrics.GraphRequest(endpoint, "rejected")
		return crawlerr.New(crawlerr.CodeGraphRejected,
			fmt.Sprintf("OpenAlex %s returned HTTP %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body))),
			crawlerr.Field("status", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.metrics.GraphRequest(endpoint, "malformed")
		return crawlerr.Wrap(err, crawlerr.CodeGraphMalformed,
			fmt.Sprintf("parsing OpenAlex %s response", endpoint))
	}
	c.metrics.GraphRequest(endpoint, "ok")
	return nil
}

// GetWork fetches one work by W id or canonical DOI. A missing work returns
// an error for which errors.IsNotFound is true.
func (c *Client) GetWork(ctx context.Context, id types.PaperID) (types.Work, error) {
	if id.IsZero() {
		return types.Work{}, crawlerr.New(crawlerr.CodeGraphRejected, "empty work id")
	}
	var w apiWork
	if err := c.get(ctx, "work", "/works/"+string(id), nil, &w); err != nil {
		return types.Work{}, err
	}
	if w.ID == "" {
		return types.Work{}, crawlerr.New(crawlerr.CodeGraphMalformed,
			"OpenAlex work response has no id", crawlerr.FieldPaper(string(id)))
	}
	return w.toWork(), nil
}

// Search returns up to n works matching query in relevance order.
func (c *Client) Search(ctx context.Context, query string, n int) ([]types.Work, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, crawlerr.New(crawlerr.CodeGraphRejected, "empty OpenAlex query")
	}
	params := url.Values{"search": {query}}

	var works []types.Work
	err := c.paginate(ctx, "search", params, n, func(w apiWork) {
		works = append(works, w.toWork())
	})
	return works, err
}

// FindCitingWorks returns up to n ids of works citing id, most cited first.
func (c *Client) FindCitingWorks(ctx context.Context, id types.PaperID, n int) ([]types.PaperID, error) {
	if id.IsZero() {
		return nil, crawlerr.New(crawlerr.CodeGraphRejected, "empty work id")
	}
	params := url.Values{
		"filter": {"cites:" + string(id)},
		"sort":   {"cited_by_count:desc"},
		"select": {"id"},
	}

	var ids []types.PaperID
	err := c.paginate(ctx, "citing", params, n, func(w apiWork) {
		if pid := normalizeRef(w.ID); !pid.IsZero() {
			ids = append(ids, pid)
		}
	})
	return ids, err
}

// paginate walks /works pages until n results were visited, a page comes
// back empty, or meta.count is reached. The server's meta.per_page wins
// when it is smaller than the requested size.
func (c *Client) paginate(ctx context.Context, endpoint string, params url.Values, n int, visit func(apiWork)) error {
	if n <= 0 {
		return nil
	}
	perPage := min(n, c.maxPerPage)
	seen := 0

	for page := 1; seen < n; page++ {
		if (page-1)*perPage >= maxPagedResults {
			break
		}
		p := cloneValues(params)
		p.Set("per_page", fmt.Sprintf("%d", perPage))
		p.Set("page", fmt.Sprintf("%d", page))

		var lr listResponse
		if err := c.get(ctx, endpoint, "/works", p, &lr); err != nil {
			if seen > 0 {
				return fmt.Errorf("page %d after %d results: %w", page, seen, err)
			}
			return err
		}
		if lr.Meta.PerPage > 0 && lr.Meta.PerPage < perPage {
			perPage = lr.Meta.PerPage
		}
		if len(lr.Results) == 0 {
			break
		}
		for _, w := range lr.Results {
			if seen >= n {
				break
			}
			visit(w)
			seen++
		}
		if lr.Meta.Count > 0 && page*perPage >= lr.Meta.Count {
			break
		}
	}
	c.log.Debug("openalex paged", "endpoint", endpoint, "results", seen)
	return nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+2)
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
