package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/openelt/nsgateway/pkg/config"
	"github.com/openelt/nsgateway/pkg/errors"
	"github.com/openelt/nsgateway/pkg/metrics"
	"github.com/openelt/nsgateway/pkg/models"
	"github.com/openelt/nsgateway/pkg/signer"
)

// QueryKind selects the upstream mechanism a query executes against.
type QueryKind int

const (
	// KindList targets the REST record listing endpoint
	KindList QueryKind = iota
	// KindSuiteQL targets the typed query-language endpoint
	KindSuiteQL
)

// Query is one concrete upstream query produced by the query builder.
type Query struct {
	Kind   QueryKind
	Entity string

	// SuiteQL is the query text for KindSuiteQL
	SuiteQL string

	// Params are extra query-string parameters for KindList (q, fields,
	// expandSubresources)
	Params map[string]string

	// Role tags the query within a report set (header, line, fulfillment);
	// empty for plain listings
	Role string
}

// Page is one upstream response page. It is produced once per call and
// consumed immediately by the caller; pages are never retained.
type Page struct {
	Items        []models.Record
	Count        int
	HasMore      bool
	Offset       int
	Limit        int
	TotalResults int
}

// NextOffset returns the cursor for the page after this one.
func (p *Page) NextOffset() int {
	return p.Offset + len(p.Items)
}

// pageEnvelope mirrors the upstream wire shape for both endpoints.
type pageEnvelope struct {
	Items        []models.Record `json:"items"`
	Count        int             `json:"count"`
	HasMore      bool            `json:"hasMore"`
	Offset       int             `json:"offset"`
	TotalResults int             `json:"totalResults"`
}

// Client issues signed HTTP calls to the upstream with retry, backoff,
// and rate limiting. Safe for concurrent use.
type Client struct {
	cfg     *config.Config
	signer  *signer.Signer
	logger  *zap.Logger
	limiter RateLimiter

	httpClient *http.Client
	transport  *http.Transport
}

// NewClient creates a new upstream client.
func NewClient(cfg *config.Config, sg *signer.Signer, logger *zap.Logger) *Client {
	c := &Client{
		cfg:     cfg,
		signer:  sg,
		logger:  logger.With(zap.String("component", "upstream_client")),
		limiter: NewRateLimiter(cfg.RateLimit.UpstreamPerSec, cfg.RateLimit.UpstreamBurst),
	}

	c.transport = &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Upstream.RequestTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	if cfg.Upstream.EnableHTTP2 {
		if err := http2.ConfigureTransport(c.transport); err != nil {
			c.logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	c.httpClient = &http.Client{
		Transport: c.transport,
		Timeout:   cfg.Upstream.RequestTimeout,
	}

	return c
}

// Limiter exposes the outbound rate limiter for stats reporting.
func (c *Client) Limiter() RateLimiter {
	return c.limiter
}

// Execute issues one signed upstream call for the given query at the
// given cursor. Transient failures (429, 5xx, timeouts) are retried with
// exponential backoff and jitter up to the configured budget; after
// exhaustion the error surfaces as upstream_unavailable. Other 4xx and
// malformed bodies surface immediately as upstream_rejected with the
// upstream payload attached.
func (c *Client) Execute(ctx context.Context, q Query, limit, offset int) (*Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRateLimit, "upstream rate limit wait aborted")
	}

	var (
		body []byte
		err  error
	)

	retries := c.cfg.Upstream.RetryAttempts
	for attempt := 0; ; attempt++ {
		start := time.Now()
		body, err = c.call(ctx, q, limit, offset)
		metrics.UpstreamRequestLatency.Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.UpstreamRequests.WithLabelValues("ok").Inc()
			break
		}

		if !errors.IsType(err, errors.ErrorTypeUpstreamUnavailable) {
			metrics.UpstreamRequests.WithLabelValues("rejected").Inc()
			return nil, err
		}

		metrics.UpstreamRequests.WithLabelValues("unavailable").Inc()
		if attempt >= retries {
			return nil, err
		}

		delay := c.backoff(attempt)
		c.logger.Warn("transient upstream failure, retrying",
			zap.String("entity", q.Entity),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "request aborted during retry backoff")
		}
	}

	var envelope pageEnvelope
	if err := gojson.Unmarshal(body, &envelope); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUpstreamRejected, "malformed upstream response body")
	}

	page := &Page{
		Items:        envelope.Items,
		Count:        envelope.Count,
		HasMore:      envelope.HasMore,
		Offset:       offset,
		Limit:        limit,
		TotalResults: envelope.TotalResults,
	}
	if page.Count == 0 {
		page.Count = len(page.Items)
	}
	if page.TotalResults == 0 {
		page.TotalResults = page.Count
	}
	return page, nil
}

// FetchAll pages through a query in strict cursor order starting at
// startOffset, until limit records are collected, the upstream reports
// exhaustion, or the page safety net trips. Returns the concatenated
// records and whether more data remained.
func (c *Client) FetchAll(ctx context.Context, q Query, limit, startOffset int) ([]models.Record, bool, error) {
	if limit <= 0 {
		limit = c.cfg.Upstream.DefaultPageSize
	}

	pageSize := c.cfg.Upstream.MaxPageSize
	records := make([]models.Record, 0, min(limit, pageSize))
	offset := startOffset
	hasMore := false

	for pages := 0; pages < c.cfg.Upstream.MaxPages; pages++ {
		want := limit - len(records)
		if want <= 0 {
			break
		}
		if want > pageSize {
			want = pageSize
		}

		page, err := c.Execute(ctx, q, want, offset)
		if err != nil {
			return nil, false, err
		}

		records = append(records, page.Items...)
		hasMore = page.HasMore

		if !page.HasMore || len(page.Items) == 0 {
			break
		}
		offset = page.NextOffset()
	}

	if len(records) > limit {
		// The upstream can return a full page past the caller's limit
		hasMore = true
		records = records[:limit]
	}

	return records, hasMore, nil
}

// GetRecord fetches a single record by internal ID.
func (c *Client) GetRecord(ctx context.Context, entity, id string) (models.Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRateLimit, "upstream rate limit wait aborted")
	}

	rawURL := c.cfg.RecordURL() + "/" + url.PathEscape(entity) + "/" + url.PathEscape(id)
	body, err := c.doSigned(ctx, http.MethodGet, rawURL, nil, nil)
	if err != nil {
		return nil, err
	}

	var record models.Record
	if err := gojson.Unmarshal(body, &record); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUpstreamRejected, "malformed upstream record body")
	}
	return record, nil
}

// GetSublist fetches a record sublist (e.g. line items of a sales
// order). A missing sublist yields an empty page rather than an error.
func (c *Client) GetSublist(ctx context.Context, entity, id, sublist string) ([]models.Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeRateLimit, "upstream rate limit wait aborted")
	}

	rawURL := c.cfg.RecordURL() + "/" + url.PathEscape(entity) + "/" + url.PathEscape(id) + "/" + url.PathEscape(sublist)
	body, err := c.doSigned(ctx, http.MethodGet, rawURL, nil, nil)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeUpstreamRejected) {
			c.logger.Warn("sublist fetch rejected, returning empty",
				zap.String("entity", entity),
				zap.String("id", id),
				zap.String("sublist", sublist),
				zap.Error(err))
			return nil, nil
		}
		return nil, err
	}

	var envelope pageEnvelope
	if err := gojson.Unmarshal(body, &envelope); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUpstreamRejected, "malformed upstream sublist body")
	}
	return envelope.Items, nil
}

// ExpandAll re-fetches each listed record for full detail. A failed
// expansion falls back to the summary row; the listing never fails
// because one record could not be expanded.
func (c *Client) ExpandAll(ctx context.Context, entity string, items []models.Record) []models.Record {
	expanded := make([]models.Record, 0, len(items))
	for _, item := range items {
		id := item.StringField("id")
		if id == "" {
			expanded = append(expanded, item)
			continue
		}
		full, err := c.GetRecord(ctx, entity, id)
		if err != nil {
			c.logger.Warn("failed to expand record, keeping summary",
				zap.String("entity", entity),
				zap.String("id", id),
				zap.Error(err))
			expanded = append(expanded, item)
			continue
		}
		expanded = append(expanded, full)
	}
	return expanded
}

// call performs one attempt for a query and returns the raw body.
func (c *Client) call(ctx context.Context, q Query, limit, offset int) ([]byte, error) {
	switch q.Kind {
	case KindSuiteQL:
		params := map[string]string{
			"limit":  strconv.Itoa(limit),
			"offset": strconv.Itoa(offset),
		}
		payload, err := gojson.Marshal(map[string]string{"q": q.SuiteQL})
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to marshal query body")
		}
		return c.doSigned(ctx, http.MethodPost, c.cfg.SuiteQLURL(), params, payload)

	default:
		params := map[string]string{
			"limit":  strconv.Itoa(limit),
			"offset": strconv.Itoa(offset),
		}
		for k, v := range q.Params {
			params[k] = v
		}
		return c.doSigned(ctx, http.MethodGet, c.cfg.RecordURL()+"/"+url.PathEscape(q.Entity), params, nil)
	}
}

// doSigned signs and performs one HTTP call, mapping the response to the
// error taxonomy. rawURL must not carry a query string; params become
// both the signed parameters and the query string.
func (c *Client) doSigned(ctx context.Context, method, rawURL string, params map[string]string, payload []byte) ([]byte, error) {
	fullURL := rawURL
	if len(params) > 0 {
		fullURL = rawURL + "?" + encodeParams(params)
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to build upstream request")
	}

	req.Header.Set("Authorization", c.signer.AuthorizationHeader(method, rawURL, params))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "upstream call aborted")
		}
		// Connection errors and client timeouts are transient
		return nil, errors.Wrap(err, errors.ErrorTypeUpstreamUnavailable, "upstream connection failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUpstreamUnavailable, "failed to read upstream response")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, errors.New(errors.ErrorTypeUpstreamUnavailable,
			"upstream returned "+strconv.Itoa(resp.StatusCode)).
			WithDetail("status", resp.StatusCode)

	case resp.StatusCode >= 400:
		e := errors.New(errors.ErrorTypeUpstreamRejected,
			"upstream rejected request with "+strconv.Itoa(resp.StatusCode)).
			WithDetail("status", resp.StatusCode)
		var detail map[string]interface{}
		if gojson.Unmarshal(data, &detail) == nil {
			e = e.WithDetail("upstream_error", detail)
		} else if len(data) > 0 {
			e = e.WithDetail("upstream_error", string(data))
		}
		return nil, e
	}

	return data, nil
}

// backoff returns the delay for a retry attempt: initial * 2^attempt
// with ±25% jitter, capped at the configured maximum.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.cfg.Upstream.RetryDelay << uint(attempt)
	if delay > c.cfg.Upstream.MaxRetryDelay || delay <= 0 {
		delay = c.cfg.Upstream.MaxRetryDelay
	}
	jitter := 0.75 + rand.Float64()*0.5 //nolint:gosec // G404: jitter does not need crypto randomness
	return time.Duration(float64(delay) * jitter)
}

// encodeParams renders query parameters in sorted key order so the query
// string matches the signed parameter set byte for byte.
func encodeParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		values.Set(k, params[k])
	}
	return values.Encode()
}
