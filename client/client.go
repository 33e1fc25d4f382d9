// Package client talks to the citybik.es REST API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/citybike-scraper/config"
	"github.com/aluiziolira/citybike-scraper/models"
	"github.com/aluiziolira/citybike-scraper/parser"
	"github.com/gocolly/colly/v2"
)

// Client issues GET requests with bounded retry and memoizes successful
// bodies per URL for the lifetime of the client.
type Client struct {
	cfg       *config.Config
	collector *colly.Collector
	cache     *responseCache
	Metrics   *Metrics

	// sleep waits between attempts; replaced in tests.
	sleep func(context.Context, time.Duration) error

	requestCount int64
	retryCount   int64
}

// New builds a client configured from cfg.
func New(cfg *config.Config) (*Client, error) {
	parsed, err := url.Parse(cfg.APIHost)
	if err != nil {
		return nil, fmt.Errorf("parse api host: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("api host must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.MaxBodySize = 0
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	cache, err := newResponseCache(cfg.CacheSize)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:       cfg,
		collector: collector,
		cache:     cache,
		Metrics:   NewMetrics(),
		sleep:     sleepContext,
	}
	c.configureHandlers()
	return c, nil
}

// WithTransport swaps the HTTP transport used by the collector.
func (c *Client) WithTransport(rt http.RoundTripper) {
	c.collector.WithTransport(rt)
}

// Config returns the configuration the client was built with.
func (c *Client) Config() *config.Config {
	return c.cfg
}

// RequestCount is the number of HTTP requests issued so far.
func (c *Client) RequestCount() int {
	return int(atomic.LoadInt64(&c.requestCount))
}

// RetryCount is the number of retries scheduled so far.
func (c *Client) RetryCount() int {
	return int(atomic.LoadInt64(&c.retryCount))
}

// CacheHits is the number of Fetch calls answered from the cache.
func (c *Client) CacheHits() int {
	return c.cache.Hits()
}

// ListNetworks fetches and decodes the full network listing.
func (c *Client) ListNetworks(ctx context.Context) ([]models.Network, error) {
	body, err := c.Fetch(ctx, c.cfg.NetworksURL())
	if err != nil {
		return nil, err
	}
	return parser.ParseListing(body)
}

// Fetch returns the JSON body served at rawURL. Responses with status 500,
// 502, 503 or 504 are retried up to MaxAttempts attempts in total; any
// other non-200 status fails immediately with *RequestFailed.
func (c *Client) Fetch(ctx context.Context, rawURL string) (json.RawMessage, error) {
	if body, ok := c.cache.Get(rawURL); ok {
		c.Metrics.IncCache(true)
		slog.Debug("cache hit", slog.String("url", rawURL))
		return body, nil
	}
	c.Metrics.IncCache(false)

	body, err := c.fetchWithRetry(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	c.cache.Add(rawURL, body)
	return body, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, rawURL string) (json.RawMessage, error) {
	var (
		lastStatus int
		lastErr    error
	)

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			atomic.AddInt64(&c.retryCount, 1)
			c.Metrics.IncRetries()
			delay := c.backoff(attempt - 1)
			slog.Debug("retrying request",
				slog.String("url", rawURL),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, &RequestFailed{URL: rawURL, StatusCode: lastStatus, Attempts: attempt - 1, Err: err}
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, &RequestFailed{URL: rawURL, StatusCode: lastStatus, Attempts: attempt - 1, Err: err}
		}

		body, status, err := c.do(rawURL)
		if err == nil && status != http.StatusOK {
			// colly lets 201 and 202 through as success.
			classified := classifyError(nil, status)
			c.Metrics.IncError(errorTypeLabel(classified))
			slog.Error("unexpected status",
				slog.String("url", rawURL),
				slog.Int("status", status),
			)
			return nil, &RequestFailed{URL: rawURL, StatusCode: status, Attempts: attempt, Err: classified}
		}
		if err == nil {
			if !json.Valid(body) {
				c.Metrics.IncError(errorTypeLabel(ErrInvalidJSON))
				return nil, &RequestFailed{URL: rawURL, StatusCode: status, Attempts: attempt, Err: ErrInvalidJSON}
			}
			return json.RawMessage(body), nil
		}

		classified := classifyError(err, status)
		category := errorTypeLabel(classified)
		c.Metrics.IncError(category)
		lastStatus, lastErr = status, classified

		if !IsTransient(status) {
			slog.Error("request error",
				slog.String("url", rawURL),
				slog.Int("status", status),
				slog.String("category", category),
				slog.Any("error", err),
			)
			return nil, &RequestFailed{URL: rawURL, StatusCode: status, Attempts: attempt, Err: classified}
		}
		slog.Warn("transient upstream error",
			slog.String("url", rawURL),
			slog.Int("status", status),
			slog.Int("attempt", attempt),
		)
	}

	return nil, &RequestFailed{URL: rawURL, StatusCode: lastStatus, Attempts: c.cfg.MaxAttempts, Err: lastErr}
}

// do performs a single synchronous GET through the collector.
func (c *Client) do(rawURL string) ([]byte, int, error) {
	reqCtx := colly.NewContext()
	err := c.collector.Request(http.MethodGet, rawURL, nil, reqCtx, nil)
	status, _ := reqCtx.GetAny("status").(int)
	if err != nil {
		return nil, status, err
	}
	body, _ := reqCtx.GetAny("body").([]byte)
	return body, status, nil
}

func (c *Client) configureHandlers() {
	c.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		r.Headers.Set("Accept", "application/json")
		current := atomic.AddInt64(&c.requestCount, 1)
		c.Metrics.IncRequest("started")
		slog.Debug("api request",
			slog.Int64("requests", current),
			slog.String("url", r.URL.String()),
		)
	})

	c.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put("status", r.StatusCode)
		r.Ctx.Put("body", r.Body)
		c.Metrics.IncRequest("completed")
		c.observe(r.Ctx)
	})

	c.collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			return
		}
		r.Ctx.Put("status", r.StatusCode)
		c.Metrics.IncRequest("failed")
		c.observe(r.Ctx)
	})
}

func (c *Client) observe(ctx *colly.Context) {
	if start, ok := ctx.GetAny("start").(time.Time); ok {
		c.Metrics.ObserveDuration(time.Since(start))
	}
}

// backoff returns the wait before the given retry (1-based):
// RetryBackoff * 2^(retry-1), capped at RetryBackoffMax.
func (c *Client) backoff(retry int) time.Duration {
	if retry <= 0 {
		retry = 1
	}

	base := c.cfg.RetryBackoff
	if base <= 0 {
		return 0
	}

	delay := base * time.Duration(1<<(retry-1))
	if max := c.cfg.RetryBackoffMax; max > 0 && (delay > max || delay <= 0) {
		delay = max
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
