// Package search is the search-cluster client: connection pooling,
// index lifecycle (exists/delete/mapping retrieval/mapping creation),
// the bulk endpoint, and the exact bulk-action framing the table
// manager's correctness depends on (spec.md §4.D).
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ceyewan/tablesync/internal/logging"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
)

// ErrMappingFailed is returned when creating an index with its derived
// mapping fails (spec.md §4.D's put_mapping contract).
var ErrMappingFailed = errors.New("tablesync: mapping failed")

// ErrBulkFailed is returned when the _bulk endpoint responds non-2xx.
var ErrBulkFailed = errors.New("tablesync: bulk request failed")

// ErrPoolTimeout is returned when no connection slot becomes free within
// the configured checkout timeout.
var ErrPoolTimeout = errors.New("tablesync: connection pool checkout timed out")

// Config configures the pooled search-cluster client, per spec.md §6.
type Config struct {
	Addresses   []string
	Username    string
	Password    string
	APIKey      string
	PoolSize    int
	IdlePool    int
	PoolTimeout time.Duration
}

// Client is a pooled HTTP client over the search cluster, wrapping the
// official Elasticsearch client the way im-infra/es wraps it, but
// shaping bulk/mapping requests by hand per spec.md §4.D instead of
// delegating to esutil.BulkIndexer.
type Client struct {
	es     *elasticsearch.Client
	sem    chan struct{}
	pool   time.Duration
	logger logging.Logger
}

// New creates a pooled Client and verifies connectivity with a ping.
func New(cfg Config, logger logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Namespace("search")
	}
	poolSize := cfg.PoolSize
	if poolSize < 1 {
		poolSize = 1
	}
	idlePool := cfg.IdlePool
	if idlePool < 1 {
		idlePool = 1
	}

	transport := &http.Transport{
		MaxConnsPerHost:     poolSize,
		MaxIdleConnsPerHost: idlePool,
	}

	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
		Transport: &loggingTransport{transport: transport, logger: logger.With(logging.String("sub_component", "transport"))},
	}

	esClient, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	res, err := esClient.Ping()
	if err != nil {
		return nil, fmt.Errorf("pinging elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	poolTimeout := cfg.PoolTimeout
	if poolTimeout <= 0 {
		poolTimeout = 5 * time.Second
	}

	return &Client{
		es:     esClient,
		sem:    make(chan struct{}, poolSize),
		pool:   poolTimeout,
		logger: logger,
	}, nil
}

// acquire checks out one connection slot, honoring the pool checkout
// timeout, and returns a release func callers must invoke on every exit
// path (spec.md §4.D: "acquire one connection and release it on any exit
// path").
func (c *Client) acquire(ctx context.Context) (func(), error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.pool)
	defer cancel()
	select {
	case c.sem <- struct{}{}:
		return func() { <-c.sem }, nil
	case <-timeoutCtx.Done():
		return nil, ErrPoolTimeout
	}
}

// Exists reports whether index exists, via HEAD /{index}.
func (c *Client) Exists(ctx context.Context, index string) (bool, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	res, err := c.es.Indices.Exists([]string{index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("checking index %q exists: %w", index, err)
	}
	defer res.Body.Close()

	return res.StatusCode == http.StatusOK, nil
}

// Delete removes index, via DELETE /{index}. Returns false without error
// if the index did not exist.
func (c *Client) Delete(ctx context.Context, index string) (bool, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	res, err := c.es.Indices.Delete([]string{index}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("deleting index %q: %w", index, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if res.IsError() {
		return false, fmt.Errorf("deleting index %q: %s", index, res.Status())
	}
	return true, nil
}

// GetMapping returns the mappings subobject for index, or (nil, false)
// if the index has no mapping (missing index, or any non-2xx response).
func (c *Client) GetMapping(ctx context.Context, index string) (map[string]any, bool, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	defer release()

	res, err := c.es.Indices.GetMapping(
		c.es.Indices.GetMapping.WithContext(ctx),
		c.es.Indices.GetMapping.WithIndex(index),
	)
	if err != nil {
		return nil, false, fmt.Errorf("getting mapping for %q: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, false, nil
	}

	var body map[string]struct {
		Mappings map[string]any `json:"mappings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, false, fmt.Errorf("decoding mapping response for %q: %w", index, err)
	}

	entry, ok := body[index]
	if !ok {
		return nil, false, nil
	}
	return entry.Mappings, true, nil
}

// PutMapping creates index with the given derived schema (settings plus
// mappings.properties). Analysis settings can only be set at index
// creation time, so this creates the index outright; reconciliation
// always deletes before calling PutMapping on drift.
func (c *Client) PutMapping(ctx context.Context, index string, schema []byte) error {
	release, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	res, err := c.es.Indices.Create(
		index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(schema)),
	)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrMappingFailed, index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		respBody, _ := io.ReadAll(res.Body)
		c.logger.Error("mapping creation failed",
			logging.String("index", index),
			logging.String("status", res.Status()),
			logging.String("response", string(respBody)))
		return fmt.Errorf("%w: %q: %s", ErrMappingFailed, index, res.Status())
	}
	return nil
}

// Bulk posts body to /_bulk. body must already end with a newline.
func (c *Client) Bulk(ctx context.Context, body []byte) error {
	if len(body) == 0 || body[len(body)-1] != '\n' {
		return fmt.Errorf("%w: body must end with a newline", ErrBulkFailed)
	}

	release, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	traceID := uuid.New().String()
	log := c.logger.With(logging.String("trace_id", traceID))

	res, err := c.es.Bulk(bytes.NewReader(body), c.es.Bulk.WithContext(ctx))
	if err != nil {
		log.Error("bulk request failed", logging.Err(err))
		return fmt.Errorf("%w: %v", ErrBulkFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		respBody, _ := io.ReadAll(res.Body)
		log.Error("bulk request rejected", logging.String("status", res.Status()))
		return fmt.Errorf("%w: %s: %s", ErrBulkFailed, res.Status(), string(respBody))
	}
	log.Debug("bulk request succeeded")
	return nil
}

// Empty deletes all documents from indices via _delete_by_query with a
// match-all query. A nil indices slice targets /_all.
func (c *Client) Empty(ctx context.Context, indices []string) (bool, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	target := []string{"_all"}
	if len(indices) > 0 {
		target = indices
	}

	matchAll := bytes.NewReader([]byte(`{"query":{"match_all":{}}}`))
	res, err := c.es.DeleteByQuery(target, matchAll, c.es.DeleteByQuery.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("emptying indices %v: %w", target, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return false, fmt.Errorf("emptying indices %v: %s", target, res.Status())
	}
	return true, nil
}

// loggingTransport logs outbound requests and inbound responses, mirroring
// im-infra/es/internal/client.go's custom RoundTripper.
type loggingTransport struct {
	transport http.RoundTripper
	logger    logging.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.logger.Debug("sending request",
		logging.String("method", req.Method),
		logging.String("url", req.URL.String()))

	resp, err := t.transport.RoundTrip(req)
	if err != nil {
		t.logger.Error("request failed", logging.Err(err))
		return nil, err
	}

	t.logger.Debug("received response", logging.String("status", resp.Status))
	return resp, nil
}
