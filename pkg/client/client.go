// Package client provides the Akamai Fast Purge client with request signing,
// chunking, retries and asynchronous completion handles.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/fastpurge-client/pkg/batch"
	"github.com/Sternrassler/fastpurge-client/pkg/cooldown"
	"github.com/Sternrassler/fastpurge-client/pkg/edgegrid"
	"github.com/Sternrassler/fastpurge-client/pkg/edgerc"
	"github.com/Sternrassler/fastpurge-client/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Prometheus metrics for Fast Purge client operations.
var (
	fastpurgeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fastpurge_requests_total",
		Help: "Total Fast Purge requests by object type and status",
	}, []string{"object_type", "status"})

	fastpurgeRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fastpurge_request_duration_seconds",
		Help:    "Fast Purge request duration in seconds by object type",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"object_type"})

	fastpurgeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fastpurge_errors_total",
		Help: "Total Fast Purge errors by class",
	}, []string{"class"})

	fastpurgeChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fastpurge_chunks_total",
		Help: "Total purge chunks submitted by object type",
	}, []string{"object_type"})

	fastpurgeObjectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fastpurge_objects_total",
		Help: "Total purge objects submitted by object type",
	}, []string{"object_type"})

	fastpurgeInflightRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fastpurge_inflight_requests",
		Help: "Purge chunks currently holding a worker slot",
	})
)

// maxResponseBody bounds how much of an API response is read.
const maxResponseBody = 1 << 20

// Client submits purge requests to the Fast Purge API.
type Client struct {
	httpClient *http.Client
	creds      edgerc.Credentials
	signer     *edgegrid.Signer
	baseURL    string
	config     Config
	logger     zerolog.Logger

	workers  *semaphore.Weighted
	limiter  *rate.Limiter
	cooldown *cooldown.Tracker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// New creates a new Fast Purge client.
func New(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	creds := cfg.Credentials
	if creds.IsZero() {
		loaded, err := edgerc.Load(cfg.EdgercPath, cfg.EdgercSection)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
		}
		creds = loaded
	}
	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	if cfg.Scheme != "https" && cfg.Scheme != "http" {
		return nil, fmt.Errorf("scheme must be http or https (got %q)", cfg.Scheme)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port must be in 1..65535 (got %d)", cfg.Port)
	}
	if cfg.MaxRequests < 1 {
		return nil, fmt.Errorf("max_requests must be >= 1 (got %d)", cfg.MaxRequests)
	}
	if cfg.MaxPayload < 1 {
		return nil, fmt.Errorf("max_payload must be >= 1 (got %d)", cfg.MaxPayload)
	}
	if cfg.MaxObjects < 0 {
		return nil, fmt.Errorf("max_objects must be >= 0 (got %d)", cfg.MaxObjects)
	}
	if cfg.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.Retry.MaxRetries)
	}
	if !validNetwork(cfg.DefaultNetwork) {
		return nil, fmt.Errorf("default network must be production or staging (got %q)", cfg.DefaultNetwork)
	}
	if !validPurgeType(cfg.DefaultPurgeType) {
		return nil, fmt.Errorf("default purge type must be delete or invalidate (got %q)", cfg.DefaultPurgeType)
	}

	logger := logging.NewLogger("fastpurge-client")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		httpClient: httpClient,
		creds:      creds,
		signer:     edgegrid.NewSigner(creds),
		baseURL:    baseURL(cfg.Scheme, creds.Host, cfg.Port),
		config:     cfg,
		logger:     logger,
		workers:    semaphore.NewWeighted(int64(cfg.MaxRequests)),
		limiter:    limiter,
		cooldown:   cfg.Cooldown,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// baseURL omits the port when it is the scheme's default.
func baseURL(scheme, host string, port int) string {
	host = strings.TrimSuffix(host, "/")
	if (scheme == "https" && port == 443) || (scheme == "http" && port == 80) {
		return scheme + "://" + host
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// PurgeOption customises a single purge.
type PurgeOption func(*purgeOptions)

type purgeOptions struct {
	network   Network
	purgeType PurgeType
}

// WithNetwork selects staging or production.
func WithNetwork(n Network) PurgeOption {
	return func(o *purgeOptions) { o.network = n }
}

// WithPurgeType selects delete or invalidate.
func WithPurgeType(t PurgeType) PurgeOption {
	return func(o *purgeOptions) { o.purgeType = t }
}

// PurgeByURL purges the given URLs.
func (c *Client) PurgeByURL(ctx context.Context, urls []string, opts ...PurgeOption) (*Purge, error) {
	return c.PurgeObjects(ctx, ObjectTypeURL, urls, opts...)
}

// PurgeByTag purges every object carrying one of the given cache tags.
func (c *Client) PurgeByTag(ctx context.Context, tags []string, opts ...PurgeOption) (*Purge, error) {
	return c.PurgeObjects(ctx, ObjectTypeTag, tags, opts...)
}

// PurgeByCPCode purges every object under the given CP codes.
func (c *Client) PurgeByCPCode(ctx context.Context, codes []string, opts ...PurgeOption) (*Purge, error) {
	return c.PurgeObjects(ctx, ObjectTypeCPCode, codes, opts...)
}

// PurgeObjects purges a collection of objects. Large collections are split
// into several requests. Input problems are returned immediately; request
// failures are reported by the returned Purge. ctx bounds the whole purge
// including retries and the wait for estimated completion.
func (c *Client) PurgeObjects(ctx context.Context, objectType ObjectType, objects []string, opts ...PurgeOption) (*Purge, error) {
	o := purgeOptions{
		network:   c.config.DefaultNetwork,
		purgeType: c.config.DefaultPurgeType,
	}
	for _, opt := range opts {
		opt(&o)
	}

	objects, err := validateRequest(objectType, objects, o)
	if err != nil {
		return nil, err
	}

	limits := batch.Limits{MaxObjects: c.config.MaxObjects, MaxPayload: c.config.MaxPayload}
	chunks, err := batch.Split(objects, limits, objectType == ObjectTypeCPCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	endpoint := fmt.Sprintf("%s/ccu/v3/%s/%s/%s", c.baseURL, o.purgeType, objectType, o.network)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	c.wg.Add(1)
	c.mu.Unlock()

	purgeCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)

	p := newPurge(chunks, cancel)

	fastpurgeChunksTotal.WithLabelValues(string(objectType)).Add(float64(len(chunks)))
	fastpurgeObjectsTotal.WithLabelValues(string(objectType)).Add(float64(len(objects)))

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("object_type", string(objectType)).
		Str("network", string(o.network)).
		Int("objects", len(objects)).
		Int("chunks", len(chunks)).
		Msg("Submitting purge")

	go func() {
		defer c.wg.Done()
		defer cancel()
		defer stop()

		var g errgroup.Group
		for i := range chunks {
			g.Go(func() error {
				p.outcomes[i] = c.runChunk(purgeCtx, endpoint, objectType, chunks[i])
				return p.outcomes[i].Err
			})
		}
		_ = g.Wait()

		p.finish()
		if err := p.Err(); err != nil {
			c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("Purge failed")
		} else {
			c.logger.Info().
				Str("endpoint", endpoint).
				Int("chunks", len(chunks)).
				Msg("Purge complete")
		}
	}()

	return p, nil
}

// validateRequest checks a purge request and returns its objects in wire form.
func validateRequest(objectType ObjectType, objects []string, o purgeOptions) ([]string, error) {
	if !validObjectType(objectType) {
		return nil, fmt.Errorf("%w: unknown object type %q", ErrInvalidInput, objectType)
	}
	if !validNetwork(o.network) {
		return nil, fmt.Errorf("%w: unknown network %q", ErrInvalidInput, o.network)
	}
	if !validPurgeType(o.purgeType) {
		return nil, fmt.Errorf("%w: unknown purge type %q", ErrInvalidInput, o.purgeType)
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("%w: no objects to purge", ErrInvalidInput)
	}

	for i, obj := range objects {
		if strings.TrimSpace(obj) == "" {
			return nil, fmt.Errorf("%w: object %d is empty", ErrInvalidInput, i)
		}
	}
	if objectType != ObjectTypeCPCode {
		return objects, nil
	}

	// CP codes go out as JSON numbers, which allow no leading zeros.
	codes := make([]string, len(objects))
	for i, obj := range objects {
		n, err := strconv.ParseUint(obj, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: cpcode %q is not a number", ErrInvalidInput, obj)
		}
		codes[i] = strconv.FormatUint(n, 10)
	}
	return codes, nil
}

// runChunk submits one chunk, holding a worker slot until it resolves.
func (c *Client) runChunk(ctx context.Context, endpoint string, objectType ObjectType, chunk batch.Chunk) Outcome {
	outcome := Outcome{Index: chunk.Index, Objects: chunk.Objects}
	logger := c.logger.With().
		Str("endpoint", endpoint).
		Int("chunk", chunk.Index).
		Logger()

	if err := c.workers.Acquire(ctx, 1); err != nil {
		outcome.Err = fmt.Errorf("%w: %v", ErrContextCancelled, err)
		return outcome
	}
	defer c.workers.Release(1)
	fastpurgeInflightRequests.Inc()
	defer fastpurgeInflightRequests.Dec()

	var resp *Response
	_, err := retryWithBackoff(ctx, c.config.Retry, logger, func() error {
		if c.cooldown != nil {
			if err := c.cooldown.Wait(ctx); err != nil {
				return fmt.Errorf("%w: waiting for cooldown: %v", ErrContextCancelled, err)
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%w: waiting for rate limiter: %v", ErrContextCancelled, err)
			}
		}

		outcome.Attempts++
		r, err := c.post(ctx, endpoint, objectType, chunk.Body, logger)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})

	if err != nil {
		class := classifyError(err)
		if class == ErrorClassAuth {
			err = fmt.Errorf("%w: %w", ErrAuthentication, err)
		}
		outcome.Err = fmt.Errorf("request to %s was unsuccessful: %w", endpoint, err)
		return outcome
	}

	estimate := c.config.DefaultDelay
	if resp.EstimatedSeconds != nil {
		estimate = secondsToDuration(*resp.EstimatedSeconds)
	}
	outcome.Response = resp
	outcome.EstimatedComplete = time.Now().Add(estimate)

	logger.Debug().
		Str("purge_id", resp.PurgeID).
		Dur("estimated", estimate).
		Msg("Purge accepted")

	if c.config.SkipCompletionWait {
		return outcome
	}

	// The API has no status query; completion is the estimated time passing.
	timer := time.NewTimer(estimate)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		outcome.Err = fmt.Errorf("%w: waiting for purge %s: %v", ErrContextCancelled, resp.PurgeID, ctx.Err())
	case <-timer.C:
	}
	return outcome
}

// post sends a single signed purge request.
func (c *Client) post(ctx context.Context, endpoint string, objectType ObjectType, body []byte, logger zerolog.Logger) (*Response, error) {
	startTime := time.Now()
	defer func() {
		fastpurgeRequestDuration.WithLabelValues(string(objectType)).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrInvalidInput, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.signer.Sign(req, body)

	logger.Debug().Int("size", len(body)).Msg("POST purge request")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error().Err(err).Msg("HTTP request failed")
		fastpurgeErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		fastpurgeRequestsTotal.WithLabelValues(string(objectType), "network_error").Inc()
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		fastpurgeErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, fmt.Errorf("read response: %w", err)
	}

	status := strconv.Itoa(httpResp.StatusCode)
	fastpurgeRequestsTotal.WithLabelValues(string(objectType), status).Inc()

	// The API answers 201 for every accepted purge.
	if httpResp.StatusCode != http.StatusCreated {
		apiErr := &APIError{
			StatusCode: httpResp.StatusCode,
			ErrorClass: classifyStatus(httpResp.StatusCode),
			Message:    httpResp.Status,
			Detail:     errorDetail(raw),
			Endpoint:   endpoint,
			RetryAfter: parseRetryAfter(httpResp.Header.Get("Retry-After"), time.Now()),
		}
		fastpurgeErrorsTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()

		logger.Error().
			Int("status", httpResp.StatusCode).
			Str("error_class", string(apiErr.ErrorClass)).
			Str("detail", apiErr.Detail).
			Msg("An invalid status code was received")

		if apiErr.ErrorClass == ErrorClassRateLimit && apiErr.RetryAfter > 0 && c.cooldown != nil {
			c.cooldown.Block(ctx, c.config.Retry.capRetryAfter(apiErr.RetryAfter))
		}
		return nil, apiErr
	}

	resp := &Response{Raw: json.RawMessage(raw)}
	if err := json.Unmarshal(raw, resp); err != nil {
		logger.Warn().Err(err).Msg("Purge accepted with unparseable response body")
		resp = &Response{HTTPStatus: httpResp.StatusCode, Raw: json.RawMessage(raw)}
	}
	return resp, nil
}

// errorDetail extracts the problem description from an error body.
func errorDetail(raw []byte) string {
	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &problem); err != nil {
		return ""
	}
	if problem.Detail != "" {
		return problem.Detail
	}
	return problem.Title
}

// Close cancels outstanding purges and waits for them to finish.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}

// BaseURL returns the scheme, host and port requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Credentials returns a copy of the credentials used for signing.
func (c *Client) Credentials() edgerc.Credentials {
	return c.creds
}
