// Package aiclient issues the single batched alt text request to a
// configurable AI provider. Request bodies come from a placeholder
// template and replies are read through a dot-notation JSON path, so no
// provider schema is assumed.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/user/alttext-service/internal/breaker"
	"github.com/user/alttext-service/internal/entity"
	"github.com/user/alttext-service/internal/markup"
	"github.com/user/alttext-service/pkg/metrics"
	"github.com/user/alttext-service/pkg/utils"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	defaultRetryDelay  = 1 * time.Second
	maxContentPrefix   = 1000
	maxResponseBytes   = 4 << 20
)

// Config captures the provider settings.
type Config struct {
	Endpoint        string
	Method          string // GET or POST
	Headers         map[string]string
	APIKey          string
	RequestTemplate string
	ResponsePath    string
	Model           string
	TimeoutSeconds  int
}

// Client talks to the configured provider. It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *breaker.Breaker
	logger     *zap.Logger
	metrics    *metrics.Metrics
	retryDelay time.Duration
	sleeper    func(context.Context, time.Duration) error
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryDelay overrides the pause before the single retry.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithSleeper overrides how the retry pause is performed (useful for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleeper != nil {
			c.sleeper = sleeper
		}
	}
}

// WithLogger sets the process logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient constructs a client. A nil breaker disables circuit breaking.
func NewClient(cfg Config, b *breaker.Breaker, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	if cfg.Method != http.MethodGet {
		cfg.Method = http.MethodPost
	}
	if strings.TrimSpace(cfg.RequestTemplate) == "" {
		cfg.RequestTemplate = DefaultRequestTemplate
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    b,
		logger:     zap.NewNop(),
		retryDelay: defaultRetryDelay,
		sleeper:    sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether an endpoint is set.
func (c *Client) Configured() bool {
	return c.cfg.Endpoint != ""
}

// provider keys the circuit breaker.
func (c *Client) provider() string {
	if u, err := url.Parse(c.cfg.Endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	return c.cfg.Endpoint
}

// GenerateBatch issues exactly one provider call for all images and returns
// a sanitized url -> alt text map. Provider problems are reported through
// the result outcome; only a missing endpoint is returned as an error.
func (c *Client) GenerateBatch(ctx context.Context, images []entity.ImageReference, page entity.PageContext, maxLength int) (BatchResult, error) {
	if !c.Configured() {
		return BatchResult{}, ErrNotConfigured
	}
	images = uniqueBySource(images)
	if len(images) == 0 {
		return BatchResult{Outcome: OutcomeOK, Alts: map[string]string{}, Model: c.cfg.Model}, nil
	}

	provider := c.provider()
	if c.breaker != nil && !c.breaker.Allow(ctx, provider) {
		c.metrics.ObserveAI(OutcomeCircuitOpen.String(), 0)
		return BatchResult{Outcome: OutcomeCircuitOpen, Reason: "circuit breaker open", Model: c.cfg.Model}, nil
	}

	start := time.Now()
	alts, err := c.call(ctx, images, page, maxLength)
	elapsed := time.Since(start)
	if err != nil {
		opened := false
		if c.breaker != nil {
			opened = c.breaker.RecordFailure(ctx, provider)
		}
		if opened {
			c.metrics.IncBreakerOpened()
			c.logger.Error("ai provider circuit opened", zap.String("provider", provider), zap.Error(err))
		}
		c.metrics.ObserveAI(OutcomeProviderFailure.String(), elapsed)
		c.logger.Error("ai batch failed",
			zap.String("provider", provider),
			zap.Int("images", len(images)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return BatchResult{
			Outcome:       OutcomeProviderFailure,
			Reason:        err.Error(),
			Model:         c.cfg.Model,
			BreakerOpened: opened,
		}, nil
	}

	if c.breaker != nil {
		c.breaker.RecordSuccess(ctx, provider)
	}
	c.metrics.ObserveAI(OutcomeOK.String(), elapsed)
	c.logger.Debug("ai batch succeeded",
		zap.String("provider", provider),
		zap.Int("requested", len(images)),
		zap.Int("mapped", len(alts)),
		zap.Duration("elapsed", elapsed),
	)
	return BatchResult{Outcome: OutcomeOK, Alts: alts, Model: c.cfg.Model}, nil
}

// GenerateOne asks the provider for a single image. It is meant for bulk
// and admin flows, never the render path.
func (c *Client) GenerateOne(ctx context.Context, image entity.ImageReference, page entity.PageContext, maxLength int) (OneResult, error) {
	res, err := c.GenerateBatch(ctx, []entity.ImageReference{image}, page, maxLength)
	if err != nil {
		return OneResult{}, err
	}
	out := OneResult{Outcome: res.Outcome, Reason: res.Reason, Model: res.Model, BreakerOpened: res.BreakerOpened}
	if res.Outcome == OutcomeOK {
		out.Text = res.Alts[image.SourceURL]
	}
	return out, nil
}

var errEmptyResult = errors.New("ai response produced no alt text")

// call performs the request (with its single retry) and maps the reply.
// Any returned error counts as one provider failure.
func (c *Client) call(ctx context.Context, images []entity.ImageReference, page entity.PageContext, maxLength int) (map[string]string, error) {
	body := RenderTemplate(c.cfg.RequestTemplate, c.placeholders(images, page, maxLength))

	raw, err := c.sendWithRetry(ctx, body)
	if err != nil {
		return nil, err
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("ai response: decode json: %w", err)
	}

	collection, found := ExtractPath(decoded, c.cfg.ResponsePath)
	if !found {
		return nil, fmt.Errorf("ai response: path %q not found", c.cfg.ResponsePath)
	}
	if s, isString := collection.(string); isString {
		if embedded, ok := decodeEmbeddedJSON(s); ok {
			collection = embedded
		} else if len(images) == 1 {
			collection = []any{s}
		}
	}
	switch collection.(type) {
	case map[string]any, []any:
	default:
		collection = decoded
	}

	alts := MapResults(images, collection, maxLength)
	if len(alts) == 0 {
		return nil, errEmptyResult
	}
	return alts, nil
}

func (c *Client) placeholders(images []entity.ImageReference, page entity.PageContext, maxLength int) []Placeholder {
	type requestImage struct {
		URL      string `json:"url"`
		Filename string `json:"filename"`
		Position int    `json:"position"`
	}
	list := make([]requestImage, 0, len(images))
	for _, img := range images {
		list = append(list, requestImage{URL: img.SourceURL, Filename: filename(img.SourceURL), Position: img.Position})
	}
	imagesJSON, err := json.Marshal(list)
	if err != nil {
		imagesJSON = []byte("[]")
	}

	content := strings.Join(strings.Fields(markup.StripTags(page.Content)), " ")
	if utf8.RuneCountInString(content) > maxContentPrefix {
		content = string([]rune(content)[:maxContentPrefix])
	}

	pairs := []Placeholder{
		{Name: "image_count", Value: strconv.Itoa(len(images))},
		{Name: "post_title", Value: jsonEscape(page.Title)},
		{Name: "post_excerpt", Value: jsonEscape(page.Excerpt)},
		{Name: "post_content", Value: jsonEscape(content)},
		{Name: "images_json", Value: string(imagesJSON)},
		{Name: "max_length", Value: strconv.Itoa(maxLength)},
		{Name: "model", Value: jsonEscape(c.cfg.Model)},
	}
	if len(images) == 1 {
		pairs = append(pairs,
			Placeholder{Name: "image_url", Value: jsonEscape(images[0].SourceURL)},
			Placeholder{Name: "filename", Value: jsonEscape(filename(images[0].SourceURL))},
		)
	}
	return pairs
}

func filename(rawURL string) string {
	base := path.Base(utils.StripQuery(rawURL))
	if base == "." || base == "/" {
		return ""
	}
	return base
}

func uniqueBySource(images []entity.ImageReference) []entity.ImageReference {
	seen := make(map[string]struct{}, len(images))
	out := make([]entity.ImageReference, 0, len(images))
	for _, img := range images {
		if img.SourceURL == "" {
			continue
		}
		if _, dup := seen[img.SourceURL]; dup {
			continue
		}
		seen[img.SourceURL] = struct{}{}
		out = append(out, img)
	}
	return out
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("ai request: http %d: %s", e.StatusCode, strings.TrimSpace(body))
}

// sendWithRetry retries exactly once, after retryDelay, when the first
// attempt fails at the transport level. HTTP status errors are not retried.
func (c *Client) sendWithRetry(ctx context.Context, body string) ([]byte, error) {
	raw, err := c.sendOnce(ctx, body)
	if err == nil || !isTransient(ctx, err) {
		return raw, err
	}
	c.logger.Info("ai request transient failure, retrying once", zap.Duration("delay", c.retryDelay), zap.Error(err))
	if sleepErr := c.sleeper(ctx, c.retryDelay); sleepErr != nil {
		return nil, sleepErr
	}
	return c.sendOnce(ctx, body)
}

func (c *Client) sendOnce(ctx context.Context, body string) ([]byte, error) {
	req, err := c.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ai request: http error (timeout=%s): %w", c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("ai request: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpStatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

func (c *Client) newRequest(ctx context.Context, body string) (*http.Request, error) {
	var (
		req *http.Request
		err error
	)
	if c.cfg.Method == http.MethodGet {
		endpoint, parseErr := url.Parse(c.cfg.Endpoint)
		if parseErr != nil {
			return nil, fmt.Errorf("ai request: parse endpoint: %w", parseErr)
		}
		q := endpoint.Query()
		q.Set("payload", body)
		endpoint.RawQuery = q.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader([]byte(body)))
	}
	if err != nil {
		return nil, fmt.Errorf("ai request: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	if key := strings.TrimSpace(c.cfg.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	return req, nil
}

// isTransient reports connection-class failures: timeouts, refused or
// reset connections, DNS errors. Cancellation by the caller is not transient.
func isTransient(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
