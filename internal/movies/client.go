package movies

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/somepatt/tgbot-search-films/internal/metrics"
)

// DefaultRequestTimeout bounds a single provider call when the configuration
// leaves the timeout unset.
const DefaultRequestTimeout = 10 * time.Second

// ClientConfig configures the HTTP plumbing shared by the remote providers.
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

// apiClient wraps a resty client with the outbound request budget. Each call
// is a single attempt; retries are left to the caller.
type apiClient struct {
	name    string
	rest    *resty.Client
	limiter *rate.Limiter
	timeout time.Duration
	metrics *metrics.Metrics
}

func newAPIClient(name, defaultBaseURL string, cfg ClientConfig) *apiClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	var rest *resty.Client
	if cfg.HTTPClient != nil {
		rest = resty.NewWithClient(cfg.HTTPClient)
	} else {
		rest = resty.New()
	}
	rest.SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &apiClient{
		name:    name,
		rest:    rest,
		limiter: limiter,
		timeout: timeout,
		metrics: cfg.Metrics,
	}
}

// get issues a GET against path and decodes the JSON body into out. Failures
// are classified into ErrProviderRateLimited or ErrProviderUnavailable.
func (c *apiClient) get(ctx context.Context, path string, params, headers map[string]string, out any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s lookup: %w: %w", c.name, ErrProviderUnavailable, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	outcome := "ok"
	defer func() {
		c.metrics.ObserveProvider(c.name, outcome, time.Since(start))
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(callCtx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				outcome = "canceled"
				return fmt.Errorf("%s waiting for request budget: %w: %w", c.name, ErrProviderUnavailable, ctxErr)
			}
			outcome = "throttled"
			return fmt.Errorf("%s request budget exhausted: %w", c.name, ErrProviderRateLimited)
		}
	}

	resp, err := c.rest.R().
		SetContext(callCtx).
		SetQueryParams(params).
		SetHeaders(headers).
		Get(path)
	if err != nil {
		outcome = "error"
		return fmt.Errorf("%s request: %w: %w", c.name, ErrProviderUnavailable, err)
	}

	switch status := resp.StatusCode(); {
	case status == http.StatusOK:
	case status == http.StatusTooManyRequests || status == http.StatusPaymentRequired:
		outcome = "rate_limited"
		return fmt.Errorf("%s status %d: %w", c.name, status, ErrProviderRateLimited)
	default:
		outcome = "bad_status"
		return fmt.Errorf("%s status %d: %w", c.name, status, ErrProviderUnavailable)
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		outcome = "bad_payload"
		return fmt.Errorf("%s decode response: %w: %w", c.name, ErrProviderUnavailable, err)
	}
	return nil
}
